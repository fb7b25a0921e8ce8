package logutil

import (
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Config is the logging part of the process configuration.
type Config struct {
	Level  string `toml:"log-level" json:"log-level"`
	File   string `toml:"log-file" json:"log-file"`
	Format string `toml:"log-format" json:"log-format"`
}

// InitLogger initializes the global logger used by log.L().
func InitLogger(cfg *Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = defaultLogLevel
	}
	format := cfg.Format
	if format == "" {
		format = defaultLogFormat
	}

	logger, props, err := log.InitLogger(&log.Config{
		Level:  level,
		Format: format,
		File: log.FileLogConfig{
			Filename: cfg.File,
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	log.L().Info("logger initialized",
		zap.String("level", level),
		zap.String("format", format),
		zap.String("file", cfg.File))
	return nil
}

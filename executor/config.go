package executor

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hanfei1991/dfnode/executor/jobservice"
	derrors "github.com/hanfei1991/dfnode/pkg/errors"
	"github.com/hanfei1991/dfnode/pkg/logutil"
	"github.com/hanfei1991/dfnode/pkg/netutil"
)

const (
	defaultHost                   = "127.0.0.1"
	defaultPort                   = 6701
	defaultShutdownTimeoutSeconds = 3
)

var defaultStorageDir = filepath.Join(os.TempDir(), "dataflow", "storage")

// Duration is a time.Duration that can be set from toml and flags, e.g.
// "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Set implements pflag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
	return "duration"
}

// NewConfig creates a config for the executor with its flags defined.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.flagSet = pflag.NewFlagSet("executor", pflag.ContinueOnError)
	fs := cfg.flagSet

	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&cfg.Host, "host", defaultHost, "host the dataflow endpoint binds to")
	fs.IntVar(&cfg.Port, "port", defaultPort, "first port tried for the dataflow endpoint")
	fs.BoolVar(&cfg.PortAutoIncrement, "port-auto-increment", true, "try the next port if the port is in use")
	fs.IntVar(&cfg.IOThreadCount, "io-thread-count", runtime.NumCPU(), "number of workers of the network pool")
	fs.IntVar(&cfg.ProcessingThreadCount, "processing-thread-count", runtime.NumCPU(), "number of workers of the processing pool")
	fs.IntVar(&cfg.ShutdownTimeoutSeconds, "shutdown-timeout-seconds", defaultShutdownTimeoutSeconds, "time given to a pool to stop its workers")
	fs.Var(&cfg.FinalizeTimeout, "finalize-timeout", "time given to a job master to finalize a job, 0 means no limit")
	fs.StringVar(&cfg.StorageDir, "storage-dir", defaultStorageDir, "directory of the resources staged by jobs")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address serving the prometheus metrics, disabled if empty")
	fs.StringVarP(&cfg.Level, "log-level", "L", "info", "log level: debug, info, warn, error, fatal")
	fs.StringVar(&cfg.File, "log-file", "", "log file path")
	fs.StringVar(&cfg.Format, "log-format", "text", `the format of the log, "text" or "json"`)

	return cfg
}

// Config is the configuration of the executor.
type Config struct {
	flagSet *pflag.FlagSet

	logutil.Config

	Host              string `toml:"host" json:"host"`
	Port              int    `toml:"port" json:"port"`
	PortAutoIncrement bool   `toml:"port-auto-increment" json:"port-auto-increment"`

	IOThreadCount          int      `toml:"io-thread-count" json:"io-thread-count"`
	ProcessingThreadCount  int      `toml:"processing-thread-count" json:"processing-thread-count"`
	ShutdownTimeoutSeconds int      `toml:"shutdown-timeout-seconds" json:"shutdown-timeout-seconds"`
	FinalizeTimeout        Duration `toml:"finalize-timeout" json:"finalize-timeout"`

	StorageDir  string `toml:"storage-dir" json:"storage-dir"`
	MetricsAddr string `toml:"metrics-addr" json:"metrics-addr"`

	ConfigFile string `toml:"config-file" json:"config-file"`
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.L().Error("marshal to json", zap.Reflect("executor config", c), zap.Error(err))
	}
	return string(cfg)
}

// Toml returns TOML format representation of config.
func (c *Config) Toml() (string, error) {
	var b bytes.Buffer

	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		log.L().Error("fail to marshal config to toml", zap.Error(err))
		return "", err
	}
	return b.String(), nil
}

// Parse parses flag definitions from the argument list. Items of the
// config file are overridden by the flags. pflag.ErrHelp is returned as
// is when help is requested.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.flagSet.Parse(arguments)
	if err == pflag.ErrHelp {
		return err
	}
	if err != nil {
		return derrors.Wrap(derrors.ErrConfigParseFlagSet, err)
	}

	// Load config file if specified.
	if c.ConfigFile != "" {
		if err := c.configFromFile(c.ConfigFile); err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.flagSet.Parse(arguments)
	if err != nil {
		return derrors.Wrap(derrors.ErrConfigParseFlagSet, err)
	}

	if len(c.flagSet.Args()) != 0 {
		return derrors.ErrConfigInvalidFlag.GenWithStackByArgs(c.flagSet.Arg(0))
	}
	return c.Adjust()
}

// Adjust fills the unset items with defaults and validates the others.
func (c *Config) Adjust() error {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port <= 0 || c.Port > netutil.MaxPort {
		return derrors.ErrConfigInvalidValue.GenWithStackByArgs("port", c.Port)
	}
	if c.IOThreadCount <= 0 {
		c.IOThreadCount = runtime.NumCPU()
	}
	if c.ProcessingThreadCount <= 0 {
		c.ProcessingThreadCount = runtime.NumCPU()
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return derrors.ErrConfigInvalidValue.GenWithStackByArgs("shutdown-timeout-seconds", c.ShutdownTimeoutSeconds)
	}
	if c.FinalizeTimeout.Duration < 0 {
		return derrors.ErrConfigInvalidValue.GenWithStackByArgs("finalize-timeout", c.FinalizeTimeout)
	}
	if c.StorageDir == "" {
		c.StorageDir = defaultStorageDir
	}
	return nil
}

// ServiceConfig returns the part of the config used by the job service.
func (c *Config) ServiceConfig() jobservice.Config {
	return jobservice.Config{
		Host:                  c.Host,
		Port:                  c.Port,
		PortAutoIncrement:     c.PortAutoIncrement,
		IOThreadCount:         c.IOThreadCount,
		ProcessingThreadCount: c.ProcessingThreadCount,
		ShutdownTimeout:       time.Duration(c.ShutdownTimeoutSeconds) * time.Second,
		FinalizeTimeout:       c.FinalizeTimeout.Duration,
		StorageDir:            c.StorageDir,
	}
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	metaData, err := toml.DecodeFile(path, c)
	if err != nil {
		return derrors.Wrap(derrors.ErrConfigDecodeFile, err)
	}
	undecoded := metaData.Undecoded()
	if len(undecoded) > 0 {
		var undecodedItems []string
		for _, item := range undecoded {
			undecodedItems = append(undecodedItems, item.String())
		}
		return derrors.ErrConfigUnknownItem.GenWithStackByArgs(strings.Join(undecodedItems, ","))
	}
	return nil
}

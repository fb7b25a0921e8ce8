package model

import (
	"strings"
	"unicode/utf8"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
)

// JobName is the unique key of a job on a node.
type JobName = string

// JobConfig is the per-job configuration handed in when a job context is
// created.
type JobConfig struct {
	// ResourceDir overrides the node's storage directory for the job's
	// staged resources.
	ResourceDir string `toml:"resource-dir" json:"resource-dir"`
	// Properties are opaque settings passed to the job's tasks.
	Properties map[string]string `toml:"properties" json:"properties"`
}

// Clone returns a deep copy of the config. A nil config clones into an
// empty one.
func (c *JobConfig) Clone() *JobConfig {
	if c == nil {
		return &JobConfig{}
	}
	ret := &JobConfig{
		ResourceDir: c.ResourceDir,
	}
	if c.Properties != nil {
		ret.Properties = make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			ret.Properties[k] = v
		}
	}
	return ret
}

// ValidateJobName checks that name can be used as a registry key, as a
// directory name and as a metric label value.
func ValidateJobName(name JobName) error {
	if !utf8.ValidString(name) || strings.TrimSpace(name) == "" ||
		name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return derrors.ErrInvalidJobName.GenWithStackByArgs(name)
	}
	return nil
}

package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	derrors "github.com/hanfei1991/dfnode/pkg/errors"
)

func TestValidateJobName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"job-1", "wordcount", "a.b"} {
		require.NoError(t, ValidateJobName(name), name)
	}
	for _, name := range []string{"", "  ", ".", "..", "a/b", `a\b`, "job\xff", "\xc3\x28"} {
		err := ValidateJobName(name)
		require.Error(t, err, name)
		require.True(t, derrors.ErrInvalidJobName.Equal(err))
	}
}

func TestJobConfigClone(t *testing.T) {
	t.Parallel()

	var nilCfg *JobConfig
	require.Equal(t, &JobConfig{}, nilCfg.Clone())

	cfg := &JobConfig{
		ResourceDir: "/tmp/res",
		Properties:  map[string]string{"parallelism": "4"},
	}
	cloned := cfg.Clone()
	require.Equal(t, cfg, cloned)
	cloned.Properties["parallelism"] = "8"
	require.Equal(t, "4", cfg.Properties["parallelism"])
}

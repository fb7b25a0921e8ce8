package deps

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

type settings struct {
	workers int
}

type pool struct {
	settings *settings
}

type components struct {
	dig.In

	Settings *settings
	Pool     *pool
}

func TestDepsConstruct(t *testing.T) {
	t.Parallel()

	deps := NewDeps()
	require.NoError(t, deps.Provide(func() *settings {
		return &settings{workers: 4}
	}))

	out, err := deps.Construct(func(s *settings) (*pool, error) {
		return &pool{settings: s}, nil
	})
	require.NoError(t, err)
	require.Equal(t, &pool{settings: &settings{workers: 4}}, out)

	// a single result is fine too
	out, err = deps.Construct(func(s *settings) int {
		return s.workers * 2
	})
	require.NoError(t, err)
	require.Equal(t, 8, out)

	// constructed values are not added to the container
	var c components
	require.Error(t, deps.Fill(&c))
}

func TestDepsConstructErrors(t *testing.T) {
	t.Parallel()

	deps := NewDeps()
	require.NoError(t, deps.Provide(func() *settings {
		return &settings{}
	}))

	_, err := deps.Construct(func(*settings) (*pool, error) {
		return nil, errors.New("bind failed")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bind failed")

	// the parameter is not provided
	_, err = deps.Construct(func(*pool) int { return 0 })
	require.Error(t, err)

	for _, fn := range []interface{}{
		"not a function",
		func(*settings) {},
		func(*settings) (int, int) { return 0, 0 },
	} {
		_, err := deps.Construct(fn)
		require.Error(t, err)
	}
}

func TestDepsFill(t *testing.T) {
	t.Parallel()

	deps := NewDeps()
	require.NoError(t, deps.Provide(func() *settings {
		return &settings{workers: 2}
	}))
	require.NoError(t, deps.Provide(func(s *settings) *pool {
		return &pool{settings: s}
	}))

	var c components
	require.NoError(t, deps.Fill(&c))
	require.Equal(t, 2, c.Settings.workers)
	require.Same(t, c.Settings, c.Pool.settings)

	require.Error(t, deps.Fill(c))
	var notStruct int
	require.Error(t, deps.Fill(&notStruct))
}

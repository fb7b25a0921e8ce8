package future

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveOnce(t *testing.T) {
	t.Parallel()

	f := New[int]()
	go func() {
		require.True(t, f.Resolve(1))
	}()

	val, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, val)

	require.False(t, f.Resolve(2))
	require.False(t, f.Reject(errors.New("too late")))
	val, err = f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, val)
}

func TestFutureRejected(t *testing.T) {
	t.Parallel()

	f := Rejected[string](errors.New("fake error"))
	select {
	case <-f.Done():
	default:
		t.Fatal("future should be completed")
	}
	_, err := f.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, "fake error", err.Error())

	val, err := Resolved("ok").Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", val)
}

func TestFutureGetTimeout(t *testing.T) {
	t.Parallel()

	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	require.Error(t, err)
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))
}

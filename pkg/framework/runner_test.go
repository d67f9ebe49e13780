package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunnerWait(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), NamedRun("fail", RunFunc(func(context.Context) error {
		return errors.New("sink gone")
	})))
	r.Stop()
	err := r.Wait()
	require.EqualError(t, err, "sink gone")
	require.IsType(t, &AggregatedError{}, err)
}

func TestRunnerNoError(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
	require.Len(t, r.Runners, 1)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.EqualError(t, errs.Aggregate(), "Multiple errors:\na\nb")
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closed := 0
	closer := closerFunc(func() error {
		closed++
		close(unblock)
		return nil
	})
	cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-unblock
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 1, closed)

	closed = 0
	unblock = make(chan struct{})
	err = RunWithContextCloser(context.Background(), closer, func() error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, closed)
}

package av

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestSupervisor_FailureDoesNotStopSiblings(t *testing.T) {
	failed := make(chan struct{})
	var siblingStopped atomic.Bool

	s := NewSupervisor()
	s.Add("rx-1", PipelineFunc(func(ctx context.Context) error {
		close(failed)
		return errInjected
	}))
	s.Add("rx-2", PipelineFunc(func(ctx context.Context) error {
		<-ctx.Done()
		siblingStopped.Store(true)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-failed
	assert.Never(t, func() bool {
		return siblingStopped.Load()
	}, 50*time.Millisecond, 5*time.Millisecond)

	cancel()
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
	assert.Contains(t, err.Error(), "rx-1")
	assert.True(t, siblingStopped.Load())
}

func TestSupervisor_BackgroundStopsWithPipelines(t *testing.T) {
	var backgroundStopped atomic.Bool

	s := NewSupervisor()
	s.Add("tx", PipelineFunc(func(ctx context.Context) error { return nil }))
	s.AddBackground("stats", PipelineFunc(func(ctx context.Context) error {
		err := blockUntilDone(ctx)
		backgroundStopped.Store(true)
		return err
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not return after its pipelines finished")
	}
	assert.True(t, backgroundStopped.Load())
}

func TestSupervisor_CancelStopsEverything(t *testing.T) {
	s := NewSupervisor()
	s.Add("tx", PipelineFunc(blockUntilDone))
	s.Add("rx", PipelineFunc(blockUntilDone))
	s.AddBackground("stats", PipelineFunc(blockUntilDone))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, s.Run(ctx))
}

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_CoalescesTriggersWhileRunning(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	s := newScheduler(func(ctx context.Context, key string) {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	ctx := context.Background()
	s.Trigger(ctx, "m1")
	<-started
	for i := 0; i < 10; i++ {
		s.Trigger(ctx, "m1")
	}
	close(release)
	s.Wait()

	assert.Equal(t, int32(2), runs.Load(), "one pass plus exactly one catch-up")
}

func TestScheduler_KeysRunIndependently(t *testing.T) {
	blockA := make(chan struct{})
	doneB := make(chan struct{})

	s := newScheduler(func(ctx context.Context, key string) {
		switch key {
		case "a":
			<-blockA
		case "b":
			close(doneB)
		}
	})

	ctx := context.Background()
	s.Trigger(ctx, "a")
	s.Trigger(ctx, "b")
	<-doneB // b no espera a a
	close(blockA)
	s.Wait()
}

func TestScheduler_IgnoresCancelledContext(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(func(context.Context, string) { runs.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Trigger(ctx, "m1")
	s.Wait()

	assert.Zero(t, runs.Load())
}

func TestScheduler_StopDropsLateTriggers(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(func(context.Context, string) { runs.Add(1) })

	ctx := context.Background()
	s.Trigger(ctx, "m1")
	s.Stop()
	n := runs.Load()
	assert.Equal(t, int32(1), n)

	// los feeds pueden seguir entregando eventos durante el apagado
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger(ctx, "m1")
		}()
	}
	s.Stop()
	wg.Wait()
	s.Wait()

	assert.Equal(t, n, runs.Load())
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonka-ai/inferencecache/internal/config"
)

func testScheduler() *Scheduler {
	return &Scheduler{logger: log.New(io.Discard, "", 0)}
}

// ==================== loop: ticks and errors ====================

func TestLoop_RunsImmediatelyThenOnEveryTick(t *testing.T) {
	var calls atomic.Int32
	s := testScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	go s.loop(ctx, task{
		name:         "t",
		initialDelay: 0,
		interval:     10 * time.Millisecond,
		action: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	require.GreaterOrEqual(t, int(calls.Load()), 2)
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	var calls atomic.Int32
	s := testScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	go s.loop(ctx, task{
		name:         "t",
		initialDelay: 0,
		interval:     5 * time.Millisecond,
		action: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, int(calls.Load()), 1, "no ticks should fire after the context is already cancelled")
}

func TestRunOnce_RecoversFromPanic(t *testing.T) {
	s := testScheduler()
	require.NotPanics(t, func() {
		s.runOnce(context.Background(), task{
			name: "panicking",
			action: func(context.Context) error {
				panic("boom")
			},
		})
	})
}

func TestRunOnce_LogsErrorWithoutPanicking(t *testing.T) {
	s := testScheduler()
	require.NotPanics(t, func() {
		s.runOnce(context.Background(), task{
			name:   "failing",
			action: func(context.Context) error { return errors.New("upstream down") },
		})
	})
}

// ==================== New: wiring ====================

func TestNew_BuildsAllSevenTasks(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := New(config.PollConfig{
		CurrentEpoch:      config.TaskConfig{InitialDelaySec: 0, IntervalSec: 30},
		JailStatus:        config.TaskConfig{InitialDelaySec: 10, IntervalSec: 120},
		NodeHealth:        config.TaskConfig{InitialDelaySec: 5, IntervalSec: 60},
		Rewards:           config.TaskConfig{InitialDelaySec: 15, IntervalSec: 60},
		WarmKeys:          config.TaskConfig{InitialDelaySec: 20, IntervalSec: 300},
		HardwareNodes:     config.TaskConfig{InitialDelaySec: 25, IntervalSec: 600},
		EpochTotalRewards: config.TaskConfig{InitialDelaySec: 30, IntervalSec: 600},
	}, Actions{
		CurrentEpoch: noop, JailStatus: noop, NodeHealth: noop, Rewards: noop,
		WarmKeys: noop, HardwareNodes: noop, EpochTotalRewards: noop,
	})

	require.Len(t, s.tasks, 7)
	names := make(map[string]task, len(s.tasks))
	for _, tk := range s.tasks {
		names[tk.name] = tk
	}
	require.Contains(t, names, "current_epoch")
	require.Equal(t, 120*time.Second, names["jail_status"].interval)
	require.Equal(t, 25*time.Second, names["hardware_nodes"].initialDelay)
}

// Package scheduler runs the seven independent background refresh
// loops that keep the cache warm ahead of reads: current epoch stats,
// jail status, node health, rewards, warm keys, hardware nodes, and
// epoch total rewards. One generic ticker-driven runner backs all
// seven, following the teacher's one-struct-per-loop decay scheduler
// but generalized so a single implementation serves every task.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gonka-ai/inferencecache/internal/config"
)

var (
	taskTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_ticks_total",
		Help: "Number of times a scheduler task has fired.",
	}, []string{"task"})

	taskErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_errors_total",
		Help: "Number of times a scheduler task's action returned an error or panicked.",
	}, []string{"task"})

	taskLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_task_last_success_unixtime",
		Help: "Unix timestamp of the last successful run of a scheduler task.",
	}, []string{"task"})
)

func init() {
	prometheus.MustRegister(taskTicks, taskErrors, taskLastSuccess)
}

// Scheduler owns the seven refresh loops and their shared lifecycle.
type Scheduler struct {
	logger *log.Logger
	tasks  []task
}

type task struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	action       func(context.Context) error
}

// New builds a Scheduler wired to the given task actions, one per
// spec.md §4.4 refresh loop, with schedules read from config.
func New(cfg config.PollConfig, actions Actions) *Scheduler {
	mk := func(name string, tc config.TaskConfig, action func(context.Context) error) task {
		return task{
			name:         name,
			initialDelay: time.Duration(tc.InitialDelaySec) * time.Second,
			interval:     time.Duration(tc.IntervalSec) * time.Second,
			action:       action,
		}
	}

	return &Scheduler{
		logger: log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags),
		tasks: []task{
			mk("current_epoch", cfg.CurrentEpoch, actions.CurrentEpoch),
			mk("jail_status", cfg.JailStatus, actions.JailStatus),
			mk("node_health", cfg.NodeHealth, actions.NodeHealth),
			mk("rewards", cfg.Rewards, actions.Rewards),
			mk("warm_keys", cfg.WarmKeys, actions.WarmKeys),
			mk("hardware_nodes", cfg.HardwareNodes, actions.HardwareNodes),
			mk("epoch_total_rewards", cfg.EpochTotalRewards, actions.EpochTotalRewards),
		},
	}
}

// Actions bundles the seven task bodies the scheduler drives. Kept as
// plain functions rather than an aggregate.Service dependency so the
// scheduler package stays agnostic of how each refresh is implemented.
type Actions struct {
	CurrentEpoch      func(context.Context) error
	JailStatus        func(context.Context) error
	NodeHealth        func(context.Context) error
	Rewards           func(context.Context) error
	WarmKeys          func(context.Context) error
	HardwareNodes     func(context.Context) error
	EpochTotalRewards func(context.Context) error
}

// Start launches every task as a goroutine sharing ctx for
// cancellation. It returns immediately; callers cancel ctx to stop all
// loops.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		go s.loop(ctx, t)
	}
	s.logger.Printf("started %d refresh tasks", len(s.tasks))
}

// loop runs one task's action on its own ticker, observing ctx
// cancellation within one cycle. A panic inside action is recovered
// and logged so one task's fault can never take down the others or the
// process.
func (s *Scheduler) loop(ctx context.Context, t task) {
	if t.initialDelay > 0 {
		select {
		case <-time.After(t.initialDelay):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	s.runOnce(ctx, t)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, t)
		case <-ctx.Done():
			s.logger.Printf("task %s stopped", t.name)
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			taskErrors.WithLabelValues(t.name).Inc()
			s.logger.Printf("task %s panicked: %v", t.name, r)
		}
	}()

	taskTicks.WithLabelValues(t.name).Inc()
	if err := t.action(ctx); err != nil {
		taskErrors.WithLabelValues(t.name).Inc()
		s.logger.Printf("task %s failed: %v", t.name, err)
		return
	}
	taskLastSuccess.WithLabelValues(t.name).Set(float64(time.Now().Unix()))
}

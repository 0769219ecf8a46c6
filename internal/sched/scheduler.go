// Package sched runs configured invocations on cron schedules.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"prizmagent/internal/config"
	"prizmagent/internal/domain"
	"prizmagent/internal/invoke"
	"prizmagent/internal/metrics"
)

// RunRecord is the outcome of one scheduled run, kept for inspection.
type RunRecord struct {
	TaskID  string
	Target  string
	Status  domain.OutcomeStatus
	Error   string
	RanAt   time.Time
	Elapsed time.Duration
}

// Scheduler executes configured tasks against the invoker on their cron
// schedules. Each task names a tool or chain target and an optional raw
// input string; the invoker resolves and runs it exactly like an
// interactive call.
type Scheduler struct {
	invoker *invoke.Invoker
	opts    invoke.Options
	logger  *slog.Logger
	cron    *rcron.Cron

	mu       sync.Mutex
	entryMap map[string]rcron.EntryID // task ID -> cron entry
	lastRuns map[string]RunRecord
}

type Config struct {
	Invoker    *invoke.Invoker
	InvokeOpts invoke.Options
	Logger     *slog.Logger
}

func New(cfg Config) *Scheduler {
	return &Scheduler{
		invoker:  cfg.Invoker,
		opts:     cfg.InvokeOpts,
		logger:   cfg.Logger,
		cron:     rcron.New(),
		entryMap: make(map[string]rcron.EntryID),
		lastRuns: make(map[string]RunRecord),
	}
}

// Register adds a task; disabled tasks are ignored. The schedule is a
// standard 5-field cron expression.
func (s *Scheduler) Register(task config.CronTask) error {
	if !task.Enabled {
		s.logger.Debug("skipping disabled cron task", "id", task.ID)
		return nil
	}
	if task.Target == "" {
		return fmt.Errorf("cron task %s: target is required", task.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entryMap[task.ID]; exists {
		return fmt.Errorf("cron task %s: already registered", task.ID)
	}

	id, err := s.cron.AddFunc(task.Schedule, func() {
		s.run(task)
	})
	if err != nil {
		return fmt.Errorf("cron task %s: bad schedule %q: %w", task.ID, task.Schedule, err)
	}
	s.entryMap[task.ID] = id
	s.logger.Info("cron task registered", "id", task.ID, "target", task.Target, "schedule", task.Schedule)
	return nil
}

// Remove unregisters a task. Unknown IDs are a no-op.
func (s *Scheduler) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entryMap[taskID]; ok {
		s.cron.Remove(id)
		delete(s.entryMap, taskID)
		s.logger.Info("cron task removed", "id", taskID)
	}
}

// Start begins firing schedules and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.entryMap))
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let in-flight runs finish.
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) run(task config.CronTask) {
	start := time.Now()
	ic := domain.NewInvocationContext(uuid.NewString(), "cron:"+task.ID, "cron")

	outcome := s.invoker.Invoke(context.Background(), invoke.Request{
		Target: task.Target,
		Raw:    task.Input,
	}, ic, s.opts)

	rec := RunRecord{
		TaskID:  task.ID,
		Target:  task.Target,
		Status:  outcome.Status,
		RanAt:   start,
		Elapsed: outcome.Elapsed,
	}
	if outcome.Failure != nil {
		rec.Error = outcome.Failure.Error()
	}

	s.mu.Lock()
	s.lastRuns[task.ID] = rec
	s.mu.Unlock()

	metrics.Collector.Counter("prizm_cron_runs_total", "Scheduled task runs",
		`task="`+task.ID+`",status="`+string(outcome.Status)+`"`).Inc()

	if outcome.Failed() {
		s.logger.Error("cron task failed", "id", task.ID, "target", task.Target, "err", rec.Error)
		return
	}
	s.logger.Info("cron task completed", "id", task.ID, "target", task.Target, "status", outcome.Status, "elapsed", outcome.Elapsed)
}

// LastRun returns the most recent run record for a task.
func (s *Scheduler) LastRun(taskID string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lastRuns[taskID]
	return rec, ok
}

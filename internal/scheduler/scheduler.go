// Package scheduler runs memory dump analysis tasks on a bounded worker
// pool fed by task sources.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memdump-analysis/internal/repository"
	"github.com/memdump-analysis/internal/scheduler/source"
	"github.com/memdump-analysis/pkg/config"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

const (
	rulesRefreshInterval = 30 * time.Second
	settleTimeout        = 5 * time.Second
)

// Task is a unit of work for the pool, built from a source event.
type Task struct {
	ID            int64
	UUID          string
	Type          model.TaskType
	TraceFile     string
	UserName      string
	Bucket        string
	RequestParams model.RequestParams
	Priority      int // higher runs first and may use reserved slots

	event *source.TaskEvent
}

// TaskProcessor analyzes one task. Rules are the stored advisor overrides
// current when the task started.
type TaskProcessor interface {
	Process(ctx context.Context, task *Task, rules []model.SuggestionRule) error
}

// SchedulerConfig sizes the pool.
type SchedulerConfig struct {
	PollInterval  time.Duration
	WorkerCount   int
	PrioritySlots int // workers only priority tasks may occupy
	TaskBatchSize int // the queue holds twice this many tasks
	TaskTimeout   time.Duration
}

// DefaultSchedulerConfig returns the defaults used when no config is given.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  2 * time.Second,
		WorkerCount:   5,
		PrioritySlots: 2,
		TaskBatchSize: 10,
		TaskTimeout:   10 * time.Minute,
	}
}

// FromConfig maps the scheduler section of the application config.
func FromConfig(cfg *config.SchedulerConfig) *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  cfg.PollDuration(),
		WorkerCount:   cfg.WorkerCount,
		PrioritySlots: cfg.PrioritySlots,
		TaskBatchSize: cfg.TaskBatchSize,
		TaskTimeout:   cfg.TimeoutDuration(),
	}
}

// Scheduler pulls events from an aggregator, runs them on a fixed number of
// workers and settles each delivered event exactly once.
type Scheduler struct {
	config         *SchedulerConfig
	aggregator     *source.Aggregator
	processor      TaskProcessor
	suggestionRepo repository.SuggestionRepository
	logger         utils.Logger

	workerPool chan struct{} // one token per idle worker
	taskQueue  chan *Task
	rules      atomic.Pointer[[]model.SuggestionRule]

	wg       sync.WaitGroup
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler. A nil config selects DefaultSchedulerConfig;
// non-positive sizes are raised to one.
func New(config *SchedulerConfig, aggregator *source.Aggregator, processor TaskProcessor, suggestionRepo repository.SuggestionRepository, logger utils.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	config.WorkerCount = max(config.WorkerCount, 1)
	config.TaskBatchSize = max(config.TaskBatchSize, 1)

	s := &Scheduler{
		config:         config,
		aggregator:     aggregator,
		processor:      processor,
		suggestionRepo: suggestionRepo,
		logger:         utils.OrNull(logger),
		workerPool:     make(chan struct{}, config.WorkerCount),
		taskQueue:      make(chan *Task, config.TaskBatchSize*2),
		stopCh:         make(chan struct{}),
	}
	for range config.WorkerCount {
		s.workerPool <- struct{}{}
	}
	return s
}

// Start loads the advisor rules, starts the aggregator and launches the
// intake and dispatch loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler with %d workers (%d priority slots)",
		s.config.WorkerCount, s.config.PrioritySlots)

	s.refreshRules(ctx)
	if err := s.aggregator.Start(ctx); err != nil {
		return err
	}
	s.running.Store(true)

	s.wg.Add(2)
	go s.intake(ctx)
	go s.dispatch(ctx)
	return nil
}

// Stop ends both loops, waits for running tasks and releases queued tasks
// that never started. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler...")
		close(s.stopCh)
		s.wg.Wait()
		s.running.Store(false)

		for len(s.taskQueue) > 0 {
			s.release(<-s.taskQueue)
		}
		s.logger.Info("Scheduler stopped")
	})
}

// refreshRules replaces the cached rules; on error the cache is kept.
func (s *Scheduler) refreshRules(ctx context.Context) {
	if s.suggestionRepo == nil {
		return
	}
	rules, err := s.suggestionRepo.GetAnalysisRules(ctx)
	if err != nil {
		s.logger.Warn("Failed to refresh analysis rules: %v", err)
		return
	}
	s.rules.Store(&rules)
	s.logger.Debug("Refreshed %d analysis rules", len(rules))
}

// Rules returns the cached advisor rules.
func (s *Scheduler) Rules() []model.SuggestionRule {
	if rules := s.rules.Load(); rules != nil {
		return *rules
	}
	return nil
}

// SchedulerStats is a point-in-time view of the pool.
type SchedulerStats struct {
	ActiveWorkers int  `json:"active_workers"`
	TotalWorkers  int  `json:"total_workers"`
	QueuedTasks   int  `json:"queued_tasks"`
	Running       bool `json:"running"`
}

// Stats returns the current pool occupancy.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		ActiveWorkers: s.config.WorkerCount - len(s.workerPool),
		TotalWorkers:  s.config.WorkerCount,
		QueuedTasks:   len(s.taskQueue),
		Running:       s.running.Load(),
	}
}

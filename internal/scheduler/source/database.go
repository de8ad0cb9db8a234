package source

import (
	"context"
	"sync"
	"time"

	"github.com/memdump-analysis/internal/repository"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

// SourceTypeDB identifies the database polling source.
const SourceTypeDB SourceType = "database"

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 10
)

func init() {
	Register(SourceTypeDB, NewDatabaseSource)
}

// DatabaseOptions tunes the polling loop.
type DatabaseOptions struct {
	PollInterval time.Duration
	BatchSize    int // tasks fetched per poll; the channel buffers twice this
}

// DefaultDatabaseOptions returns the default polling options.
func DefaultDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{PollInterval: defaultPollInterval, BatchSize: defaultBatchSize}
}

func (o DatabaseOptions) withDefaults() DatabaseOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	return o
}

// DatabaseSource polls the task table for uploaded traces awaiting analysis
// and claims each one before emitting it. Claimed tasks that are never
// delivered are put back to pending.
type DatabaseSource struct {
	name     string
	options  DatabaseOptions
	logger   utils.Logger
	taskRepo repository.TaskRepository
	taskChan chan *TaskEvent

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
}

// NewDatabaseSource is the registry constructor. The service injects the
// repository with SetRepository before Start.
func NewDatabaseSource(cfg *SourceConfig) (TaskSource, error) {
	opts := &DatabaseOptions{
		PollInterval: cfg.GetDuration("poll_interval", defaultPollInterval),
		BatchSize:    cfg.GetInt("batch_size", defaultBatchSize),
	}
	return NewDatabaseSourceWithDeps(cfg.Name, opts, nil, nil), nil
}

// NewDatabaseSourceWithDeps creates a source with its dependencies. Nil
// options select the defaults.
func NewDatabaseSourceWithDeps(name string, opts *DatabaseOptions, taskRepo repository.TaskRepository, logger utils.Logger) *DatabaseSource {
	if opts == nil {
		opts = DefaultDatabaseOptions()
	}
	o := opts.withDefaults()
	return &DatabaseSource{
		name:     name,
		options:  o,
		logger:   utils.OrNull(logger),
		taskRepo: taskRepo,
		taskChan: make(chan *TaskEvent, o.BatchSize*2),
		stopCh:   make(chan struct{}),
	}
}

// SetRepository injects the task repository.
func (s *DatabaseSource) SetRepository(taskRepo repository.TaskRepository) {
	s.taskRepo = taskRepo
}

// SetLogger injects the logger.
func (s *DatabaseSource) SetLogger(logger utils.Logger) {
	s.logger = utils.OrNull(logger)
}

func (s *DatabaseSource) Type() SourceType { return SourceTypeDB }
func (s *DatabaseSource) Name() string     { return s.name }

// Options returns the effective polling options.
func (s *DatabaseSource) Options() DatabaseOptions {
	return s.options
}

// Start launches the polling loop. Without a repository the source stays
// idle and never emits.
func (s *DatabaseSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped || s.taskRepo == nil {
		return nil
	}
	s.started = true

	s.logger.Info("Database source %s polling every %v, batch size %d",
		s.name, s.options.PollInterval, s.options.BatchSize)
	go s.pollLoop(ctx)
	return nil
}

// Stop ends polling and releases claimed tasks still in the channel.
func (s *DatabaseSource) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	for len(s.taskChan) > 0 {
		s.release(<-s.taskChan)
	}
	return nil
}

// Tasks returns the channel of claimed tasks.
func (s *DatabaseSource) Tasks() <-chan *TaskEvent {
	return s.taskChan
}

// Ack writes nothing: the processor has already recorded the terminal
// status (completed or empty).
func (s *DatabaseSource) Ack(_ context.Context, event *TaskEvent) error {
	s.logger.Debug("Database source %s acked task %s", s.name, event.ID)
	return nil
}

// Nack marks the task failed with reason as its status info.
func (s *DatabaseSource) Nack(ctx context.Context, event *TaskEvent, reason string) error {
	if s.taskRepo == nil || event.Task == nil {
		return nil
	}
	return s.taskRepo.UpdateAnalysisStatusWithInfo(ctx, event.Task.ID, model.AnalysisStatusFailed, reason)
}

// Release puts the task back to pending so any instance may claim it again.
func (s *DatabaseSource) Release(ctx context.Context, event *TaskEvent) error {
	if s.taskRepo == nil || event.Task == nil {
		return nil
	}
	return s.taskRepo.UpdateAnalysisStatus(ctx, event.Task.ID, model.AnalysisStatusPending)
}

// HealthCheck runs a one-row poll query.
func (s *DatabaseSource) HealthCheck(ctx context.Context) error {
	if s.taskRepo == nil {
		return nil
	}
	_, err := s.taskRepo.GetPendingTasks(ctx, 1)
	return err
}

func (s *DatabaseSource) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	for {
		if !s.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// poll claims one batch and emits it. It returns false once the source is
// shutting down.
func (s *DatabaseSource) poll(ctx context.Context) bool {
	tasks, err := s.taskRepo.GetPendingTasks(ctx, s.options.BatchSize)
	if err != nil {
		s.logger.Error("Database source %s failed to fetch tasks: %v", s.name, err)
		return true
	}

	for _, task := range tasks {
		event, ok := s.claim(ctx, task)
		if !ok {
			continue
		}
		if !s.emit(ctx, event) {
			return false
		}
	}
	return true
}

// claim moves the task to running. A task already claimed elsewhere is
// skipped silently.
func (s *DatabaseSource) claim(ctx context.Context, task *model.Task) (*TaskEvent, bool) {
	locked, err := s.taskRepo.LockTaskForAnalysis(ctx, task.ID)
	if err != nil {
		s.logger.Error("Database source %s failed to lock task %d: %v", s.name, task.ID, err)
		return nil, false
	}
	if !locked {
		return nil, false
	}
	task.AnalysisStatus = model.AnalysisStatusRunning
	return NewTaskEvent(task, SourceTypeDB, s.name).
		WithMetadata("locked_at", time.Now().Format(time.RFC3339)), true
}

// emit offers event without blocking. A full channel releases the task for
// a later poll; shutdown releases it and reports false.
func (s *DatabaseSource) emit(ctx context.Context, event *TaskEvent) bool {
	select {
	case <-ctx.Done():
		s.release(event)
		return false
	case <-s.stopCh:
		s.release(event)
		return false
	default:
	}

	select {
	case s.taskChan <- event:
		s.logger.Debug("Database source %s emitted task %s", s.name, event.ID)
	default:
		s.logger.Warn("Database source %s channel full, task %d will retry", s.name, event.Task.ID)
		s.release(event)
	}
	return true
}

// release uses a fresh context because the polling context may already be
// canceled.
func (s *DatabaseSource) release(event *TaskEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Release(ctx, event); err != nil {
		s.logger.Error("Database source %s failed to release task %d: %v", s.name, event.Task.ID, err)
	}
}

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/memdump-analysis/internal/scheduler/source"
	apperrors "github.com/memdump-analysis/pkg/errors"
)

// intake moves events from the aggregator into the task queue. Events the
// pool cannot take are released at once so another worker may claim them.
func (s *Scheduler) intake(ctx context.Context) {
	defer s.wg.Done()

	refresh := time.NewTicker(rulesRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-refresh.C:
			s.refreshRules(ctx)
		case event, ok := <-s.aggregator.Tasks():
			if !ok {
				s.logger.Info("Aggregator channel closed")
				return
			}
			s.enqueue(convertEventToTask(event))
		}
	}
}

func (s *Scheduler) enqueue(task *Task) {
	if !s.shouldAcceptTask(task) {
		s.logger.Debug("Releasing task %d: normal tasks may not use reserved slots", task.ID)
		s.release(task)
		return
	}
	select {
	case s.taskQueue <- task:
		s.logger.Info("Queued task %d (UUID: %s) from %s/%s",
			task.ID, task.UUID, task.event.SourceType, task.event.SourceName)
	default:
		s.logger.Warn("Task queue full, releasing task %d", task.ID)
		s.release(task)
	}
}

// shouldAcceptTask applies slot reservation. Busy counts running and queued
// tasks; normal tasks may not take the last PrioritySlots workers, priority
// tasks only need room in the queue.
func (s *Scheduler) shouldAcceptTask(task *Task) bool {
	busy := s.config.WorkerCount - len(s.workerPool) + len(s.taskQueue)
	limit := s.config.WorkerCount - s.config.PrioritySlots
	if task.Priority > 0 {
		limit = s.config.WorkerCount + cap(s.taskQueue)
	}
	return busy < limit
}

// dispatch starts each queued task once a worker token is free.
func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		var task *Task
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case task = <-s.taskQueue:
		}

		select {
		case <-s.workerPool:
			s.wg.Add(1)
			go s.run(ctx, task)
		case <-ctx.Done():
			s.release(task)
			return
		case <-s.stopCh:
			s.release(task)
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, task *Task) {
	defer func() {
		s.workerPool <- struct{}{}
		s.wg.Done()
	}()

	s.logger.Info("Processing task %d (UUID: %s, Type: %s)", task.ID, task.UUID, task.Type)

	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.config.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, s.config.TaskTimeout)
	}
	started := time.Now()
	err := s.processor.Process(taskCtx, task, s.Rules())
	cancel()

	s.settle(ctx, task, err, time.Since(started))
}

// settle reports the outcome of a processed task to its source. A task cut
// short by shutdown goes back to the source untouched.
func (s *Scheduler) settle(ctx context.Context, task *Task, err error, elapsed time.Duration) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		s.logger.Warn("Task %d interrupted by shutdown after %v", task.ID, elapsed)
		s.release(task)
		return
	}

	switch {
	case err == nil:
		s.logger.Info("Task %d completed successfully in %v", task.ID, elapsed)
	case isInputError(err):
		s.logger.Warn("Task %d rejected after %v: %v", task.ID, elapsed, err)
	default:
		s.logger.Error("Task %d failed after %v: %v", task.ID, elapsed, err)
	}
	if task.event == nil {
		return
	}

	// Outcome writes must survive shutdown.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err == nil {
		if ackErr := s.aggregator.Ack(reportCtx, task.event); ackErr != nil {
			s.logger.Error("Failed to ack task %d: %v", task.ID, ackErr)
		}
		return
	}
	if nackErr := s.aggregator.Nack(reportCtx, task.event, apperrors.StatusInfo(err)); nackErr != nil {
		s.logger.Error("Failed to nack task %d: %v", task.ID, nackErr)
	}
}

// isInputError reports failures caused by the uploaded trace or the request
// rather than by the service.
func isInputError(err error) bool {
	for _, code := range []string{apperrors.CodeInvalidInput, apperrors.CodeEmptyFile, apperrors.CodeParseError} {
		if apperrors.HasCode(err, code) {
			return true
		}
	}
	return false
}

// release hands an unprocessed task back to its source.
func (s *Scheduler) release(task *Task) {
	if task.event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := s.aggregator.Release(ctx, task.event); err != nil {
		s.logger.Error("Failed to release task %d: %v", task.ID, err)
	}
}

func convertEventToTask(event *source.TaskEvent) *Task {
	t := event.Task
	return &Task{
		ID:            t.ID,
		UUID:          t.TaskUUID,
		Type:          t.Type,
		TraceFile:     t.TraceFile,
		UserName:      t.UserName,
		Bucket:        t.Bucket,
		RequestParams: t.RequestParams,
		Priority:      event.Priority,
		event:         event,
	}
}

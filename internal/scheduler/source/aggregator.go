package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memdump-analysis/pkg/utils"
)

const (
	defaultAggregatorBuffer = 100
	releaseTimeout          = 5 * time.Second
)

// sourceKey identifies a source; events carry the same pair.
type sourceKey struct {
	typ  SourceType
	name string
}

func (k sourceKey) String() string { return string(k.typ) + "/" + k.name }

func keyOf(src TaskSource) sourceKey { return sourceKey{typ: src.Type(), name: src.Name()} }

// Aggregator merges the task channels of several sources into one and routes
// settlement calls back to the source an event came from.
type Aggregator struct {
	sources []TaskSource
	routes  map[sourceKey]TaskSource
	out     chan *TaskEvent
	logger  utils.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAggregator creates an aggregator over sources. A non-positive
// bufferSize selects the default.
func NewAggregator(sources []TaskSource, bufferSize int, logger utils.Logger) *Aggregator {
	if bufferSize <= 0 {
		bufferSize = defaultAggregatorBuffer
	}
	routes := make(map[sourceKey]TaskSource, len(sources))
	for _, src := range sources {
		routes[keyOf(src)] = src
	}
	return &Aggregator{
		sources: sources,
		routes:  routes,
		out:     make(chan *TaskEvent, bufferSize),
		logger:  utils.OrNull(logger),
	}
}

// Start starts every source and one forwarder per source. If a source
// fails to start, the aggregator is stopped and the error returned.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	fwdCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.logger.Info("Starting aggregator with %d sources", len(a.sources))
	for _, src := range a.sources {
		if err := src.Start(ctx); err != nil {
			a.logger.Error("Failed to start source %s: %v", keyOf(src), err)
			a.Stop()
			return err
		}
		a.wg.Add(1)
		go a.forward(fwdCtx, src)
	}
	return nil
}

func (a *Aggregator) forward(ctx context.Context, src TaskSource) {
	defer a.wg.Done()
	key := keyOf(src)
	in := src.Tasks()

	for {
		var event *TaskEvent
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				a.logger.Info("Source %s closed its channel", key)
				return
			}
			event = e
		}

		event.SourceType, event.SourceName = key.typ, key.name
		select {
		case a.out <- event:
		case <-ctx.Done():
			a.release(src, event)
			return
		}
	}
}

// Stop stops the sources, waits for the forwarders, hands buffered events
// back to their sources and closes the output channel. Later calls are no-ops.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.cancel()
	a.mu.Unlock()

	a.logger.Info("Stopping aggregator...")
	for _, src := range a.sources {
		if err := src.Stop(); err != nil {
			a.logger.Error("Failed to stop source %s: %v", keyOf(src), err)
		}
	}
	a.wg.Wait()

	for pending := true; pending; {
		select {
		case event := <-a.out:
			if src := a.GetSourceForEvent(event); src != nil {
				a.release(src, event)
			}
		default:
			pending = false
		}
	}
	close(a.out)

	a.logger.Info("Aggregator stopped")
	return nil
}

func (a *Aggregator) release(src TaskSource, event *TaskEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := src.Release(ctx, event); err != nil {
		a.logger.Error("Failed to release task %s to %s: %v", event.ID, keyOf(src), err)
	}
}

// Tasks returns the merged task channel.
func (a *Aggregator) Tasks() <-chan *TaskEvent {
	return a.out
}

// GetSourceForEvent returns the source that produced event, or nil.
func (a *Aggregator) GetSourceForEvent(event *TaskEvent) TaskSource {
	return a.routes[sourceKey{typ: event.SourceType, name: event.SourceName}]
}

// Ack routes to the originating source. Events from unknown sources are
// dropped silently, as in Nack and Release.
func (a *Aggregator) Ack(ctx context.Context, event *TaskEvent) error {
	if src := a.GetSourceForEvent(event); src != nil {
		return src.Ack(ctx, event)
	}
	return nil
}

// Nack routes a failure to the originating source.
func (a *Aggregator) Nack(ctx context.Context, event *TaskEvent, reason string) error {
	if src := a.GetSourceForEvent(event); src != nil {
		return src.Nack(ctx, event, reason)
	}
	return nil
}

// Release returns an unprocessed event to the originating source.
func (a *Aggregator) Release(ctx context.Context, event *TaskEvent) error {
	if src := a.GetSourceForEvent(event); src != nil {
		return src.Release(ctx, event)
	}
	return nil
}

// HealthCheck returns the first source health error.
func (a *Aggregator) HealthCheck(ctx context.Context) error {
	for _, src := range a.sources {
		if err := src.HealthCheck(ctx); err != nil {
			return fmt.Errorf("source %s: %w", keyOf(src), err)
		}
	}
	return nil
}

// SourceCount returns the number of sources.
func (a *Aggregator) SourceCount() int {
	return len(a.sources)
}

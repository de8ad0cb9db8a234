// Package source provides the task sources feeding the scheduler. Each
// source type registers a creator; the aggregator merges their events.
package source

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// SourceType identifies a registered source implementation.
type SourceType string

// TaskSource claims analysis tasks and settles them once processed.
//
// Every event delivered on Tasks must eventually reach exactly one of Ack,
// Nack or Release, otherwise the task stays claimed.
type TaskSource interface {
	Type() SourceType

	// Name distinguishes instances of the same type.
	Name() string

	Start(ctx context.Context) error
	Stop() error

	Tasks() <-chan *TaskEvent

	// Ack settles a task whose outcome the processor already recorded.
	Ack(ctx context.Context, event *TaskEvent) error

	// Nack marks the task failed with reason as its status info.
	Nack(ctx context.Context, event *TaskEvent, reason string) error

	// Release returns an unprocessed task so a later poll picks it up again.
	Release(ctx context.Context, event *TaskEvent) error

	HealthCheck(ctx context.Context) error
}

// SourceConfig configures one source instance.
type SourceConfig struct {
	Type    SourceType             `yaml:"type" mapstructure:"type"`
	Name    string                 `yaml:"name" mapstructure:"name"`
	Enabled bool                   `yaml:"enabled" mapstructure:"enabled"`
	Options map[string]interface{} `yaml:"options" mapstructure:"options"`
}

// GetInt returns an integer option. Numbers and numeric strings are
// accepted; anything else yields defaultValue.
func (c *SourceConfig) GetInt(key string, defaultValue int) int {
	v, ok := c.Options[key]
	if !ok {
		return defaultValue
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetDuration returns a duration option. Strings are parsed as Go
// durations ("2s"); bare numbers count seconds.
func (c *SourceConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := c.Options[key]
	if !ok {
		return defaultValue
	}
	if s, isString := v.(string); isString {
		d, err := time.ParseDuration(s)
		if err != nil {
			return defaultValue
		}
		return d
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return defaultValue
	}
	return time.Duration(secs * float64(time.Second))
}

// SourceCreator builds a TaskSource from its configuration.
type SourceCreator func(cfg *SourceConfig) (TaskSource, error)

var (
	registryMu sync.RWMutex
	creators   = make(map[SourceType]SourceCreator)
)

// Register makes a source type available to CreateSource. Implementations
// call it from init.
func Register(sourceType SourceType, creator SourceCreator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	creators[sourceType] = creator
}

// IsRegistered reports whether a creator exists for sourceType.
func IsRegistered(sourceType SourceType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := creators[sourceType]
	return ok
}

// RegisteredTypes returns the registered source types in name order.
func RegisteredTypes() []SourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(creators))
}

// CreateSource builds the source described by cfg.
func CreateSource(cfg *SourceConfig) (TaskSource, error) {
	registryMu.RLock()
	creator, ok := creators[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s (registered types: %v)", cfg.Type, RegisteredTypes())
	}
	return creator(cfg)
}

// CreateSources builds every enabled source in configs.
func CreateSources(configs []*SourceConfig) ([]TaskSource, error) {
	var sources []TaskSource
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		src, err := CreateSource(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create source %q: %w", cfg.Name, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

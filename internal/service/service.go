// Package service wires the analyzer service: database, object storage,
// task sources and the scheduler.
package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/memdump-analysis/internal/advisor"
	"github.com/memdump-analysis/internal/memorydump"
	"github.com/memdump-analysis/internal/repository"
	"github.com/memdump-analysis/internal/scheduler"
	"github.com/memdump-analysis/internal/scheduler/source"
	"github.com/memdump-analysis/internal/storage"
	"github.com/memdump-analysis/pkg/config"
	"github.com/memdump-analysis/pkg/utils"
)

// defaultSourceName names the database source polling the task table.
const defaultSourceName = "default-db"

// Service owns every long-lived component of the analyzer.
type Service struct {
	config *config.Config
	logger utils.Logger

	db         *repository.Repositories
	storage    storage.Storage
	advisor    *advisor.Advisor
	sources    []source.TaskSource
	aggregator *source.Aggregator
	scheduler  *scheduler.Scheduler

	running atomic.Bool
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	Running   bool                     `json:"running"`
	Database  string                   `json:"database,omitempty"`
	Sources   []string                 `json:"sources,omitempty"`
	Scheduler scheduler.SchedulerStats `json:"scheduler"`
}

// New creates a Service. Nothing is connected until Initialize.
func New(cfg *config.Config, logger utils.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	return &Service{
		config:  cfg,
		logger:  logger,
		advisor: advisor.NewAdvisor(),
	}, nil
}

// Initialize connects the database and storage and builds the scheduler.
func (s *Service) Initialize(ctx context.Context) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"data directory", s.config.EnsureDataDir},
		{"category tree", s.checkCategoryFile},
		{"database", s.initDatabase},
		{"storage", s.initStorage},
		{"sources", s.initSources},
		{"scheduler", s.initScheduler},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.run(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	s.logger.Info("Service components initialized")
	return nil
}

// checkCategoryFile loads the configured category tree once so a broken
// file stops startup instead of failing every task.
func (s *Service) checkCategoryFile() error {
	path := s.config.Analysis.CategoryFile
	if path == "" {
		return nil
	}
	root, err := memorydump.LoadCategoryTreeFile(path)
	if err != nil {
		return err
	}
	s.logger.Info("Category tree %s: %d top-level categories", path, len(root.Children()))
	return nil
}

func (s *Service) initDatabase() error {
	dbCfg := s.config.Database
	gormDB, err := repository.NewGormDB(&repository.DBConfig{
		Type:     dbCfg.Type,
		Host:     dbCfg.Host,
		Port:     dbCfg.Port,
		Database: dbCfg.Database,
		User:     dbCfg.User,
		Password: dbCfg.Password,
		MaxConns: dbCfg.MaxConns,
		LogSQL:   dbCfg.LogSQL,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	s.db = repository.NewRepositories(gormDB, dbCfg.Type, s.config.Analysis.Version)
	s.logger.Info("Connected to %s database", dbCfg.Type)
	return nil
}

func (s *Service) initStorage() error {
	store, err := storage.NewStorage(&s.config.Storage)
	if err != nil {
		return err
	}
	s.storage = store
	s.logger.Info("Using %s storage", s.config.Storage.Type)
	return nil
}

// initSources creates the database polling source and the aggregator
// feeding the scheduler.
func (s *Service) initSources() error {
	sources, err := source.CreateSources([]*source.SourceConfig{{
		Type:    source.SourceTypeDB,
		Name:    defaultSourceName,
		Enabled: true,
		Options: map[string]interface{}{
			"poll_interval": s.config.Scheduler.PollInterval,
			"batch_size":    s.config.Scheduler.TaskBatchSize,
		},
	}})
	if err != nil {
		return err
	}
	for _, src := range sources {
		if db, ok := src.(*source.DatabaseSource); ok {
			db.SetRepository(s.db.Task)
			db.SetLogger(s.logger)
		}
		s.logger.Info("Task source %s (%s)", src.Name(), src.Type())
	}
	s.sources = sources
	s.aggregator = source.NewAggregator(sources, s.config.Scheduler.TaskBatchSize*2, s.logger)
	return nil
}

func (s *Service) initScheduler() error {
	processor := scheduler.NewDefaultTaskProcessor(&scheduler.ProcessorConfig{
		Config:  s.config,
		Storage: s.storage,
		Repos:   s.db,
		Advisor: s.advisor,
		Logger:  s.logger,
	})
	s.scheduler = scheduler.New(scheduler.FromConfig(&s.config.Scheduler), s.aggregator, processor, s.db.Suggestion, s.logger)
	return nil
}

// Start starts polling and processing tasks.
func (s *Service) Start(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("service is not initialized")
	}
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.running.Store(true)
	s.logger.Info("Service started")
	return nil
}

// Stop stops the scheduler, releases unprocessed tasks and closes the
// database. It is safe to call more than once.
func (s *Service) Stop() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.aggregator != nil {
		if err := s.aggregator.Stop(); err != nil {
			s.logger.Error("Failed to stop task sources: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database: %v", err)
		}
		s.db = nil
	}
	if s.running.Swap(false) {
		s.logger.Info("Service stopped")
	}
	return nil
}

// Repositories returns the repositories, nil before Initialize.
func (s *Service) Repositories() *repository.Repositories {
	return s.db
}

// Storage returns the object storage, nil before Initialize.
func (s *Service) Storage() storage.Storage {
	return s.storage
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Stats returns a snapshot of the service state.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{Running: s.running.Load()}
	if s.db != nil {
		stats.Database = s.db.Type()
	}
	for _, src := range s.sources {
		stats.Sources = append(stats.Sources, src.Name())
	}
	if s.scheduler != nil {
		stats.Scheduler = s.scheduler.Stats()
	}
	return stats
}

// HealthCheck checks the database and every task source.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}
	if s.aggregator != nil {
		if err := s.aggregator.HealthCheck(ctx); err != nil {
			return fmt.Errorf("source health check failed: %w", err)
		}
	}
	return nil
}

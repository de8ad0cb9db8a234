package analyzer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/memdump-analysis/internal/memorydump"
	"github.com/memdump-analysis/internal/parser"
	"github.com/memdump-analysis/internal/parser/trace"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/utils"
)

// BaseAnalyzerConfig holds configuration for the base analyzer.
type BaseAnalyzerConfig struct {
	// OutputDir is the directory for output files.
	OutputDir string

	// Logger is used for debug logging. If nil, debug logs are suppressed.
	Logger utils.Logger

	// Verbose enables verbose debug output including per-process details.
	// This is typically enabled via the -v command line flag.
	Verbose bool

	// AnalysisProfile selects preset analysis configuration.
	AnalysisProfile AnalysisProfile

	// MaxConcurrency bounds the number of global dumps built in parallel.
	MaxConcurrency int

	// ClassifyCacheSize is the capacity of the mapped-file classification cache.
	ClassifyCacheSize int

	// CategoryFile is a YAML category tree replacing the built-in one.
	CategoryFile string

	// Categories replaces the built-in category tree. It takes precedence
	// over CategoryFile.
	Categories *memorydump.Category

	// ParseOptions configures the trace parser.
	ParseOptions []parser.ParserOption

	// Parser replaces the trace parser; ParseOptions are then ignored.
	Parser parser.Parser
}

// DefaultBaseAnalyzerConfig returns default configuration.
func DefaultBaseAnalyzerConfig() *BaseAnalyzerConfig {
	return &BaseAnalyzerConfig{
		OutputDir:         "",
		AnalysisProfile:   ProfileStandard,
		MaxConcurrency:    runtime.NumCPU(),
		ClassifyCacheSize: memorydump.DefaultCacheSize,
	}
}

// BaseAnalyzer provides common functionality for all analyzers.
type BaseAnalyzer struct {
	config *BaseAnalyzerConfig
	parser parser.Parser

	classifierOnce sync.Once
	classifier     *memorydump.Classifier
	classifierErr  error
}

// NewBaseAnalyzer creates a new base analyzer.
func NewBaseAnalyzer(config *BaseAnalyzerConfig) *BaseAnalyzer {
	if config == nil {
		config = DefaultBaseAnalyzerConfig()
	}

	p := config.Parser
	if p == nil {
		p = trace.NewParser(config.ParseOptions...)
	}

	return &BaseAnalyzer{
		config: config,
		parser: p,
	}
}

// Config returns the analyzer configuration.
func (a *BaseAnalyzer) Config() *BaseAnalyzerConfig {
	return a.config
}

// Logger returns the configured logger, or a NullLogger.
func (a *BaseAnalyzer) Logger() utils.Logger {
	return utils.OrNull(a.config.Logger)
}

// Parse parses the input trace.
func (a *BaseAnalyzer) Parse(ctx context.Context, reader io.Reader) (*model.ParseResult, error) {
	return a.parser.Parse(ctx, reader)
}

// Classifier returns the classifier for the configured category tree. The
// tree is loaded once; a load failure is returned on every call.
func (a *BaseAnalyzer) Classifier() (*memorydump.Classifier, error) {
	a.classifierOnce.Do(func() {
		root := a.config.Categories
		if root == nil && a.config.CategoryFile != "" {
			root, a.classifierErr = memorydump.LoadCategoryTreeFile(a.config.CategoryFile)
			if a.classifierErr != nil {
				return
			}
			a.Logger().Info("Loaded category tree from %s", a.config.CategoryFile)
		}
		if root == nil {
			root = memorydump.RootCategory
		}
		a.classifier = memorydump.NewClassifier(root, a.config.ClassifyCacheSize)
	})
	return a.classifier, a.classifierErr
}

// Profile returns the configured profile, defaulting to ProfileStandard.
func (a *BaseAnalyzer) Profile() AnalysisProfile {
	if a.config.AnalysisProfile == "" {
		return ProfileStandard
	}
	return a.config.AnalysisProfile
}

// Concurrency returns the bound on parallel global dump construction.
func (a *BaseAnalyzer) Concurrency() int {
	if a.config.MaxConcurrency <= 0 {
		return 1
	}
	return a.config.MaxConcurrency
}

// EnsureOutputDir ensures the output directory exists.
func (a *BaseAnalyzer) EnsureOutputDir(taskUUID string) (string, error) {
	outputDir := a.config.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}

	taskDir := filepath.Join(outputDir, taskUUID)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	return taskDir, nil
}

// CleanupOutputDir removes the output directory.
func (a *BaseAnalyzer) CleanupOutputDir(taskDir string) error {
	return os.RemoveAll(taskDir)
}

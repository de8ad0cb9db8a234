package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/memdump-analysis/internal/advisor"
	"github.com/memdump-analysis/internal/analyzer"
	"github.com/memdump-analysis/internal/memorydump"
	"github.com/memdump-analysis/internal/repository"
	"github.com/memdump-analysis/internal/storage"
	"github.com/memdump-analysis/pkg/config"
	apperrors "github.com/memdump-analysis/pkg/errors"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/telemetry"
	"github.com/memdump-analysis/pkg/utils"
)

// categoryFileName is the local name of a per-task category tree.
const categoryFileName = "categories.yaml"

// DefaultTaskProcessor implements TaskProcessor using the analyzer components.
type DefaultTaskProcessor struct {
	config  *config.Config
	storage storage.Storage
	repos   *repository.Repositories
	advisor *advisor.Advisor
	logger  utils.Logger
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	Config  *config.Config
	Storage storage.Storage
	Repos   *repository.Repositories
	// Advisor defaults to the built-in rules; stored rules override it per task.
	Advisor *advisor.Advisor
	Logger  utils.Logger
}

// NewDefaultTaskProcessor creates a new DefaultTaskProcessor.
func NewDefaultTaskProcessor(cfg *ProcessorConfig) *DefaultTaskProcessor {
	adv := cfg.Advisor
	if adv == nil {
		adv = advisor.NewAdvisor()
	}

	return &DefaultTaskProcessor{
		config:  cfg.Config,
		storage: cfg.Storage,
		repos:   cfg.Repos,
		advisor: adv,
		logger:  utils.OrNull(cfg.Logger),
	}
}

// Process downloads the trace of a task, analyzes it, uploads the reports
// and records the results. On success the task is left completed, or empty
// when the trace holds no memory dumps. Errors are *errors.AppError values
// whose code classifies the failure.
func (p *DefaultTaskProcessor) Process(ctx context.Context, task *Task, rules []model.SuggestionRule) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.process",
		attribute.String("task.uuid", task.UUID),
		attribute.Int64("task.id", task.ID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	log := p.logger.WithField("task", task.UUID)
	log.Info("Starting analysis (type: %s, trace: %s)", task.Type, task.TraceFile)

	taskDir := p.config.GetTaskDir(task.UUID)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "failed to create task directory", err)
	}
	if !p.config.Analysis.KeepOutputs {
		defer func() {
			if err := os.RemoveAll(taskDir); err != nil {
				log.Warn("Failed to clean up task directory %s: %v", taskDir, err)
			}
		}()
	}

	localFile, err := p.downloadTrace(ctx, task, taskDir)
	if err != nil {
		return err
	}

	a, err := p.newAnalyzer(ctx, task, taskDir, rules, log)
	if err != nil {
		return err
	}

	req := &model.AnalysisRequest{
		TaskID:        task.ID,
		TaskUUID:      task.UUID,
		TaskType:      task.Type,
		InputFile:     localFile,
		OutputDir:     taskDir,
		UserName:      task.UserName,
		Bucket:        task.Bucket,
		RequestParams: task.RequestParams,
	}

	resp, err := a.Analyze(ctx, req)
	if errors.Is(err, analyzer.ErrEmptyData) {
		log.Warn("Trace holds no memory dumps")
		info := apperrors.StatusInfo(apperrors.ErrNoDumps)
		if err := p.repos.Task.UpdateAnalysisStatusWithInfo(ctx, task.ID, model.AnalysisStatusEmpty, info); err != nil {
			return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to update task status", err)
		}
		return nil
	}
	if err != nil {
		return classifyAnalysisError(err)
	}

	reportKey := p.uploadOutputs(ctx, task, resp.OutputFiles, log)

	if err := p.saveResult(ctx, task, resp, reportKey); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save results", err)
	}

	if err := p.saveSuggestions(ctx, task, resp.Suggestions); err != nil {
		// Don't fail the task for suggestion errors
		log.Warn("Failed to save suggestions: %v", err)
	}

	if err := p.repos.Task.UpdateAnalysisStatus(ctx, task.ID, model.AnalysisStatusCompleted); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to update task status", err)
	}

	log.Info("Analysis completed: %d dump events, %d suggestions", resp.TotalRecords, len(resp.Suggestions))
	return nil
}

// downloadTrace fetches the trace into taskDir and rejects empty files.
func (p *DefaultTaskProcessor) downloadTrace(ctx context.Context, task *Task, taskDir string) (string, error) {
	if task.TraceFile == "" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "task has no trace file")
	}

	localFile := filepath.Join(taskDir, path.Base(task.TraceFile))
	if err := p.storage.DownloadFile(ctx, task.TraceFile, localFile); err != nil {
		return "", apperrors.Wrap(apperrors.CodeDownloadError, "failed to download trace", err)
	}

	stat, err := os.Stat(localFile)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDownloadError, "failed to stat trace", err)
	}
	if stat.Size() == 0 {
		return "", apperrors.ErrEmptyFile
	}
	return localFile, nil
}

// newAnalyzer builds a memory dump analyzer for one task: the configured
// analysis settings, the task's own category tree when it names one, and
// the advisor tuned by stored rules.
func (p *DefaultTaskProcessor) newAnalyzer(ctx context.Context, task *Task, taskDir string, rules []model.SuggestionRule, log utils.Logger) (analyzer.Analyzer, error) {
	cfg := analyzer.DefaultBaseAnalyzerConfig()
	cfg.OutputDir = taskDir
	cfg.Logger = log
	cfg.CategoryFile = p.config.Analysis.CategoryFile
	if p.config.Analysis.MaxConcurrency > 0 {
		cfg.MaxConcurrency = p.config.Analysis.MaxConcurrency
	}
	if p.config.Analysis.ClassifyCacheSize > 0 {
		cfg.ClassifyCacheSize = p.config.Analysis.ClassifyCacheSize
	}
	if profile, err := analyzer.ParseProfile(p.config.Analysis.Profile); err == nil {
		cfg.AnalysisProfile = profile
	}

	if key := task.RequestParams.CategoryFile; key != "" {
		localPath := filepath.Join(taskDir, categoryFileName)
		if err := p.storage.DownloadFile(ctx, key, localPath); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDownloadError, "failed to download category file", err)
		}
		root, err := memorydump.LoadCategoryTreeFile(localPath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid category file", err)
		}
		cfg.Categories = root
	}

	factory := analyzer.NewFactory(cfg, analyzer.WithAdvisor(p.advisor.WithOverrides(rules)))
	a, err := factory.CreateAnalyzer(task.Type)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "unsupported task", err)
	}
	return a, nil
}

// classifyAnalysisError maps analyzer failures to error codes.
func classifyAnalysisError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.CodeTimeout, "analysis timed out", err)
	case errors.Is(err, analyzer.ErrParseError):
		return apperrors.Wrap(apperrors.CodeParseError, "failed to parse trace", err)
	case errors.Is(err, analyzer.ErrUnsupportedTaskType):
		return apperrors.Wrap(apperrors.CodeInvalidInput, "unsupported task", err)
	default:
		return apperrors.Wrap(apperrors.CodeAnalysisError, "analysis failed", err)
	}
}

// uploadOutputs uploads each report file to reports/<uuid>/<file name> and
// returns the key of the JSON report, or "" when it could not be uploaded.
// Upload failures are logged and skipped.
func (p *DefaultTaskProcessor) uploadOutputs(ctx context.Context, task *Task, files []model.OutputFile, log utils.Logger) string {
	reportKey := ""
	for _, f := range files {
		if _, err := os.Stat(f.LocalPath); err != nil {
			log.Warn("Output %s missing: %v", f.Name, err)
			continue
		}

		name := filepath.Base(f.LocalPath)
		key := storage.ReportKey(task.UUID, name)
		if err := p.storage.UploadFile(ctx, key, f.LocalPath); err != nil {
			log.Error("Failed to upload %s: %v", f.Name, err)
			continue
		}
		log.Debug("Uploaded %s to %s", f.Name, key)
		if name == analyzer.ReportFileJSON {
			reportKey = key
		}
	}
	return reportKey
}

// saveResult stores one summary row per global dump.
func (p *DefaultTaskProcessor) saveResult(ctx context.Context, task *Task, resp *model.AnalysisResponse, reportKey string) error {
	data, ok := resp.Data.(*model.MemoryDumpData)
	if !ok {
		return fmt.Errorf("unexpected analysis data %T", resp.Data)
	}

	result := &model.AnalysisResult{
		TaskUUID:     task.UUID,
		Version:      p.config.Analysis.Version,
		TotalRecords: int64(resp.TotalRecords),
		ReportFile:   reportKey,
		Dumps:        make([]*model.DumpResult, 0, len(data.Dumps)),
		AnalyzedAt:   time.Now(),
	}
	for _, dump := range data.Dumps {
		result.Dumps = append(result.Dumps, dump.ToDumpResult(task.UUID))
	}

	return p.repos.Result.SaveResult(ctx, result)
}

// saveSuggestions persists the advisor output of the task.
func (p *DefaultTaskProcessor) saveSuggestions(ctx context.Context, task *Task, items []model.SuggestionItem) error {
	if len(items) == 0 {
		return nil
	}

	suggestions := make([]model.Suggestion, len(items))
	for i, item := range items {
		suggestions[i] = item.ForTask(task.UUID)
	}
	return p.repos.Suggestion.SaveSuggestions(ctx, suggestions)
}

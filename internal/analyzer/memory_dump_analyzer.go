package analyzer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/memdump-analysis/internal/advisor"
	"github.com/memdump-analysis/internal/memorydump"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/telemetry"
	"github.com/memdump-analysis/pkg/utils"
	"github.com/memdump-analysis/pkg/writer"
)

// Output file names written into the task directory.
const (
	ReportFileJSON = "memory_dump.json.gz"
	ReportFileYAML = "memory_dump.yaml"
)

// MemoryDumpAnalyzer builds global memory dumps from the memory-infra events
// of a trace and reports their statistics.
type MemoryDumpAnalyzer struct {
	*BaseAnalyzer
	advisor *advisor.Advisor
}

// MemoryDumpAnalyzerOption configures the MemoryDumpAnalyzer.
type MemoryDumpAnalyzerOption func(*MemoryDumpAnalyzer)

// WithAdvisor replaces the default advisor.
func WithAdvisor(adv *advisor.Advisor) MemoryDumpAnalyzerOption {
	return func(a *MemoryDumpAnalyzer) {
		a.advisor = adv
	}
}

// NewMemoryDumpAnalyzer creates a new memory dump analyzer.
func NewMemoryDumpAnalyzer(config *BaseAnalyzerConfig, opts ...MemoryDumpAnalyzerOption) *MemoryDumpAnalyzer {
	a := &MemoryDumpAnalyzer{
		BaseAnalyzer: NewBaseAnalyzer(config),
		advisor:      advisor.NewAdvisor(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the analyzer name.
func (a *MemoryDumpAnalyzer) Name() string {
	return "memory_dump_analyzer"
}

// SupportedTypes returns the task types supported by this analyzer.
func (a *MemoryDumpAnalyzer) SupportedTypes() []model.TaskType {
	return []model.TaskType{model.TaskTypeMemoryDump}
}

// Analyze performs memory dump analysis using an input file.
func (a *MemoryDumpAnalyzer) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	file, err := os.Open(req.InputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return a.AnalyzeFromReader(ctx, req, file)
}

// AnalyzeFromReader performs memory dump analysis from a reader.
func (a *MemoryDumpAnalyzer) AnalyzeFromReader(ctx context.Context, req *model.AnalysisRequest, dataReader io.Reader) (resp *model.AnalysisResponse, err error) {
	if req.TaskType != model.TaskTypeMemoryDump {
		return nil, fmt.Errorf("%w: memory dump analyzer got %v", ErrUnsupportedTaskType, req.TaskType)
	}

	profile := a.Profile()
	if req.RequestParams.Profile != "" {
		if profile, err = ParseProfile(req.RequestParams.Profile); err != nil {
			return nil, err
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "memorydump.analyze",
		attribute.String("task.uuid", req.TaskUUID),
		attribute.String("analysis.profile", string(profile)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	log := a.Logger().WithField("task", req.TaskUUID)
	timer := utils.NewTimer("memory dump analysis",
		utils.WithLogger(log), utils.WithEnabled(a.config.Verbose))
	defer timer.PrintSummary()

	// Step 1: Parse the trace
	pt := timer.Start("parse")
	parsed, err := a.Parse(ctx, dataReader)
	pt.Stop()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseError, err)
	}
	if len(parsed.Groups) == 0 {
		return nil, ErrEmptyData
	}
	if parsed.SkippedEvents > 0 {
		log.Warn("Skipped %d undecodable trace events", parsed.SkippedEvents)
	}
	span.SetAttributes(
		attribute.Int64("trace.events", parsed.TotalEvents),
		attribute.Int("memorydump.groups", len(parsed.Groups)),
	)

	classifier, err := a.Classifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	// Step 2: Build global dumps
	bt := timer.Start("build")
	dumps, err := a.buildGlobalDumps(ctx, parsed.Groups, classifier)
	bt.Stop()
	if err != nil {
		return nil, err
	}

	// Step 3: Assemble the report
	detail := profile.ReportDetail()
	data := &model.MemoryDumpData{
		Dumps:         make([]*model.GlobalDumpReport, 0, len(dumps)),
		TotalEvents:   parsed.TotalEvents,
		DumpEvents:    parsed.DumpEvents,
		SkippedEvents: parsed.SkippedEvents,
		Profile:       string(profile),
	}
	for _, g := range dumps {
		data.Dumps = append(data.Dumps, g.Report(detail))
		if a.config.Verbose {
			log.Debug("%s", g)
		}
	}

	// Step 4: Write output files
	taskDir := req.OutputDir
	if taskDir == "" {
		if taskDir, err = a.EnsureOutputDir(req.TaskUUID); err != nil {
			return nil, err
		}
	}
	wt := timer.Start("write")
	outputFiles, err := a.writeReports(data, taskDir, req.TaskUUID)
	wt.Stop()
	if err != nil {
		return nil, err
	}

	// Step 5: Suggestions
	suggestions := a.advisor.Advise(&advisor.RuleContext{
		TaskUUID:      req.TaskUUID,
		Data:          data,
		RequestParams: &req.RequestParams,
	})
	items := make([]model.SuggestionItem, 0, len(suggestions))
	for i := range suggestions {
		items = append(items, suggestions[i].ToItem())
	}

	log.Info("Analyzed %d global dumps (%d process dumps)", len(dumps), parsed.DumpEvents)

	return &model.AnalysisResponse{
		TaskUUID:     req.TaskUUID,
		TaskType:     req.TaskType,
		TotalRecords: int(parsed.DumpEvents),
		OutputFiles:  outputFiles,
		Data:         data,
		Suggestions:  items,
		TimingsMs:    timer.Milliseconds(),
	}, nil
}

// buildGlobalDumps builds one global dump per group, in group order. Any
// failure fails the whole analysis.
func (a *MemoryDumpAnalyzer) buildGlobalDumps(ctx context.Context, groups []*model.DumpGroup, classifier *memorydump.Classifier) ([]*memorydump.GlobalDump, error) {
	dumps := make([]*memorydump.GlobalDump, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Concurrency())
	for i, group := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dump, err := memorydump.NewGlobalDump(group.Events, classifier)
			if err != nil {
				return fmt.Errorf("%w: dump %s: %w", ErrAnalysisFailed, group.DumpID, err)
			}
			dumps[i] = dump
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dumps, nil
}

// writeReports writes the gzip JSON and YAML reports into taskDir.
func (a *MemoryDumpAnalyzer) writeReports(data *model.MemoryDumpData, taskDir, taskUUID string) ([]model.OutputFile, error) {
	jsonPath := filepath.Join(taskDir, ReportFileJSON)
	stats, err := writer.NewGzipWriter[*model.MemoryDumpData]().WriteToFileWithStats(data, jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to write json report: %w", err)
	}
	a.Logger().Debug("Wrote %s (%d of %d bytes, %.1f%%)", jsonPath, stats.CompressedSize, stats.JSONSize, stats.CompressionPct)

	yamlPath := filepath.Join(taskDir, ReportFileYAML)
	if err := writer.NewYAMLWriter[*model.MemoryDumpData]().WriteToFile(data, yamlPath); err != nil {
		return nil, fmt.Errorf("failed to write yaml report: %w", err)
	}

	return []model.OutputFile{
		{
			Name:        "Memory Dump Report",
			LocalPath:   jsonPath,
			COSKey:      taskUUID + "/" + ReportFileJSON,
			ContentType: "application/gzip",
		},
		{
			Name:        "Memory Dump Report (YAML)",
			LocalPath:   yamlPath,
			COSKey:      taskUUID + "/" + ReportFileYAML,
			ContentType: "application/yaml",
		},
	}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/memdump-analysis/internal/analyzer"
	"github.com/memdump-analysis/internal/formatter"
	"github.com/memdump-analysis/internal/memorydump"
	"github.com/memdump-analysis/pkg/model"
	"github.com/memdump-analysis/pkg/writer"
)

// summaryFileName is written next to the reports of each analysis.
const summaryFileName = "summary.json"

var (
	// Analyze command flags
	outputDir      string
	profileName    string
	categoriesFile string
	taskUUID       string
	concurrency    int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <trace>",
	Short: "Analyze the memory dumps of a trace file",
	Long: `Analyze the memory-infra dumps of a Chrome trace file.

The trace may be plain JSON, gzip or zstd compressed. The analyze command
writes into <output>/<uuid>/:
  - memory_dump.json.gz : the full report
  - memory_dump.yaml    : the same report in YAML
  - summary.json        : headline figures and run metadata`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Long += "\n\nProfiles:"
	for _, p := range analyzer.Profiles() {
		analyzeCmd.Long += fmt.Sprintf("\n  - %-9s: %s", p.Profile, p.Description)
	}

	binName := BinName()
	analyzeCmd.Example = `  # Analyze a trace into ./output
  ` + binName + ` analyze ./trace.json.gz

  # Use a custom category tree and keep per-process detail
  ` + binName + ` analyze ./trace.json --categories ./categories.yaml --profile detailed

  # Specify the output directory and task UUID
  ` + binName + ` analyze ./trace.json -o /tmp/reports --uuid run-001`

	analyzeCmd.Flags().StringVarP(&outputDir, "output", "o", "./output", "Output directory for generated files")
	analyzeCmd.Flags().StringVarP(&profileName, "profile", "p", string(analyzer.ProfileStandard), "Analysis profile: "+analyzer.ValidProfiles())
	analyzeCmd.Flags().StringVar(&categoriesFile, "categories", "", "YAML category tree replacing the built-in one")
	analyzeCmd.Flags().StringVar(&taskUUID, "uuid", "", "Task UUID (auto-generated if empty)")
	analyzeCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Global dumps analyzed in parallel (0 uses all CPUs)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	inputFile := args[0]

	if _, err := os.Stat(inputFile); err != nil {
		return fmt.Errorf("input file not found: %s", inputFile)
	}

	profile, err := analyzer.ParseProfile(profileName)
	if err != nil {
		return err
	}

	id := taskUUID
	if id == "" {
		id = uuid.NewString()
	}

	taskOutputDir := filepath.Join(outputDir, id)
	if err := os.MkdirAll(taskOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	config := analyzer.DefaultBaseAnalyzerConfig()
	config.OutputDir = outputDir
	config.Logger = log
	config.Verbose = verbose
	config.AnalysisProfile = profile
	if concurrency > 0 {
		config.MaxConcurrency = concurrency
	}
	if categoriesFile != "" {
		root, err := memorydump.LoadCategoryTreeFile(categoriesFile)
		if err != nil {
			return err
		}
		config.Categories = root
	}

	ana, err := analyzer.NewFactory(config).CreateAnalyzer(model.TaskTypeMemoryDump)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	log.Info("=== Memory Dump Analysis ===")
	log.Info("Input file: %s", inputFile)
	log.Info("Output dir: %s", taskOutputDir)
	log.Info("Profile:    %s", profile)
	log.Info("Task UUID:  %s", id)
	log.Info("")

	req := &model.AnalysisRequest{
		TaskID:    1,
		TaskUUID:  id,
		TaskType:  model.TaskTypeMemoryDump,
		InputFile: inputFile,
		OutputDir: taskOutputDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	result, err := ana.Analyze(ctx, req)
	analysisTime := time.Since(startTime)
	if errors.Is(err, analyzer.ErrEmptyData) {
		return fmt.Errorf("%s holds no memory-infra dumps; record the trace with the memory-infra category enabled", inputFile)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	registry := formatter.NewRegistry()
	registry.Format(result, log)

	summary := registry.FormatSummary(result)
	summary["metadata"] = map[string]interface{}{
		"input_file":       filepath.Base(inputFile),
		"profile":          string(profile),
		"created_at":       startTime.Format(time.RFC3339),
		"analysis_time_ms": analysisTime.Milliseconds(),
	}
	summaryPath := filepath.Join(taskOutputDir, summaryFileName)
	if err := writer.NewPrettyJSONWriter[map[string]interface{}]().WriteToFile(summary, summaryPath); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	log.Info("")
	log.Info("=== Analysis Complete (%v) ===", analysisTime.Round(time.Millisecond))
	log.Info("Output files are in: %s", taskOutputDir)
	return nil
}

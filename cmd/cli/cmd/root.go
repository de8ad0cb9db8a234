package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memdump-analysis/pkg/utils"
)

var (
	// Global flags
	verbose bool
	logFile string

	logger    utils.Logger = &utils.NullLogger{}
	logCloser io.Closer
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memdump",
	Short: "A memory-infra dump analysis tool",
	Long: `memdump analyzes the memory-infra dumps recorded in Chrome trace files.

Each global dump is broken down into categories of mapped memory (Java
heap, native heap, ashmem, GPU, shared libraries and so on) with byte
statistics, allocator totals and suggestions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCloser = nil
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}

		if logFile == "" {
			logger = utils.NewDefaultLogger(logLevel, os.Stdout)
			return nil
		}

		fileLogger, closer, err := utils.NewRotatingFileLogger(logLevel, utils.LogFormatText, logFile, utils.RotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger, logCloser = fileLogger, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file instead of stdout")

	binName := BinName()
	rootCmd.Example = `  # Analyze a trace
  ` + binName + ` analyze ./trace.json.gz -o ./output

  # Print only headline figures
  ` + binName + ` analyze ./trace.json --profile quick

  # Show where mapped files are classified
  ` + binName + ` categories "/dev/ashmem/dalvik-main space" "[anon:libc_malloc]"`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

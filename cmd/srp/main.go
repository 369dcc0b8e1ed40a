package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mkondo/srp/pkg/interfaces/cli/commands"
)

var (
	// Global flags
	verbose    bool
	configFile string

	// Analyze flags
	assignmentsFile string
	needsFile       string
	format          string
	outputDir       string
	slotMinutes     int

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "srp",
	Short: "srp - staffing requirements planning",
	Long: `srp computes staffing shortages and surpluses for shift-based
facilities. It nets slot-level staffing need against recorded shift
assignments over an analysis period and reports lack and excess hours
overall, by role, and by employment type, with reconciliation and
plausibility checks on every run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// analyzeCmd runs one shortage analysis over a pair of CSV inputs
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a shortage analysis over assignment and need CSV files",
	Long: `Loads shift assignments and staffing needs from CSV files, infers the
analysis period from the assignment dates, and computes lack and excess
hours overall, by role, and by employment type.

Example:
  srp analyze --assignments shifts.csv --needs needs.csv --format text`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	command := commands.NewAnalyzeCommand(commands.Config{
		AssignmentsFile: assignmentsFile,
		NeedsFile:       needsFile,
		ConfigFile:      configFile,
		Format:          format,
		OutputDir:       outputDir,
		Verbose:         verbose,
		SlotMinutes:     slotMinutes,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return command.Execute(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	analyzeCmd.Flags().StringVar(&assignmentsFile, "assignments", "", "CSV file of shift assignment records (required)")
	analyzeCmd.Flags().StringVar(&needsFile, "needs", "", "CSV file of slot-level staffing needs (required)")
	analyzeCmd.Flags().StringVar(&format, "format", "text", "output format: text, json, or csv")
	analyzeCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for json/csv output files (default stdout)")
	analyzeCmd.Flags().IntVar(&slotMinutes, "slot-minutes", 0, "override the configured slot width in minutes")
	_ = analyzeCmd.MarkFlagRequired("assignments")
	_ = analyzeCmd.MarkFlagRequired("needs")

	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

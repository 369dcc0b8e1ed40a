package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkondo/srp/pkg/application/dto"
	"github.com/mkondo/srp/pkg/domain/entities"
)

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	Verbose   bool
}

// Generate creates output in the specified format
func Generate(result *dto.AnalysisResult, config Config) error {
	switch config.Format {
	case "text":
		return generateTextOutput(result, config)
	case "json":
		return generateJSONOutput(result, config)
	case "csv":
		return generateCSVOutput(result, config)
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

// generateTextOutput creates human-readable text output
func generateTextOutput(result *dto.AnalysisResult, config Config) error {
	fmt.Printf("📊 Shortage Analysis Summary\n")
	fmt.Printf("============================\n\n")

	fmt.Printf("Run: %s\n", result.RunID)
	fmt.Printf("Period: %s (%d days with complete coverage)\n", result.Period, result.EffectiveDays)
	if result.RejectedRecords > 0 {
		fmt.Printf("Rejected records: %d\n", result.RejectedRecords)
	}
	normalized := ""
	if result.Overall.Normalized {
		normalized = " (normalized)"
	}
	fmt.Printf("Lack: %s h%s   Excess: %s h%s\n\n",
		result.Overall.LackHours, normalized, result.Overall.ExcessHours, normalized)

	printBreakdown("👥 By role", result.ByRole)
	printBreakdown("💼 By employment type", result.ByEmployment)

	if len(result.Reconciliation.Divergences) > 0 {
		fmt.Printf("⚠️  Breakdown totals do not reconcile (tolerance %s):\n", result.Reconciliation.Tolerance)
		for _, divergence := range result.Reconciliation.Divergences {
			fmt.Printf("  %s %s: sum %s vs overall %s (off by %s%%)\n",
				divergence.Dimension, divergence.Series, divergence.Sum, divergence.Overall,
				divergence.Relative.Shift(2).Round(2))
		}
		fmt.Println()
	}

	if len(result.Issues) > 0 {
		fmt.Printf("🔍 Validation Issues:\n")
		for _, issue := range result.Issues {
			fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Code, issue.Message)
		}
		fmt.Println()
	}

	if !result.Publishable() {
		fmt.Printf("❌ Result carries CRITICAL issues and must not be treated as final\n\n")
	}

	if config.Verbose {
		fmt.Printf("Computed at %s in %v\n", result.ComputedAt.Format("2006-01-02 15:04:05"), result.Elapsed)
	}
	return nil
}

func printBreakdown(title string, results []entities.ShortageResult) {
	if len(results) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	fmt.Printf("%-20s %-12s %-12s %-12s %-12s\n", "Group", "Need (h)", "Supply (h)", "Lack (h)", "Excess (h)")
	fmt.Printf("%-20s %-12s %-12s %-12s %-12s\n", "--------------------", "------------", "------------", "------------", "------------")
	for _, result := range results {
		fmt.Printf("%-20s %-12s %-12s %-12s %-12s\n",
			result.Group.Label(),
			result.NeedHours.Round(2),
			result.SupplyHours.Round(2),
			result.LackHours.Round(2),
			result.ExcessHours.Round(2))
	}
	fmt.Println()
}

// generateJSONOutput writes the full result as JSON
func generateJSONOutput(result *dto.AnalysisResult, config Config) error {
	payload := map[string]interface{}{
		"run_id":           result.RunID,
		"period_start":     result.Period.Start().Format(entities.DateLayout),
		"period_end":       result.Period.End().Format(entities.DateLayout),
		"period_days":      result.Period.Days(),
		"effective_days":   result.EffectiveDays,
		"rejected_records": result.RejectedRecords,
		"overall":          shortageJSON(result.Overall),
		"by_role":          shortagesJSON(result.ByRole),
		"by_employment":    shortagesJSON(result.ByEmployment),
		"reconciliation":   result.Reconciliation,
		"issues":           result.Issues,
		"daily":            result.Daily,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if config.OutputDir != "" {
		path := filepath.Join(config.OutputDir, fmt.Sprintf("shortage_%s.json", result.RunID))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write JSON output: %w", err)
		}
		fmt.Printf("Results written to %s\n", path)
		return nil
	}

	fmt.Println(string(data))
	return nil
}

func shortageJSON(result entities.ShortageResult) map[string]interface{} {
	return map[string]interface{}{
		"group":        result.Group.Label(),
		"need_hours":   result.NeedHours,
		"supply_hours": result.SupplyHours,
		"lack_hours":   result.LackHours,
		"excess_hours": result.ExcessHours,
		"period_days":  result.PeriodDays,
		"normalized":   result.Normalized,
	}
}

func shortagesJSON(results []entities.ShortageResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, result := range results {
		out = append(out, shortageJSON(result))
	}
	return out
}

// generateCSVOutput writes the breakdowns as a flat CSV table
func generateCSVOutput(result *dto.AnalysisResult, config Config) error {
	var rows [][]string
	rows = append(rows, []string{"breakdown", "group", "need_hours", "supply_hours", "lack_hours", "excess_hours", "period_days", "normalized"})

	all := append([]entities.ShortageResult{result.Overall}, result.ByRole...)
	all = append(all, result.ByEmployment...)
	for _, r := range all {
		rows = append(rows, []string{
			r.Group.Kind.String(),
			r.Group.Label(),
			r.NeedHours.String(),
			r.SupplyHours.String(),
			r.LackHours.String(),
			r.ExcessHours.String(),
			fmt.Sprintf("%d", r.PeriodDays),
			fmt.Sprintf("%t", r.Normalized),
		})
	}

	var writer *csv.Writer
	if config.OutputDir != "" {
		path := filepath.Join(config.OutputDir, fmt.Sprintf("shortage_%s.csv", result.RunID))
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create CSV output: %w", err)
		}
		defer file.Close()
		writer = csv.NewWriter(file)
		defer fmt.Printf("Results written to %s\n", path)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV output: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

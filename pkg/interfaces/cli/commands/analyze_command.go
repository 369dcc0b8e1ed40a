package commands

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkondo/srp/pkg/application/services/shortage"
	"github.com/mkondo/srp/pkg/domain/entities"
	domainservices "github.com/mkondo/srp/pkg/domain/services"
	appconfig "github.com/mkondo/srp/pkg/infrastructure/config"
	"github.com/mkondo/srp/pkg/infrastructure/events"
	"github.com/mkondo/srp/pkg/infrastructure/repositories/csv"
	"github.com/mkondo/srp/pkg/infrastructure/repositories/memory"
	"github.com/mkondo/srp/pkg/interfaces/cli/output"

	"github.com/shopspring/decimal"
)

// minDetectionConfidence is the slot-width detection confidence below
// which the run refuses to proceed to a full calculation.
const minDetectionConfidence = 0.9

// Config holds configuration for the analyze command
type Config struct {
	AssignmentsFile string
	NeedsFile       string
	ConfigFile      string
	Format          string
	OutputDir       string
	Verbose         bool
	// SlotMinutes overrides the configured slot width when positive.
	SlotMinutes int
}

// AnalyzeCommand wires the loaders, repositories, and the shortage engine
// into one end-to-end run.
type AnalyzeCommand struct {
	config Config
	logger *zap.Logger
}

// NewAnalyzeCommand creates an analyze command with the given configuration
func NewAnalyzeCommand(config Config, logger *zap.Logger) *AnalyzeCommand {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeCommand{config: config, logger: logger}
}

// Execute runs the analysis end to end
func (c *AnalyzeCommand) Execute(ctx context.Context) error {
	if c.config.AssignmentsFile == "" || c.config.NeedsFile == "" {
		return fmt.Errorf("both --assignments and --needs files are required")
	}

	cfg, err := appconfig.Load(c.config.ConfigFile)
	if err != nil {
		return err
	}
	if c.config.SlotMinutes > 0 {
		cfg.SlotMinutes = c.config.SlotMinutes
	}

	grid, err := entities.NewTimeGrid(cfg.SlotMinutes)
	if err != nil {
		return err
	}

	loader := csv.NewLoader()
	records, err := loader.LoadAssignments(c.config.AssignmentsFile)
	if err != nil {
		return fmt.Errorf("error loading assignments: %w", err)
	}

	gridIssues, err := c.checkSlotWidth(records, grid)
	if err != nil {
		return err
	}

	assignmentRepo := memory.NewAssignmentRepository(grid)
	rejected, err := assignmentRepo.LoadAssignments(records)
	if err != nil {
		return fmt.Errorf("error ingesting assignments: %w", err)
	}
	if rejected > 0 {
		c.logger.Warn("rejected assignment records", zap.Int("count", rejected))
	}

	period, err := entities.PeriodFromDates(assignmentRepo.Dates())
	if err != nil {
		return fmt.Errorf("cannot infer analysis period: %w", err)
	}

	needMatrices, err := loader.LoadNeeds(c.config.NeedsFile, grid, period)
	if err != nil {
		return fmt.Errorf("error loading needs: %w", err)
	}
	needRepo := memory.NewNeedRepository(grid)
	if err := needRepo.LoadNeeds(needMatrices, period); err != nil {
		var shapeErr *entities.NeedShapeError
		if errors.As(err, &shapeErr) {
			return fmt.Errorf("need surface rejected: %w", err)
		}
		return fmt.Errorf("error ingesting needs: %w", err)
	}

	normalizer := domainservices.PeriodNormalizer{
		CanonicalDays:   cfg.CanonicalPeriodDays,
		MinReliableDays: cfg.Thresholds.MinReliableDays,
		MaxReliableDays: cfg.Thresholds.MaxReliableDays,
	}
	engineConfig := shortage.Config{
		ReconcileTolerance:         decimal.NewFromFloat(cfg.Thresholds.ReconcileTolerance),
		ImplausibilityFactor:       decimal.NewFromFloat(cfg.Thresholds.ImplausibilityFactor),
		Normalize:                  cfg.Normalize,
		MaxParallelRoles:           cfg.MaxParallelRoles,
		PracticalDailyCeilingHours: decimal.NewFromFloat(cfg.Thresholds.PracticalDailyCeilingHours),
		SwingFactor:                decimal.NewFromFloat(cfg.Thresholds.SwingFactor),
	}

	service := shortage.NewServiceWithConfig(grid, normalizer, engineConfig, c.logger)
	service.AttachEventStore(events.NewInMemoryEventStore())

	result, err := service.Analyze(ctx, needRepo, assignmentRepo, rejected)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	result.Issues = append(result.Issues, gridIssues...)

	if err := output.Generate(result, output.Config{
		Format:    c.config.Format,
		OutputDir: c.config.OutputDir,
		Verbose:   c.config.Verbose,
	}); err != nil {
		return err
	}

	// The numbers were rendered above together with their issues; a
	// critical finding still fails the command so nothing downstream
	// treats them as final.
	return service.Finalize(result)
}

// checkSlotWidth runs best-effort slot width detection over the raw
// records and refuses to proceed when the data does not convincingly
// match the configured grid. A confident but imperfect detection yields a
// warning issue that travels with the result.
func (c *AnalyzeCommand) checkSlotWidth(records []*entities.AssignmentRecord, grid entities.TimeGrid) ([]entities.ValidationIssue, error) {
	times := make([]entities.TimeOfDay, 0, len(records))
	for _, record := range records {
		times = append(times, record.Time)
	}
	detection := entities.DetectSlotMinutes(times)
	if detection.SlotMinutes == 0 {
		return nil, nil
	}
	c.logger.Debug("slot width detection",
		zap.Int("detected", detection.SlotMinutes),
		zap.Int("configured", grid.SlotMinutes()),
		zap.Float64("confidence", detection.Confidence))

	if detection.Confidence < minDetectionConfidence {
		return nil, fmt.Errorf("slot width detection confidence %.2f is below %.2f; the data likely mixes slot widths, set slot_minutes explicitly after cleaning it",
			detection.Confidence, minDetectionConfidence)
	}

	var issues []entities.ValidationIssue
	if detection.Confidence < 1.0 {
		issues = append(issues, entities.ValidationIssue{
			Severity: entities.SeverityWarning,
			Code:     entities.IssueLowConfidenceGrid,
			Message: fmt.Sprintf("%.0f%% of assignment times align to the detected %d-minute grid; the rest will be rejected at ingestion",
				detection.Confidence*100, detection.SlotMinutes),
		})
	}
	if detection.SlotMinutes != grid.SlotMinutes() {
		c.logger.Warn("detected slot width differs from configured grid; unaligned records will be rejected",
			zap.Int("detected", detection.SlotMinutes),
			zap.Int("configured", grid.SlotMinutes()))
	}
	return issues, nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// RunCounts summarizes trade outcomes for one execution run.
type RunCounts struct {
	Planned   int
	Submitted int
	Filled    int
	Failed    int
}

// RunTrackerService keeps one execution record per portfolio per calendar
// day in the portfolio's operating timezone. It is the idempotency gate:
// the scheduler may fire several times inside the same trading window and
// only persisted state decides whether work remains.
type RunTrackerService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Start creates or resets today's run for the portfolio and returns its id.
// An existing run is reset to started rather than duplicated, which makes
// re-entry after a crash safe.
func (s *RunTrackerService) Start(ctx context.Context, portfolio string, loc *time.Location) (string, error) {
	if s == nil || s.Repo == nil {
		return "", nil
	}
	date := models.RunDate(time.Now(), loc)
	runID := models.RunDocID(portfolio, date)

	run, err := s.Repo.GetExecutionRun(ctx, runID)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if run == nil {
		run = &models.ExecutionRunRecord{
			DocID:     runID,
			Portfolio: portfolio,
			Date:      date,
		}
	}
	run.Status = models.RunStarted
	run.StartedAt = now
	run.CompletedAt = nil
	run.ErrorMessage = ""
	if err := s.Repo.UpsertExecutionRun(ctx, run); err != nil {
		return "", err
	}
	if s.Logger != nil {
		s.Logger.Info("execution run started", zap.String("run_id", runID))
	}
	return runID, nil
}

func (s *RunTrackerService) Complete(ctx context.Context, runID string, counts RunCounts, finalAllocations datatypes.JSON) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	run, err := s.Repo.GetExecutionRun(ctx, runID)
	if err != nil || run == nil {
		return err
	}
	now := time.Now().UTC()
	run.Status = models.RunCompleted
	run.CompletedAt = &now
	run.TradesPlanned = counts.Planned
	run.TradesSubmitted = counts.Submitted
	run.TradesFilled = counts.Filled
	run.TradesFailed = counts.Failed
	if len(finalAllocations) > 0 {
		run.FinalAllocations = finalAllocations
	}
	if err := s.Repo.UpsertExecutionRun(ctx, run); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("execution run completed",
			zap.String("run_id", runID),
			zap.Int("planned", counts.Planned),
			zap.Int("submitted", counts.Submitted),
			zap.Int("filled", counts.Filled),
			zap.Int("failed", counts.Failed))
	}
	return nil
}

func (s *RunTrackerService) Fail(ctx context.Context, runID, errMsg string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	run, err := s.Repo.GetExecutionRun(ctx, runID)
	if err != nil || run == nil {
		return err
	}
	now := time.Now().UTC()
	run.Status = models.RunFailed
	run.CompletedAt = &now
	run.ErrorMessage = errMsg
	if err := s.Repo.UpsertExecutionRun(ctx, run); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Error("execution run failed",
			zap.String("run_id", runID),
			zap.String("error", errMsg))
	}
	return nil
}

// UpdateCounts adjusts trade counts on an existing run, e.g. as the status
// checker drains submitted trades to terminal states.
func (s *RunTrackerService) UpdateCounts(ctx context.Context, runID string, counts RunCounts) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	run, err := s.Repo.GetExecutionRun(ctx, runID)
	if err != nil || run == nil {
		return err
	}
	run.TradesPlanned = counts.Planned
	run.TradesSubmitted = counts.Submitted
	run.TradesFilled = counts.Filled
	run.TradesFailed = counts.Failed
	return s.Repo.UpsertExecutionRun(ctx, run)
}

// TodayRun returns today's run for the portfolio, or nil.
func (s *RunTrackerService) TodayRun(ctx context.Context, portfolio string, loc *time.Location) (*models.ExecutionRunRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	date := models.RunDate(time.Now(), loc)
	return s.Repo.GetExecutionRun(ctx, models.RunDocID(portfolio, date))
}

// WasSuccessfulToday reports whether nothing more needs to happen today:
// the run completed and no submitted trade is still outstanding. Completed
// status alone is not enough, because planning can finish while orders are
// still working at the broker.
func (s *RunTrackerService) WasSuccessfulToday(ctx context.Context, portfolio string, loc *time.Location) (bool, error) {
	run, err := s.TodayRun(ctx, portfolio, loc)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	return run.Successful(), nil
}

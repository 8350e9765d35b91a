package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Runner drives one full pass over every configured portfolio. Each
// portfolio is handled independently: a failure in one never stops the
// others, and the run tracker's daily gate keeps repeat invocations inside
// the same trading window from trading twice.
type Runner struct {
	Portfolios []PortfolioSpec
	Rebalancer *RebalancerService
	Runs       *RunTrackerService
	Checker    *StatusCheckerService
	Cash       *CashLedgerService
	Notifier   Notifier
	Logger     *zap.Logger

	HistoryLookback time.Duration
	DryRun          bool
}

func (r *Runner) RunAll(ctx context.Context) {
	if r == nil {
		return
	}
	for _, spec := range r.Portfolios {
		if err := r.RunPortfolio(ctx, spec); err != nil && r.Logger != nil {
			r.Logger.Error("portfolio run failed",
				zap.String("portfolio", spec.Name),
				zap.Error(err))
		}
	}
}

func (r *Runner) RunPortfolio(ctx context.Context, spec PortfolioSpec) error {
	// A dry run is a preview: it bypasses the daily gate and records no
	// run, so it can never block the real run later the same day.
	if !r.DryRun {
		done, err := r.Runs.WasSuccessfulToday(ctx, spec.Name, spec.Timezone)
		if err != nil {
			return err
		}
		if done {
			if r.Logger != nil {
				r.Logger.Info("already rebalanced today, skipping",
					zap.String("portfolio", spec.Name))
			}
			return nil
		}
	}

	if err := r.Cash.Initialize(ctx, spec.Name, spec.InitialCapital); err != nil {
		return err
	}

	runID := ""
	priorCheck := CheckResult{}
	if !r.DryRun {
		var err error
		runID, err = r.Runs.Start(ctx, spec.Name, spec.Timezone)
		if err != nil {
			return err
		}

		// Drain trades left over from an earlier invocation before
		// deciding anything new.
		priorCheck, err = r.Checker.CheckSubmittedTrades(ctx, spec.Name)
		if err != nil {
			r.failRun(ctx, spec, runID, err)
			return err
		}
	}

	if r.Rebalancer.Reconciler != nil {
		lookback := r.HistoryLookback
		if lookback <= 0 {
			lookback = 7 * 24 * time.Hour
		}
		history, err := r.Rebalancer.Broker.GetTradeHistory(ctx, time.Now().Add(-lookback))
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("trade history fetch failed, continuing without reconciliation",
					zap.String("portfolio", spec.Name),
					zap.Error(err))
			}
		} else if len(history) > 0 {
			if _, err := r.Rebalancer.Reconciler.ReconcileTradeHistory(ctx, history, lookback); err != nil && r.Logger != nil {
				r.Logger.Warn("trade history reconciliation failed",
					zap.String("portfolio", spec.Name),
					zap.Error(err))
			}
		}
	}

	if positions, err := r.Rebalancer.Broker.GetPositions(ctx); err == nil {
		if err := r.Rebalancer.Ownership.ReconcileWithBroker(ctx, positions, spec.Name); err != nil && r.Logger != nil {
			r.Logger.Warn("broker reconciliation failed",
				zap.String("portfolio", spec.Name),
				zap.Error(err))
		}
	}

	summary, err := r.Rebalancer.Rebalance(ctx, spec, runID, r.DryRun)
	if err != nil {
		if !r.DryRun {
			r.failRun(ctx, spec, runID, err)
		}
		return err
	}

	if !r.DryRun {
		// One immediate poll so fast fills settle within the same
		// invocation.
		postCheck, err := r.Checker.CheckSubmittedTrades(ctx, spec.Name)
		if err != nil && r.Logger != nil {
			r.Logger.Warn("post-rebalance status check failed",
				zap.String("portfolio", spec.Name),
				zap.Error(err))
		}

		counts := RunCounts{
			Planned:   len(summary.Buys) + len(summary.Sells) + len(summary.FailedTrades),
			Submitted: postCheck.StillPending,
			Filled:    priorCheck.Filled + postCheck.Filled,
			Failed:    len(summary.FailedTrades) + priorCheck.Failed + postCheck.Failed,
		}
		var allocations datatypes.JSON
		if raw, err := json.Marshal(summary.FinalAllocations); err == nil {
			allocations = raw
		}
		if err := r.Runs.Complete(ctx, runID, counts, allocations); err != nil {
			return err
		}
	}

	if r.Notifier != nil {
		if err := r.Notifier.SendSummary(ctx, summary); err != nil && r.Logger != nil {
			r.Logger.Warn("summary notification failed",
				zap.String("portfolio", spec.Name),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) failRun(ctx context.Context, spec PortfolioSpec, runID string, cause error) {
	if err := r.Runs.Fail(ctx, runID, cause.Error()); err != nil && r.Logger != nil {
		r.Logger.Error("marking run failed errored",
			zap.String("run_id", runID),
			zap.Error(err))
	}
	if r.Notifier != nil {
		if err := r.Notifier.SendError(ctx, spec.Name, cause); err != nil && r.Logger != nil {
			r.Logger.Warn("error notification failed",
				zap.String("portfolio", spec.Name),
				zap.Error(err))
		}
	}
}

package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockbot/internal/service"
)

// RebalanceHandler exposes manual triggers alongside the cron schedule. The
// daily run gate makes repeat triggers harmless.
type RebalanceHandler struct {
	Runner *service.Runner
	Runs   *service.RunTrackerService
	Secret string
	Logger *zap.Logger
}

func (h *RebalanceHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/rebalance", h.trigger)
	group.POST("/trades/check", h.checkTrades)
	group.GET("/runs/today", h.todayRuns)
}

func (h *RebalanceHandler) authorized(c *gin.Context) bool {
	if h.Secret == "" {
		return true
	}
	token := c.GetHeader("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) == 1
}

func (h *RebalanceHandler) trigger(c *gin.Context) {
	if !h.authorized(c) {
		Error(c, http.StatusUnauthorized, "invalid webhook secret", nil)
		return
	}
	runner := h.Runner
	if dry := c.Query("dry_run"); dry == "1" || strings.EqualFold(dry, "true") {
		// Run a copy so the shared runner keeps its configured mode.
		copied := *h.Runner
		copied.DryRun = true
		runner = &copied
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		runner.RunAll(ctx)
	}()
	if h.Logger != nil {
		h.Logger.Info("rebalance triggered via webhook", zap.Bool("dry_run", runner.DryRun))
	}
	Ok(c, gin.H{"triggered": true, "dry_run": runner.DryRun}, nil)
}

func (h *RebalanceHandler) checkTrades(c *gin.Context) {
	if !h.authorized(c) {
		Error(c, http.StatusUnauthorized, "invalid webhook secret", nil)
		return
	}
	results := make(map[string]service.CheckResult, len(h.Runner.Portfolios))
	for _, spec := range h.Runner.Portfolios {
		result, err := h.Runner.Checker.CheckSubmittedTrades(c.Request.Context(), spec.Name)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), map[string]any{"portfolio": spec.Name})
			return
		}
		results[spec.Name] = result
	}
	Ok(c, results, nil)
}

func (h *RebalanceHandler) todayRuns(c *gin.Context) {
	runs := make(map[string]any, len(h.Runner.Portfolios))
	for _, spec := range h.Runner.Portfolios {
		run, err := h.Runs.TodayRun(c.Request.Context(), spec.Name, spec.Timezone)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), map[string]any{"portfolio": spec.Name})
			return
		}
		runs[spec.Name] = run
	}
	Ok(c, runs, nil)
}

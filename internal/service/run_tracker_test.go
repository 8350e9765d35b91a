package service

import (
	"context"
	"testing"
	"time"

	"stockbot/internal/models"
)

func TestRunStart_CreatesTodayRun(t *testing.T) {
	repo := newStubRepo()
	svc := &RunTrackerService{Repo: repo}
	ctx := context.Background()

	runID, err := svc.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	want := models.RunDocID("growth", models.RunDate(time.Now(), time.UTC))
	if runID != want {
		t.Fatalf("run_id=%s want=%s", runID, want)
	}
	run, err := svc.TodayRun(ctx, "growth", time.UTC)
	if err != nil || run == nil {
		t.Fatalf("today run missing: %v", err)
	}
	if run.Status != models.RunStarted {
		t.Fatalf("status=%s want=started", run.Status)
	}
}

func TestRunStart_ResetsExistingRun(t *testing.T) {
	repo := newStubRepo()
	svc := &RunTrackerService{Repo: repo}
	ctx := context.Background()

	runID, err := svc.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Fail(ctx, runID, "leaderboard unreachable"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// The retry reuses the same document instead of creating a second
	// run for the day.
	again, err := svc.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again != runID {
		t.Fatalf("run_id=%s want=%s", again, runID)
	}
	run, _ := svc.TodayRun(ctx, "growth", time.UTC)
	if run.Status != models.RunStarted || run.ErrorMessage != "" || run.CompletedAt != nil {
		t.Fatalf("run not reset: status=%s err=%q", run.Status, run.ErrorMessage)
	}
}

func TestWasSuccessfulToday(t *testing.T) {
	repo := newStubRepo()
	svc := &RunTrackerService{Repo: repo}
	ctx := context.Background()

	ok, err := svc.WasSuccessfulToday(ctx, "growth", time.UTC)
	if err != nil || ok {
		t.Fatalf("no run yet: ok=%v,%v want=false,nil", ok, err)
	}

	runID, err := svc.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ok, _ = svc.WasSuccessfulToday(ctx, "growth", time.UTC)
	if ok {
		t.Fatalf("started run must not count as successful")
	}

	// Completed but with orders still working at the broker: the day is
	// not done.
	if err := svc.Complete(ctx, runID, RunCounts{Planned: 3, Submitted: 2, Filled: 1}, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	ok, _ = svc.WasSuccessfulToday(ctx, "growth", time.UTC)
	if ok {
		t.Fatalf("outstanding submitted trades must block success")
	}

	if err := svc.UpdateCounts(ctx, runID, RunCounts{Planned: 3, Submitted: 0, Filled: 3}); err != nil {
		t.Fatalf("update counts: %v", err)
	}
	ok, _ = svc.WasSuccessfulToday(ctx, "growth", time.UTC)
	if !ok {
		t.Fatalf("completed run with all trades terminal should be successful")
	}
}

func TestRunFail_RecordsError(t *testing.T) {
	repo := newStubRepo()
	svc := &RunTrackerService{Repo: repo}
	ctx := context.Background()

	runID, err := svc.Start(ctx, "growth", time.UTC)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Fail(ctx, runID, "broker timeout"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	run, _ := svc.TodayRun(ctx, "growth", time.UTC)
	if run.Status != models.RunFailed || run.ErrorMessage != "broker timeout" {
		t.Fatalf("status=%s err=%q want=failed,broker timeout", run.Status, run.ErrorMessage)
	}
	if run.CompletedAt == nil {
		t.Fatalf("completed_at not set on failure")
	}
}

func TestRunDate_UsesPortfolioTimezone(t *testing.T) {
	// 2026-03-10 03:00 UTC is still 2026-03-09 in New York.
	at := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	if got := models.RunDate(at, ny); got != "2026-03-09" {
		t.Fatalf("date=%s want=2026-03-09", got)
	}
	if got := models.RunDate(at, time.UTC); got != "2026-03-10" {
		t.Fatalf("date=%s want=2026-03-10", got)
	}
}

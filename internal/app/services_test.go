package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type fakeAdmin struct {
	services.AdminService
	report *services.CleanupReport
	err    error
}

func (f *fakeAdmin) CleanupStorage(ctx context.Context, dryRun bool) (*services.CleanupReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	r.DryRun = dryRun
	return &r, nil
}

func TestStorageCleanerCounts(t *testing.T) {
	admin := &fakeAdmin{report: &services.CleanupReport{
		Scanned: 5,
		Orphans: []string{"a.jpg", "b.jpg", "c.jpg"},
		Deleted: 2,
		Failed:  1,
	}}
	c := storageCleaner{admin: admin}

	n, err := c.CleanupStorage(context.Background(), true)
	if err != nil || n != 3 {
		t.Fatalf("dry run: want=3 got=%d err=%v", n, err)
	}
	n, err = c.CleanupStorage(context.Background(), false)
	if err != nil || n != 2 {
		t.Fatalf("delete: want=2 got=%d err=%v", n, err)
	}

	admin.err = errors.New("list failed")
	if _, err := c.CleanupStorage(context.Background(), false); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("QUIZ_SESSION_TTL", "")
	t.Setenv("MAINTENANCE_CLEANUP_CRON", "")
	cfg := LoadConfig(logger.NewNop())
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr: want=:8080 got=%s", cfg.Addr())
	}
	if cfg.QuizSessionTTL != 30*time.Minute {
		t.Fatalf("ttl: want=30m got=%v", cfg.QuizSessionTTL)
	}
	if cfg.SchedulerConfig().CleanupCron != "30 3 * * *" {
		t.Fatalf("cron: got=%q", cfg.CleanupCron)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("QUIZ_SESSION_TTL", "5m")
	t.Setenv("APPRAISAL_RATE_PER_MINUTE", "12")
	cfg = LoadConfig(logger.NewNop())
	if cfg.Addr() != ":9090" || cfg.QuizSessionTTL != 5*time.Minute || cfg.AppraisalPerMinute != 12 {
		t.Fatalf("overrides: got=%+v", cfg)
	}
}

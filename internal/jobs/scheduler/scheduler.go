package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const (
	DefaultCleanupCron  = "30 3 * * *"
	DefaultResyncPeriod = 15 * time.Minute
	taskTimeout         = 10 * time.Minute
)

// StorageCleaner removes gallery uploads nothing references any more.
type StorageCleaner interface {
	CleanupStorage(ctx context.Context, dryRun bool) (int, error)
}

// BoardSyncer rebuilds the leaderboard cache from the database.
type BoardSyncer interface {
	Resync(ctx context.Context) (int, error)
}

type Config struct {
	// CleanupCron is a five field cron expression in UTC. Empty disables cleanup.
	CleanupCron   string
	CleanupDryRun bool
	// ResyncEvery <= 0 disables the cache resync.
	ResyncEvery time.Duration
}

type Scheduler struct {
	log       *logger.Logger
	scheduler *gocron.Scheduler
	cfg       Config
	cleaner   StorageCleaner
	syncer    BoardSyncer
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(log *logger.Logger, cfg Config, cleaner StorageCleaner, syncer BoardSyncer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:       log.With("component", "Scheduler"),
		scheduler: s,
		cfg:       cfg,
		cleaner:   cleaner,
		syncer:    syncer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the configured tasks and runs them in the background.
func (s *Scheduler) Start() error {
	if s.cleaner != nil && strings.TrimSpace(s.cfg.CleanupCron) != "" {
		if _, err := s.scheduler.Cron(s.cfg.CleanupCron).Tag("storage_cleanup").Do(s.runCleanup); err != nil {
			return fmt.Errorf("schedule storage cleanup: %w", err)
		}
	}
	if s.syncer != nil && s.cfg.ResyncEvery > 0 {
		if _, err := s.scheduler.Every(s.cfg.ResyncEvery).Tag("leaderboard_resync").Do(s.runResync); err != nil {
			return fmt.Errorf("schedule leaderboard resync: %w", err)
		}
	}
	s.log.Info("Scheduler starting", "jobs", len(s.scheduler.Jobs()), "cleanup_cron", s.cfg.CleanupCron, "resync_every", s.cfg.ResyncEvery.String())
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()
	n, err := s.cleaner.CleanupStorage(ctx, s.cfg.CleanupDryRun)
	if err != nil {
		s.log.Error("Storage cleanup failed", "error", err)
		return
	}
	s.log.Info("Storage cleanup done", "objects", n, "dry_run", s.cfg.CleanupDryRun)
}

func (s *Scheduler) runResync() {
	ctx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()
	n, err := s.syncer.Resync(ctx)
	if err != nil {
		s.log.Warn("Leaderboard resync failed", "error", err)
		return
	}
	s.log.Debug("Leaderboard resynced", "boards", n)
}

package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/waifu-verifier-backend/internal/jobs/outbox"
	jobruntime "github.com/yungbote/waifu-verifier-backend/internal/jobs/runtime"
	"github.com/yungbote/waifu-verifier-backend/internal/jobs/scheduler"
	"github.com/yungbote/waifu-verifier-backend/internal/jobs/worker"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/redisx"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type Services struct {
	Auth        services.AuthService
	Catalog     services.CatalogService
	Quiz        services.QuizService
	Appraisal   services.AppraisalService
	Leaderboard services.LeaderboardService
	ShareCard   services.ShareCardService
	Profile     services.ProfileService
	Admin       services.AdminService

	// Job infra
	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
	Scheduler   *scheduler.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	authService, err := services.NewAuthService(log, cfg.JWTSecretKey, cfg.JWTIssuer)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	var boardCache redisx.BoardStore
	if clients.Redis != nil {
		boardCache = redisx.NewBoardStore(log, clients.Redis)
	}
	leaderboard := services.NewLeaderboardService(
		log,
		repos.Character,
		repos.Question,
		repos.Progress,
		repos.Profile,
		boardCache,
	)

	catalog := services.NewCatalogService(log, repos.Character, repos.Question, repos.Progress, repos.AppConfig)

	quiz := services.NewQuizService(
		log,
		repos.Character,
		repos.Question,
		repos.Progress,
		repos.JobRun,
		leaderboard,
		cfg.QuizSessionTTL,
	)

	appraisal := services.NewAppraisalService(
		log,
		repos.Character,
		repos.Submission,
		repos.Progress,
		clients.Bucket,
		clients.Model,
		leaderboard,
		cfg.AppraisalPerMinute,
	)

	shareCards := services.NewShareCardService(log, repos.Character, repos.Profile, leaderboard, clients.Bucket)

	profiles := services.NewProfileService(
		log,
		repos.Profile,
		repos.Progress,
		repos.Submission,
		repos.Character,
		clients.Bucket,
	)

	admin := services.NewAdminService(
		log,
		repos.Character,
		repos.Question,
		repos.Submission,
		repos.Profile,
		repos.AppConfig,
		clients.Bucket,
	)

	// Outbox replays quiz progress writes the request path could not commit.
	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(outbox.NewQuizProgressHandler(log, repos.Progress, leaderboard)); err != nil {
		return Services{}, err
	}
	jobWorker := worker.NewWorker(db, log, repos.JobRun, jobRegistry)

	schedCfg := cfg.SchedulerConfig()
	if boardCache == nil {
		schedCfg.ResyncEvery = 0
	}
	sched := scheduler.New(log, schedCfg, storageCleaner{admin: admin}, leaderboard)

	return Services{
		Auth:        authService,
		Catalog:     catalog,
		Quiz:        quiz,
		Appraisal:   appraisal,
		Leaderboard: leaderboard,
		ShareCard:   shareCards,
		Profile:     profiles,
		Admin:       admin,
		JobRegistry: jobRegistry,
		JobWorker:   jobWorker,
		Scheduler:   sched,
	}, nil
}

// storageCleaner adapts AdminService to the scheduler's count-only contract.
type storageCleaner struct {
	admin services.AdminService
}

func (c storageCleaner) CleanupStorage(ctx context.Context, dryRun bool) (int, error) {
	report, err := c.admin.CleanupStorage(ctx, dryRun)
	if err != nil {
		return 0, err
	}
	if dryRun {
		return len(report.Orphans), nil
	}
	return report.Deleted, nil
}

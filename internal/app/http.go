package app

import (
	"context"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	apphttp "github.com/yungbote/waifu-verifier-backend/internal/http"
	httpH "github.com/yungbote/waifu-verifier-backend/internal/http/handlers"
	httpMW "github.com/yungbote/waifu-verifier-backend/internal/http/middleware"
	"github.com/yungbote/waifu-verifier-backend/internal/observability"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health      *httpH.HealthHandler
	Catalog     *httpH.CatalogHandler
	Quiz        *httpH.QuizHandler
	Appraisal   *httpH.AppraisalHandler
	Leaderboard *httpH.LeaderboardHandler
	Profile     *httpH.ProfileHandler
	Admin       *httpH.AdminHandler
}

func wireHandlers(log *logger.Logger, services Services, reposet Repos, db httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(db, jobQueueStats{repo: reposet.JobRun}),
		Catalog:     httpH.NewCatalogHandler(services.Catalog),
		Quiz:        httpH.NewQuizHandler(services.Quiz),
		Appraisal:   httpH.NewAppraisalHandler(log, services.Appraisal),
		Leaderboard: httpH.NewLeaderboardHandler(services.Leaderboard, services.ShareCard),
		Profile:     httpH.NewProfileHandler(services.Profile),
		Admin:       httpH.NewAdminHandler(services.Admin),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth, services.Profile),
	}
}

func wireServer(log *logger.Logger, handlers Handlers, middleware Middleware) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:                log,
		ServiceName:        observability.DefaultServiceName,
		Tracing:            observability.Enabled(),
		AuthMiddleware:     middleware.Auth,
		HealthHandler:      handlers.Health,
		CatalogHandler:     handlers.Catalog,
		QuizHandler:        handlers.Quiz,
		AppraisalHandler:   handlers.Appraisal,
		LeaderboardHandler: handlers.Leaderboard,
		ProfileHandler:     handlers.Profile,
		AdminHandler:       handlers.Admin,
	})
}

// jobQueueStats adapts the job_run repo to the readiness probe.
type jobQueueStats struct {
	repo repos.JobRunRepo
}

func (s jobQueueStats) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountByStatus(dbctx.Context{Ctx: ctx})
}

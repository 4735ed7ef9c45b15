package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/waifu-verifier-backend/internal/http/handlers"
	httpMW "github.com/yungbote/waifu-verifier-backend/internal/http/middleware"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	Tracing        bool
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler      *httpH.HealthHandler
	CatalogHandler     *httpH.CatalogHandler
	QuizHandler        *httpH.QuizHandler
	AppraisalHandler   *httpH.AppraisalHandler
	LeaderboardHandler *httpH.LeaderboardHandler
	ProfileHandler     *httpH.ProfileHandler
	AdminHandler       *httpH.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestIdentity())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")

	// Public reads; a valid token personalises some of them.
	public := api.Group("/")
	if cfg.AuthMiddleware != nil {
		public.Use(cfg.AuthMiddleware.OptionalAuth())
	}
	{
		if cfg.CatalogHandler != nil {
			public.GET("/characters", cfg.CatalogHandler.ListCharacters)
			public.GET("/characters/:id", cfg.CatalogHandler.GetCharacter)
			public.GET("/characters/:id/result", cfg.CatalogHandler.GetResult)
			public.GET("/config/:key", cfg.CatalogHandler.GetConfig)
		}
		if cfg.LeaderboardHandler != nil {
			public.GET("/characters/:id/leaderboard", cfg.LeaderboardHandler.CharacterBoard)
			public.GET("/leaderboard", cfg.LeaderboardHandler.Global)
		}
		if cfg.ProfileHandler != nil {
			public.GET("/profiles/:id", cfg.ProfileHandler.GetPublic)
		}
	}

	// Appraisal keeps its {success,message} body even for auth failures.
	if cfg.AppraisalHandler != nil {
		if cfg.AuthMiddleware != nil {
			api.POST("/analyze-collection", cfg.AuthMiddleware.RequireAuthLegacy(), cfg.AppraisalHandler.Analyze)
		} else {
			api.POST("/analyze-collection", cfg.AppraisalHandler.Analyze)
		}
	}

	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.QuizHandler != nil {
			protected.POST("/quiz/sessions", cfg.QuizHandler.Start)
			protected.GET("/quiz/sessions/:id", cfg.QuizHandler.Get)
			protected.POST("/quiz/sessions/:id/answer", cfg.QuizHandler.Answer)
		}
		if cfg.LeaderboardHandler != nil {
			protected.GET("/characters/:id/standing", cfg.LeaderboardHandler.MyStanding)
			protected.POST("/characters/:id/share-card", cfg.LeaderboardHandler.ShareCard)
		}
		if cfg.ProfileHandler != nil {
			protected.PATCH("/me/profile", cfg.ProfileHandler.Update)
			protected.POST("/me/avatar", cfg.ProfileHandler.UploadAvatar)
		}
	}

	admin := protected.Group("/admin")
	if cfg.AuthMiddleware != nil {
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
	}
	{
		if cfg.AdminHandler != nil {
			admin.PUT("/config/:key", cfg.AdminHandler.SetConfig)
			admin.POST("/characters", cfg.AdminHandler.CreateCharacter)
			admin.PATCH("/characters/:id", cfg.AdminHandler.UpdateCharacter)
			admin.POST("/characters/:id/assets", cfg.AdminHandler.UploadCharacterAsset)
			admin.PUT("/characters/:id/result", cfg.AdminHandler.UpsertResult)
			admin.POST("/questions", cfg.AdminHandler.CreateQuestion)
			admin.PUT("/questions/:id", cfg.AdminHandler.UpdateQuestion)
			admin.DELETE("/questions/:id", cfg.AdminHandler.DeleteQuestion)
			admin.POST("/questions/:id/image", cfg.AdminHandler.UploadQuestionImage)
			admin.POST("/characters/:id/questions/import", cfg.AdminHandler.ImportQuestions)
			admin.POST("/storage/cleanup", cfg.AdminHandler.CleanupStorage)
		}
		if cfg.LeaderboardHandler != nil {
			admin.GET("/leaderboard/export", cfg.LeaderboardHandler.Export)
		}
	}

	return r
}

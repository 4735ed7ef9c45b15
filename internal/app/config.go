package app

import (
	"time"

	"github.com/yungbote/waifu-verifier-backend/internal/jobs/scheduler"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/envutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	JWTSecretKey string
	JWTIssuer    string

	QuizSessionTTL     time.Duration
	AppraisalPerMinute int

	CleanupCron   string
	CleanupDryRun bool
	ResyncEvery   time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:               envutil.String("PORT", "8080"),
		Environment:        envutil.String("APP_ENV", "development"),
		Version:            envutil.String("APP_VERSION", "dev"),
		JWTSecretKey:       envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:          envutil.String("JWT_ISSUER", ""),
		QuizSessionTTL:     envutil.Duration("QUIZ_SESSION_TTL", 30*time.Minute),
		AppraisalPerMinute: envutil.Int("APPRAISAL_RATE_PER_MINUTE", 6),
		CleanupCron:        envutil.String("MAINTENANCE_CLEANUP_CRON", scheduler.DefaultCleanupCron),
		CleanupDryRun:      envutil.Bool("MAINTENANCE_CLEANUP_DRY_RUN", false),
		ResyncEvery:        envutil.Duration("LEADERBOARD_RESYNC_EVERY", scheduler.DefaultResyncPeriod),
	}
	log.Info("Config loaded",
		"port", cfg.Port,
		"env", cfg.Environment,
		"quiz_session_ttl", cfg.QuizSessionTTL,
		"appraisal_rate_per_minute", cfg.AppraisalPerMinute,
		"cleanup_cron", cfg.CleanupCron,
		"resync_every", cfg.ResyncEvery,
	)
	return cfg
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		CleanupCron:   c.CleanupCron,
		CleanupDryRun: c.CleanupDryRun,
		ResyncEvery:   c.ResyncEvery,
	}
}

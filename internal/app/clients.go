package app

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/envutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/openai"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/redisx"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

type Clients struct {
	Bucket gcp.BucketService
	// Redis is nil when REDIS_ADDR is unset or unreachable; leaderboards then read SQL.
	Redis *goredis.Client
	Model services.ModelFactory
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	bucket, err := resolveBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	var rdb *goredis.Client
	if strings.TrimSpace(envutil.String("REDIS_ADDR", "")) != "" {
		c, err := redisx.NewClient(log)
		if err != nil {
			log.Warn("Redis unavailable, leaderboard cache disabled", "error", err)
		} else {
			rdb = c
		}
	}

	// The model client is built on first use so a missing OPENAI_API_KEY only fails appraisal.
	model := services.LazyModelFactory(func() (openai.Client, error) {
		return openai.NewClient(log)
	})

	return Clients{
		Bucket: bucket,
		Redis:  rdb,
		Model:  model,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

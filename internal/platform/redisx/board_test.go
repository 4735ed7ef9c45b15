package redisx

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

func TestBoardKey(t *testing.T) {
	id := uuid.MustParse("6f1c2f7e-5b7a-4d43-9c59-2f3c1c2a0b11")
	if got := BoardKey(id); got != "leaderboard:character:6f1c2f7e-5b7a-4d43-9c59-2f3c1c2a0b11" {
		t.Fatalf("BoardKey: got=%s", got)
	}
}

func TestNewClientRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := NewClient(logger.NewNop()); err == nil || !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Fatalf("NewClient: want missing REDIS_ADDR got=%v", err)
	}
}

func TestBoardStoreIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 2 * time.Second})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewBoardStore(logger.NewNop(), rdb)
	charID := uuid.New()
	t.Cleanup(func() { _ = rdb.Del(ctx, BoardKey(charID)).Err() })

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	if err := store.Replace(ctx, charID, []Member{{UserID: a, Total: 100}, {UserID: b, Total: 100}, {UserID: c, Total: 40}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	above, err := store.CountAbove(ctx, charID, 100)
	if err != nil {
		t.Fatalf("CountAbove: %v", err)
	}
	if above != 0 {
		t.Fatalf("CountAbove(100): want=0 got=%d", above)
	}
	above, _ = store.CountAbove(ctx, charID, 40)
	if above != 2 {
		t.Fatalf("CountAbove(40): want=2 got=%d", above)
	}
	if err := store.SetScore(ctx, charID, c, 150); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	top, err := store.Top(ctx, charID, 1)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 || top[0].UserID != c || top[0].Total != 150 {
		t.Fatalf("Top: want c@150 got=%+v", top)
	}
}

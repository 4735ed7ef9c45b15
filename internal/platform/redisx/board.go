package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const boardKeyPrefix = "leaderboard:character:"

// Member is one fan's grand total on a character board.
type Member struct {
	UserID uuid.UUID
	Total  int
}

// BoardStore mirrors user_progress totals into one sorted set per character.
type BoardStore interface {
	SetScore(ctx context.Context, characterID, userID uuid.UUID, total int) error
	// CountAbove is the number of members with a strictly greater total.
	CountAbove(ctx context.Context, characterID uuid.UUID, total int) (int64, error)
	Top(ctx context.Context, characterID uuid.UUID, limit int) ([]Member, error)
	Replace(ctx context.Context, characterID uuid.UUID, members []Member) error
}

type boardStore struct {
	log *logger.Logger
	rdb goredis.UniversalClient
}

func NewBoardStore(baseLog *logger.Logger, rdb goredis.UniversalClient) BoardStore {
	return &boardStore{log: baseLog.With("store", "RedisBoardStore"), rdb: rdb}
}

func BoardKey(characterID uuid.UUID) string { return boardKeyPrefix + characterID.String() }

func (s *boardStore) SetScore(ctx context.Context, characterID, userID uuid.UUID, total int) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis board store not initialized")
	}
	return s.rdb.ZAdd(ctx, BoardKey(characterID), goredis.Z{
		Score:  float64(total),
		Member: userID.String(),
	}).Err()
}

func (s *boardStore) CountAbove(ctx context.Context, characterID uuid.UUID, total int) (int64, error) {
	if s == nil || s.rdb == nil {
		return 0, fmt.Errorf("redis board store not initialized")
	}
	// "(" makes the lower bound exclusive.
	return s.rdb.ZCount(ctx, BoardKey(characterID), "("+strconv.Itoa(total), "+inf").Result()
}

func (s *boardStore) Top(ctx context.Context, characterID uuid.UUID, limit int) ([]Member, error) {
	if s == nil || s.rdb == nil {
		return nil, fmt.Errorf("redis board store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	res, err := s.rdb.ZRevRangeWithScores(ctx, BoardKey(characterID), 0, int64(limit-1)).Result()
	if errors.Is(err, goredis.Nil) {
		return []Member{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(res))
	for _, z := range res {
		raw, _ := z.Member.(string)
		id, perr := uuid.Parse(raw)
		if perr != nil {
			s.log.Warn("Skipping malformed board member", "member", raw)
			continue
		}
		out = append(out, Member{UserID: id, Total: int(z.Score)})
	}
	return out, nil
}

// Replace rebuilds a character board atomically from the database snapshot.
func (s *boardStore) Replace(ctx context.Context, characterID uuid.UUID, members []Member) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis board store not initialized")
	}
	key := BoardKey(characterID)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, key)
		if len(members) == 0 {
			return nil
		}
		zs := make([]goredis.Z, 0, len(members))
		for _, m := range members {
			zs = append(zs, goredis.Z{Score: float64(m.Total), Member: m.UserID.String()})
		}
		p.ZAdd(ctx, key, zs...)
		return nil
	})
	return err
}

package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/quiz"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type LevelSummary struct {
	Level     int   `json:"level"`
	Questions int64 `json:"questions"`
	Unlocked  bool  `json:"unlocked"`
}

type CharacterDetail struct {
	*types.Character
	Levels       []LevelSummary `json:"levels"`
	LevelCleared int            `json:"level_cleared"`
}

type CatalogService interface {
	ListCharacters(ctx context.Context) ([]*types.Character, error)
	// GetCharacter reports lock state for viewerID; uuid.Nil sees only level 1 unlocked.
	GetCharacter(ctx context.Context, characterID, viewerID uuid.UUID) (*CharacterDetail, error)
	GetResult(ctx context.Context, characterID uuid.UUID) (*types.CharacterResult, error)
	GetConfig(ctx context.Context, key string) (*types.AppConfig, error)
}

type catalogService struct {
	log        *logger.Logger
	characters repos.CharacterRepo
	questions  repos.QuestionRepo
	progress   repos.ProgressRepo
	config     repos.AppConfigRepo
}

func NewCatalogService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	questions repos.QuestionRepo,
	progress repos.ProgressRepo,
	config repos.AppConfigRepo,
) CatalogService {
	return &catalogService{
		log:        log.With("service", "CatalogService"),
		characters: characters,
		questions:  questions,
		progress:   progress,
		config:     config,
	}
}

func (s *catalogService) ListCharacters(ctx context.Context) ([]*types.Character, error) {
	return s.characters.List(dbctx.Context{Ctx: ctx})
}

func (s *catalogService) GetCharacter(ctx context.Context, characterID, viewerID uuid.UUID) (*CharacterDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ch, err := s.characters.GetByID(dbc, characterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	counts, err := s.questions.CountByLevel(dbc, characterID)
	if err != nil {
		return nil, err
	}
	cleared := 0
	if viewerID != uuid.Nil {
		p, err := s.progress.Get(dbc, viewerID, characterID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			cleared = p.LevelCleared
		}
	}
	out := &CharacterDetail{Character: ch, LevelCleared: cleared, Levels: make([]LevelSummary, 0, quiz.MaxLevel)}
	for lvl := 1; lvl <= quiz.MaxLevel; lvl++ {
		out.Levels = append(out.Levels, LevelSummary{
			Level:     lvl,
			Questions: counts[lvl],
			Unlocked:  quiz.LevelUnlocked(lvl, cleared),
		})
	}
	return out, nil
}

func (s *catalogService) GetResult(ctx context.Context, characterID uuid.UUID) (*types.CharacterResult, error) {
	r, err := s.characters.GetResult(dbctx.Context{Ctx: ctx}, characterID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apierr.NotFound("result_not_found", apierr.ErrNotFound)
	}
	return r, nil
}

func (s *catalogService) GetConfig(ctx context.Context, key string) (*types.AppConfig, error) {
	c, err := s.config.Get(dbctx.Context{Ctx: ctx}, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("config_not_found", apierr.ErrNotFound)
	}
	return c, nil
}

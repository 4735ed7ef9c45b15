package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"gorm.io/gorm"
)

func SeedCharacter(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Character {
	tb.Helper()
	c := &types.Character{
		ID:     uuid.New(),
		Name:   name,
		Series: "Test Series",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed character: %v", err)
	}
	return c
}

func SeedQuestions(tb testing.TB, ctx context.Context, tx *gorm.DB, characterID uuid.UUID, level, n int) []*types.Question {
	tb.Helper()
	out := make([]*types.Question, 0, n)
	for i := 0; i < n; i++ {
		q := &types.Question{
			ID:            uuid.New(),
			CharacterID:   characterID,
			Level:         level,
			QuestionText:  fmt.Sprintf("question %d", i+1),
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectAnswer: "A",
		}
		out = append(out, q)
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed questions: %v", err)
	}
	return out
}

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Profile {
	tb.Helper()
	p := &types.Profile{
		ID:   uuid.New(),
		Name: name,
		Role: types.RoleUser,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

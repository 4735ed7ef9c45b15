package progress

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnsweredQuestion records that a user has been credited for a question. One row per
// (user, question), never updated.
type AnsweredQuestion struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answered_user_question,priority:1;index:idx_answered_user_character,priority:1" json:"user_id"`
	QuestionID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answered_user_question,priority:2" json:"question_id"`
	CharacterID   uuid.UUID `gorm:"type:uuid;not null;index:idx_answered_user_character,priority:2" json:"character_id"`
	PointsAwarded int       `gorm:"column:points_awarded;not null" json:"points_awarded"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (AnsweredQuestion) TableName() string { return "answered_questions" }

func (a *AnsweredQuestion) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// UserProgress is the per (user, character) aggregate. TotalPointsAccumulated always equals
// QuizPoints + CollectionPoints; writes compute it in SQL.
type UserProgress struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_character,priority:1" json:"user_id"`
	CharacterID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_character,priority:2;index:idx_progress_character_total,priority:1" json:"character_id"`
	LevelCleared           int       `gorm:"column:level_cleared;not null" json:"level_cleared"`
	QuizPoints             int       `gorm:"column:quiz_points;not null" json:"quiz_points"`
	CollectionPoints       int       `gorm:"column:collection_points;not null" json:"collection_points"`
	TotalPointsAccumulated int       `gorm:"column:total_points_accumulated;not null;index:idx_progress_character_total,priority:2" json:"total_points_accumulated"`
	CreatedAt              time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time `gorm:"not null" json:"updated_at"`
}

func (UserProgress) TableName() string { return "user_progress" }

func (p *UserProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

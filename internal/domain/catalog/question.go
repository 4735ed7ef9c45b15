package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultQuestionDuration = 15
	DefaultQuestionPoints   = 10
)

// Question belongs to one character and one difficulty level. CorrectAnswer is one of
// "A".."D".
type Question struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CharacterID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_question_character_level,priority:1" json:"character_id"`
	Level         int            `gorm:"column:level;not null;index:idx_question_character_level,priority:2" json:"level"`
	QuestionText  string         `gorm:"column:question_text;not null" json:"question_text"`
	ImageURL      string         `gorm:"column:image_url" json:"image_url,omitempty"`
	OptionA       string         `gorm:"column:option_a;not null" json:"option_a"`
	OptionB       string         `gorm:"column:option_b;not null" json:"option_b"`
	OptionC       string         `gorm:"column:option_c;not null" json:"option_c"`
	OptionD       string         `gorm:"column:option_d;not null" json:"option_d"`
	CorrectAnswer string         `gorm:"column:correct_answer;not null" json:"correct_answer"`
	Duration      int            `gorm:"column:duration" json:"duration"`
	Points        int            `gorm:"column:points" json:"points"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Question) TableName() string { return "questions" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// EffectiveDuration is the countdown length in seconds; unset means 15.
func (q Question) EffectiveDuration() int {
	if q.Duration <= 0 {
		return DefaultQuestionDuration
	}
	return q.Duration
}

// EffectivePoints is the base reward; unset means 10.
func (q Question) EffectivePoints() int {
	if q.Points <= 0 {
		return DefaultQuestionPoints
	}
	return q.Points
}

// NormalizeOption upper-cases and trims an option tag. Anything outside A-D becomes "".
func NormalizeOption(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "A", "B", "C", "D":
		return s
	default:
		return ""
	}
}

package collection

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Submission is one accepted merchandise photo. Only IsValid rows count toward collection
// points and duplicate-detection history.
type Submission struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_collection_user_character,priority:1" json:"user_id"`
	CharacterID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_collection_user_character,priority:2" json:"character_id"`
	ImageURL       string         `gorm:"column:image_url;not null" json:"image_url"`
	StorageKey     string         `gorm:"column:storage_key;index" json:"-"`
	EstimatedValue int64          `gorm:"column:estimated_value;not null" json:"estimated_value"`
	PointsAwarded  int            `gorm:"column:points_awarded;not null" json:"points_awarded"`
	IsValid        bool           `gorm:"column:is_valid;not null;index" json:"is_valid"`
	AIAnalysis     datatypes.JSON `gorm:"column:ai_analysis;type:jsonb" json:"ai_analysis"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Submission) TableName() string { return "user_collections" }

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Character is the fictional entity a quiz and collection track is organised around.
type Character struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string         `gorm:"column:name;not null;index" json:"name"`
	Series          string         `gorm:"column:series;index" json:"series"`
	ImageURLs       datatypes.JSON `gorm:"column:image_urls;type:jsonb" json:"image_urls"`
	BackgroundImage string         `gorm:"column:background_image" json:"background_image,omitempty"`
	ThemeColor      string         `gorm:"column:theme_color" json:"theme_color,omitempty"`
	CardImages      datatypes.JSON `gorm:"column:card_images;type:jsonb" json:"card_images"`
	VisualAssets    datatypes.JSON `gorm:"column:visual_assets;type:jsonb" json:"visual_assets"`
	IsFeatured      bool           `gorm:"column:is_featured;not null;index" json:"is_featured"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Character) TableName() string { return "characters" }

func (c *Character) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CharacterResult is the flavour text shown on the quiz result screen for a character.
type CharacterResult struct {
	CharacterID uuid.UUID `gorm:"type:uuid;primaryKey" json:"character_id"`
	Title       string    `gorm:"column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url,omitempty"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (CharacterResult) TableName() string { return "character_results" }

package config

import "time"

const KeyHomeBackground = "home_background"

// AppConfig is a global key/value setting editable by admins.
type AppConfig struct {
	Key       string    `gorm:"column:key;primaryKey" json:"key"`
	Value     string    `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AppConfig) TableName() string { return "app_config" }

package config

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type AppConfigRepo interface {
	Get(dbc dbctx.Context, key string) (*types.AppConfig, error)
	Set(dbc dbctx.Context, key, value string) (*types.AppConfig, error)
}

type appConfigRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAppConfigRepo(db *gorm.DB, baseLog *logger.Logger) AppConfigRepo {
	return &appConfigRepo{
		db:  db,
		log: baseLog.With("repo", "AppConfigRepo"),
	}
}

func (r *appConfigRepo) Get(dbc dbctx.Context, key string) (*types.AppConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var row types.AppConfig
	if err := dbc.Conn(r.db).Where("key = ?", key).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.Key == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *appConfigRepo) Set(dbc dbctx.Context, key, value string) (*types.AppConfig, error) {
	row := &types.AppConfig{Key: strings.TrimSpace(key), Value: value, UpdatedAt: time.Now()}
	if err := dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

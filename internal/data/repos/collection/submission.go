package collection

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

// HistoryLimit bounds the duplicate-detection history sent with each appraisal.
const HistoryLimit = 5

type SubmissionRepo interface {
	ListValidHistory(dbc dbctx.Context, userID, characterID uuid.UUID, limit int) ([]*types.CollectionSubmission, error)
	ListValidByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.CollectionSubmission, error)
	CountValid(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error)
	ReferencedStorageKeys(dbc dbctx.Context) (map[string]struct{}, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{
		db:  db,
		log: baseLog.With("repo", "SubmissionRepo"),
	}
}

// ListValidHistory returns the newest accepted submissions for a user and character.
func (r *submissionRepo) ListValidHistory(dbc dbctx.Context, userID, characterID uuid.UUID, limit int) ([]*types.CollectionSubmission, error) {
	var out []*types.CollectionSubmission
	if userID == uuid.Nil || characterID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND character_id = ? AND is_valid = ?", userID, characterID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) ListValidByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.CollectionSubmission, error) {
	var out []*types.CollectionSubmission
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 60
	}
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND is_valid = ?", userID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) CountValid(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.CollectionSubmission{}).
		Where("user_id = ? AND character_id = ? AND is_valid = ?", userID, characterID, true).
		Count(&n).Error
	return n, err
}

// ReferencedStorageKeys returns every gallery object key still pointed at by a row.
func (r *submissionRepo) ReferencedStorageKeys(dbc dbctx.Context) (map[string]struct{}, error) {
	var keys []string
	if err := dbc.Conn(r.db).
		Model(&types.CollectionSubmission{}).
		Where("storage_key <> ''").
		Pluck("storage_key", &keys).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type QuestionRepo interface {
	ListByCharacterLevel(dbc dbctx.Context, characterID uuid.UUID, level int) ([]*types.Question, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Question, error)
	CountByCharacter(dbc dbctx.Context, characterID uuid.UUID) (int64, error)
	CountByLevel(dbc dbctx.Context, characterID uuid.UUID) (map[int]int64, error)
	CountAll(dbc dbctx.Context) (map[uuid.UUID]int64, error)
	Create(dbc dbctx.Context, questions []*types.Question) ([]*types.Question, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) (bool, error)
	ImageURLs(dbc dbctx.Context) ([]string, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionRepo"),
	}
}

func (r *questionRepo) ListByCharacterLevel(dbc dbctx.Context, characterID uuid.UUID, level int) ([]*types.Question, error) {
	var out []*types.Question
	if characterID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("character_id = ? AND level = ?", characterID, level).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Question, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var q types.Question
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

func (r *questionRepo) CountByCharacter(dbc dbctx.Context, characterID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).Model(&types.Question{}).Where("character_id = ?", characterID).Count(&n).Error
	return n, err
}

func (r *questionRepo) CountByLevel(dbc dbctx.Context, characterID uuid.UUID) (map[int]int64, error) {
	var rows []struct {
		Level int
		N     int64
	}
	if err := dbc.Conn(r.db).
		Model(&types.Question{}).
		Select("level, COUNT(*) AS n").
		Where("character_id = ?", characterID).
		Group("level").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(rows))
	for _, row := range rows {
		out[row.Level] = row.N
	}
	return out, nil
}

// CountAll returns the question count per character.
func (r *questionRepo) CountAll(dbc dbctx.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		CharacterID uuid.UUID
		N           int64
	}
	if err := dbc.Conn(r.db).
		Model(&types.Question{}).
		Select("character_id, COUNT(*) AS n").
		Group("character_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.CharacterID] = row.N
	}
	return out, nil
}

func (r *questionRepo) Create(dbc dbctx.Context, questions []*types.Question) ([]*types.Question, error) {
	if len(questions) == 0 {
		return []*types.Question{}, nil
	}
	if err := dbc.Conn(r.db).CreateInBatches(&questions, 200).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := dbc.Conn(r.db).Model(&types.Question{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *questionRepo) Delete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).Where("id = ?", id).Delete(&types.Question{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ImageURLs lists the distinct question images, soft-deleted questions included.
func (r *questionRepo) ImageURLs(dbc dbctx.Context) ([]string, error) {
	var out []string
	if err := dbc.Conn(r.db).Unscoped().Model(&types.Question{}).
		Where("image_url <> ''").
		Distinct("image_url").
		Pluck("image_url", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type CharacterRepo interface {
	List(dbc dbctx.Context) ([]*types.Character, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Character, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Character, error)
	Create(dbc dbctx.Context, characters []*types.Character) ([]*types.Character, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// AssetURLs lists every image URL a character row or result card points at,
	// soft-deleted characters included.
	AssetURLs(dbc dbctx.Context) ([]string, error)

	GetResult(dbc dbctx.Context, characterID uuid.UUID) (*types.CharacterResult, error)
	UpsertResult(dbc dbctx.Context, result *types.CharacterResult) error
}

type characterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCharacterRepo(db *gorm.DB, baseLog *logger.Logger) CharacterRepo {
	return &characterRepo{
		db:  db,
		log: baseLog.With("repo", "CharacterRepo"),
	}
}

// List returns featured characters first, then alphabetical.
func (r *characterRepo) List(dbc dbctx.Context) ([]*types.Character, error) {
	var out []*types.Character
	if err := dbc.Conn(r.db).
		Order("is_featured DESC").
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *characterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Character, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Character
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *characterRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Character, error) {
	var out []*types.Character
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *characterRepo) Create(dbc dbctx.Context, characters []*types.Character) ([]*types.Character, error) {
	if len(characters) == 0 {
		return []*types.Character{}, nil
	}
	if err := dbc.Conn(r.db).Create(&characters).Error; err != nil {
		return nil, err
	}
	return characters, nil
}

func (r *characterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).Model(&types.Character{}).Where("id = ?", id).Updates(updates).Error
}

func (r *characterRepo) AssetURLs(dbc dbctx.Context) ([]string, error) {
	var chars []*types.Character
	if err := dbc.Conn(r.db).Unscoped().
		Select("id", "image_urls", "background_image", "card_images", "visual_assets").
		Find(&chars).Error; err != nil {
		return nil, err
	}
	out := []string{}
	for _, c := range chars {
		if c.BackgroundImage != "" {
			out = append(out, c.BackgroundImage)
		}
		for _, raw := range [][]byte{c.ImageURLs, c.CardImages, c.VisualAssets} {
			out = appendJSONStrings(out, raw)
		}
	}
	var results []string
	if err := dbc.Conn(r.db).Model(&types.CharacterResult{}).
		Where("image_url <> ''").
		Pluck("image_url", &results).Error; err != nil {
		return nil, err
	}
	return append(out, results...), nil
}

// appendJSONStrings collects every string leaf of a json document. Unparseable
// documents contribute nothing.
func appendJSONStrings(out []string, raw []byte) []string {
	if len(raw) == 0 {
		return out
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out
	}
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case []interface{}:
			for _, e := range t {
				walk(e)
			}
		case map[string]interface{}:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(doc)
	return out
}

func (r *characterRepo) GetResult(dbc dbctx.Context, characterID uuid.UUID) (*types.CharacterResult, error) {
	if characterID == uuid.Nil {
		return nil, nil
	}
	var res types.CharacterResult
	if err := dbc.Conn(r.db).Where("character_id = ?", characterID).Limit(1).Find(&res).Error; err != nil {
		return nil, err
	}
	if res.CharacterID == uuid.Nil {
		return nil, nil
	}
	return &res, nil
}

func (r *characterRepo) UpsertResult(dbc dbctx.Context, result *types.CharacterResult) error {
	if result == nil || result.CharacterID == uuid.Nil {
		return nil
	}
	result.UpdatedAt = time.Now()
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "character_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "image_url", "updated_at"}),
	}).Create(result).Error
}

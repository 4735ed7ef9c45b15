package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/imaging"
)

// Asset kinds accepted by UploadCharacterAsset.
const (
	AssetImage      = "image"
	AssetBackground = "background"
	AssetCard       = "card"
	AssetVisual     = "visual"
)

var (
	themeColorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	assetSlotPattern  = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

type CharacterInput struct {
	Name            string            `json:"name"`
	Series          string            `json:"series"`
	ThemeColor      string            `json:"theme_color,omitempty"`
	BackgroundImage string            `json:"background_image,omitempty"`
	ImageURLs       []string          `json:"image_urls,omitempty"`
	CardImages      []string          `json:"card_images,omitempty"`
	VisualAssets    map[string]string `json:"visual_assets,omitempty"`
	IsFeatured      bool              `json:"is_featured,omitempty"`
}

func (in CharacterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return validateThemeColor(in.ThemeColor)
}

func validateThemeColor(c string) error {
	if c = strings.TrimSpace(c); c != "" && !themeColorPattern.MatchString(c) {
		return fmt.Errorf("theme_color must be a #rgb or #rrggbb hex color")
	}
	return nil
}

func (in CharacterInput) model() *types.Character {
	visual := in.VisualAssets
	if visual == nil {
		visual = map[string]string{}
	}
	return &types.Character{
		Name:            strings.TrimSpace(in.Name),
		Series:          strings.TrimSpace(in.Series),
		ThemeColor:      strings.TrimSpace(in.ThemeColor),
		BackgroundImage: strings.TrimSpace(in.BackgroundImage),
		ImageURLs:       jsonValue(nonNil(in.ImageURLs)),
		CardImages:      jsonValue(nonNil(in.CardImages)),
		VisualAssets:    jsonValue(visual),
		IsFeatured:      in.IsFeatured,
	}
}

// CharacterPatch changes only the fields that are present.
type CharacterPatch struct {
	Name            *string            `json:"name"`
	Series          *string            `json:"series"`
	ThemeColor      *string            `json:"theme_color"`
	BackgroundImage *string            `json:"background_image"`
	ImageURLs       *[]string          `json:"image_urls"`
	CardImages      *[]string          `json:"card_images"`
	VisualAssets    *map[string]string `json:"visual_assets"`
	IsFeatured      *bool              `json:"is_featured"`
}

func (p CharacterPatch) updates() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("name must not be empty")
		}
		out["name"] = name
	}
	if p.Series != nil {
		out["series"] = strings.TrimSpace(*p.Series)
	}
	if p.ThemeColor != nil {
		if err := validateThemeColor(*p.ThemeColor); err != nil {
			return nil, err
		}
		out["theme_color"] = strings.TrimSpace(*p.ThemeColor)
	}
	if p.BackgroundImage != nil {
		out["background_image"] = strings.TrimSpace(*p.BackgroundImage)
	}
	if p.ImageURLs != nil {
		out["image_urls"] = jsonValue(nonNil(*p.ImageURLs))
	}
	if p.CardImages != nil {
		out["card_images"] = jsonValue(nonNil(*p.CardImages))
	}
	if p.VisualAssets != nil {
		visual := *p.VisualAssets
		if visual == nil {
			visual = map[string]string{}
		}
		out["visual_assets"] = jsonValue(visual)
	}
	if p.IsFeatured != nil {
		out["is_featured"] = *p.IsFeatured
	}
	return out, nil
}

type AssetUpload struct {
	Kind string
	// Slot names the visual asset entry; required for AssetVisual only.
	Slot  string
	Image []byte
}

func jsonValue(v any) datatypes.JSON {
	raw, _ := json.Marshal(v)
	return datatypes.JSON(raw)
}

func (s *adminService) nameTaken(dbc dbctx.Context, name string, except uuid.UUID) (bool, error) {
	existing, err := s.characters.List(dbc)
	if err != nil {
		return false, err
	}
	for _, c := range existing {
		if c.ID != except && strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *adminService) CreateCharacter(ctx context.Context, in CharacterInput) (*types.Character, error) {
	if err := in.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_character", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	ch := in.model()
	taken, err := s.nameTaken(dbc, ch.Name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apierr.Conflict("character_exists", fmt.Errorf("a character named %q already exists", ch.Name))
	}
	if _, err := s.characters.Create(dbc, []*types.Character{ch}); err != nil {
		return nil, err
	}
	s.log.Info("Character created", "character_id", ch.ID, "name", ch.Name)
	return ch, nil
}

func (s *adminService) UpdateCharacter(ctx context.Context, characterID uuid.UUID, in CharacterPatch) (*types.Character, error) {
	updates, err := in.updates()
	if err != nil {
		return nil, apierr.BadRequest("invalid_character", err)
	}
	if err := s.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if name, ok := updates["name"].(string); ok {
		taken, err := s.nameTaken(dbc, name, characterID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apierr.Conflict("character_exists", fmt.Errorf("a character named %q already exists", name))
		}
	}
	if len(updates) > 0 {
		if err := s.characters.UpdateFields(dbc, characterID, updates); err != nil {
			return nil, err
		}
	}
	return s.characters.GetByID(dbc, characterID)
}

func (s *adminService) UploadCharacterAsset(ctx context.Context, characterID uuid.UUID, up AssetUpload) (*types.Character, error) {
	kind := strings.ToLower(strings.TrimSpace(up.Kind))
	slot := strings.ToLower(strings.TrimSpace(up.Slot))
	switch kind {
	case AssetImage, AssetBackground, AssetCard:
	case AssetVisual:
		if !assetSlotPattern.MatchString(slot) {
			return nil, apierr.BadRequest("invalid_slot", fmt.Errorf("slot must be 1-32 of a-z, 0-9, _ or -"))
		}
	default:
		return nil, apierr.BadRequest("invalid_asset_kind", fmt.Errorf("kind must be one of %s, %s, %s, %s", AssetImage, AssetBackground, AssetCard, AssetVisual))
	}
	if len(up.Image) == 0 {
		return nil, apierr.BadRequest("missing_image", fmt.Errorf("image is required"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	ch, err := s.characters.GetByID(dbc, characterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	img, err := imaging.NormalizeJPEG(up.Image, imaging.AssetProfile)
	if err != nil {
		return nil, imageError(err)
	}

	key := fmt.Sprintf("characters/%s/%s/%d.jpg", characterID, kind, s.now().UnixMilli())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryAsset, key, bytes.NewReader(img)); err != nil {
		return nil, apierr.Internal("upload_failed", err)
	}
	url := s.bucket.GetPublicURL(gcp.BucketCategoryAsset, key)

	updates := map[string]interface{}{}
	switch kind {
	case AssetImage:
		updates["image_urls"] = jsonValue(append(decodeStrings(ch.ImageURLs), url))
	case AssetCard:
		updates["card_images"] = jsonValue(append(decodeStrings(ch.CardImages), url))
	case AssetBackground:
		updates["background_image"] = url
	case AssetVisual:
		visual := map[string]string{}
		_ = json.Unmarshal(ch.VisualAssets, &visual)
		visual[slot] = url
		updates["visual_assets"] = jsonValue(visual)
	}
	if err := s.characters.UpdateFields(dbc, characterID, updates); err != nil {
		_ = s.bucket.DeleteFile(context.WithoutCancel(ctx), gcp.BucketCategoryAsset, key)
		return nil, err
	}
	s.log.Info("Character asset uploaded", "character_id", characterID, "kind", kind, "key", key)
	return s.characters.GetByID(dbc, characterID)
}

func (s *adminService) UploadQuestionImage(ctx context.Context, questionID uuid.UUID, raw []byte) (*types.Question, error) {
	if len(raw) == 0 {
		return nil, apierr.BadRequest("missing_image", fmt.Errorf("image is required"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	q, err := s.questions.GetByID(dbc, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apierr.NotFound("question_not_found", apierr.ErrNotFound)
	}
	img, err := imaging.NormalizeJPEG(raw, imaging.AssetProfile)
	if err != nil {
		return nil, imageError(err)
	}
	key := fmt.Sprintf("questions/%s/%d.jpg", questionID, s.now().UnixMilli())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryAsset, key, bytes.NewReader(img)); err != nil {
		return nil, apierr.Internal("upload_failed", err)
	}
	ok, err := s.questions.UpdateFields(dbc, questionID, map[string]interface{}{
		"image_url": s.bucket.GetPublicURL(gcp.BucketCategoryAsset, key),
	})
	if err != nil || !ok {
		_ = s.bucket.DeleteFile(context.WithoutCancel(ctx), gcp.BucketCategoryAsset, key)
		if err != nil {
			return nil, err
		}
		return nil, apierr.NotFound("question_not_found", apierr.ErrNotFound)
	}
	return s.questions.GetByID(dbc, questionID)
}

func decodeStrings(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

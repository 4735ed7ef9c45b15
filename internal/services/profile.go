package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/imaging"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const (
	AvatarSize     = 512
	galleryLimit   = 60
	maxBioRunes    = 280
	maxSocialRunes = 64
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,24}$`)

// ProfileUpdate holds optional fields; nil means unchanged.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	Instagram *string `json:"instagram"`
	TikTok    *string `json:"tiktok"`
	Twitter   *string `json:"twitter"`
}

type CharacterPoints struct {
	CharacterID   uuid.UUID `json:"character_id"`
	CharacterName string    `json:"character_name"`
	LevelCleared  int       `json:"level_cleared"`
	Total         int       `json:"total"`
}

type PublicProfile struct {
	Profile     *types.Profile                `json:"profile"`
	DisplayName string                        `json:"display_name"`
	TotalPoints int                           `json:"total_points"`
	Characters  []CharacterPoints             `json:"characters"`
	Gallery     []*types.CollectionSubmission `json:"gallery"`
}

type ProfileService interface {
	GetPublic(ctx context.Context, userID uuid.UUID) (*PublicProfile, error)
	Update(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*types.Profile, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, raw []byte) (*types.Profile, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type profileService struct {
	log         *logger.Logger
	profiles    repos.ProfileRepo
	progress    repos.ProgressRepo
	submissions repos.SubmissionRepo
	characters  repos.CharacterRepo
	bucket      gcp.BucketService
	now         func() time.Time
}

func NewProfileService(
	log *logger.Logger,
	profiles repos.ProfileRepo,
	progress repos.ProgressRepo,
	submissions repos.SubmissionRepo,
	characters repos.CharacterRepo,
	bucket gcp.BucketService,
) ProfileService {
	return &profileService{
		log:         log.With("service", "ProfileService"),
		profiles:    profiles,
		progress:    progress,
		submissions: submissions,
		characters:  characters,
		bucket:      bucket,
		now:         time.Now,
	}
}

func (s *profileService) GetPublic(ctx context.Context, userID uuid.UUID) (*PublicProfile, error) {
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.profiles.Get(dbc, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apierr.NotFound("profile_not_found", apierr.ErrNotFound)
	}
	rows, err := s.progress.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CharacterID)
	}
	chars, err := s.characters.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(chars))
	for _, c := range chars {
		names[c.ID] = c.Name
	}

	out := &PublicProfile{Profile: p, DisplayName: p.DisplayName(), Characters: make([]CharacterPoints, 0, len(rows))}
	for _, r := range rows {
		out.TotalPoints += r.TotalPointsAccumulated
		out.Characters = append(out.Characters, CharacterPoints{
			CharacterID:   r.CharacterID,
			CharacterName: names[r.CharacterID],
			LevelCleared:  r.LevelCleared,
			Total:         r.TotalPointsAccumulated,
		})
	}
	gallery, err := s.submissions.ListValidByUser(dbc, userID, galleryLimit)
	if err != nil {
		return nil, err
	}
	out.Gallery = gallery
	return out, nil
}

func (s *profileService) Update(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*types.Profile, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apierr.ErrUnauthorized)
	}
	updates := map[string]interface{}{}
	if in.Username != nil {
		u := strings.TrimPrefix(strings.TrimSpace(*in.Username), "@")
		if u == "" {
			updates["username"] = (*string)(nil)
		} else {
			if !usernamePattern.MatchString(u) {
				return nil, apierr.BadRequest("invalid_username", fmt.Errorf("username must be 3-24 letters, digits, '_' or '.'"))
			}
			updates["username"] = &u
		}
	}
	if in.Name != nil {
		updates["name"] = clip(strings.TrimSpace(*in.Name), maxSocialRunes)
	}
	if in.Bio != nil {
		updates["bio"] = clip(strings.TrimSpace(*in.Bio), maxBioRunes)
	}
	for col, v := range map[string]*string{"instagram": in.Instagram, "tiktok": in.TikTok, "twitter": in.Twitter} {
		if v != nil {
			updates[col] = clip(strings.TrimPrefix(strings.TrimSpace(*v), "@"), maxSocialRunes)
		}
	}
	if len(updates) == 0 {
		return s.profiles.Ensure(dbctx.Context{Ctx: ctx}, userID)
	}
	p, err := s.profiles.UpdateFields(dbctx.Context{Ctx: ctx}, userID, updates)
	if errors.Is(err, repos.ErrUsernameTaken) {
		return nil, apierr.Conflict("username_taken", err)
	}
	return p, err
}

func (s *profileService) UploadAvatar(ctx context.Context, userID uuid.UUID, raw []byte) (*types.Profile, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apierr.ErrUnauthorized)
	}
	if len(raw) == 0 {
		return nil, apierr.BadRequest("missing_image", fmt.Errorf("avatar image is required"))
	}
	png, err := imaging.AvatarPNG(raw, AvatarSize)
	if err != nil {
		return nil, imageError(err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	prev, err := s.profiles.Ensure(dbc, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%d.png", userID, s.now().UnixMilli())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryAvatar, key, bytes.NewReader(png)); err != nil {
		return nil, apierr.Internal("upload_failed", err)
	}
	p, err := s.profiles.UpdateFields(dbc, userID, map[string]interface{}{
		"avatar_url": s.bucket.GetPublicURL(gcp.BucketCategoryAvatar, key),
	})
	if err != nil {
		_ = s.bucket.DeleteFile(context.WithoutCancel(ctx), gcp.BucketCategoryAvatar, key)
		return nil, err
	}
	if prev != nil && prev.AvatarURL != "" {
		if oldKey, ok := s.bucket.KeyFromPublicURL(gcp.BucketCategoryAvatar, prev.AvatarURL); ok && oldKey != key {
			if derr := s.bucket.DeleteFile(ctx, gcp.BucketCategoryAvatar, oldKey); derr != nil {
				s.log.Warn("Delete previous avatar failed", "user_id", userID, "key", oldKey, "error", derr)
			}
		}
	}
	return p, nil
}

func (s *profileService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	p, err := s.profiles.Get(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return false, err
	}
	return p != nil && p.IsAdmin(), nil
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/httpx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/imaging"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const maxPortraitBytes = 4 << 20

type ShareCardView struct {
	URL      string        `json:"url"`
	Standing *StandingView `json:"standing"`
}

type ShareCardService interface {
	Render(ctx context.Context, userID, characterID uuid.UUID) (*ShareCardView, error)
}

type shareCardService struct {
	log         *logger.Logger
	characters  repos.CharacterRepo
	profiles    repos.ProfileRepo
	leaderboard LeaderboardService
	bucket      gcp.BucketService
	httpClient  *http.Client
	now         func() time.Time
}

func NewShareCardService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	profiles repos.ProfileRepo,
	leaderboard LeaderboardService,
	bucket gcp.BucketService,
) ShareCardService {
	return &shareCardService{
		log:         log.With("service", "ShareCardService"),
		characters:  characters,
		profiles:    profiles,
		leaderboard: leaderboard,
		bucket:      bucket,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
	}
}

func (s *shareCardService) Render(ctx context.Context, userID, characterID uuid.UUID) (*ShareCardView, error) {
	standing, err := s.leaderboard.MyStanding(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	ch, err := s.characters.GetByID(dbc, characterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	prof, err := s.profiles.Get(dbc, userID)
	if err != nil {
		return nil, err
	}
	name := types.Profile{ID: userID}.DisplayName()
	if prof != nil {
		name = prof.DisplayName()
	}
	total := 0
	if standing.Progress != nil {
		total = standing.Progress.TotalPointsAccumulated
	}

	png, err := imaging.RenderShareCard(imaging.ShareCard{
		DisplayName:   name,
		CharacterName: ch.Name,
		Series:        ch.Series,
		Title:         standing.Title,
		Rank:          standing.Rank,
		TotalPoints:   total,
		ThemeColor:    ch.ThemeColor,
		Portrait:      s.portrait(ctx, ch),
	})
	if err != nil {
		return nil, apierr.Internal("render_failed", err)
	}
	key := fmt.Sprintf("%s/%s/%d.png", userID, characterID, s.now().UnixMilli())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryShare, key, bytes.NewReader(png)); err != nil {
		return nil, apierr.Internal("upload_failed", err)
	}
	return &ShareCardView{
		URL:      s.bucket.GetPublicURL(gcp.BucketCategoryShare, key),
		Standing: standing,
	}, nil
}

// portrait returns the first character image, or nil when none can be loaded.
func (s *shareCardService) portrait(ctx context.Context, ch *types.Character) []byte {
	var urls []string
	if len(ch.ImageURLs) == 0 || json.Unmarshal(ch.ImageURLs, &urls) != nil || len(urls) == 0 {
		return nil
	}
	if key, ok := s.bucket.KeyFromPublicURL(gcp.BucketCategoryAsset, urls[0]); ok {
		if rc, err := s.bucket.DownloadFile(ctx, gcp.BucketCategoryAsset, key); err == nil {
			defer rc.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(rc); err == nil {
				return buf.Bytes()
			}
		}
	}
	raw, err := httpx.FetchBytes(ctx, s.httpClient, urls[0], maxPortraitBytes)
	if err != nil {
		s.log.Warn("Portrait fetch failed", "character_id", ch.ID, "error", err)
		return nil
	}
	return raw
}

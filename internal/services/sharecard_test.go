package services

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

func TestShareCardRendersAndUploads(t *testing.T) {
	bucket := newFakeBucket()
	_ = bucket.UploadFile(context.Background(), gcp.BucketCategoryAsset, "rem.jpg", bytes.NewReader(testJPEG(t, 200, 200)))
	rem := &types.Character{
		ID:         uuid.New(),
		Name:       "Rem",
		Series:     "Re:Zero",
		ThemeColor: "#60A5FA",
		ImageURLs:  datatypes.JSON(`["https://cdn.test/asset/rem.jpg"]`),
	}
	chars := newFakeCharacters(rem)
	profiles := newFakeProfiles()
	prog := newFakeProgress()
	u := uuid.New()
	name := "subaru"
	profiles.rows[u] = &types.Profile{ID: u, Username: &name}
	prog.row(u, rem.ID).TotalPointsAccumulated = 120

	board := NewLeaderboardService(logger.NewNop(), chars, &fakeQuestions{}, prog, profiles, nil)
	svc := NewShareCardService(logger.NewNop(), chars, profiles, board, bucket).(*shareCardService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	view, err := svc.Render(context.Background(), u, rem.ID)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	wantKey := u.String() + "/" + rem.ID.String() + "/1700000000000.png"
	if view.URL != "https://cdn.test/share/"+wantKey {
		t.Fatalf("url: got=%s", view.URL)
	}
	if view.Standing == nil || view.Standing.Rank != 1 {
		t.Fatalf("standing: got=%+v", view.Standing)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(bucket.objects["share/"+wantKey]))
	if err != nil {
		t.Fatalf("stored card: %v", err)
	}
	if cfg.Width != 1080 || cfg.Height != 1350 {
		t.Fatalf("card size: got=%dx%d", cfg.Width, cfg.Height)
	}
}

func TestShareCardErrors(t *testing.T) {
	chars := newFakeCharacters()
	board := NewLeaderboardService(logger.NewNop(), chars, &fakeQuestions{}, newFakeProgress(), newFakeProfiles(), nil)
	svc := NewShareCardService(logger.NewNop(), chars, newFakeProfiles(), board, newFakeBucket())
	if _, err := svc.Render(context.Background(), uuid.Nil, uuid.New()); statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous: want=401 got=%d", statusOf(err))
	}
	_, err := svc.Render(context.Background(), uuid.New(), uuid.New())
	if statusOf(err) != http.StatusNotFound || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("missing character: want=404 got=%d (%v)", statusOf(err), err)
	}
}

package gcp

import (
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

func testBucketService(cfg StorageConfig) *bucketService {
	return &bucketService{
		log: logger.NewNop(),
		cfg: cfg,
		buckets: map[BucketCategory]bucketConfig{
			BucketCategoryGallery: {name: "waifu-gallery"},
			BucketCategoryAvatar:  {name: "avatars", cdnDomain: "cdn.example.com"},
			BucketCategoryShare:   {name: ""},
		},
	}
}

func TestGetPublicURL(t *testing.T) {
	bs := testBucketService(StorageConfig{Mode: StorageModeGCS})
	if got, want := bs.GetPublicURL(BucketCategoryGallery, "u/c/1.jpg"), "https://storage.googleapis.com/waifu-gallery/u/c/1.jpg"; got != want {
		t.Fatalf("gallery: want=%q got=%q", want, got)
	}
	if got, want := bs.GetPublicURL(BucketCategoryAvatar, "/a.png"), "https://cdn.example.com/a.png"; got != want {
		t.Fatalf("avatar cdn: want=%q got=%q", want, got)
	}

	emu := testBucketService(StorageConfig{Mode: StorageModeEmulator, EmulatorHost: "http://fake-gcs:4443"})
	want := "http://fake-gcs:4443/storage/v1/b/waifu-gallery/o/u%2Fc%2F1.jpg?alt=media"
	if got := emu.GetPublicURL(BucketCategoryGallery, "u/c/1.jpg"); got != want {
		t.Fatalf("emulator: want=%q got=%q", want, got)
	}
}

func TestKeyFromPublicURLRoundTrip(t *testing.T) {
	for _, cfg := range []StorageConfig{
		{Mode: StorageModeGCS},
		{Mode: StorageModeGCS, PublicBaseURL: "http://localhost:4443"},
		{Mode: StorageModeEmulator, EmulatorHost: "http://fake-gcs:4443"},
	} {
		bs := testBucketService(cfg)
		u := bs.GetPublicURL(BucketCategoryGallery, "user/char/1700000000000.jpg")
		key, ok := bs.KeyFromPublicURL(BucketCategoryGallery, u)
		if !ok || key != "user/char/1700000000000.jpg" {
			t.Fatalf("mode=%s: want key back got=(%q,%v) from %q", cfg.Mode, key, ok, u)
		}
	}
	bs := testBucketService(StorageConfig{Mode: StorageModeGCS})
	if _, ok := bs.KeyFromPublicURL(BucketCategoryGallery, "https://elsewhere.example.com/x.jpg"); ok {
		t.Fatalf("foreign url: want ok=false")
	}
}

func TestMissingBucketNameFailsAtCallSite(t *testing.T) {
	bs := testBucketService(StorageConfig{Mode: StorageModeGCS})
	_, err := bs.bucket(BucketCategoryShare)
	if !errors.Is(err, ErrBucketNotConfigured) || !strings.HasSuffix(err.Error(), "missing env var SHARE_GCS_BUCKET_NAME") {
		t.Fatalf("bucket: want missing env error got=%v", err)
	}
}

func TestResolveStorageConfigFromEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")
	cfg, err := ResolveStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeEmulator || cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator fallback: got=%+v", cfg)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	if _, err := ResolveStorageConfigFromEnv(); err == nil {
		t.Fatalf("invalid mode: expected error")
	}

	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")
	if _, err := ResolveStorageConfigFromEnv(); err == nil {
		t.Fatalf("relative emulator host: expected error")
	}
}

package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type BucketCategory string

const (
	// BucketCategoryGallery holds appraised merchandise photos.
	BucketCategoryGallery BucketCategory = "gallery"
	// BucketCategoryAsset holds character art, backgrounds and question images.
	BucketCategoryAsset  BucketCategory = "asset"
	BucketCategoryAvatar BucketCategory = "avatar"
	BucketCategoryShare  BucketCategory = "share"
)

var bucketEnv = map[BucketCategory]struct{ name, cdn string }{
	BucketCategoryGallery: {"GALLERY_GCS_BUCKET_NAME", "GALLERY_CDN_DOMAIN"},
	BucketCategoryAsset:   {"ASSET_GCS_BUCKET_NAME", "ASSET_CDN_DOMAIN"},
	BucketCategoryAvatar:  {"AVATAR_GCS_BUCKET_NAME", "AVATAR_CDN_DOMAIN"},
	BucketCategoryShare:   {"SHARE_GCS_BUCKET_NAME", "SHARE_CDN_DOMAIN"},
}

var (
	ErrObjectNotFound      = errors.New("object not found")
	ErrBucketNotConfigured = errors.New("bucket not configured")
)

type BucketService interface {
	UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error
	DeleteFile(ctx context.Context, category BucketCategory, key string) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error)
	GetPublicURL(category BucketCategory, key string) string
	KeyFromPublicURL(category BucketCategory, publicURL string) (string, bool)
}

type bucketConfig struct {
	name      string
	cdnDomain string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	cfg           StorageConfig
	buckets       map[BucketCategory]bucketConfig
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	cfg, err := ResolveStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	client, err := newStorageClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	bs := newBucketService(log, client, cfg)
	bs.log.Info("Object storage initialized",
		"mode", cfg.Mode,
		"emulator_host", cfg.EmulatorHost,
		"public_base_url", cfg.PublicBaseURL,
	)
	return bs, nil
}

// newBucketService reads bucket names lazily-tolerant: a missing name only fails the
// operations that touch that category.
func newBucketService(log *logger.Logger, client *storage.Client, cfg StorageConfig) *bucketService {
	buckets := make(map[BucketCategory]bucketConfig, len(bucketEnv))
	for cat, env := range bucketEnv {
		buckets[cat] = bucketConfig{
			name:      strings.TrimSpace(os.Getenv(env.name)),
			cdnDomain: strings.TrimSpace(os.Getenv(env.cdn)),
		}
	}
	return &bucketService{
		log:           log.With("service", "BucketService"),
		storageClient: client,
		cfg:           cfg,
		buckets:       buckets,
	}
}

func newStorageClient(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	if cfg.IsEmulator() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (bs *bucketService) bucket(category BucketCategory) (bucketConfig, error) {
	cfg, ok := bs.buckets[category]
	if !ok {
		return bucketConfig{}, fmt.Errorf("unknown bucket category: %s", category)
	}
	if cfg.name == "" {
		return bucketConfig{}, fmt.Errorf("%w: missing env var %s", ErrBucketNotConfigured, bucketEnv[category].name)
	}
	return cfg, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader) error {
	cfg, err := bs.bucket(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(cfg.name).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	cfg, err := bs.bucket(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.storageClient.Bucket(cfg.name).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, cfg.name, err)
	}
	return nil
}

// readCloserWithCancel keeps the download context alive until the caller closes the reader.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	cfg, err := bs.bucket(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := bs.storageClient.Bucket(cfg.name).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	cfg, err := bs.bucket(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	it := bs.storageClient.Bucket(cfg.name).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) GetPublicURL(category BucketCategory, key string) string {
	cfg, err := bs.bucket(category)
	if err != nil {
		return key
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case cfg.cdnDomain != "":
		return fmt.Sprintf("https://%s/%s", cfg.cdnDomain, key)
	case bs.cfg.IsEmulator():
		base := bs.cfg.PublicBaseURL
		if base == "" {
			base = bs.cfg.EmulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(cfg.name), url.PathEscape(key))
	case bs.cfg.PublicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", bs.cfg.PublicBaseURL, cfg.name, key)
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.name, key)
	}
}

// KeyFromPublicURL reverses GetPublicURL. Rows written before storage_key existed only
// carry the public URL.
func (bs *bucketService) KeyFromPublicURL(category BucketCategory, publicURL string) (string, bool) {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return "", false
	}
	if _, err := bs.bucket(category); err != nil {
		return "", false
	}
	if bs.cfg.IsEmulator() && strings.Contains(publicURL, "/o/") {
		rest := publicURL[strings.LastIndex(publicURL, "/o/")+3:]
		if i := strings.Index(rest, "?"); i >= 0 {
			rest = rest[:i]
		}
		key, err := url.PathUnescape(rest)
		if err != nil || key == "" {
			return "", false
		}
		return key, true
	}
	prefix := bs.GetPublicURL(category, "")
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(publicURL, prefix)
	if i := strings.Index(key, "?"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return ""
	}
}

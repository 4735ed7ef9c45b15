package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/imaging"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/openai"
)

type fakeModel struct {
	mu     sync.Mutex
	out    map[string]any
	err    error
	prompt string
	images int
	calls  int
}

func (m *fakeModel) GenerateJSONWithImages(ctx context.Context, system, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompt = user
	m.images = len(images)
	return m.out, m.err
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

type appraisalFixture struct {
	svc       *appraisalService
	model     *fakeModel
	bucket    *fakeBucket
	subs      *fakeSubmissions
	progress  *fakeProgress
	character *types.Character
}

func newAppraisalFixture(t *testing.T) *appraisalFixture {
	t.Helper()
	ch := &types.Character{ID: uuid.New(), Name: "Rem"}
	f := &appraisalFixture{
		model: &fakeModel{out: map[string]any{
			"valid":            true,
			"reject_reason":    "",
			"similarity_score": 0,
			"is_duplicate":     false,
			"total_value_idr":  350000,
			"items_detected":   []any{"nendoroid"},
		}},
		bucket:    newFakeBucket(),
		subs:      &fakeSubmissions{},
		progress:  newFakeProgress(),
		character: ch,
	}
	svc := NewAppraisalService(
		logger.NewNop(),
		newFakeCharacters(ch),
		f.subs,
		f.progress,
		f.bucket,
		func() (openai.Client, error) { return f.model, nil },
		nil,
		100,
	).(*appraisalService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	f.svc = svc
	return f
}

func TestAppraiseAcceptsAndCredits(t *testing.T) {
	f := newAppraisalFixture(t)
	user := uuid.New()
	res, err := f.svc.Appraise(context.Background(), user, AppraisalRequest{
		Image:       testJPEG(t, 1200, 800),
		CharacterID: f.character.ID.String(),
	})
	if err != nil {
		t.Fatalf("Appraise: %v", err)
	}
	if !res.Success || res.Points != 110 || res.Value != 350000 {
		t.Fatalf("result: got=%+v", res)
	}
	wantKey := user.String() + "/" + f.character.ID.String() + "/1700000000000.jpg"
	if !strings.HasSuffix(res.ImageURL, wantKey) {
		t.Fatalf("image url: want suffix %s got=%s", wantKey, res.ImageURL)
	}
	if f.model.images != 1 {
		t.Fatalf("images sent: want=1 got=%d", f.model.images)
	}

	stored := f.bucket.objects["gallery/"+wantKey]
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("stored image: %v", err)
	}
	if cfg.Width != 600 {
		t.Fatalf("stored width: want=600 got=%d", cfg.Width)
	}

	p, _ := f.progress.Get(dbcBG(), user, f.character.ID)
	if p == nil || p.CollectionPoints != 110 || p.TotalPointsAccumulated != 110 {
		t.Fatalf("progress: got=%+v", p)
	}
	if len(f.progress.subs) != 1 || f.progress.subs[0].StorageKey != wantKey || !f.progress.subs[0].IsValid {
		t.Fatalf("submission: got=%+v", f.progress.subs)
	}
}

func TestAppraiseDuplicateRejectedWithHistory(t *testing.T) {
	f := newAppraisalFixture(t)
	user := uuid.New()
	_ = f.bucket.UploadFile(context.Background(), gcp.BucketCategoryGallery, "old.jpg", bytes.NewReader(testJPEG(t, 500, 500)))
	f.subs.history = []*types.CollectionSubmission{
		{ID: uuid.New(), StorageKey: "old.jpg", IsValid: true},
		{ID: uuid.New(), StorageKey: "missing.jpg", IsValid: true},
	}
	f.model.out["similarity_score"] = 92
	f.model.out["is_duplicate"] = false

	res, err := f.svc.Appraise(context.Background(), user, AppraisalRequest{
		Image:       testJPEG(t, 300, 300),
		CharacterID: f.character.ID.String(),
	})
	if err != nil {
		t.Fatalf("Appraise: %v", err)
	}
	if res.Success {
		t.Fatalf("duplicate: want rejection got=%+v", res)
	}
	if res.Message != "Woi, jangan upload foto yang sama! (Kemiripan 92%)" {
		t.Fatalf("message: got=%q", res.Message)
	}
	// The missing object is dropped, so only one history image is sent.
	if f.model.images != 2 || !strings.Contains(f.model.prompt, "(1 foto)") {
		t.Fatalf("history sent: images=%d prompt=%q", f.model.images, f.model.prompt)
	}
	if len(f.progress.subs) != 0 {
		t.Fatalf("rejected appraisal must not persist")
	}
}

func TestAppraiseInvalidUsesReason(t *testing.T) {
	f := newAppraisalFixture(t)
	f.model.out["valid"] = false
	f.model.out["reject_reason"] = "Bukan merchandise."
	res, err := f.svc.Appraise(context.Background(), uuid.New(), AppraisalRequest{
		Image:       testJPEG(t, 100, 100),
		CharacterID: f.character.ID.String(),
	})
	if err != nil {
		t.Fatalf("Appraise: %v", err)
	}
	if res.Success || res.Message != "Bukan merchandise." {
		t.Fatalf("invalid: got=%+v", res)
	}
}

func TestAppraiseInputAndConfigErrors(t *testing.T) {
	f := newAppraisalFixture(t)
	ctx := context.Background()
	img := testJPEG(t, 50, 50)

	cases := []struct {
		name   string
		user   uuid.UUID
		req    AppraisalRequest
		status int
	}{
		{"anonymous", uuid.Nil, AppraisalRequest{Image: img, CharacterID: f.character.ID.String()}, http.StatusUnauthorized},
		{"no image", uuid.New(), AppraisalRequest{CharacterID: f.character.ID.String()}, http.StatusBadRequest},
		{"bad id", uuid.New(), AppraisalRequest{Image: img, CharacterID: "rem"}, http.StatusBadRequest},
		{"unknown character", uuid.New(), AppraisalRequest{Image: img, CharacterID: uuid.NewString()}, http.StatusNotFound},
		{"not an image", uuid.New(), AppraisalRequest{Image: []byte("hello"), CharacterID: f.character.ID.String()}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		_, err := f.svc.Appraise(ctx, tc.user, tc.req)
		if got := statusOf(err); got != tc.status {
			t.Fatalf("%s: want=%d got=%d (%v)", tc.name, tc.status, got, err)
		}
	}

	f.svc.model = func() (openai.Client, error) { return nil, errors.New("missing OPENAI_API_KEY") }
	_, err := f.svc.Appraise(ctx, uuid.New(), AppraisalRequest{Image: img, CharacterID: f.character.ID.String()})
	if statusOf(err) != http.StatusInternalServerError || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("missing key: want 500 got=%d (%v)", statusOf(err), err)
	}
}

func TestAppraiseDBFailureRemovesUpload(t *testing.T) {
	f := newAppraisalFixture(t)
	f.progress.applyErr = errors.New("deadlock")
	_, err := f.svc.Appraise(context.Background(), uuid.New(), AppraisalRequest{
		Image:       testJPEG(t, 100, 100),
		CharacterID: f.character.ID.String(),
	})
	if statusOf(err) != http.StatusInternalServerError {
		t.Fatalf("db failure: want=500 got=%d", statusOf(err))
	}
	if len(f.bucket.deleted) != 1 || len(f.bucket.objects) != 0 {
		t.Fatalf("upload cleanup: deleted=%v objects=%d", f.bucket.deleted, len(f.bucket.objects))
	}
}

func TestAppraiseRateLimited(t *testing.T) {
	f := newAppraisalFixture(t)
	f.svc.perMinute = 1
	user := uuid.New()
	req := AppraisalRequest{Image: testJPEG(t, 60, 60), CharacterID: f.character.ID.String()}
	if _, err := f.svc.Appraise(context.Background(), user, req); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.svc.Appraise(context.Background(), user, req); statusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("second: want=429 got=%d", statusOf(err))
	}
	if _, err := f.svc.Appraise(context.Background(), uuid.New(), req); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestAppraiseInFlightKeepsRateBudget(t *testing.T) {
	f := newAppraisalFixture(t)
	f.svc.perMinute = 1
	user := uuid.New()
	req := AppraisalRequest{Image: testJPEG(t, 60, 60), CharacterID: f.character.ID.String()}

	f.svc.inFlight.Store(user, struct{}{})
	if _, err := f.svc.Appraise(context.Background(), user, req); statusOf(err) != http.StatusConflict {
		t.Fatalf("busy: want=409 got=%d", statusOf(err))
	}
	f.svc.inFlight.Delete(user)

	if _, err := f.svc.Appraise(context.Background(), user, req); err != nil {
		t.Fatalf("after conflict: want success got=%v", err)
	}
}

func TestImageErrorCodes(t *testing.T) {
	status, code := apierr.StatusOf(imageError(fmt.Errorf("wrap: %w", imaging.ErrImageTooLarge)))
	if status != http.StatusBadRequest || code != "image_too_large" {
		t.Fatalf("too large: want=400/image_too_large got=%d/%s", status, code)
	}
	status, code = apierr.StatusOf(imageError(errors.New("decode image: bad")))
	if status != http.StatusBadRequest || code != "invalid_image" {
		t.Fatalf("invalid: want=400/invalid_image got=%d/%s", status, code)
	}
}

func TestLazyModelFactoryRetriesUntilBuilt(t *testing.T) {
	calls := 0
	factory := LazyModelFactory(func() (openai.Client, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("missing OPENAI_API_KEY")
		}
		return &fakeModel{}, nil
	})
	if _, err := factory(); err == nil {
		t.Fatalf("first build: want error")
	}
	a, err := factory()
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	b, _ := factory()
	if a != b || calls != 2 {
		t.Fatalf("factory: want cached client after success, calls=%d", calls)
	}
}

package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/appraisal"
	"github.com/yungbote/waifu-verifier-backend/internal/observability"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/ctxutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/httpx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/imaging"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/openai"
)

const maxHistoryImageBytes = 8 << 20

var (
	ErrAppraisalInFlight = errors.New("an appraisal for this user is already running")
	ErrAppraisalLimited  = errors.New("too many appraisals, slow down")
)

// ModelFactory returns the model client, or an error when it is not configured.
type ModelFactory func() (openai.Client, error)

type AppraisalRequest struct {
	Image         []byte
	CharacterID   string
	CharacterName string
}

type AppraisalResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Points   int    `json:"points,omitempty"`
	Value    int64  `json:"value,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type AppraisalService interface {
	// Appraise returns a result with Success=false and a nil error for business-rule
	// rejections. Errors are transport failures carrying an apierr status.
	Appraise(ctx context.Context, userID uuid.UUID, req AppraisalRequest) (*AppraisalResult, error)
}

type appraisalService struct {
	log         *logger.Logger
	characters  repos.CharacterRepo
	submissions repos.SubmissionRepo
	progress    repos.ProgressRepo
	bucket      gcp.BucketService
	model       ModelFactory
	listener    ProgressListener
	httpClient  *http.Client
	now         func() time.Time

	perMinute int
	limMu     sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter
	inFlight  sync.Map
}

func NewAppraisalService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	submissions repos.SubmissionRepo,
	progress repos.ProgressRepo,
	bucket gcp.BucketService,
	model ModelFactory,
	listener ProgressListener,
	perMinute int,
) AppraisalService {
	if perMinute <= 0 {
		perMinute = 6
	}
	return &appraisalService{
		log:         log.With("service", "AppraisalService"),
		characters:  characters,
		submissions: submissions,
		progress:    progress,
		bucket:      bucket,
		model:       model,
		listener:    listener,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		now:         time.Now,
		perMinute:   perMinute,
		limiters:    map[uuid.UUID]*rate.Limiter{},
	}
}

// LazyModelFactory builds the client on first successful use.
func LazyModelFactory(build func() (openai.Client, error)) ModelFactory {
	var (
		mu     sync.Mutex
		cached openai.Client
	)
	return func() (openai.Client, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		c, err := build()
		if err != nil {
			return nil, err
		}
		cached = c
		return c, nil
	}
}

func (s *appraisalService) limiter(userID uuid.UUID) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if l, ok := s.limiters[userID]; ok {
		return l
	}
	if len(s.limiters) > 4096 {
		for id, l := range s.limiters {
			if l.Tokens() >= float64(l.Burst()) {
				delete(s.limiters, id)
			}
		}
	}
	l := rate.NewLimiter(rate.Limit(float64(s.perMinute)/60.0), s.perMinute)
	s.limiters[userID] = l
	return l
}

func (s *appraisalService) Appraise(ctx context.Context, userID uuid.UUID, req AppraisalRequest) (*AppraisalResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apierr.ErrUnauthorized)
	}
	if len(req.Image) == 0 {
		return nil, apierr.BadRequest("missing_image", fmt.Errorf("image is required"))
	}
	characterID, err := uuid.Parse(strings.TrimSpace(req.CharacterID))
	if err != nil {
		return nil, apierr.BadRequest("invalid_character_id", fmt.Errorf("invalid waifuId: %w", err))
	}
	model, err := s.model()
	if err != nil {
		return nil, apierr.Internal("model_not_configured", err)
	}
	if _, busy := s.inFlight.LoadOrStore(userID, struct{}{}); busy {
		return nil, apierr.Conflict("appraisal_in_flight", ErrAppraisalInFlight)
	}
	defer s.inFlight.Delete(userID)
	if !s.limiter(userID).Allow() {
		return nil, apierr.New(http.StatusTooManyRequests, "rate_limited", ErrAppraisalLimited)
	}

	dbc := dbctx.Context{Ctx: ctx}
	log := s.log.With(append(ctxutil.LogFields(ctx), "user_id", userID, "character_id", characterID)...)

	character, err := s.characters.GetByID(dbc, characterID)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	name := strings.TrimSpace(character.Name)
	if name == "" {
		name = strings.TrimSpace(req.CharacterName)
	}

	candidate, err := imaging.NormalizeJPEG(req.Image, imaging.CandidateProfile)
	if err != nil {
		return nil, imageError(err)
	}

	history, err := s.loadHistory(ctx, log, userID, characterID)
	if err != nil {
		return nil, err
	}

	images := make([]openai.ImageInput, 0, len(history)+1)
	images = append(images, openai.ImageFromJPEG(candidate, "auto"))
	for _, h := range history {
		images = append(images, openai.ImageFromJPEG(h, "low"))
	}

	mctx, span := observability.Tracer("appraisal").Start(ctx, "appraisal.model")
	span.SetAttributes(attribute.Int("appraisal.history", len(history)))
	raw, err := model.GenerateJSONWithImages(mctx, appraisal.SystemPrompt, appraisal.Prompt(name, len(history)), images, appraisal.SchemaName, appraisal.Schema())
	span.End()
	if err != nil {
		log.Error("Model appraisal failed", "error", err)
		return nil, apierr.Internal("model_failed", fmt.Errorf("appraisal model call failed: %w", err))
	}
	verdict, err := appraisal.ParseVerdict(raw)
	if err != nil {
		return nil, apierr.Internal("model_output_invalid", err)
	}
	decision := appraisal.Decide(verdict, len(history))
	if !decision.Accepted {
		log.Info("Appraisal rejected",
			"history", len(history),
			"valid", decision.Verdict.Valid,
			"similarity", decision.Verdict.SimilarityScore,
		)
		return &AppraisalResult{Success: false, Message: decision.Message}, nil
	}

	key := fmt.Sprintf("%s/%s/%d.jpg", userID, characterID, s.now().UnixMilli())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryGallery, key, bytes.NewReader(candidate)); err != nil {
		return nil, apierr.Internal("upload_failed", err)
	}
	imageURL := s.bucket.GetPublicURL(gcp.BucketCategoryGallery, key)

	sub := &types.CollectionSubmission{
		UserID:         userID,
		CharacterID:    characterID,
		ImageURL:       imageURL,
		StorageKey:     key,
		EstimatedValue: decision.Value,
		PointsAwarded:  decision.Points,
		IsValid:        true,
		AIAnalysis:     datatypes.JSON(decision.Verdict.JSON()),
	}
	row, err := s.progress.ApplyCollection(dbc, sub)
	if err != nil {
		log.Error("Persist appraisal failed; removing upload", "key", key, "error", err)
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if derr := s.bucket.DeleteFile(cleanupCtx, gcp.BucketCategoryGallery, key); derr != nil {
			log.Warn("Delete orphaned upload failed", "key", key, "error", derr)
		}
		return nil, apierr.Internal("save_failed", fmt.Errorf("failed to save collection: %w", err))
	}
	if s.listener != nil && row != nil {
		s.listener.ProgressChanged(ctx, row)
	}

	log.Info("Appraisal accepted", "points", decision.Points, "value", decision.Value, "history", len(history))
	return &AppraisalResult{
		Success:  true,
		Points:   decision.Points,
		Value:    decision.Value,
		ImageURL: imageURL,
	}, nil
}

// loadHistory fetches up to HistoryLimit earlier photos in parallel. A photo that cannot be
// fetched or decoded is dropped; only the survivors count as history.
func (s *appraisalService) loadHistory(ctx context.Context, log *logger.Logger, userID, characterID uuid.UUID) ([][]byte, error) {
	rows, err := s.submissions.ListValidHistory(dbctx.Context{Ctx: ctx}, userID, characterID, repos.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	slots := make([][]byte, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			raw, ferr := s.fetchHistory(gctx, row)
			if ferr != nil {
				log.Warn("History image fetch failed", "submission_id", row.ID, "error", ferr)
				return nil
			}
			img, nerr := imaging.NormalizeJPEG(raw, imaging.HistoryProfile)
			if nerr != nil {
				log.Warn("History image decode failed", "submission_id", row.ID, "error", nerr)
				return nil
			}
			slots[i] = img
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(slots))
	for _, b := range slots {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *appraisalService) fetchHistory(ctx context.Context, row *types.CollectionSubmission) ([]byte, error) {
	key := row.StorageKey
	if key == "" {
		if k, ok := s.bucket.KeyFromPublicURL(gcp.BucketCategoryGallery, row.ImageURL); ok {
			key = k
		}
	}
	if key != "" {
		rc, err := s.bucket.DownloadFile(ctx, gcp.BucketCategoryGallery, key)
		if err == nil {
			defer rc.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(rc); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
		if !errors.Is(err, gcp.ErrObjectNotFound) || row.ImageURL == "" {
			return nil, err
		}
	}
	if row.ImageURL == "" {
		return nil, fmt.Errorf("submission has no image")
	}
	return httpx.FetchBytes(ctx, s.httpClient, row.ImageURL, maxHistoryImageBytes)
}

// imageError maps an imaging failure to a 400 the client can act on.
func imageError(err error) error {
	if errors.Is(err, imaging.ErrImageTooLarge) {
		return apierr.BadRequest("image_too_large", err)
	}
	return apierr.BadRequest("invalid_image", err)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/catalog"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/quiz"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"

	// Uploads younger than this may still be waiting for their database row.
	orphanGrace = time.Hour
)

type QuestionInput struct {
	Level         int    `json:"level" yaml:"level"`
	QuestionText  string `json:"question_text" yaml:"question_text"`
	ImageURL      string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	OptionA       string `json:"option_a" yaml:"option_a"`
	OptionB       string `json:"option_b" yaml:"option_b"`
	OptionC       string `json:"option_c" yaml:"option_c"`
	OptionD       string `json:"option_d" yaml:"option_d"`
	CorrectAnswer string `json:"correct_answer" yaml:"correct_answer"`
	Duration      int    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Points        int    `json:"points,omitempty" yaml:"points,omitempty"`
}

func (in QuestionInput) Validate() error {
	if in.Level < 1 || in.Level > quiz.MaxLevel {
		return fmt.Errorf("level must be between 1 and %d", quiz.MaxLevel)
	}
	if strings.TrimSpace(in.QuestionText) == "" {
		return fmt.Errorf("question_text is required")
	}
	for tag, opt := range map[string]string{"A": in.OptionA, "B": in.OptionB, "C": in.OptionC, "D": in.OptionD} {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option_%s is required", strings.ToLower(tag))
		}
	}
	if catalog.NormalizeOption(in.CorrectAnswer) == "" {
		return fmt.Errorf("correct_answer must be one of A, B, C, D")
	}
	if in.Duration < 0 || in.Points < 0 {
		return fmt.Errorf("duration and points must not be negative")
	}
	return nil
}

func (in QuestionInput) model(characterID uuid.UUID) *types.Question {
	return &types.Question{
		CharacterID:   characterID,
		Level:         in.Level,
		QuestionText:  strings.TrimSpace(in.QuestionText),
		ImageURL:      strings.TrimSpace(in.ImageURL),
		OptionA:       strings.TrimSpace(in.OptionA),
		OptionB:       strings.TrimSpace(in.OptionB),
		OptionC:       strings.TrimSpace(in.OptionC),
		OptionD:       strings.TrimSpace(in.OptionD),
		CorrectAnswer: catalog.NormalizeOption(in.CorrectAnswer),
		Duration:      in.Duration,
		Points:        in.Points,
	}
}

type ResultInput struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	ImageURL    string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// CharacterSeed is one character in a catalog file.
type CharacterSeed struct {
	Name            string          `json:"name" yaml:"name"`
	Series          string          `json:"series" yaml:"series"`
	ThemeColor      string          `json:"theme_color,omitempty" yaml:"theme_color,omitempty"`
	BackgroundImage string          `json:"background_image,omitempty" yaml:"background_image,omitempty"`
	ImageURLs       []string        `json:"image_urls,omitempty" yaml:"image_urls,omitempty"`
	IsFeatured      bool            `json:"is_featured,omitempty" yaml:"is_featured,omitempty"`
	Result          *ResultInput    `json:"result,omitempty" yaml:"result,omitempty"`
	Questions       []QuestionInput `json:"questions,omitempty" yaml:"questions,omitempty"`
}

type CatalogSeed struct {
	Characters []CharacterSeed   `json:"characters" yaml:"characters"`
	Config     map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

type SeedReport struct {
	CharactersCreated int `json:"characters_created"`
	CharactersSkipped int `json:"characters_skipped"`
	QuestionsCreated  int `json:"questions_created"`
}

type CleanupReport struct {
	Scanned  int      `json:"scanned"`
	Orphans  []string `json:"orphans"`
	Deleted  int      `json:"deleted"`
	Failed   int      `json:"failed"`
	DryRun   bool     `json:"dry_run"`
	Retained int      `json:"retained"`
}

type AdminService interface {
	SetConfig(ctx context.Context, key, value string) (*types.AppConfig, error)
	CreateCharacter(ctx context.Context, in CharacterInput) (*types.Character, error)
	UpdateCharacter(ctx context.Context, characterID uuid.UUID, in CharacterPatch) (*types.Character, error)
	// UploadCharacterAsset stores an image in the asset bucket and links it to the character.
	// Replaced objects are left for CleanupStorage.
	UploadCharacterAsset(ctx context.Context, characterID uuid.UUID, up AssetUpload) (*types.Character, error)
	UploadQuestionImage(ctx context.Context, questionID uuid.UUID, raw []byte) (*types.Question, error)
	UpsertResult(ctx context.Context, characterID uuid.UUID, in ResultInput) (*types.CharacterResult, error)
	CreateQuestion(ctx context.Context, characterID uuid.UUID, in QuestionInput) (*types.Question, error)
	UpdateQuestion(ctx context.Context, questionID uuid.UUID, in QuestionInput) (*types.Question, error)
	DeleteQuestion(ctx context.Context, questionID uuid.UUID) error
	// ImportQuestions parses a list of questions in format and inserts them all or none.
	ImportQuestions(ctx context.Context, characterID uuid.UUID, format string, body []byte) (int, error)
	Seed(ctx context.Context, format string, body []byte) (*SeedReport, error)
	CleanupStorage(ctx context.Context, dryRun bool) (*CleanupReport, error)
	SetRole(ctx context.Context, userID uuid.UUID, role string) error
}

type adminService struct {
	log         *logger.Logger
	characters  repos.CharacterRepo
	questions   repos.QuestionRepo
	submissions repos.SubmissionRepo
	profiles    repos.ProfileRepo
	config      repos.AppConfigRepo
	bucket      gcp.BucketService
	now         func() time.Time
}

func NewAdminService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	questions repos.QuestionRepo,
	submissions repos.SubmissionRepo,
	profiles repos.ProfileRepo,
	config repos.AppConfigRepo,
	bucket gcp.BucketService,
) AdminService {
	return &adminService{
		log:         log.With("service", "AdminService"),
		characters:  characters,
		questions:   questions,
		submissions: submissions,
		profiles:    profiles,
		config:      config,
		bucket:      bucket,
		now:         time.Now,
	}
}

func (s *adminService) SetConfig(ctx context.Context, key, value string) (*types.AppConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apierr.BadRequest("invalid_key", fmt.Errorf("config key is required"))
	}
	return s.config.Set(dbctx.Context{Ctx: ctx}, key, value)
}

func (s *adminService) requireCharacter(ctx context.Context, characterID uuid.UUID) error {
	ch, err := s.characters.GetByID(dbctx.Context{Ctx: ctx}, characterID)
	if err != nil {
		return err
	}
	if ch == nil {
		return apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	return nil
}

func (s *adminService) UpsertResult(ctx context.Context, characterID uuid.UUID, in ResultInput) (*types.CharacterResult, error) {
	if err := s.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	row := &types.CharacterResult{
		CharacterID: characterID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		UpdatedAt:   s.now(),
	}
	if err := s.characters.UpsertResult(dbctx.Context{Ctx: ctx}, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *adminService) CreateQuestion(ctx context.Context, characterID uuid.UUID, in QuestionInput) (*types.Question, error) {
	if err := in.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_question", err)
	}
	if err := s.requireCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	created, err := s.questions.Create(dbctx.Context{Ctx: ctx}, []*types.Question{in.model(characterID)})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *adminService) UpdateQuestion(ctx context.Context, questionID uuid.UUID, in QuestionInput) (*types.Question, error) {
	if err := in.Validate(); err != nil {
		return nil, apierr.BadRequest("invalid_question", err)
	}
	m := in.model(uuid.Nil)
	ok, err := s.questions.UpdateFields(dbctx.Context{Ctx: ctx}, questionID, map[string]interface{}{
		"level":          m.Level,
		"question_text":  m.QuestionText,
		"image_url":      m.ImageURL,
		"option_a":       m.OptionA,
		"option_b":       m.OptionB,
		"option_c":       m.OptionC,
		"option_d":       m.OptionD,
		"correct_answer": m.CorrectAnswer,
		"duration":       m.Duration,
		"points":         m.Points,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.NotFound("question_not_found", apierr.ErrNotFound)
	}
	return s.questions.GetByID(dbctx.Context{Ctx: ctx}, questionID)
}

func (s *adminService) DeleteQuestion(ctx context.Context, questionID uuid.UUID) error {
	ok, err := s.questions.Delete(dbctx.Context{Ctx: ctx}, questionID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NotFound("question_not_found", apierr.ErrNotFound)
	}
	return nil
}

func decode(format string, body []byte, out any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatYAML, "yml":
		return yaml.Unmarshal(body, out)
	case FormatJSON, "":
		return json.Unmarshal(body, out)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func (s *adminService) ImportQuestions(ctx context.Context, characterID uuid.UUID, format string, body []byte) (int, error) {
	if err := s.requireCharacter(ctx, characterID); err != nil {
		return 0, err
	}
	var wrapper struct {
		Questions []QuestionInput `json:"questions" yaml:"questions"`
	}
	if err := decode(format, body, &wrapper); err != nil {
		// A bare list is accepted too.
		if lerr := decode(format, body, &wrapper.Questions); lerr != nil {
			return 0, apierr.BadRequest("invalid_body", err)
		}
	}
	if len(wrapper.Questions) == 0 {
		return 0, apierr.BadRequest("empty_import", fmt.Errorf("no questions in body"))
	}
	rows := make([]*types.Question, 0, len(wrapper.Questions))
	for i, in := range wrapper.Questions {
		if err := in.Validate(); err != nil {
			return 0, apierr.BadRequest("invalid_question", fmt.Errorf("question %d: %w", i+1, err))
		}
		rows = append(rows, in.model(characterID))
	}
	created, err := s.questions.Create(dbctx.Context{Ctx: ctx}, rows)
	if err != nil {
		return 0, err
	}
	s.log.Info("Imported questions", "character_id", characterID, "count", len(created))
	return len(created), nil
}

// Seed creates characters that do not exist yet (matched by name) with their questions
// and result card. Existing characters are left alone.
func (s *adminService) Seed(ctx context.Context, format string, body []byte) (*SeedReport, error) {
	var seed CatalogSeed
	if err := decode(format, body, &seed); err != nil {
		return nil, apierr.BadRequest("invalid_body", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := s.characters.List(dbc)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = struct{}{}
	}

	report := &SeedReport{}
	for i, cs := range seed.Characters {
		name := strings.TrimSpace(cs.Name)
		if name == "" {
			return report, apierr.BadRequest("invalid_character", fmt.Errorf("character %d: name is required", i+1))
		}
		if _, ok := byName[strings.ToLower(name)]; ok {
			report.CharactersSkipped++
			continue
		}
		in := CharacterInput{
			Name:            name,
			Series:          cs.Series,
			ThemeColor:      cs.ThemeColor,
			BackgroundImage: cs.BackgroundImage,
			ImageURLs:       cs.ImageURLs,
			IsFeatured:      cs.IsFeatured,
		}
		if err := in.Validate(); err != nil {
			return report, apierr.BadRequest("invalid_character", fmt.Errorf("character %d: %w", i+1, err))
		}
		for j, q := range cs.Questions {
			if err := q.Validate(); err != nil {
				return report, apierr.BadRequest("invalid_question", fmt.Errorf("%s question %d: %w", name, j+1, err))
			}
		}
		ch := in.model()
		if _, err := s.characters.Create(dbc, []*types.Character{ch}); err != nil {
			return report, err
		}
		byName[strings.ToLower(name)] = struct{}{}
		report.CharactersCreated++

		if len(cs.Questions) > 0 {
			rows := make([]*types.Question, 0, len(cs.Questions))
			for _, q := range cs.Questions {
				rows = append(rows, q.model(ch.ID))
			}
			if _, err := s.questions.Create(dbc, rows); err != nil {
				return report, err
			}
			report.QuestionsCreated += len(rows)
		}
		if cs.Result != nil {
			if _, err := s.UpsertResult(ctx, ch.ID, *cs.Result); err != nil {
				return report, err
			}
		}
	}
	for k, v := range seed.Config {
		if _, err := s.config.Set(dbc, k, v); err != nil {
			return report, err
		}
	}
	s.log.Info("Catalog seeded",
		"created", report.CharactersCreated,
		"skipped", report.CharactersSkipped,
		"questions", report.QuestionsCreated,
	)
	return report, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// CleanupStorage deletes gallery objects no user_collections row references and asset
// objects no character, result card or question references. Orphans are reported as
// "<bucket>/<key>". A bucket that is not configured is skipped.
func (s *adminService) CleanupStorage(ctx context.Context, dryRun bool) (*CleanupReport, error) {
	dbc := dbctx.Context{Ctx: ctx}
	gallery, err := s.submissions.ReferencedStorageKeys(dbc)
	if err != nil {
		return nil, err
	}
	assets, err := s.referencedAssetKeys(dbc)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{DryRun: dryRun, Orphans: []string{}}
	type orphan struct {
		category gcp.BucketCategory
		key      string
	}
	var orphans []orphan
	cutoff := s.now().Add(-orphanGrace)
	for _, sweep := range []struct {
		category   gcp.BucketCategory
		referenced map[string]struct{}
	}{
		{gcp.BucketCategoryGallery, gallery},
		{gcp.BucketCategoryAsset, assets},
	} {
		keys, err := s.bucket.ListKeys(ctx, sweep.category, "")
		if errors.Is(err, gcp.ErrBucketNotConfigured) {
			s.log.Info("Storage cleanup skipped bucket", "bucket", sweep.category, "reason", err.Error())
			continue
		}
		if err != nil {
			return nil, err
		}
		report.Scanned += len(keys)
		for _, key := range keys {
			if _, ok := sweep.referenced[key]; ok {
				report.Retained++
				continue
			}
			if ts, ok := uploadTime(key); ok && ts.After(cutoff) {
				report.Retained++
				continue
			}
			orphans = append(orphans, orphan{sweep.category, key})
			report.Orphans = append(report.Orphans, string(sweep.category)+"/"+key)
		}
	}
	if dryRun {
		return report, nil
	}
	for _, o := range orphans {
		if err := s.bucket.DeleteFile(ctx, o.category, o.key); err != nil {
			s.log.Warn("Delete orphan failed", "bucket", o.category, "key", o.key, "error", err)
			report.Failed++
			continue
		}
		report.Deleted++
	}
	s.log.Info("Storage cleanup finished",
		"scanned", report.Scanned,
		"orphans", len(report.Orphans),
		"deleted", report.Deleted,
		"failed", report.Failed,
	)
	return report, nil
}

// referencedAssetKeys maps every asset URL still stored on a row back to its bucket key.
// URLs pointing elsewhere are ignored.
func (s *adminService) referencedAssetKeys(dbc dbctx.Context) (map[string]struct{}, error) {
	urls, err := s.characters.AssetURLs(dbc)
	if err != nil {
		return nil, err
	}
	qurls, err := s.questions.ImageURLs(dbc)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(urls)+len(qurls))
	for _, u := range append(urls, qurls...) {
		if key, ok := s.bucket.KeyFromPublicURL(gcp.BucketCategoryAsset, u); ok {
			out[key] = struct{}{}
		}
	}
	return out, nil
}

// uploadTime reads the unix-millis file name gallery and asset keys are written with.
func uploadTime(key string) (time.Time, bool) {
	base := strings.TrimSuffix(path.Base(key), path.Ext(key))
	ms, err := strconv.ParseInt(base, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (s *adminService) SetRole(ctx context.Context, userID uuid.UUID, role string) error {
	switch role {
	case types.RoleUser, types.RoleAdmin:
	default:
		return apierr.BadRequest("invalid_role", fmt.Errorf("role must be %q or %q", types.RoleUser, types.RoleAdmin))
	}
	if userID == uuid.Nil {
		return apierr.BadRequest("invalid_user_id", fmt.Errorf("missing user id"))
	}
	return s.profiles.SetRole(dbctx.Context{Ctx: ctx}, userID, role)
}

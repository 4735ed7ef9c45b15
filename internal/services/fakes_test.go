package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/progress"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/redisx"
)

type fakeCharacters struct {
	repos.CharacterRepo
	mu      sync.Mutex
	rows    map[uuid.UUID]*types.Character
	results map[uuid.UUID]*types.CharacterResult
	updates map[uuid.UUID]map[string]interface{}
}

func newFakeCharacters(chars ...*types.Character) *fakeCharacters {
	f := &fakeCharacters{
		rows:    map[uuid.UUID]*types.Character{},
		results: map[uuid.UUID]*types.CharacterResult{},
		updates: map[uuid.UUID]map[string]interface{}{},
	}
	for _, c := range chars {
		f.rows[c.ID] = c
	}
	return f
}

func (f *fakeCharacters) List(dbc dbctx.Context) ([]*types.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Character, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFeatured != out[j].IsFeatured {
			return out[i].IsFeatured
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeCharacters) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeCharacters) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Character{}
	for _, id := range ids {
		if c := f.rows[id]; c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCharacters) Create(dbc dbctx.Context, characters []*types.Character) ([]*types.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range characters {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		f.rows[c.ID] = c
	}
	return characters, nil
}

func (f *fakeCharacters) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = updates
	c := f.rows[id]
	if c == nil {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "name":
			c.Name = v.(string)
		case "series":
			c.Series = v.(string)
		case "theme_color":
			c.ThemeColor = v.(string)
		case "background_image":
			c.BackgroundImage = v.(string)
		case "image_urls":
			c.ImageURLs = v.(datatypes.JSON)
		case "card_images":
			c.CardImages = v.(datatypes.JSON)
		case "visual_assets":
			c.VisualAssets = v.(datatypes.JSON)
		case "is_featured":
			c.IsFeatured = v.(bool)
		}
	}
	return nil
}

func (f *fakeCharacters) AssetURLs(dbc dbctx.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, c := range f.rows {
		if c.BackgroundImage != "" {
			out = append(out, c.BackgroundImage)
		}
		out = append(out, decodeStrings(c.ImageURLs)...)
		out = append(out, decodeStrings(c.CardImages)...)
		visual := map[string]string{}
		_ = json.Unmarshal(c.VisualAssets, &visual)
		for _, u := range visual {
			out = append(out, u)
		}
	}
	for _, r := range f.results {
		if r.ImageURL != "" {
			out = append(out, r.ImageURL)
		}
	}
	return out, nil
}

func (f *fakeCharacters) GetResult(dbc dbctx.Context, characterID uuid.UUID) (*types.CharacterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[characterID], nil
}

func (f *fakeCharacters) UpsertResult(dbc dbctx.Context, result *types.CharacterResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *result
	f.results[result.CharacterID] = &cp
	return nil
}

type fakeQuestions struct {
	repos.QuestionRepo
	mu   sync.Mutex
	rows []*types.Question
}

func (f *fakeQuestions) ListByCharacterLevel(dbc dbctx.Context, characterID uuid.UUID, level int) ([]*types.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Question{}
	for _, q := range f.rows {
		if q.CharacterID == characterID && q.Level == level {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestions) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.rows {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestions) CountByCharacter(dbc dbctx.Context, characterID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, q := range f.rows {
		if q.CharacterID == characterID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuestions) CountByLevel(dbc dbctx.Context, characterID uuid.UUID) (map[int]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int]int64{}
	for _, q := range f.rows {
		if q.CharacterID == characterID {
			out[q.Level]++
		}
	}
	return out, nil
}

func (f *fakeQuestions) CountAll(dbc dbctx.Context) (map[uuid.UUID]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uuid.UUID]int64{}
	for _, q := range f.rows {
		out[q.CharacterID]++
	}
	return out, nil
}

func (f *fakeQuestions) Create(dbc dbctx.Context, questions []*types.Question) ([]*types.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range questions {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		f.rows = append(f.rows, q)
	}
	return questions, nil
}

func (f *fakeQuestions) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.rows {
		if q.ID == id {
			if v, ok := updates["question_text"].(string); ok {
				q.QuestionText = v
			}
			if v, ok := updates["correct_answer"].(string); ok {
				q.CorrectAnswer = v
			}
			if v, ok := updates["image_url"].(string); ok {
				q.ImageURL = v
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQuestions) ImageURLs(dbc dbctx.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, q := range f.rows {
		if q.ImageURL != "" {
			out = append(out, q.ImageURL)
		}
	}
	return out, nil
}

func (f *fakeQuestions) Delete(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, q := range f.rows {
		if q.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// fakeProgress mimics the repository's idempotent crediting in memory.
type fakeProgress struct {
	repos.ProgressRepo
	mu         sync.Mutex
	rows       map[[2]uuid.UUID]*types.UserProgress
	answered   map[[2]uuid.UUID]uuid.UUID
	applyErr   error
	applied    int
	boardCalls int
	subs       []*types.CollectionSubmission
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{
		rows:     map[[2]uuid.UUID]*types.UserProgress{},
		answered: map[[2]uuid.UUID]uuid.UUID{},
	}
}

func (f *fakeProgress) Get(dbc dbctx.Context, userID, characterID uuid.UUID) (*types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.rows[[2]uuid.UUID{userID, characterID}]; p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeProgress) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.UserProgress{}
	for k, p := range f.rows {
		if k[0] == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProgress) AnsweredQuestionIDs(dbc dbctx.Context, userID, characterID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []uuid.UUID{}
	for k, c := range f.answered {
		if k[0] == userID && c == characterID {
			out = append(out, k[1])
		}
	}
	return out, nil
}

func (f *fakeProgress) CountAnswered(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error) {
	ids, _ := f.AnsweredQuestionIDs(dbc, userID, characterID)
	return int64(len(ids)), nil
}

func (f *fakeProgress) row(userID, characterID uuid.UUID) *types.UserProgress {
	k := [2]uuid.UUID{userID, characterID}
	p := f.rows[k]
	if p == nil {
		p = &types.UserProgress{ID: uuid.New(), UserID: userID, CharacterID: characterID, CreatedAt: time.Now()}
		f.rows[k] = p
	}
	return p
}

func (f *fakeProgress) ApplyQuizResult(dbc dbctx.Context, userID, characterID uuid.UUID, level int, credits []repos.QuizCredit) (int, *types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return 0, nil, f.applyErr
	}
	f.applied++
	awarded := 0
	for _, c := range credits {
		k := [2]uuid.UUID{userID, c.QuestionID}
		if _, ok := f.answered[k]; ok {
			continue
		}
		f.answered[k] = characterID
		awarded += c.Points
	}
	p := f.row(userID, characterID)
	p.QuizPoints += awarded
	if level > p.LevelCleared {
		p.LevelCleared = level
	}
	p.TotalPointsAccumulated = p.QuizPoints + p.CollectionPoints
	p.UpdatedAt = time.Now()
	cp := *p
	return awarded, &cp, nil
}

func (f *fakeProgress) ApplyCollection(dbc dbctx.Context, submission *types.CollectionSubmission) (*types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.subs = append(f.subs, submission)
	p := f.row(submission.UserID, submission.CharacterID)
	if submission.IsValid {
		p.CollectionPoints += submission.PointsAwarded
	}
	p.TotalPointsAccumulated = p.QuizPoints + p.CollectionPoints
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (f *fakeProgress) sorted(characterID uuid.UUID) []*types.UserProgress {
	out := []*types.UserProgress{}
	for k, p := range f.rows {
		if k[1] == characterID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPointsAccumulated != out[j].TotalPointsAccumulated {
			return out[i].TotalPointsAccumulated > out[j].TotalPointsAccumulated
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (f *fakeProgress) Board(dbc dbctx.Context, characterID uuid.UUID, limit int) ([]*types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boardCalls++
	out := f.sorted(characterID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeProgress) ListForUsers(dbc dbctx.Context, characterID uuid.UUID, userIDs []uuid.UUID) ([]*types.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.UserProgress{}
	for _, u := range userIDs {
		if p, ok := f.rows[[2]uuid.UUID{u, characterID}]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProgress) CountAbove(dbc dbctx.Context, characterID uuid.UUID, total int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, p := range f.rows {
		if k[1] == characterID && p.TotalPointsAccumulated > total {
			n++
		}
	}
	return n, nil
}

func (f *fakeProgress) CharacterTotals(dbc dbctx.Context) ([]progress.CharacterTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agg := map[uuid.UUID]*progress.CharacterTotal{}
	for k, p := range f.rows {
		t := agg[k[1]]
		if t == nil {
			t = &progress.CharacterTotal{CharacterID: k[1]}
			agg[k[1]] = t
		}
		t.Total += int64(p.TotalPointsAccumulated)
		t.Players++
	}
	out := []progress.CharacterTotal{}
	for _, t := range agg {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeProgress) TopPerCharacter(dbc dbctx.Context, n int) ([]progress.RankedProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chars := map[uuid.UUID]struct{}{}
	for k := range f.rows {
		chars[k[1]] = struct{}{}
	}
	out := []progress.RankedProgress{}
	for c := range chars {
		for i, p := range f.sorted(c) {
			if i >= n {
				break
			}
			out = append(out, progress.RankedProgress{UserProgress: *p, Position: i + 1})
		}
	}
	return out, nil
}

func (f *fakeProgress) Scores(dbc dbctx.Context) ([]progress.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []progress.Score{}
	for _, p := range f.rows {
		out = append(out, progress.Score{UserID: p.UserID, CharacterID: p.CharacterID, Total: p.TotalPointsAccumulated, UpdatedAt: p.UpdatedAt})
	}
	return out, nil
}

type fakeJobs struct {
	repos.JobRunRepo
	mu      sync.Mutex
	created []*types.JobRun
	err     error
}

func (f *fakeJobs) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, jobs...)
	return jobs, nil
}

type fakeSubmissions struct {
	repos.SubmissionRepo
	history []*types.CollectionSubmission
	byUser  []*types.CollectionSubmission
	keys    map[string]struct{}
}

func (f *fakeSubmissions) ListValidHistory(dbc dbctx.Context, userID, characterID uuid.UUID, limit int) ([]*types.CollectionSubmission, error) {
	out := f.history
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSubmissions) ListValidByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.CollectionSubmission, error) {
	return f.byUser, nil
}

func (f *fakeSubmissions) CountValid(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error) {
	return int64(len(f.history)), nil
}

func (f *fakeSubmissions) ReferencedStorageKeys(dbc dbctx.Context) (map[string]struct{}, error) {
	if f.keys == nil {
		return map[string]struct{}{}, nil
	}
	return f.keys, nil
}

type fakeProfiles struct {
	repos.ProfileRepo
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Profile
	err  error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: map[uuid.UUID]*types.Profile{}}
}

func (f *fakeProfiles) Get(dbc dbctx.Context, id uuid.UUID) (*types.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.rows[id]; p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeProfiles) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Profile{}
	for _, id := range ids {
		if p := f.rows[id]; p != nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProfiles) Ensure(dbc dbctx.Context, id uuid.UUID) (*types.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.rows[id]
	if p == nil {
		p = &types.Profile{ID: id, Role: types.RoleUser}
		f.rows[id] = p
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*types.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := f.Ensure(dbc, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.rows[id]
	for k, v := range updates {
		switch k {
		case "username":
			if s, ok := v.(*string); ok {
				p.Username = s
			}
		case "name":
			p.Name, _ = v.(string)
		case "bio":
			p.Bio, _ = v.(string)
		case "avatar_url":
			p.AvatarURL, _ = v.(string)
		case "instagram":
			p.Instagram, _ = v.(string)
		case "tiktok":
			p.TikTok, _ = v.(string)
		case "twitter":
			p.Twitter, _ = v.(string)
		}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) SetRole(dbc dbctx.Context, id uuid.UUID, role string) error {
	if _, err := f.Ensure(dbc, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Role = role
	return nil
}

type fakeAppConfig struct {
	repos.AppConfigRepo
	mu   sync.Mutex
	rows map[string]string
}

func (f *fakeAppConfig) Get(dbc dbctx.Context, key string) (*types.AppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rows[key]
	if !ok {
		return nil, nil
	}
	return &types.AppConfig{Key: key, Value: v}, nil
}

func (f *fakeAppConfig) Set(dbc dbctx.Context, key, value string) (*types.AppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = map[string]string{}
	}
	f.rows[key] = value
	return &types.AppConfig{Key: key, Value: value, UpdatedAt: time.Now()}, nil
}

type fakeBucket struct {
	mu           sync.Mutex
	objects      map[string][]byte
	deleted      []string
	uploadErr    error
	unconfigured gcp.BucketCategory
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func bucketKey(c gcp.BucketCategory, key string) string { return string(c) + "/" + key }

func (b *fakeBucket) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[bucketKey(category, key)] = raw
	return nil
}

func (b *fakeBucket) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, bucketKey(category, key))
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[bucketKey(category, key)]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(string(raw))), nil
}

func (b *fakeBucket) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if category == b.unconfigured {
		return nil, fmt.Errorf("%w: missing env var for %s", gcp.ErrBucketNotConfigured, category)
	}
	out := []string{}
	p := string(category) + "/" + prefix
	for k := range b.objects {
		if strings.HasPrefix(k, p) {
			out = append(out, strings.TrimPrefix(k, string(category)+"/"))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *fakeBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + string(category) + "/" + key
}

func (b *fakeBucket) KeyFromPublicURL(category gcp.BucketCategory, publicURL string) (string, bool) {
	prefix := "https://cdn.test/" + string(category) + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(publicURL, prefix), true
}

// fakeBoard is an in-memory redisx.BoardStore.
type fakeBoard struct {
	mu     sync.Mutex
	scores map[uuid.UUID]map[uuid.UUID]int
	err    error
}

func newFakeBoard() *fakeBoard { return &fakeBoard{scores: map[uuid.UUID]map[uuid.UUID]int{}} }

func (b *fakeBoard) SetScore(ctx context.Context, characterID, userID uuid.UUID, total int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.scores[characterID] == nil {
		b.scores[characterID] = map[uuid.UUID]int{}
	}
	b.scores[characterID][userID] = total
	return nil
}

func (b *fakeBoard) CountAbove(ctx context.Context, characterID uuid.UUID, total int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	var n int64
	for _, t := range b.scores[characterID] {
		if t > total {
			n++
		}
	}
	return n, nil
}

func (b *fakeBoard) Top(ctx context.Context, characterID uuid.UUID, limit int) ([]redisx.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := []redisx.Member{}
	for u, t := range b.scores[characterID] {
		out = append(out, redisx.Member{UserID: u, Total: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *fakeBoard) Replace(ctx context.Context, characterID uuid.UUID, members []redisx.Member) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	m := map[uuid.UUID]int{}
	for _, x := range members {
		m[x.UserID] = x.Total
	}
	b.scores[characterID] = m
	return nil
}

func dbcBG() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

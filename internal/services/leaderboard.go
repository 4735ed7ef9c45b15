package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/leaderboard"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/quiz"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/redisx"
)

const (
	DefaultBoardLimit = 50
	MaxBoardLimit     = 200
	globalTopN        = 3
)

type BoardRow struct {
	Position     int       `json:"position"`
	UserID       uuid.UUID `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Total        int       `json:"total"`
	LevelCleared int       `json:"level_cleared"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CharacterBoardView struct {
	CharacterID   uuid.UUID  `json:"character_id"`
	CharacterName string     `json:"character_name"`
	Entries       []BoardRow `json:"entries"`
}

type StandingView struct {
	CharacterID    uuid.UUID           `json:"character_id"`
	Rank           int                 `json:"rank"`
	Title          string              `json:"title"`
	Completion     float64             `json:"completion"`
	Answered       int64               `json:"answered"`
	TotalQuestions int64               `json:"total_questions"`
	Progress       *types.UserProgress `json:"progress,omitempty"`
	// LevelsUnlocked[i] is true when level i+1 may be played.
	LevelsUnlocked []bool `json:"levels_unlocked"`
}

type CharacterSummary struct {
	CharacterID   uuid.UUID  `json:"character_id"`
	CharacterName string     `json:"character_name"`
	Total         int64      `json:"total"`
	Players       int64      `json:"players"`
	Holder        *BoardRow  `json:"holder,omitempty"`
	Top           []BoardRow `json:"top"`
}

type GlobalView struct {
	Faction    *CharacterSummary  `json:"faction,omitempty"`
	Characters []CharacterSummary `json:"characters"`
}

type LeaderboardService interface {
	ProgressListener
	CharacterBoard(ctx context.Context, characterID uuid.UUID, limit int) (*CharacterBoardView, error)
	MyStanding(ctx context.Context, userID, characterID uuid.UUID) (*StandingView, error)
	Global(ctx context.Context) (*GlobalView, error)
	Export(ctx context.Context, w io.Writer) error
	// Resync rebuilds the cache from user_progress. It returns the number of boards written.
	Resync(ctx context.Context) (int, error)
}

type leaderboardService struct {
	log        *logger.Logger
	characters repos.CharacterRepo
	questions  repos.QuestionRepo
	progress   repos.ProgressRepo
	profiles   repos.ProfileRepo
	// cache is optional; nil means every read goes to SQL.
	cache redisx.BoardStore
}

func NewLeaderboardService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	questions repos.QuestionRepo,
	progress repos.ProgressRepo,
	profiles repos.ProfileRepo,
	cache redisx.BoardStore,
) LeaderboardService {
	return &leaderboardService{
		log:        log.With("service", "LeaderboardService"),
		characters: characters,
		questions:  questions,
		progress:   progress,
		profiles:   profiles,
		cache:      cache,
	}
}

func (s *leaderboardService) ProgressChanged(ctx context.Context, row *types.UserProgress) {
	if s.cache == nil || row == nil {
		return
	}
	if err := s.cache.SetScore(ctx, row.CharacterID, row.UserID, row.TotalPointsAccumulated); err != nil {
		s.log.Warn("Leaderboard cache update failed", "character_id", row.CharacterID, "user_id", row.UserID, "error", err)
	}
}

func (s *leaderboardService) countAbove(ctx context.Context, characterID uuid.UUID, total int) (int64, error) {
	if s.cache != nil {
		n, err := s.cache.CountAbove(ctx, characterID, total)
		if err == nil {
			return n, nil
		}
		s.log.Warn("Leaderboard cache read failed; using SQL", "character_id", characterID, "error", err)
	}
	return s.progress.CountAbove(dbctx.Context{Ctx: ctx}, characterID, total)
}

func (s *leaderboardService) character(ctx context.Context, characterID uuid.UUID) (*types.Character, error) {
	ch, err := s.characters.GetByID(dbctx.Context{Ctx: ctx}, characterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}
	return ch, nil
}

func (s *leaderboardService) CharacterBoard(ctx context.Context, characterID uuid.UUID, limit int) (*CharacterBoardView, error) {
	if limit <= 0 {
		limit = DefaultBoardLimit
	}
	if limit > MaxBoardLimit {
		limit = MaxBoardLimit
	}
	ch, err := s.character(ctx, characterID)
	if err != nil {
		return nil, err
	}
	rows := s.boardFromCache(ctx, characterID, limit)
	if rows == nil {
		rows, err = s.progress.Board(dbctx.Context{Ctx: ctx}, characterID, limit)
		if err != nil {
			return nil, err
		}
	}
	entries, err := s.boardRows(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &CharacterBoardView{CharacterID: ch.ID, CharacterName: ch.Name, Entries: entries}, nil
}

// boardFromCache reads the top of the redis board and loads the matching progress rows.
// It returns nil, sending the caller to SQL, when the cache is empty, stale or incomplete,
// or when the cut at limit splits a tie (redis cannot apply the updated_at tie-break).
func (s *leaderboardService) boardFromCache(ctx context.Context, characterID uuid.UUID, limit int) []*types.UserProgress {
	if s.cache == nil {
		return nil
	}
	log := s.log.With("character_id", characterID)
	top, err := s.cache.Top(ctx, characterID, limit)
	if err != nil {
		log.Warn("Leaderboard cache read failed; using SQL", "error", err)
		return nil
	}
	if len(top) == 0 {
		return nil
	}

	cached := make(map[uuid.UUID]int, len(top))
	ids := make([]uuid.UUID, 0, len(top))
	for _, m := range top {
		cached[m.UserID] = m.Total
		ids = append(ids, m.UserID)
	}
	rows, err := s.progress.ListForUsers(dbctx.Context{Ctx: ctx}, characterID, ids)
	if err != nil {
		log.Warn("Loading cached board rows failed; using SQL", "error", err)
		return nil
	}
	if len(rows) != len(top) {
		return nil
	}
	entries := make([]leaderboard.Entry, 0, len(rows))
	byUser := make(map[uuid.UUID]*types.UserProgress, len(rows))
	for _, r := range rows {
		if total, ok := cached[r.UserID]; !ok || total != r.TotalPointsAccumulated {
			log.Debug("Leaderboard cache is stale; using SQL", "user_id", r.UserID)
			return nil
		}
		byUser[r.UserID] = r
		entries = append(entries, leaderboard.Entry{UserID: r.UserID, Total: r.TotalPointsAccumulated, UpdatedAt: r.UpdatedAt})
	}
	// Every cached member matched its row, so equal counts at or above the last cached
	// total mean the cache holds exactly the rows SQL would return.
	cut := top[len(top)-1].Total
	n, err := s.progress.CountAbove(dbctx.Context{Ctx: ctx}, characterID, cut-1)
	if err != nil || n != int64(len(top)) {
		return nil
	}
	leaderboard.Order(entries)
	out := make([]*types.UserProgress, 0, len(entries))
	for _, e := range entries {
		out = append(out, byUser[e.UserID])
	}
	return out
}

// boardRows converts rows already in board order into ranked, named rows.
func (s *leaderboardService) boardRows(ctx context.Context, rows []*types.UserProgress) ([]BoardRow, error) {
	entries := make([]leaderboard.Entry, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, leaderboard.Entry{UserID: r.UserID, Total: r.TotalPointsAccumulated, UpdatedAt: r.UpdatedAt})
		ids = append(ids, r.UserID)
	}
	ranks := leaderboard.Ranks(entries)
	names, err := s.profileIndex(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]BoardRow, 0, len(rows))
	for i, r := range rows {
		br := BoardRow{
			Position:     ranks[i],
			UserID:       r.UserID,
			Total:        r.TotalPointsAccumulated,
			LevelCleared: r.LevelCleared,
			UpdatedAt:    r.UpdatedAt,
		}
		if p := names[r.UserID]; p != nil {
			br.DisplayName = p.DisplayName()
			br.AvatarURL = p.AvatarURL
		} else {
			br.DisplayName = types.Profile{ID: r.UserID}.DisplayName()
		}
		out = append(out, br)
	}
	return out, nil
}

func (s *leaderboardService) profileIndex(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Profile, error) {
	out := map[uuid.UUID]*types.Profile{}
	if len(ids) == 0 || s.profiles == nil {
		return out, nil
	}
	rows, err := s.profiles.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (s *leaderboardService) MyStanding(ctx context.Context, userID, characterID uuid.UUID) (*StandingView, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apierr.ErrUnauthorized)
	}
	ch, err := s.character(ctx, characterID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	prog, err := s.progress.Get(dbc, userID, characterID)
	if err != nil {
		return nil, err
	}
	answered, err := s.progress.CountAnswered(dbc, userID, characterID)
	if err != nil {
		return nil, err
	}
	totalQ, err := s.questions.CountByCharacter(dbc, characterID)
	if err != nil {
		return nil, err
	}

	myTotal, cleared := 0, 0
	if prog != nil {
		myTotal = prog.TotalPointsAccumulated
		cleared = prog.LevelCleared
	}
	above, err := s.countAbove(ctx, characterID, myTotal)
	if err != nil {
		return nil, err
	}
	completion := leaderboard.Completion(answered, totalQ)
	rank := int(above) + 1

	unlocked := make([]bool, quiz.MaxLevel)
	for i := range unlocked {
		unlocked[i] = quiz.LevelUnlocked(i+1, cleared)
	}
	return &StandingView{
		CharacterID: characterID,
		Rank:        rank,
		Title: leaderboard.Title(leaderboard.TitleInput{
			Rank:           rank,
			Completion:     completion,
			CharacterName:  ch.Name,
			LevelCleared:   cleared,
			RequireCleared: true,
			MaxLevel:       quiz.MaxLevel,
		}),
		Completion:     completion,
		Answered:       answered,
		TotalQuestions: totalQ,
		Progress:       prog,
		LevelsUnlocked: unlocked,
	}, nil
}

func (s *leaderboardService) Global(ctx context.Context) (*GlobalView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	chars, err := s.characters.List(dbc)
	if err != nil {
		return nil, err
	}
	totals, err := s.progress.CharacterTotals(dbc)
	if err != nil {
		return nil, err
	}
	top, err := s.progress.TopPerCharacter(dbc, globalTopN)
	if err != nil {
		return nil, err
	}

	byChar := map[uuid.UUID][]*types.UserProgress{}
	for i := range top {
		row := top[i].UserProgress
		byChar[row.CharacterID] = append(byChar[row.CharacterID], &row)
	}
	totalsByChar := map[uuid.UUID]repos.CharacterTotal{}
	for _, t := range totals {
		totalsByChar[t.CharacterID] = t
	}

	view := &GlobalView{Characters: make([]CharacterSummary, 0, len(chars))}
	factionRows := make([]leaderboard.FactionRow, 0, len(chars))
	for _, ch := range chars {
		rows := byChar[ch.ID]
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.TotalPointsAccumulated != b.TotalPointsAccumulated {
				return a.TotalPointsAccumulated > b.TotalPointsAccumulated
			}
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
			return a.UserID.String() < b.UserID.String()
		})
		entries, err := s.boardRows(ctx, rows)
		if err != nil {
			return nil, err
		}
		t := totalsByChar[ch.ID]
		sum := CharacterSummary{
			CharacterID:   ch.ID,
			CharacterName: ch.Name,
			Total:         t.Total,
			Players:       t.Players,
			Top:           entries,
		}
		if len(entries) > 0 {
			h := entries[0]
			sum.Holder = &h
		}
		view.Characters = append(view.Characters, sum)
		factionRows = append(factionRows, leaderboard.FactionRow{
			CharacterID:   ch.ID,
			CharacterName: ch.Name,
			Total:         t.Total,
			Players:       t.Players,
		})
	}
	if f, ok := leaderboard.Faction(factionRows); ok {
		for i := range view.Characters {
			if view.Characters[i].CharacterID == f.CharacterID {
				c := view.Characters[i]
				view.Faction = &c
				break
			}
		}
	}
	return view, nil
}

func (s *leaderboardService) Resync(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	scores, err := s.progress.Scores(dbctx.Context{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	boards := map[uuid.UUID][]redisx.Member{}
	for _, sc := range scores {
		boards[sc.CharacterID] = append(boards[sc.CharacterID], redisx.Member{UserID: sc.UserID, Total: sc.Total})
	}
	chars, err := s.characters.List(dbctx.Context{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	for _, ch := range chars {
		if _, ok := boards[ch.ID]; !ok {
			boards[ch.ID] = nil
		}
	}
	n := 0
	for charID, members := range boards {
		if err := s.cache.Replace(ctx, charID, members); err != nil {
			return n, fmt.Errorf("replace board %s: %w", charID, err)
		}
		n++
	}
	s.log.Info("Leaderboard cache resynced", "boards", n, "scores", len(scores))
	return n, nil
}

// Export writes an xlsx workbook: one summary sheet and one ranked sheet per character.
func (s *leaderboardService) Export(ctx context.Context, w io.Writer) error {
	dbc := dbctx.Context{Ctx: ctx}
	chars, err := s.characters.List(dbc)
	if err != nil {
		return err
	}
	scores, err := s.progress.Scores(dbc)
	if err != nil {
		return err
	}
	totals, err := s.progress.CharacterTotals(dbc)
	if err != nil {
		return err
	}

	byChar := map[uuid.UUID][]leaderboard.Entry{}
	userIDs := make([]uuid.UUID, 0, len(scores))
	seen := map[uuid.UUID]struct{}{}
	for _, sc := range scores {
		byChar[sc.CharacterID] = append(byChar[sc.CharacterID], leaderboard.Entry{UserID: sc.UserID, Total: sc.Total, UpdatedAt: sc.UpdatedAt})
		if _, ok := seen[sc.UserID]; !ok {
			seen[sc.UserID] = struct{}{}
			userIDs = append(userIDs, sc.UserID)
		}
	}
	names, err := s.profileIndex(ctx, userIDs)
	if err != nil {
		return err
	}
	totalsByChar := map[uuid.UUID]repos.CharacterTotal{}
	for _, t := range totals {
		totalsByChar[t.CharacterID] = t
	}

	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	if err := setRow(f, summary, 1, []interface{}{"Character", "Series", "Total Points", "Players", "Top Fan", "Top Score"}); err != nil {
		return err
	}
	for i, ch := range chars {
		entries := byChar[ch.ID]
		leaderboard.Order(entries)
		topName, topScore := "", 0
		if len(entries) > 0 {
			topName = displayName(names, entries[0].UserID)
			topScore = entries[0].Total
		}
		t := totalsByChar[ch.ID]
		if err := setRow(f, summary, i+2, []interface{}{ch.Name, ch.Series, t.Total, t.Players, topName, topScore}); err != nil {
			return err
		}
	}

	usedSheets := map[string]int{summary: 1}
	for _, ch := range chars {
		sheet := sheetName(ch.Name, usedSheets)
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		if err := setRow(f, sheet, 1, []interface{}{"Rank", "User ID", "Name", "Total", "Updated At"}); err != nil {
			return err
		}
		entries := byChar[ch.ID]
		ranks := leaderboard.Ranks(entries)
		for i, e := range entries {
			if err := setRow(f, sheet, i+2, []interface{}{ranks[i], e.UserID.String(), displayName(names, e.UserID), e.Total, e.UpdatedAt.UTC().Format(time.RFC3339)}); err != nil {
				return err
			}
		}
	}
	_, err = f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export sheet %q row %d: %w", sheet, row, err)
	}
	return nil
}

func displayName(idx map[uuid.UUID]*types.Profile, id uuid.UUID) string {
	if p := idx[id]; p != nil {
		return p.DisplayName()
	}
	return types.Profile{ID: id}.DisplayName()
}

// sheetName trims to excel's 31 character limit, strips forbidden runes and dedupes.
func sheetName(name string, used map[string]int) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		clean = append(clean, r)
	}
	if len(clean) == 0 {
		clean = []rune("Character")
	}
	if len(clean) > 28 {
		clean = clean[:28]
	}
	base := string(clean)
	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s (%d)", base, n)
	}
	return base
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/jobs/outbox"
	"github.com/yungbote/waifu-verifier-backend/internal/modules/quiz"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/ctxutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const (
	SaveStatusPending = "pending"
	SaveStatusSaved   = "saved"
	SaveStatusQueued  = "queued"
	SaveStatusFailed  = "failed"
)

// ProgressListener is told about every progress row written on behalf of a user.
type ProgressListener interface {
	ProgressChanged(ctx context.Context, row *types.UserProgress)
}

type QuestionView struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"question_text"`
	ImageURL     string    `json:"image_url,omitempty"`
	OptionA      string    `json:"option_a"`
	OptionB      string    `json:"option_b"`
	OptionC      string    `json:"option_c"`
	OptionD      string    `json:"option_d"`
	Duration     int       `json:"duration"`
	Points       int       `json:"points"`
}

type QuizSessionView struct {
	ID          uuid.UUID     `json:"id"`
	CharacterID uuid.UUID     `json:"character_id"`
	Level       int           `json:"level"`
	State       quiz.State    `json:"state"`
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Question    *QuestionView `json:"question,omitempty"`
	Remaining   int           `json:"remaining"`
	Result      *quiz.Result  `json:"result,omitempty"`
	// CharacterResult is the reveal card shown after the final level.
	CharacterResult *types.CharacterResult `json:"character_result,omitempty"`
	SaveStatus      string                 `json:"save_status,omitempty"`
}

type QuizAnswerView struct {
	Outcome quiz.Outcome    `json:"outcome"`
	Session QuizSessionView `json:"session"`
}

type QuizService interface {
	StartSession(ctx context.Context, userID, characterID uuid.UUID, level int) (*QuizSessionView, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*QuizSessionView, error)
	Answer(ctx context.Context, userID, sessionID, questionID uuid.UUID, option string) (*QuizAnswerView, error)
	// Run sweeps idle sessions until ctx is done.
	Run(ctx context.Context)
	Sweep(now time.Time) int
	Close()
}

type activeSession struct {
	sess *quiz.Session

	mu         sync.Mutex
	timer      *time.Timer
	saveStatus string
	result     *types.CharacterResult
}

type quizService struct {
	log        *logger.Logger
	characters repos.CharacterRepo
	questions  repos.QuestionRepo
	progress   repos.ProgressRepo
	jobs       repos.JobRunRepo
	listener   ProgressListener

	ttl          time.Duration
	persistLimit time.Duration
	now          func() time.Time
	afterFunc    func(d time.Duration, f func()) *time.Timer

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.RWMutex
	sessions map[uuid.UUID]*activeSession
	byUser   map[uuid.UUID]uuid.UUID
}

func NewQuizService(
	log *logger.Logger,
	characters repos.CharacterRepo,
	questions repos.QuestionRepo,
	progress repos.ProgressRepo,
	jobs repos.JobRunRepo,
	listener ProgressListener,
	ttl time.Duration,
) QuizService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &quizService{
		log:          log.With("service", "QuizService"),
		characters:   characters,
		questions:    questions,
		progress:     progress,
		jobs:         jobs,
		listener:     listener,
		ttl:          ttl,
		persistLimit: 10 * time.Second,
		now:          time.Now,
		afterFunc:    time.AfterFunc,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:     map[uuid.UUID]*activeSession{},
		byUser:       map[uuid.UUID]uuid.UUID{},
	}
}

func (s *quizService) StartSession(ctx context.Context, userID, characterID uuid.UUID, level int) (*QuizSessionView, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", apierr.ErrUnauthorized)
	}
	if characterID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_character_id", fmt.Errorf("missing character_id"))
	}
	if level < 1 || level > quiz.MaxLevel {
		return nil, apierr.BadRequest("invalid_level", fmt.Errorf("level must be between 1 and %d", quiz.MaxLevel))
	}
	dbc := dbctx.Context{Ctx: ctx}

	character, err := s.characters.GetByID(dbc, characterID)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, apierr.NotFound("character_not_found", apierr.ErrNotFound)
	}

	prog, err := s.progress.Get(dbc, userID, characterID)
	if err != nil {
		return nil, err
	}
	cleared := 0
	if prog != nil {
		cleared = prog.LevelCleared
	}
	if !quiz.LevelUnlocked(level, cleared) {
		return nil, apierr.Conflict("level_locked", fmt.Errorf("level %d is locked until level %d is cleared", level, level-1))
	}

	rows, err := s.questions.ListByCharacterLevel(dbc, characterID, level)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound("no_questions", quiz.ErrNoQuestions)
	}
	answered, err := s.progress.AnsweredQuestionIDs(dbc, userID, characterID)
	if err != nil {
		return nil, err
	}

	qs := make([]types.Question, 0, len(rows))
	for _, q := range rows {
		if q != nil {
			qs = append(qs, *q)
		}
	}

	now := s.now()
	sess := quiz.NewSession(userID, characterID, level, now)
	s.rngMu.Lock()
	err = sess.Start(qs, answered, s.rng, now)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	as := &activeSession{sess: sess, saveStatus: SaveStatusPending}
	s.mu.Lock()
	if prev, ok := s.byUser[userID]; ok {
		if old := s.sessions[prev]; old != nil && old.sess.State() != quiz.StateFinished {
			old.stopTimer()
			delete(s.sessions, prev)
		}
	}
	s.sessions[sess.ID] = as
	s.byUser[userID] = sess.ID
	s.mu.Unlock()

	as.mu.Lock()
	s.armLocked(as)
	as.mu.Unlock()

	s.log.Info("Quiz session started",
		append(ctxutil.LogFields(ctx),
			"session_id", sess.ID,
			"user_id", userID,
			"character_id", characterID,
			"level", level,
			"questions", len(qs),
		)...,
	)
	view := s.view(as)
	return &view, nil
}

func (s *quizService) lookup(userID, sessionID uuid.UUID) (*activeSession, error) {
	s.mu.RLock()
	as := s.sessions[sessionID]
	s.mu.RUnlock()
	if as == nil || as.sess.UserID != userID {
		return nil, apierr.NotFound("session_not_found", apierr.ErrNotFound)
	}
	return as, nil
}

func (s *quizService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*QuizSessionView, error) {
	as, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	view := s.view(as)
	return &view, nil
}

func (s *quizService) Answer(ctx context.Context, userID, sessionID, questionID uuid.UUID, option string) (*QuizAnswerView, error) {
	as, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	out, err := as.sess.Answer(questionID, option, s.now())
	if err != nil {
		return nil, mapSessionErr(err)
	}
	s.afterResolve(ctx, as, out)
	return &QuizAnswerView{Outcome: out, Session: s.view(as)}, nil
}

func mapSessionErr(err error) error {
	switch {
	case errors.Is(err, quiz.ErrInvalidOption):
		return apierr.BadRequest("invalid_option", err)
	case errors.Is(err, quiz.ErrStaleQuestion):
		return apierr.Conflict("stale_question", err)
	case errors.Is(err, quiz.ErrSessionFinished):
		return apierr.Conflict("session_finished", err)
	case errors.Is(err, quiz.ErrNotInProgress):
		return apierr.Conflict("session_not_in_progress", err)
	default:
		return err
	}
}

// expire is the timer callback for questionID.
func (s *quizService) expire(as *activeSession, questionID uuid.UUID) {
	out, err := as.sess.Expire(questionID, s.now())
	if err != nil {
		// An answer won the race or the question moved on.
		return
	}
	s.afterResolve(context.Background(), as, out)
}

// afterResolve runs only for the winner of a question's resolution.
func (s *quizService) afterResolve(ctx context.Context, as *activeSession, out quiz.Outcome) {
	as.mu.Lock()
	as.stopTimerLocked()
	if !out.Finished {
		s.armLocked(as)
		as.mu.Unlock()
		return
	}
	as.mu.Unlock()
	s.finish(ctx, as)
}

func (s *quizService) armLocked(as *activeSession) {
	q, _, ok := as.sess.Current()
	if !ok {
		return
	}
	qID := q.ID
	as.timer = s.afterFunc(time.Duration(q.EffectiveDuration())*time.Second, func() {
		s.expire(as, qID)
	})
}

func (as *activeSession) stopTimerLocked() {
	if as.timer != nil {
		as.timer.Stop()
		as.timer = nil
	}
}

func (as *activeSession) stopTimer() {
	as.mu.Lock()
	as.stopTimerLocked()
	as.mu.Unlock()
}

// finish persists the session once. A failed write is queued for the outbox worker and the
// result is still returned to the player.
func (s *quizService) finish(ctx context.Context, as *activeSession) {
	sess := as.sess
	credits := sess.Credits()
	repoCredits := make([]repos.QuizCredit, 0, len(credits))
	for _, c := range credits {
		repoCredits = append(repoCredits, repos.QuizCredit{QuestionID: c.QuestionID, Points: c.Points})
	}

	// Detached from the request so a disconnecting client does not abort the save.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistLimit)
	defer cancel()

	status := SaveStatusSaved
	awarded, row, err := s.progress.ApplyQuizResult(dbctx.Context{Ctx: pctx}, sess.UserID, sess.CharacterID, sess.Level, repoCredits)
	if err != nil {
		s.log.Error("Persist quiz result failed; queueing retry",
			"session_id", sess.ID,
			"user_id", sess.UserID,
			"character_id", sess.CharacterID,
			"error", err,
		)
		status = s.enqueue(pctx, sess, repoCredits)
	} else {
		s.log.Info("Quiz session finished",
			"session_id", sess.ID,
			"user_id", sess.UserID,
			"character_id", sess.CharacterID,
			"level", sess.Level,
			"awarded", awarded,
		)
		if s.listener != nil && row != nil {
			s.listener.ProgressChanged(pctx, row)
		}
	}

	var reveal *types.CharacterResult
	if sess.Level == quiz.MaxLevel {
		if r, rerr := s.characters.GetResult(dbctx.Context{Ctx: pctx}, sess.CharacterID); rerr != nil {
			s.log.Warn("Load character result failed", "character_id", sess.CharacterID, "error", rerr)
		} else {
			reveal = r
		}
	}

	as.mu.Lock()
	as.saveStatus = status
	as.result = reveal
	as.mu.Unlock()
}

func (s *quizService) enqueue(ctx context.Context, sess *quiz.Session, credits []repos.QuizCredit) string {
	if s.jobs == nil {
		return SaveStatusFailed
	}
	payload := outbox.QuizProgressPayload{
		UserID:      sess.UserID,
		CharacterID: sess.CharacterID,
		Level:       sess.Level,
		Credits:     credits,
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		payload.TraceID = td.TraceID
		payload.RequestID = td.RequestID
	}
	job, err := outbox.NewQuizProgressJob(payload)
	if err != nil {
		s.log.Error("Build outbox job failed", "session_id", sess.ID, "error", err)
		return SaveStatusFailed
	}
	if _, err := s.jobs.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job}); err != nil {
		s.log.Error("Enqueue outbox job failed", "session_id", sess.ID, "error", err)
		return SaveStatusFailed
	}
	return SaveStatusQueued
}

func (s *quizService) view(as *activeSession) QuizSessionView {
	sess := as.sess
	idx, total := sess.Position()
	v := QuizSessionView{
		ID:          sess.ID,
		CharacterID: sess.CharacterID,
		Level:       sess.Level,
		State:       sess.State(),
		Index:       idx,
		Total:       total,
	}
	if q, armedAt, ok := sess.Current(); ok {
		v.Question = questionView(q)
		v.Remaining = quiz.RemainingSeconds(q.EffectiveDuration(), s.now().Sub(armedAt))
	}
	if v.State == quiz.StateFinished {
		r := sess.Result()
		v.Result = &r
		v.Index = total
		as.mu.Lock()
		v.SaveStatus = as.saveStatus
		v.CharacterResult = as.result
		as.mu.Unlock()
	}
	return v
}

func questionView(q types.Question) *QuestionView {
	return &QuestionView{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		ImageURL:     q.ImageURL,
		OptionA:      q.OptionA,
		OptionB:      q.OptionB,
		OptionC:      q.OptionC,
		OptionD:      q.OptionD,
		Duration:     q.EffectiveDuration(),
		Points:       q.EffectivePoints(),
	}
}

func (s *quizService) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				s.log.Debug("Swept idle quiz sessions", "count", n)
			}
		}
	}
}

// Sweep drops sessions idle for longer than the TTL and stops their timers.
func (s *quizService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, as := range s.sessions {
		if now.Sub(as.sess.LastTouch()) <= s.ttl {
			continue
		}
		as.stopTimer()
		delete(s.sessions, id)
		if s.byUser[as.sess.UserID] == id {
			delete(s.byUser, as.sess.UserID)
		}
		n++
	}
	return n
}

func (s *quizService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, as := range s.sessions {
		as.stopTimer()
		delete(s.sessions, id)
	}
	s.byUser = map[uuid.UUID]uuid.UUID{}
}

package quiz

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/domain/catalog"
)

var (
	ErrNoQuestions     = errors.New("no questions for this level")
	ErrNotInProgress   = errors.New("session is not in progress")
	ErrSessionFinished = errors.New("session already finished")
	ErrStaleQuestion   = errors.New("question is no longer active")
	ErrInvalidOption   = errors.New("option must be one of A, B, C, D")
)

type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

// Credit is a question this session earned points for.
type Credit struct {
	QuestionID uuid.UUID `json:"question_id"`
	Points     int       `json:"points"`
}

// Outcome describes how the active question was resolved.
type Outcome struct {
	QuestionID    uuid.UUID `json:"question_id"`
	Selected      string    `json:"selected,omitempty"`
	Correct       bool      `json:"correct"`
	TimedOut      bool      `json:"timed_out"`
	Awarded       int       `json:"awarded"`
	CorrectAnswer string    `json:"correct_answer"`
	Remaining     int       `json:"remaining"`
	// Finished is true on exactly one outcome per session: the one that ended it.
	Finished bool `json:"finished"`
}

// Session is one play-through of a character level. All mutations go through the mutex;
// the per-question resolved flag makes answer and expiry mutually exclusive even when a
// timer callback and a request arrive together.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CharacterID uuid.UUID
	Level       int
	CreatedAt   time.Time

	mu        sync.Mutex
	state     State
	questions []catalog.Question
	index     int
	armedAt   time.Time
	resolved  atomic.Bool
	answered  map[uuid.UUID]struct{}
	credited  map[uuid.UUID]struct{}
	credits   []Credit
	correct   int
	points    int
	lastTouch time.Time
}

func NewSession(userID, characterID uuid.UUID, level int, now time.Time) *Session {
	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		CharacterID: characterID,
		Level:       level,
		CreatedAt:   now,
		state:       StateLoading,
		lastTouch:   now,
	}
}

// Start shuffles the questions and arms the first one. answeredIDs are questions the user
// was already credited for in earlier sessions.
func (s *Session) Start(questions []catalog.Question, answeredIDs []uuid.UUID, rng *rand.Rand, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		return ErrNotInProgress
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	qs := make([]catalog.Question, len(questions))
	copy(qs, questions)
	if rng != nil {
		rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}
	s.questions = qs
	s.answered = make(map[uuid.UUID]struct{}, len(answeredIDs))
	for _, id := range answeredIDs {
		s.answered[id] = struct{}{}
	}
	s.credited = map[uuid.UUID]struct{}{}
	s.state = StateInProgress
	s.arm(0, now)
	return nil
}

func (s *Session) arm(i int, now time.Time) {
	s.index = i
	s.armedAt = now
	s.lastTouch = now
	s.resolved.Store(false)
}

// Answer resolves the active question with the selected option.
func (s *Session) Answer(questionID uuid.UUID, option string, now time.Time) (Outcome, error) {
	opt := catalog.NormalizeOption(option)
	if opt == "" {
		return Outcome{}, ErrInvalidOption
	}
	return s.resolve(questionID, opt, now)
}

// Expire resolves the active question as unanswered. It is a no-op error when the question
// was already resolved or is no longer active.
func (s *Session) Expire(questionID uuid.UUID, now time.Time) (Outcome, error) {
	return s.resolve(questionID, "", now)
}

func (s *Session) resolve(questionID uuid.UUID, option string, now time.Time) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateFinished:
		return Outcome{}, ErrSessionFinished
	case StateInProgress:
	default:
		return Outcome{}, ErrNotInProgress
	}
	q := s.questions[s.index]
	if q.ID != questionID {
		return Outcome{}, ErrStaleQuestion
	}
	if !s.resolved.CompareAndSwap(false, true) {
		return Outcome{}, ErrStaleQuestion
	}

	duration := q.EffectiveDuration()
	remaining := RemainingSeconds(duration, now.Sub(s.armedAt))
	out := Outcome{
		QuestionID:    q.ID,
		Selected:      option,
		CorrectAnswer: catalog.NormalizeOption(q.CorrectAnswer),
		Remaining:     remaining,
	}
	if option == "" || remaining <= 0 {
		out.TimedOut = true
	} else if option == out.CorrectAnswer {
		out.Correct = true
		s.correct++
		_, seenBefore := s.answered[q.ID]
		_, seenNow := s.credited[q.ID]
		if !seenBefore && !seenNow {
			out.Awarded = Reward(q.EffectivePoints(), duration, remaining)
			s.credited[q.ID] = struct{}{}
			s.credits = append(s.credits, Credit{QuestionID: q.ID, Points: out.Awarded})
			s.points += out.Awarded
		}
	}

	if s.index+1 < len(s.questions) {
		s.arm(s.index+1, now)
	} else {
		s.state = StateFinished
		s.lastTouch = now
		out.Finished = true
	}
	return out, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the active question and when it was armed.
func (s *Session) Current() (catalog.Question, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return catalog.Question{}, time.Time{}, false
	}
	return s.questions[s.index], s.armedAt, true
}

// Position returns the zero-based index of the active question and the question count.
func (s *Session) Position() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, len(s.questions)
}

func (s *Session) Credits() []Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Credit, len(s.credits))
	copy(out, s.credits)
	return out
}

func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.correct, len(s.questions), s.points)
}

func (s *Session) LastTouch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouch
}

package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/jobs/runtime"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

const (
	JobTypeQuizProgressPersist = "quiz_progress_persist"
	EntityTypeCharacter        = "character"
)

// QuizProgressPayload is the replayable form of a finished session's write.
type QuizProgressPayload struct {
	UserID      uuid.UUID          `json:"user_id"`
	CharacterID uuid.UUID          `json:"character_id"`
	Level       int                `json:"level"`
	Credits     []repos.QuizCredit `json:"credits"`
	TraceID     string             `json:"trace_id,omitempty"`
	RequestID   string             `json:"request_id,omitempty"`
}

func (p QuizProgressPayload) Validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	if p.CharacterID == uuid.Nil {
		return fmt.Errorf("missing character_id")
	}
	if p.Level < 1 {
		return fmt.Errorf("invalid level %d", p.Level)
	}
	return nil
}

// NewQuizProgressJob builds a queued job_run row for payload.
func NewQuizProgressJob(p QuizProgressPayload) (*types.JobRun, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	charID := p.CharacterID
	return &types.JobRun{
		OwnerUserID: p.UserID,
		JobType:     JobTypeQuizProgressPersist,
		EntityType:  EntityTypeCharacter,
		EntityID:    &charID,
		Status:      types.JobStatusQueued,
		Payload:     datatypes.JSON(raw),
	}, nil
}

// ProgressObserver is told about every progress row the handler writes.
type ProgressObserver interface {
	ProgressChanged(ctx context.Context, row *types.UserProgress)
}

type QuizProgressHandler struct {
	log      *logger.Logger
	progress repos.ProgressRepo
	observer ProgressObserver
}

func NewQuizProgressHandler(baseLog *logger.Logger, progress repos.ProgressRepo, observer ProgressObserver) *QuizProgressHandler {
	return &QuizProgressHandler{
		log:      baseLog.With("job", JobTypeQuizProgressPersist),
		progress: progress,
		observer: observer,
	}
}

func (h *QuizProgressHandler) Type() string { return JobTypeQuizProgressPersist }

// Run replays ApplyQuizResult. answered_questions dedupes by (user, question), so a replay
// after a partial success credits nothing twice.
func (h *QuizProgressHandler) Run(jc *runtime.Context) error {
	var p QuizProgressPayload
	if err := jc.Decode(&p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	awarded, row, err := h.progress.ApplyQuizResult(dbctx.Context{Ctx: jc.Ctx}, p.UserID, p.CharacterID, p.Level, p.Credits)
	if err != nil {
		return err
	}
	h.log.Info("Replayed quiz progress",
		"job_id", jc.Job.ID,
		"user_id", p.UserID,
		"character_id", p.CharacterID,
		"level", p.Level,
		"awarded", awarded,
	)
	if h.observer != nil && row != nil {
		h.observer.ProgressChanged(jc.Ctx, row)
	}
	return nil
}

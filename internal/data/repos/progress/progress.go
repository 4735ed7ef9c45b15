package progress

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

// QuizCredit is one question the session wants to credit.
type QuizCredit struct {
	QuestionID uuid.UUID `json:"question_id"`
	Points     int       `json:"points"`
}

// Score is the leaderboard projection of a progress row.
type Score struct {
	UserID      uuid.UUID
	CharacterID uuid.UUID
	Total       int
	UpdatedAt   time.Time
}

// CharacterTotal aggregates every fan's grand total for one character.
type CharacterTotal struct {
	CharacterID uuid.UUID
	Total       int64
	Players     int64
}

// RankedProgress is a progress row with its position inside its character board.
type RankedProgress struct {
	types.UserProgress
	Position int `gorm:"column:position"`
}

type ProgressRepo interface {
	Get(dbc dbctx.Context, userID, characterID uuid.UUID) (*types.UserProgress, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserProgress, error)
	AnsweredQuestionIDs(dbc dbctx.Context, userID, characterID uuid.UUID) ([]uuid.UUID, error)
	CountAnswered(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error)

	ApplyQuizResult(dbc dbctx.Context, userID, characterID uuid.UUID, level int, credits []QuizCredit) (int, *types.UserProgress, error)
	ApplyCollection(dbc dbctx.Context, submission *types.CollectionSubmission) (*types.UserProgress, error)

	Board(dbc dbctx.Context, characterID uuid.UUID, limit int) ([]*types.UserProgress, error)
	ListForUsers(dbc dbctx.Context, characterID uuid.UUID, userIDs []uuid.UUID) ([]*types.UserProgress, error)
	CountAbove(dbc dbctx.Context, characterID uuid.UUID, total int) (int64, error)
	CharacterTotals(dbc dbctx.Context) ([]CharacterTotal, error)
	TopPerCharacter(dbc dbctx.Context, n int) ([]RankedProgress, error)
	Scores(dbc dbctx.Context) ([]Score, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{
		db:  db,
		log: baseLog.With("repo", "ProgressRepo"),
	}
}

func (r *progressRepo) Get(dbc dbctx.Context, userID, characterID uuid.UUID) (*types.UserProgress, error) {
	if userID == uuid.Nil || characterID == uuid.Nil {
		return nil, nil
	}
	var p types.UserProgress
	if err := dbc.Conn(r.db).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Limit(1).
		Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *progressRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserProgress, error) {
	var out []*types.UserProgress
	if userID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Order("total_points_accumulated DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *progressRepo) AnsweredQuestionIDs(dbc dbctx.Context, userID, characterID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if userID == uuid.Nil || characterID == uuid.Nil {
		return ids, nil
	}
	if err := dbc.Conn(r.db).
		Model(&types.AnsweredQuestion{}).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Pluck("question_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *progressRepo) CountAnswered(dbc dbctx.Context, userID, characterID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.AnsweredQuestion{}).
		Where("user_id = ? AND character_id = ?", userID, characterID).
		Count(&n).Error
	return n, err
}

// ApplyQuizResult credits a finished session in one transaction. Each credit is inserted
// into answered_questions with ON CONFLICT DO NOTHING and only rows that were actually
// inserted add points, so replaying the same credits is a no-op apart from level_cleared.
// Returns the points actually awarded and the refreshed progress row.
func (r *progressRepo) ApplyQuizResult(dbc dbctx.Context, userID, characterID uuid.UUID, level int, credits []QuizCredit) (int, *types.UserProgress, error) {
	awarded := 0
	var out *types.UserProgress
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		for _, c := range credits {
			if c.QuestionID == uuid.Nil || c.Points <= 0 {
				continue
			}
			row := &types.AnsweredQuestion{
				UserID:        userID,
				CharacterID:   characterID,
				QuestionID:    c.QuestionID,
				PointsAwarded: c.Points,
			}
			res := txx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
				DoNothing: true,
			}).Create(row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				awarded += c.Points
			}
		}
		if err := upsertDelta(txx, userID, characterID, level, awarded, 0); err != nil {
			return err
		}
		p, err := r.Get(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, userID, characterID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return awarded, out, nil
}

// ApplyCollection inserts an accepted submission and adds its points to the collection side
// of the aggregate in the same transaction.
func (r *progressRepo) ApplyCollection(dbc dbctx.Context, submission *types.CollectionSubmission) (*types.UserProgress, error) {
	var out *types.UserProgress
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(submission).Error; err != nil {
			return err
		}
		points := 0
		if submission.IsValid {
			points = submission.PointsAwarded
		}
		if err := upsertDelta(txx, submission.UserID, submission.CharacterID, 0, 0, points); err != nil {
			return err
		}
		p, err := r.Get(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, submission.UserID, submission.CharacterID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// upsertDelta adds the deltas with a single INSERT .. ON CONFLICT DO UPDATE so the database
// performs the increment. The grand total is derived from the same pre-update values, which
// keeps total == quiz + collection under concurrent writers.
func upsertDelta(tx *gorm.DB, userID, characterID uuid.UUID, level, quizDelta, collectionDelta int) error {
	now := time.Now()
	row := &types.UserProgress{
		UserID:                 userID,
		CharacterID:            characterID,
		LevelCleared:           level,
		QuizPoints:             quizDelta,
		CollectionPoints:       collectionDelta,
		TotalPointsAccumulated: quizDelta + collectionDelta,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "character_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quiz_points":       gorm.Expr("user_progress.quiz_points + EXCLUDED.quiz_points"),
			"collection_points": gorm.Expr("user_progress.collection_points + EXCLUDED.collection_points"),
			"total_points_accumulated": gorm.Expr(
				"user_progress.quiz_points + EXCLUDED.quiz_points + user_progress.collection_points + EXCLUDED.collection_points",
			),
			"level_cleared": gorm.Expr(greatestFn(tx) + "(user_progress.level_cleared, EXCLUDED.level_cleared)"),
			"updated_at":    gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(row).Error
}

// greatestFn picks the two-argument max for the active dialect.
func greatestFn(tx *gorm.DB) string {
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return "MAX"
	}
	return "GREATEST"
}

// Board orders by total desc; ties go to whoever reached the score first, then user id.
func (r *progressRepo) Board(dbc dbctx.Context, characterID uuid.UUID, limit int) ([]*types.UserProgress, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.UserProgress
	if err := dbc.Conn(r.db).
		Where("character_id = ?", characterID).
		Order("total_points_accumulated DESC").
		Order("updated_at ASC").
		Order("user_id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *progressRepo) ListForUsers(dbc dbctx.Context, characterID uuid.UUID, userIDs []uuid.UUID) ([]*types.UserProgress, error) {
	var out []*types.UserProgress
	if len(userIDs) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("character_id = ? AND user_id IN ?", characterID, userIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *progressRepo) CountAbove(dbc dbctx.Context, characterID uuid.UUID, total int) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&types.UserProgress{}).
		Where("character_id = ? AND total_points_accumulated > ?", characterID, total).
		Count(&n).Error
	return n, err
}

func (r *progressRepo) CharacterTotals(dbc dbctx.Context) ([]CharacterTotal, error) {
	var out []CharacterTotal
	if err := dbc.Conn(r.db).
		Model(&types.UserProgress{}).
		Select("character_id, COALESCE(SUM(total_points_accumulated), 0) AS total, COUNT(*) AS players").
		Group("character_id").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TopPerCharacter returns the first n rows of every character board, ordered by character
// then position.
func (r *progressRepo) TopPerCharacter(dbc dbctx.Context, n int) ([]RankedProgress, error) {
	if n <= 0 {
		n = 3
	}
	var out []RankedProgress
	err := dbc.Conn(r.db).Raw(`
    SELECT * FROM (
      SELECT up.*,
        ROW_NUMBER() OVER (
          PARTITION BY up.character_id
          ORDER BY up.total_points_accumulated DESC, up.updated_at ASC, up.user_id ASC
        ) AS position
      FROM user_progress up
    ) ranked
    WHERE position <= ?
    ORDER BY character_id, position
  `, n).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *progressRepo) Scores(dbc dbctx.Context) ([]Score, error) {
	var out []Score
	if err := dbc.Conn(r.db).
		Model(&types.UserProgress{}).
		Select("user_id, character_id, total_points_accumulated AS total, updated_at").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

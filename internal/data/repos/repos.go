package repos

import (
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/catalog"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/collection"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/config"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/jobs"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/profile"
	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/progress"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type CharacterRepo = catalog.CharacterRepo
type QuestionRepo = catalog.QuestionRepo

type ProgressRepo = progress.ProgressRepo
type QuizCredit = progress.QuizCredit
type CharacterTotal = progress.CharacterTotal
type Score = progress.Score
type RankedProgress = progress.RankedProgress

type SubmissionRepo = collection.SubmissionRepo

const HistoryLimit = collection.HistoryLimit

type ProfileRepo = profile.ProfileRepo

var ErrUsernameTaken = profile.ErrUsernameTaken

type AppConfigRepo = config.AppConfigRepo

type JobRunRepo = jobs.JobRunRepo

func NewCharacterRepo(db *gorm.DB, baseLog *logger.Logger) CharacterRepo {
	return catalog.NewCharacterRepo(db, baseLog)
}
func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return catalog.NewQuestionRepo(db, baseLog)
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return progress.NewProgressRepo(db, baseLog)
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return collection.NewSubmissionRepo(db, baseLog)
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return profile.NewProfileRepo(db, baseLog)
}

func NewAppConfigRepo(db *gorm.DB, baseLog *logger.Logger) AppConfigRepo {
	return config.NewAppConfigRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

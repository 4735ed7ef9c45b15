package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type Repos struct {
	Character  repos.CharacterRepo
	Question   repos.QuestionRepo
	Progress   repos.ProgressRepo
	Submission repos.SubmissionRepo
	Profile    repos.ProfileRepo
	AppConfig  repos.AppConfigRepo
	JobRun     repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Character:  repos.NewCharacterRepo(db, log),
		Question:   repos.NewQuestionRepo(db, log),
		Progress:   repos.NewProgressRepo(db, log),
		Submission: repos.NewSubmissionRepo(db, log),
		Profile:    repos.NewProfileRepo(db, log),
		AppConfig:  repos.NewAppConfigRepo(db, log),
		JobRun:     repos.NewJobRunRepo(db, log),
	}
}

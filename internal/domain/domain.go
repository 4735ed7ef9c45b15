package domain

import (
	"github.com/yungbote/waifu-verifier-backend/internal/domain/catalog"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/collection"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/config"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/jobs"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/progress"
	"github.com/yungbote/waifu-verifier-backend/internal/domain/user"
)

type (
	Character            = catalog.Character
	CharacterResult      = catalog.CharacterResult
	Question             = catalog.Question
	AnsweredQuestion     = progress.AnsweredQuestion
	UserProgress         = progress.UserProgress
	CollectionSubmission = collection.Submission
	Profile              = user.Profile
	AppConfig            = config.AppConfig
	JobRun               = jobs.JobRun
)

const (
	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed

	RoleUser  = user.RoleUser
	RoleAdmin = user.RoleAdmin

	ConfigKeyHomeBackground = config.KeyHomeBackground
)

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&Character{},
		&CharacterResult{},
		&Question{},
		&AnsweredQuestion{},
		&UserProgress{},
		&CollectionSubmission{},
		&Profile{},
		&AppConfig{},
		&JobRun{},
	}
}

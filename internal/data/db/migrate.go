package db

import (
	"fmt"

	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the indexes gorm tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_question_character_level_created",
			sql: `CREATE INDEX IF NOT EXISTS idx_question_character_level_created
				ON questions (character_id, level, created_at);`,
		},
		{
			name: "idx_collection_valid_history",
			sql: `CREATE INDEX IF NOT EXISTS idx_collection_valid_history
				ON user_collections (user_id, character_id, created_at DESC)
				WHERE is_valid;`,
		},
		{
			name: "idx_progress_board",
			sql: `CREATE INDEX IF NOT EXISTS idx_progress_board
				ON user_progress (character_id, total_points_accumulated DESC, updated_at ASC);`,
		},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos/testutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pg unique", &pgconn.PgError{Code: "23505"}, true},
		{"pg wrapped", fmt.Errorf("update: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pg other", &pgconn.PgError{Code: "23503"}, false},
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"sqlite", errors.New("UNIQUE constraint failed: profiles.username"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestProfileRepoUsernameClash(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProfileRepo(db, testutil.Logger(t))

	a := testutil.SeedProfile(t, dbc.Ctx, tx, "Alice")
	b := testutil.SeedProfile(t, dbc.Ctx, tx, "Bob")

	if _, err := repo.UpdateFields(dbc, a.ID, map[string]interface{}{"username": "karbit_sejati"}); err != nil {
		t.Fatalf("UpdateFields a: %v", err)
	}
	// The failing statement aborts a Postgres tx, so run the clash inside a savepoint.
	sp := tx.SavePoint("clash")
	if sp.Error != nil {
		t.Fatalf("savepoint: %v", sp.Error)
	}
	_, err := repo.UpdateFields(dbc, b.ID, map[string]interface{}{"username": "karbit_sejati"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("UpdateFields b: want=%v got=%v", ErrUsernameTaken, err)
	}
	tx.RollbackTo("clash")

	got, err := repo.Get(dbc, a.ID)
	if err != nil || got == nil || got.Username == nil || *got.Username != "karbit_sejati" {
		t.Fatalf("Get a: err=%v got=%+v", err, got)
	}
}

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"explicit", BadRequest("missing_image", errors.New("image required")), http.StatusBadRequest, "missing_image"},
		{"wrapped explicit", fmt.Errorf("outer: %w", Conflict("level_locked", nil)), http.StatusConflict, "level_locked"},
		{"sentinel", fmt.Errorf("character: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := StatusOf(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%s: want=(%d,%q) got=(%d,%q)", tc.name, tc.status, tc.code, status, code)
		}
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	if got := New(http.StatusTeapot, "", nil).Error(); got != "api error (418)" {
		t.Fatalf("Error: want=%q got=%q", "api error (418)", got)
	}
	if got := New(0, "only_code", nil).Error(); got != "only_code" {
		t.Fatalf("Error: want=%q got=%q", "only_code", got)
	}
}

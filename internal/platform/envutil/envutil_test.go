package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"45", 45 * time.Second},
		{"-3", 5 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tc := range cases {
		t.Setenv("TEST_DURATION", tc.raw)
		if got := Duration("TEST_DURATION", 5*time.Second); got != tc.want {
			t.Fatalf("Duration(%q): want=%v got=%v", tc.raw, tc.want, got)
		}
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	if got := Int("TEST_INT", 3); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	t.Setenv("TEST_INT", "x")
	if got := Int("TEST_INT", 3); got != 3 {
		t.Fatalf("Int fallback: want=3 got=%d", got)
	}
	t.Setenv("TEST_BOOL", "off")
	if Bool("TEST_BOOL", true) {
		t.Fatalf("Bool: want=false")
	}
	t.Setenv("TEST_BOOL", "")
	if !Bool("TEST_BOOL", true) {
		t.Fatalf("Bool default: want=true")
	}
}

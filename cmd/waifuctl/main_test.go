package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/app"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

func testEnv(out *bytes.Buffer) (*cliEnv, *int) {
	boots := 0
	return &cliEnv{
		log: logger.NewNop(),
		out: out,
		boot: func(*logger.Logger) (*app.App, error) {
			boots++
			return nil, errors.New("no database in tests")
		},
	}, &boots
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	env, _ := testEnv(&out)
	if err := run(context.Background(), env, nil); !errors.Is(err, errUsage) {
		t.Fatalf("no args: want errUsage got=%v", err)
	}
	if !strings.Contains(out.String(), "leaderboard-sync") {
		t.Fatalf("usage missing commands: %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), env, []string{"frobnicate"}); !errors.Is(err, errUsage) {
		t.Fatalf("unknown: want errUsage got=%v", err)
	}
	if !strings.Contains(out.String(), `unknown command "frobnicate"`) {
		t.Fatalf("unknown message: %q", out.String())
	}
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "cli-secret")
	t.Setenv("JWT_ISSUER", "")
	var out bytes.Buffer
	env, boots := testEnv(&out)
	id := uuid.New()

	if err := run(context.Background(), env, []string{"token", "--user", id.String(), "--ttl", "10m"}); err != nil {
		t.Fatalf("token: %v", err)
	}
	if *boots != 0 {
		t.Fatalf("token should not bootstrap the app")
	}

	auth, err := services.NewAuthService(logger.NewNop(), "cli-secret", "")
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	ctx, err := auth.SetContextFromToken(context.Background(), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if ctx == nil {
		t.Fatalf("nil context")
	}
}

func TestFlagValidationBeforeBootstrap(t *testing.T) {
	var out bytes.Buffer
	env, boots := testEnv(&out)
	cases := [][]string{
		{"token", "--user", "not-a-uuid"},
		{"promote", "--user", uuid.NewString(), "--role", "owner"},
		{"promote"},
		{"seed"},
	}
	for _, args := range cases {
		if err := run(context.Background(), env, args); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
	if *boots != 0 {
		t.Fatalf("boots: want=0 got=%d", *boots)
	}

	if err := run(context.Background(), env, []string{"jobs", "--bogus"}); err == nil {
		t.Fatalf("jobs --bogus: expected flag error")
	}
	if *boots != 0 {
		t.Fatalf("boots after bad jobs flag: want=0 got=%d", *boots)
	}

	if err := run(context.Background(), env, []string{"cleanup"}); err == nil || !strings.Contains(err.Error(), "no database") {
		t.Fatalf("cleanup bootstrap error: got=%v", err)
	}
	if *boots != 1 {
		t.Fatalf("boots: want=1 got=%d", *boots)
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"seed.yaml":   services.FormatYAML,
		"seed.YML":    services.FormatYAML,
		"seed.json":   services.FormatJSON,
		"catalog.txt": services.FormatJSON,
	}
	for in, want := range cases {
		if got := formatFromPath(in); got != want {
			t.Fatalf("formatFromPath(%q): want=%q got=%q", in, want, got)
		}
	}
}

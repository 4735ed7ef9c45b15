// Command waifuctl runs maintenance tasks against the same database and buckets as the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/yungbote/waifu-verifier-backend/internal/app"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/envutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
	"github.com/yungbote/waifu-verifier-backend/internal/services"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = map[string]command{
	"seed":             {"import characters, questions and config from a YAML/JSON file", runSeed},
	"cleanup":          {"delete gallery objects no submission references", runCleanup},
	"leaderboard-sync": {"rebuild the redis leaderboard cache from the database", runLeaderboardSync},
	"export":           {"write the leaderboard workbook to an .xlsx file", runExport},
	"jobs":             {"print outbox job counts per status", runJobs},
	"token":            {"mint a bearer token for a user id", runToken},
	"promote":          {"set a profile role (admin or user)", runPromote},
}

// cliEnv defers app bootstrap until a command actually needs the database.
type cliEnv struct {
	log    *logger.Logger
	out    io.Writer
	boot   func(*logger.Logger) (*app.App, error)
	loaded *app.App
}

func (e *cliEnv) app() (*app.App, error) {
	if e.loaded != nil {
		return e.loaded, nil
	}
	a, err := e.boot(e.log)
	if err != nil {
		return nil, err
	}
	e.loaded = a
	return a, nil
}

func (e *cliEnv) close() {
	if e.loaded != nil {
		e.loaded.Close()
	}
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{log: log, out: os.Stdout, boot: app.Bootstrap}
	err = run(ctx, env, os.Args[1:])
	env.close()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "waifuctl: %v\n", err)
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(env.out)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(env.out, "unknown command %q\n\n", args[0])
		printUsage(env.out)
		return errUsage
	}
	return cmd.run(ctx, env, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: waifuctl <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-17s %s\n", name, commands[name].summary)
	}
}

func newFlags(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return err
	}
	return nil
}

func runSeed(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlags("seed", env.out)
	file := fs.StringP("file", "f", "", "seed file (.yaml, .yml or .json)")
	format := fs.String("format", "", "override format detection (yaml|json)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return fmt.Errorf("--file is required")
	}
	body, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if *format == "" {
		*format = formatFromPath(*file)
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	report, err := a.Services.Admin.Seed(ctx, *format, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "characters created=%d skipped=%d questions created=%d\n",
		report.CharactersCreated, report.CharactersSkipped, report.QuestionsCreated)
	return nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return services.FormatYAML
	default:
		return services.FormatJSON
	}
}

func runCleanup(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlags("cleanup", env.out)
	dryRun := fs.Bool("dry-run", true, "only list orphans; pass --dry-run=false to delete")
	if err := parse(fs, args); err != nil {
		return err
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	report, err := a.Services.Admin.CleanupStorage(ctx, *dryRun)
	if err != nil {
		return err
	}
	for _, key := range report.Orphans {
		fmt.Fprintln(env.out, key)
	}
	fmt.Fprintf(env.out, "scanned=%d orphans=%d retained=%d deleted=%d failed=%d dry_run=%v\n",
		report.Scanned, len(report.Orphans), report.Retained, report.Deleted, report.Failed, report.DryRun)
	return nil
}

func runLeaderboardSync(ctx context.Context, env *cliEnv, args []string) error {
	if err := parse(newFlags("leaderboard-sync", env.out), args); err != nil {
		return err
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	if a.Clients.Redis == nil {
		return fmt.Errorf("REDIS_ADDR is not configured")
	}
	n, err := a.Services.Leaderboard.Resync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "resynced %d boards\n", n)
	return nil
}

func runExport(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlags("export", env.out)
	out := fs.StringP("out", "o", "", "output path (default leaderboard-YYYYMMDD.xlsx)")
	if err := parse(fs, args); err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("leaderboard-%s.xlsx", time.Now().UTC().Format("20060102"))
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.Services.Leaderboard.Export(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(env.out, path)
	return nil
}

func runJobs(ctx context.Context, env *cliEnv, args []string) error {
	if err := parse(newFlags("jobs", env.out), args); err != nil {
		return err
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	counts, err := a.Repos.JobRun.CountByStatus(dbctx.Context{Ctx: ctx})
	if err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(env.out, "%-10s %d\n", s, counts[s])
	}
	return nil
}

func runToken(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlags("token", env.out)
	user := fs.StringP("user", "u", "", "user id (uuid)")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := uuid.Parse(strings.TrimSpace(*user))
	if err != nil || id == uuid.Nil {
		return fmt.Errorf("--user must be a uuid")
	}
	auth, err := services.NewAuthService(env.log, envutil.String("JWT_SECRET_KEY", ""), envutil.String("JWT_ISSUER", ""))
	if err != nil {
		return err
	}
	tok, err := auth.Mint(id, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, tok)
	return nil
}

func runPromote(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlags("promote", env.out)
	user := fs.StringP("user", "u", "", "user id (uuid)")
	role := fs.String("role", types.RoleAdmin, "role to set (admin|user)")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := uuid.Parse(strings.TrimSpace(*user))
	if err != nil || id == uuid.Nil {
		return fmt.Errorf("--user must be a uuid")
	}
	if *role != types.RoleAdmin && *role != types.RoleUser {
		return fmt.Errorf("--role must be %q or %q", types.RoleAdmin, types.RoleUser)
	}
	a, err := env.app()
	if err != nil {
		return err
	}
	if err := a.Services.Admin.SetRole(ctx, id, *role); err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s is now %s\n", id, *role)
	return nil
}

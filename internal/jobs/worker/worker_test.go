package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/jobs/runtime"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

type fakeJobRepo struct {
	repos.JobRunRepo
	mu      sync.Mutex
	queue   []*types.JobRun
	beats   int
	updates []map[string]interface{}
}

func (f *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	job.Status = types.JobStatusRunning
	job.Attempts++
	return job, nil
}

func (f *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeJobRepo) beatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beats
}

type funcHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
}

func (h funcHandler) Type() string { return h.jobType }

func (h funcHandler) Run(jc *runtime.Context) error { return h.run(jc) }

func newTestWorker(t *testing.T, repo *fakeJobRepo, handlers ...runtime.Handler) *Worker {
	t.Helper()
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewWorker(nil, logger.NewNop(), repo, reg)
}

func TestRunOnceHeartbeatsWhileHandlerRuns(t *testing.T) {
	repo := &fakeJobRepo{queue: []*types.JobRun{{ID: uuid.New(), JobType: "slow"}}}
	w := newTestWorker(t, repo, funcHandler{jobType: "slow", run: func(jc *runtime.Context) error {
		deadline := time.Now().Add(2 * time.Second)
		for repo.beatCount() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		return nil
	}})
	w.heartbeatInterval = 10 * time.Millisecond

	if !w.RunOnce(context.Background(), 1) {
		t.Fatalf("RunOnce: want a processed job")
	}
	if got := repo.beatCount(); got < 2 {
		t.Fatalf("heartbeats: want>=2 got=%d", got)
	}
	beats := repo.beatCount()
	time.Sleep(30 * time.Millisecond)
	if repo.beatCount() != beats {
		t.Fatalf("heartbeat kept running after the handler returned")
	}
	if len(repo.updates) != 1 || repo.updates[0]["status"] != types.JobStatusSucceeded {
		t.Fatalf("final status: got=%v", repo.updates)
	}
	if w.RunOnce(context.Background(), 1) {
		t.Fatalf("RunOnce on empty queue: want false")
	}
}

func TestRunOnceRespectsHandlerOutcome(t *testing.T) {
	repo := &fakeJobRepo{queue: []*types.JobRun{
		{ID: uuid.New(), JobType: "settles"},
		{ID: uuid.New(), JobType: "fails"},
		{ID: uuid.New(), JobType: "panics"},
		{ID: uuid.New(), JobType: "unknown"},
	}}
	w := newTestWorker(t, repo,
		funcHandler{jobType: "settles", run: func(jc *runtime.Context) error {
			jc.Fail("validate", errors.New("bad payload"))
			return nil
		}},
		funcHandler{jobType: "fails", run: func(jc *runtime.Context) error { return errors.New("db down") }},
		funcHandler{jobType: "panics", run: func(jc *runtime.Context) error { panic("boom") }},
	)
	w.heartbeatInterval = 0

	for i := 0; i < 4; i++ {
		if !w.RunOnce(context.Background(), 1) {
			t.Fatalf("RunOnce #%d: want a processed job", i+1)
		}
	}
	if len(repo.updates) != 4 {
		t.Fatalf("updates: want=4 got=%d (%v)", len(repo.updates), repo.updates)
	}
	wantErr := []string{"validate: bad payload", "run: db down", "panic: panic: boom", "dispatch: no handler registered for job_type=unknown"}
	for i, u := range repo.updates {
		if u["status"] != types.JobStatusFailed || u["error"] != wantErr[i] {
			t.Fatalf("update #%d: want failed/%q got=%v", i+1, wantErr[i], u)
		}
	}
	if repo.beatCount() != 0 {
		t.Fatalf("heartbeats with interval 0: want=0 got=%d", repo.beatCount())
	}
}

package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/waifu-verifier-backend/internal/data/repos"
	types "github.com/yungbote/waifu-verifier-backend/internal/domain"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/ctxutil"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/dbctx"
)

/*
Context is the execution handle for a single claimed job_run row.
Handlers never write job_run themselves; they return an error or call Fail/Succeed.
  - Ctx: cancellation for the run
  - DB: handle for the handler's own writes
  - Job: the claimed row
*/
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.JobRun
	Repo repos.JobRunRepo

	done bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo) *Context {
	c := &Context{Ctx: ctx, DB: db, Job: job, Repo: repo}
	c.applyTraceData()
	return c
}

func (c *Context) applyTraceData() {
	if c.Ctx == nil || c.Job == nil || len(c.Job.Payload) == 0 {
		return
	}
	var meta struct {
		TraceID   string `json:"trace_id"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(c.Job.Payload, &meta); err != nil {
		return
	}
	if strings.TrimSpace(meta.TraceID) == "" && strings.TrimSpace(meta.RequestID) == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: meta.TraceID, RequestID: meta.RequestID})
}

// Decode unmarshals the job payload into out.
func (c *Context) Decode(out any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(c.Job.Payload, out)
}

// Fail records the error and leaves the row eligible for retry until attempts run out.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.done || c.Job == nil {
		return
	}
	c.done = true
	msg := stage
	if err != nil {
		msg = stage + ": " + err.Error()
	}
	now := time.Now().UTC()
	_ = c.Repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, c.Job.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"error":         msg,
		"last_error_at": now,
	})
	c.Job.Status = types.JobStatusFailed
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
}

func (c *Context) Succeed() {
	if c == nil || c.done || c.Job == nil {
		return
	}
	c.done = true
	_ = c.Repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, c.Job.ID, map[string]interface{}{
		"status": types.JobStatusSucceeded,
		"error":  "",
	})
	c.Job.Status = types.JobStatusSucceeded
}

func (c *Context) Done() bool { return c != nil && c.done }

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueStats reports outbox job counts per status.
type QueueStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type HealthHandler struct {
	db   Pinger
	jobs QueueStats
}

func NewHealthHandler(db Pinger, jobs QueueStats) *HealthHandler {
	return &HealthHandler{db: db, jobs: jobs}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
	}
	body := gin.H{"status": "ok"}
	if h.jobs != nil {
		// A stats failure is reported but does not fail readiness.
		if counts, err := h.jobs.CountByStatus(ctx); err == nil {
			body["jobs"] = counts
		} else {
			body["jobs_error"] = "unavailable"
		}
	}
	c.JSON(http.StatusOK, body)
}

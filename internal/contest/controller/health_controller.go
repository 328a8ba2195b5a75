package controller

import (
	"context"
	"net/http"
	"time"

	"codeblack/internal/contest/state"

	"github.com/gin-gonic/gin"
)

const judgeProbeTimeout = 3 * time.Second

// JudgeProbe reports external judge availability.
type JudgeProbe interface {
	ExternalHealthy(ctx context.Context) bool
}

// ConnectionCounter reports live realtime connections.
type ConnectionCounter interface {
	Connected() int
}

// HealthController serves /health.
type HealthController struct {
	machine *state.Machine
	judge   JudgeProbe
	conns   ConnectionCounter
	started time.Time
}

// NewHealthController creates a HealthController. judge and conns may be nil.
func NewHealthController(machine *state.Machine, judge JudgeProbe, conns ConnectionCounter) *HealthController {
	return &HealthController{machine: machine, judge: judge, conns: conns, started: time.Now()}
}

// Health reports server and judge status.
func (h *HealthController) Health(c *gin.Context) {
	judge := "unavailable"
	if h.judge != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), judgeProbeTimeout)
		if h.judge.ExternalHealthy(ctx) {
			judge = "ok"
		}
		cancel()
	}
	round := h.machine.Round()
	resp := HealthResponse{
		Server:        "ok",
		Judge:         judge,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Competitors:   h.machine.CompetitorCount(),
		CurrentRound:  round.Number,
		RoundStatus:   round.Status,
	}
	if h.conns != nil {
		resp.Connections = h.conns.Connected()
	}
	c.JSON(http.StatusOK, resp)
}

package controller

import (
	"codeblack/internal/contest/integrity"
	"codeblack/internal/contest/state"
	"codeblack/internal/contest/submit"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AdminController handles contest operator endpoints.
type AdminController struct {
	machine *state.Machine
	monitor *integrity.Monitor
	submit  *submit.Service
}

// NewAdminController creates an AdminController.
func NewAdminController(machine *state.Machine, monitor *integrity.Monitor, submitService *submit.Service) *AdminController {
	return &AdminController{machine: machine, monitor: monitor, submit: submitService}
}

// State returns the full contest snapshot.
func (h *AdminController) State(c *gin.Context) {
	response.Success(c, AdminState{
		Snapshot:   h.machine.Snapshot(),
		Violations: h.monitor.Records(),
	})
}

// StartRound starts the requested or next round.
func (h *AdminController) StartRound(c *gin.Context) {
	var req StartRoundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request parameters")
			return
		}
	}
	info, err := h.machine.StartRound(c.Request.Context(), req.Round)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, info)
}

// EndRound ends the active round.
func (h *AdminController) EndRound(c *gin.Context) {
	if err := h.machine.EndRound(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.machine.Round())
}

// RemoveUser blocks a competitor.
func (h *AdminController) RemoveUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.machine.RemoveUser(c.Request.Context(), req.Username); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"removed": state.NormalizeUsername(req.Username)})
}

// RevokeRemoval lets a removed competitor back in.
func (h *AdminController) RevokeRemoval(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.machine.RevokeRemoval(c.Request.Context(), req.Username); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"revoked": state.NormalizeUsername(req.Username)})
}

// Reset returns the contest to its initial state.
func (h *AdminController) Reset(c *gin.Context) {
	h.machine.Reset(c.Request.Context())
	response.Success(c, h.machine.Round())
}

// Submissions lists every raw submission.
func (h *AdminController) Submissions(c *gin.Context) {
	subs, err := h.submit.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, subs)
}

// EvaluatePending grades every pending submission.
func (h *AdminController) EvaluatePending(c *gin.Context) {
	summary, err := h.submit.EvaluatePending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

package controller

import (
	"codeblack/internal/contest/auth"
	"codeblack/internal/contest/submit"
	"codeblack/pkg/errors"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CompetitorController handles competitor endpoints.
type CompetitorController struct {
	submit *submit.Service
}

// NewCompetitorController creates a CompetitorController.
func NewCompetitorController(submitService *submit.Service) *CompetitorController {
	return &CompetitorController{submit: submitService}
}

// Submit grades a submission for the caller.
func (h *CompetitorController) Submit(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.Error(c, errors.UnauthorizedError(""))
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.submit.Submit(c.Request.Context(), submit.Input{
		Username: id.Username,
		Code:     req.Code,
		Language: req.Language,
		Round:    req.Round,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MySubmissions lists the caller's submissions with feedback.
func (h *CompetitorController) MySubmissions(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.Error(c, errors.UnauthorizedError(""))
		return
	}
	subs, err := h.submit.ListByUser(c.Request.Context(), id.Username)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, subs)
}

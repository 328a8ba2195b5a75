package controller

import (
	"codeblack/internal/contest/auth"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthController handles login.
type AuthController struct {
	auth *auth.Service
}

// NewAuthController creates an AuthController.
func NewAuthController(authService *auth.Service) *AuthController {
	return &AuthController{auth: authService}
}

// Login exchanges credentials for a bearer token.
func (h *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, token)
}

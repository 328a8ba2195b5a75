package controller

import (
	commonmw "codeblack/internal/common/http/middleware"
	"codeblack/internal/contest/auth"
	"codeblack/internal/contest/state"

	"github.com/gin-gonic/gin"
)

// Controllers groups every HTTP handler of the contest service.
type Controllers struct {
	Auth       *AuthController
	Admin      *AdminController
	Competitor *CompetitorController
	Health     *HealthController
	// Realtime upgrades websocket connections.
	Realtime gin.HandlerFunc
	// Limiter throttles login and submission; nil disables it.
	Limiter *commonmw.RateLimiter
}

// Register mounts the routes on r.
func Register(r gin.IRouter, authService *auth.Service, h Controllers) {
	r.GET("/health", h.Health.Health)
	if h.Realtime != nil {
		r.GET("/ws", h.Realtime)
	}

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.Limiter.Middleware("login"), h.Auth.Login)

	competitor := api.Group("", auth.Middleware(authService, state.RoleCompetitor))
	competitor.POST("/submissions", h.Limiter.Middleware("submit"), h.Competitor.Submit)
	competitor.GET("/submissions/mine", h.Competitor.MySubmissions)

	admin := api.Group("/admin", auth.Middleware(authService, state.RoleAdmin))
	admin.GET("/state", h.Admin.State)
	admin.POST("/rounds/start", h.Admin.StartRound)
	admin.POST("/rounds/end", h.Admin.EndRound)
	admin.POST("/users/remove", h.Admin.RemoveUser)
	admin.POST("/users/revoke", h.Admin.RevokeRemoval)
	admin.POST("/reset", h.Admin.Reset)
	admin.GET("/submissions", h.Admin.Submissions)
	admin.POST("/submissions/evaluate-pending", h.Admin.EvaluatePending)
}

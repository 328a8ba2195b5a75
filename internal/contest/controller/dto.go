package controller

import (
	"codeblack/internal/contest/integrity"
	"codeblack/internal/contest/state"
)

// LoginRequest is the login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// StartRoundRequest is the start-round body. Round 0 starts the next round.
type StartRoundRequest struct {
	Round int `json:"round" binding:"gte=0"`
}

// UserRequest targets one competitor.
type UserRequest struct {
	Username string `json:"username" binding:"required"`
}

// SubmitRequest is a competitor submission.
type SubmitRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
	Round    int    `json:"round" binding:"required,gt=0"`
}

// AdminState is the admin dashboard payload.
type AdminState struct {
	state.Snapshot
	Violations []integrity.Record `json:"violations"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Server        string       `json:"server"`
	Judge         string       `json:"judge"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Competitors   int          `json:"competitors"`
	Connections   int          `json:"connections"`
	CurrentRound  int          `json:"current_round"`
	RoundStatus   state.Status `json:"round_status"`
}

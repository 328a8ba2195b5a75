// Package realtime pushes contest events over websockets and feeds client
// messages back into the contest.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"codeblack/internal/contest/auth"
	"codeblack/internal/contest/integrity"
	"codeblack/internal/contest/state"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"
	"codeblack/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Client to server events.
const (
	EventRegister            = "register"
	EventCodeUpdate          = "code:update"
	EventViolationFullscreen = "violation:fullscreen"
	EventViolationTabSwitch  = "violation:tab_switch"
)

// Config holds websocket settings.
type Config struct {
	CheckOrigin     bool          `yaml:"checkOrigin"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ReadBufferSize  int           `yaml:"readBufferSize"`
	WriteBufferSize int           `yaml:"writeBufferSize"`
	WriteWait       time.Duration `yaml:"writeWait"`
	PongWait        time.Duration `yaml:"pongWait"`
	PingPeriod      time.Duration `yaml:"pingPeriod"`
	MaxMessageSize  int64         `yaml:"maxMessageSize"`
	SendBuffer      int           `yaml:"sendBuffer"`
}

// DefaultConfig returns the websocket defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		MaxMessageSize:  256 * 1024,
		SendBuffer:      64,
	}
}

// Envelope is the wire format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Contest is the session side of the state machine.
type Contest interface {
	Register(ctx context.Context, username string, role state.Role, connID string) (state.Sync, error)
	Disconnect(ctx context.Context, username, connID string)
}

// Violations receives focus violations.
type Violations interface {
	Report(ctx context.Context, username string, kind integrity.Kind) (integrity.Record, error)
}

// Drafts receives edit buffer updates.
type Drafts interface {
	UpdateDraft(username, code, language string)
}

// Authenticator verifies connection tokens.
type Authenticator interface {
	Authenticate(raw string) (auth.Identity, error)
}

// Hub tracks one live connection per user.
type Hub struct {
	cfg        Config
	upgrader   websocket.Upgrader
	auth       Authenticator
	contest    Contest
	violations Violations
	drafts     Drafts

	clients *xsync.MapOf[string, *client]
}

// NewHub creates a hub. violations and drafts may be nil.
func NewHub(cfg Config, authenticator Authenticator, contest Contest, violations Violations, drafts Drafts) *Hub {
	def := DefaultConfig()
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = def.WriteBufferSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	h := &Hub{
		cfg:        cfg,
		auth:       authenticator,
		contest:    contest,
		violations: violations,
		drafts:     drafts,
		clients:    xsync.NewMapOf[string, *client](),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if !h.cfg.CheckOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ServeWS authenticates the token query parameter and upgrades the request.
func (h *Hub) ServeWS(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		raw = auth.ExtractBearerToken(c.GetHeader("Authorization"))
	}
	id, err := h.auth.Authenticate(raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(h, conn, id, uuid.NewString())
	go cl.writePump()
	cl.readPump()
}

// Broadcast implements state.Notifier.
func (h *Hub) Broadcast(event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	h.clients.Range(func(_ string, cl *client) bool {
		cl.enqueue(msg)
		return true
	})
}

// Send implements state.Notifier.
func (h *Hub) Send(username, event string, data any) bool {
	cl, ok := h.clients.Load(username)
	if !ok {
		return false
	}
	msg, ok := encode(event, data)
	if !ok {
		return false
	}
	return cl.enqueue(msg)
}

// Close implements state.Notifier.
func (h *Hub) Close(username string) {
	cl, ok := h.clients.LoadAndDelete(username)
	if !ok {
		return
	}
	cl.close()
}

// Connected returns the number of registered connections.
func (h *Hub) Connected() int {
	return h.clients.Size()
}

func (h *Hub) attach(cl *client) {
	prev, loaded := h.clients.LoadAndStore(cl.identity.Username, cl)
	if loaded && prev != cl {
		prev.close()
	}
}

func (h *Hub) detach(cl *client) {
	h.clients.Compute(cl.identity.Username, func(cur *client, loaded bool) (*client, bool) {
		if !loaded {
			return cur, true
		}
		return cur, cur == cl
	})
}

func (h *Hub) handle(ctx context.Context, cl *client, env Envelope) {
	id := cl.identity
	switch env.Event {
	case EventRegister:
		h.register(ctx, cl)
	case EventCodeUpdate:
		if h.drafts == nil || id.Role != state.RoleCompetitor || !cl.registered.Load() {
			return
		}
		var payload struct {
			Code     string `json:"code"`
			Language string `json:"language"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			logger.Debug(ctx, "invalid code update", zap.Error(err))
			return
		}
		h.drafts.UpdateDraft(id.Username, payload.Code, payload.Language)
	case EventViolationFullscreen, EventViolationTabSwitch:
		if h.violations == nil || id.Role != state.RoleCompetitor || !cl.registered.Load() {
			return
		}
		kind := integrity.KindFullscreen
		if env.Event == EventViolationTabSwitch {
			kind = integrity.KindTabSwitch
		}
		if _, err := h.violations.Report(ctx, id.Username, kind); err != nil {
			logger.Warn(ctx, "report violation failed", zap.String("username", id.Username), zap.Error(err))
		}
	default:
		logger.Debug(ctx, "unknown client event", zap.String("event", env.Event))
	}
}

// register is idempotent; clients resend it after every reconnect.
func (h *Hub) register(ctx context.Context, cl *client) {
	id := cl.identity
	st, err := h.contest.Register(ctx, id.Username, id.Role, cl.id)
	if err != nil {
		if appErr.Is(err, appErr.UserRemoved) {
			if msg, ok := encode(state.EventUserRemoved, map[string]string{"username": id.Username}); ok {
				cl.enqueue(msg)
			}
			cl.close()
			return
		}
		logger.Warn(ctx, "register failed", zap.String("username", id.Username), zap.Error(err))
		return
	}
	cl.registered.Store(true)
	h.attach(cl)
	if msg, ok := encode(state.EventStateSync, st); ok {
		cl.enqueue(msg)
	}
}

func encode(event string, data any) ([]byte, bool) {
	msg, err := json.Marshal(outgoing{Event: event, Data: data})
	if err != nil {
		logger.Error(context.Background(), "encode realtime event failed", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return msg, true
}

package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"codeblack/internal/contest/auth"
	"codeblack/pkg/utils/contextkey"
	"codeblack/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity auth.Identity
	id       string

	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	registered atomic.Bool
}

func newClient(h *Hub, conn *websocket.Conn, identity auth.Identity, id string) *client {
	return &client{
		hub:      h,
		conn:     conn,
		identity: identity,
		id:       id,
		send:     make(chan []byte, h.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue never blocks. A client whose buffer is full is dropped.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		logger.Warn(context.Background(), "realtime client too slow, closing", zap.String("username", c.identity.Username))
		c.close()
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readPump() {
	ctx := context.WithValue(context.Background(), contextkey.Username, c.identity.Username)
	defer func() {
		c.hub.detach(c)
		c.close()
		if c.registered.Load() {
			c.hub.contest.Disconnect(ctx, c.identity.Username, c.id)
		}
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Debug(ctx, "invalid websocket message", zap.Error(err))
			continue
		}
		c.hub.handle(ctx, c, env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			// flush what was queued before the close, e.g. a kick notice
			for {
				select {
				case msg := <-c.send:
					if !c.write(websocket.TextMessage, msg) {
						return
					}
				default:
					c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
	return c.conn.WriteMessage(messageType, data) == nil
}

package state

import (
	"context"
	"fmt"

	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
)

type delivery struct {
	username string
	event    string
	data     any
}

// outbox collects side effects while the state lock is held so they can be
// delivered after it is released.
type outbox struct {
	notifier   Notifier
	msgs       []delivery
	closes     []string
	endedRound int
	endHooks   []RoundEndHook
}

func (m *Machine) newOutbox() *outbox {
	return &outbox{notifier: m.notifier}
}

func (o *outbox) broadcast(event string, data any) {
	o.msgs = append(o.msgs, delivery{event: event, data: data})
}

func (o *outbox) send(username, event string, data any) {
	o.msgs = append(o.msgs, delivery{username: username, event: event, data: data})
}

func (o *outbox) close(username string) {
	o.closes = append(o.closes, username)
}

func (o *outbox) flush(ctx context.Context) {
	for _, msg := range o.msgs {
		if msg.username == "" {
			o.notifier.Broadcast(msg.event, msg.data)
			continue
		}
		o.notifier.Send(msg.username, msg.event, msg.data)
	}
	for _, username := range o.closes {
		o.notifier.Close(username)
	}
	if o.endedRound == 0 {
		return
	}
	for _, hook := range o.endHooks {
		go runEndHook(hook, o.endedRound)
	}
}

func runEndHook(hook RoundEndHook, round int) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "round end hook panicked", zap.Int("round", round), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	hook(ctx, round)
}

type noopNotifier struct{}

func (noopNotifier) Broadcast(string, any) {}

func (noopNotifier) Send(string, string, any) bool { return false }

func (noopNotifier) Close(string) {}

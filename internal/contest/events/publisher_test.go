package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"codeblack/internal/common/mq"
	"codeblack/internal/contest/repository"
	"codeblack/internal/judge/scoring"
	appErr "codeblack/pkg/errors"
)

type captureProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (c *captureProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	if c.err != nil {
		return c.err
	}
	c.topic = topic
	c.messages = append(c.messages, message)
	return nil
}

func (c *captureProducer) Close() error { return nil }

func TestPublishResult(t *testing.T) {
	producer := &captureProducer{}
	p := NewPublisher(producer, "contest.results")
	sub := repository.Submission{
		ID:       "s1",
		Username: "alice",
		Round:    1,
		Status:   repository.StatusEvaluated,
		Score:    97,
		Result:   &scoring.Result{Score: 97, ErrorType: scoring.ErrorTypeAccepted},
	}
	if err := p.PublishResult(context.Background(), sub); err != nil {
		t.Fatalf("PublishResult failed: %v", err)
	}
	if producer.topic != "contest.results" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish: %q %d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.Key != "alice" || msg.ID != "s1" {
		t.Fatalf("unexpected message identity: key=%q id=%q", msg.Key, msg.ID)
	}
	var event ResultEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if event.Score != 97 || event.ErrorType != scoring.ErrorTypeAccepted || event.Status != repository.StatusEvaluated {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestPublishResultErrors(t *testing.T) {
	var nilPublisher *Publisher
	if err := nilPublisher.PublishResult(context.Background(), repository.Submission{ID: "s1"}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	p := NewPublisher(&captureProducer{err: errors.New("broker down")}, "topic")
	if err := p.PublishResult(context.Background(), repository.Submission{ID: "s1"}); !appErr.Is(err, appErr.QueueError) {
		t.Fatalf("expected QueueError, got %v", err)
	}
	if err := NewPublisher(&captureProducer{}, "").PublishResult(context.Background(), repository.Submission{ID: "s1"}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %v", err)
	}
}

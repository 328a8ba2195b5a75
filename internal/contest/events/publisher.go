// Package events publishes finalized submission results to the message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codeblack/internal/common/mq"
	"codeblack/internal/contest/repository"
	appErr "codeblack/pkg/errors"
)

// ResultEvent is the payload published for every finalized submission.
type ResultEvent struct {
	SubmissionID  string            `json:"submissionId"`
	Username      string            `json:"username"`
	Round         int               `json:"round"`
	ProblemID     string            `json:"problemId"`
	ProblemIndex  int               `json:"problemIndex"`
	Language      string            `json:"language"`
	Status        repository.Status `json:"status"`
	Score         int               `json:"score"`
	ErrorType     string            `json:"errorType,omitempty"`
	AutoSubmitted bool              `json:"autoSubmitted"`
	CreatedAt     int64             `json:"createdAt"`
}

// Publisher sends result events keyed by username.
type Publisher struct {
	producer mq.Producer
	topic    string
}

// NewPublisher creates a result publisher.
func NewPublisher(producer mq.Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// PublishResult publishes one submission result.
func (p *Publisher) PublishResult(ctx context.Context, sub repository.Submission) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("result topic is required")
	}
	if sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	event := ResultEvent{
		SubmissionID:  sub.ID,
		Username:      sub.Username,
		Round:         sub.Round,
		ProblemID:     sub.ProblemID,
		ProblemIndex:  sub.ProblemIndex,
		Language:      sub.Language,
		Status:        sub.Status,
		Score:         sub.Score,
		AutoSubmitted: sub.AutoSubmitted,
		CreatedAt:     time.Now().Unix(),
	}
	if sub.Result != nil {
		event.ErrorType = sub.Result.ErrorType
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = sub.ID
	message.Key = sub.Username
	message.SetHeader("content-type", "application/json")
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "publish result event failed")
	}
	return nil
}

package evaluator

import (
	"context"

	"codeblack/internal/judge/scoring"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
)

// Chain consults the external judge when it answers its health probe and
// falls back to the local evaluator otherwise.
type Chain struct {
	external *Client
	local    Evaluator
}

// NewChain creates a fallback chain. external may be nil.
func NewChain(external *Client, local Evaluator) *Chain {
	return &Chain{external: external, local: local}
}

// Evaluate never fails because of the external judge; only local errors surface.
func (c *Chain) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	if c.external != nil {
		outcome, err := c.tryExternal(ctx, req)
		if err == nil {
			return outcome, nil
		}
		logger.Warn(ctx, "external judge unavailable, using local evaluator",
			zap.String("submission_id", req.SubmissionID),
			zap.Error(err),
		)
	}
	return c.local.Evaluate(ctx, req)
}

// ExternalHealthy reports the external judge health; false when not configured.
func (c *Chain) ExternalHealthy(ctx context.Context) bool {
	if c.external == nil {
		return false
	}
	return c.external.Health(ctx) == nil
}

func (c *Chain) tryExternal(ctx context.Context, req Request) (Outcome, error) {
	if err := c.external.Health(ctx); err != nil {
		return Outcome{}, err
	}
	if c.external.Mode() == ModeReview {
		review, err := c.external.Review(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Review: &review, Source: scoring.SourceExternal}, nil
	}
	verdict, err := c.external.Evaluate(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Verdict: verdict, Source: scoring.SourceExternal}, nil
}

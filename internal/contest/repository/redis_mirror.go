package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codeblack/internal/common/cache"
	appErr "codeblack/pkg/errors"
)

const submissionsKey = "contest:submissions"

// RedisMirror keeps the ledger in a redis hash keyed by submission id.
type RedisMirror struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewRedisMirror creates a mirror. ttl 0 keeps the hash forever.
func NewRedisMirror(cacheClient cache.Cache, ttl time.Duration) *RedisMirror {
	return &RedisMirror{cache: cacheClient, TTL: ttl}
}

// Put writes one submission.
func (m *RedisMirror) Put(ctx context.Context, sub Submission) error {
	if m.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission failed: %w", err)
	}
	if err := m.cache.HSet(ctx, submissionsKey, sub.ID, string(data)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store submission failed")
	}
	if m.TTL > 0 {
		if err := m.cache.Expire(ctx, submissionsKey, m.TTL); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "expire submissions failed")
		}
	}
	return nil
}

// LoadAll reads every mirrored submission.
func (m *RedisMirror) LoadAll(ctx context.Context) ([]Submission, error) {
	if m.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	fields, err := m.cache.HGetAll(ctx, submissionsKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load submissions failed")
	}
	out := make([]Submission, 0, len(fields))
	for id, raw := range fields {
		var sub Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, appErr.Wrapf(err, appErr.CacheError, "decode submission %s failed", id)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Clear deletes the hash.
func (m *RedisMirror) Clear(ctx context.Context) error {
	if m.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := m.cache.Del(ctx, submissionsKey); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "clear submissions failed")
	}
	return nil
}

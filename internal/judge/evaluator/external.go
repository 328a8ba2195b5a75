package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeblack/internal/judge/scoring"
)

const (
	ModeEvaluate = "evaluate"
	ModeReview   = "review"

	maxResponseBytes = 1 << 20
)

// ExternalConfig configures the external judge client.
type ExternalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"baseURL"`
	Mode            string        `yaml:"mode"`
	ProbeTimeout    time.Duration `yaml:"probeTimeout"`
	EvaluateTimeout time.Duration `yaml:"evaluateTimeout"`
}

// Client talks to the external judge over HTTP.
type Client struct {
	baseURL         string
	mode            string
	probeTimeout    time.Duration
	evaluateTimeout time.Duration
	httpClient      *http.Client
}

// NewClient creates a client. A nil httpClient uses a default one.
func NewClient(cfg ExternalConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("external judge base url is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeEvaluate
	}
	if cfg.Mode != ModeEvaluate && cfg.Mode != ModeReview {
		return nil, fmt.Errorf("unsupported external judge mode: %s", cfg.Mode)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.EvaluateTimeout <= 0 {
		cfg.EvaluateTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		mode:            cfg.Mode,
		probeTimeout:    cfg.ProbeTimeout,
		evaluateTimeout: cfg.EvaluateTimeout,
		httpClient:      httpClient,
	}, nil
}

// Mode returns evaluate or review.
func (c *Client) Mode() string {
	return c.mode
}

// Health probes the judge with the short probe timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %d", resp.StatusCode)
	}
	return nil
}

type evaluatePayload struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"test_cases"`
	TimeLimit int64      `json:"time_limit"`
}

type reviewPayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Problem  string `json:"problem"`
}

// Evaluate asks the judge to run every test case and returns its verdict.
func (c *Client) Evaluate(ctx context.Context, req Request) (scoring.Verdict, error) {
	var verdict scoring.Verdict
	err := c.post(ctx, "/evaluate", evaluatePayload{
		Code:      req.Code,
		Language:  req.Language,
		TestCases: req.TestCases,
		TimeLimit: req.TimeLimitMs,
	}, &verdict)
	if err != nil {
		return scoring.Verdict{}, err
	}
	verdict.Source = scoring.SourceExternal
	return verdict, nil
}

// Review asks the judge for a static review of the code.
func (c *Client) Review(ctx context.Context, req Request) (scoring.Review, error) {
	var review scoring.Review
	err := c.post(ctx, "/review", reviewPayload{
		Code:     req.Code,
		Language: req.Language,
		Problem:  req.Statement,
	}, &review)
	return review, err
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.evaluateTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

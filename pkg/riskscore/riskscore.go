// Package riskscore provides a client for an external vote fraud-risk scorer.
package riskscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/logger"
)

// ActionBlock is the scorer action that, with a high enough score, rejects a vote.
const ActionBlock = "block"

// Signals are the per-vote facts sent to the scorer
type Signals struct {
	AccountAgeMinutes int64  `json:"account_age_minutes"` // -1 when unknown
	UserAgent         string `json:"user_agent"`
	BotLikeUserAgent  bool   `json:"bot_like_user_agent"`
	IP                string `json:"ip"`
	Burst2Min         int    `json:"burst_2min"`
	LifetimeVotes     int    `json:"lifetime_votes"`
	Tier              string `json:"tier"`
	EmailDomain       string `json:"email_domain"`
}

// Verdict is the scorer's opinion of a vote
type Verdict struct {
	RiskScore int      `json:"risk_score"`
	Flags     []string `json:"flags"`
	Action    string   `json:"action"`
}

// Client defines the interface for risk scoring
type Client interface {
	// Classify returns the scorer's verdict for the given signals
	Classify(ctx context.Context, s Signals) (Verdict, error)
}

// HTTPClient posts signals as JSON to a scorer endpoint
type HTTPClient struct {
	url        string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPClient creates a scorer client with the given per-call timeout
func NewHTTPClient(url string, timeout time.Duration, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// NewHTTPClientWithHTTPClient creates a scorer client with a custom http.Client
func NewHTTPClientWithHTTPClient(url string, httpClient *http.Client, log logger.Logger) *HTTPClient {
	return &HTTPClient{url: url, httpClient: httpClient, log: log}
}

// Classify sends the signals and decodes the verdict. Any transport,
// status or decoding problem is returned as an error.
func (c *HTTPClient) Classify(ctx context.Context, s Signals) (Verdict, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to encode signals: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("Risk scorer request", "url", c.url, "tier", s.Tier, "burst_2min", s.Burst2Min)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to reach risk scorer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("risk scorer returned status %d: %s", resp.StatusCode, string(raw))
	}

	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse response: %w", err)
	}

	c.log.Debug("Risk scorer response", "risk_score", v.RiskScore, "action", v.Action, "flags", v.Flags)
	return v, nil
}

// AllowAll is a Client that never objects. Used when no scorer is configured.
type AllowAll struct{}

// Classify always returns an allow verdict
func (AllowAll) Classify(context.Context, Signals) (Verdict, error) {
	return Verdict{RiskScore: 0, Action: "allow"}, nil
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = AllowAll{}
	_ Client = (*MockClient)(nil)
)

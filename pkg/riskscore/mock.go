package riskscore

import (
	"context"
	"sync"
	"time"
)

// MockClient is a mock risk scorer for testing
type MockClient struct {
	mu       sync.Mutex
	verdict  Verdict
	err      error
	delay    time.Duration
	received []Signals
}

// MockOption configures the mock client
type MockOption func(*MockClient)

// WithVerdict sets the verdict to return
func WithVerdict(v Verdict) MockOption {
	return func(m *MockClient) {
		m.verdict = v
	}
}

// WithError sets an error to return from Classify
func WithError(err error) MockOption {
	return func(m *MockClient) {
		m.err = err
	}
}

// WithDelay makes Classify wait before answering, honoring ctx cancellation
func WithDelay(d time.Duration) MockOption {
	return func(m *MockClient) {
		m.delay = d
	}
}

// NewMockClient creates a new mock scorer that allows everything by default
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{verdict: Verdict{Action: "allow"}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Classify records the signals and returns the configured verdict
func (m *MockClient) Classify(ctx context.Context, s Signals) (Verdict, error) {
	m.mu.Lock()
	m.received = append(m.received, s)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		}
	}
	if m.err != nil {
		return Verdict{}, m.err
	}
	return m.verdict, nil
}

// Received returns the signals seen so far
func (m *MockClient) Received() []Signals {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Signals, len(m.received))
	copy(out, m.received)
	return out
}

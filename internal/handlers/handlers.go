package handlers

import (
	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/services"
	"github.com/abrezinsky/weeklyvote/internal/websocket"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Voting     services.VotingServicer
	Fraud      services.FraudServicer
	Results    services.ResultsServicer
	Submission services.SubmissionServicer
	Seed       services.SeedServicer
	Auth       *auth.Auth
	Hub        *websocket.Hub
	Log        logger.Logger
}

// New creates a new Handlers instance with all dependencies
func New(
	voting services.VotingServicer,
	fraud services.FraudServicer,
	results services.ResultsServicer,
	submission services.SubmissionServicer,
	seed services.SeedServicer,
	adminAuth *auth.Auth,
	hub *websocket.Hub,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Voting:     voting,
		Fraud:      fraud,
		Results:    results,
		Submission: submission,
		Seed:       seed,
		Auth:       adminAuth,
		Hub:        hub,
		Log:        log,
	}
}

// NewForTesting creates a Handlers instance with a known admin login
// (admin / test-password) and no websocket hub.
func NewForTesting(
	voting services.VotingServicer,
	fraud services.FraudServicer,
	results services.ResultsServicer,
	submission services.SubmissionServicer,
	seed services.SeedServicer,
	log logger.Logger,
) *Handlers {
	return New(voting, fraud, results, submission, seed, auth.New("admin", "test-password"), nil, log)
}

package services

import (
	"context"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Broadcaster pushes live events to connected dashboards
type Broadcaster interface {
	BroadcastMessage(msgType string, payload interface{})
}

// TierResolver maps a caller's email to a subscription tier
type TierResolver interface {
	ResolveTier(ctx context.Context, email string) (models.Tier, error)
}

// VotingServicer defines the interface for vote admission
type VotingServicer interface {
	CastVote(ctx context.Context, req VoteRequest) (*VoteResult, error)
	GetVoterStatus(ctx context.Context, identity *models.Identity, periodID int) (*VoterStatus, error)
}

// FraudServicer defines the interface for fraud scans
type FraudServicer interface {
	ScanFraud(ctx context.Context, actor models.Actor, periodID int, opts ScanOptions) (*FraudReport, error)
	GetAuditTrail(ctx context.Context, actor models.Actor, voteID int64) ([]models.AuditEvent, error)
}

// ResultsServicer defines the interface for scoring and winners
type ResultsServicer interface {
	PublishResults(ctx context.Context, actor models.Actor, periodID int) (*PublishResult, error)
	PreviewRanking(ctx context.Context, actor models.Actor, periodID int) ([]CategoryRanking, error)
	GetWinners(ctx context.Context, periodID int) ([]repository.WinnerRow, error)
}

// SubmissionServicer defines the interface for submission sharing
type SubmissionServicer interface {
	GetSubmission(ctx context.Context, id int) (*models.Submission, error)
	ShareQR(ctx context.Context, id int) ([]byte, error)
}

// SeedServicer defines the interface for demo data
type SeedServicer interface {
	SeedDemo(ctx context.Context, actor models.Actor) (*SeedResult, error)
}

// Ensure concrete types implement interfaces
var (
	_ VotingServicer     = (*VotingService)(nil)
	_ FraudServicer      = (*FraudService)(nil)
	_ ResultsServicer    = (*ResultsService)(nil)
	_ SubmissionServicer = (*SubmissionService)(nil)
	_ SeedServicer       = (*SeedService)(nil)
	_ TierResolver       = (*RepositoryTierResolver)(nil)
)

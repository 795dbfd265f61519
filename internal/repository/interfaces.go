package repository

import (
	"context"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
)

// PeriodRepository defines contest period data operations
type PeriodRepository interface {
	GetPeriod(ctx context.Context, id int) (*models.ContestPeriod, error)
	CreatePeriod(ctx context.Context, p models.ContestPeriod) (int64, error)
}

// CatalogRepository defines category and submission data operations
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, c models.Category) (int64, error)
	GetSubmission(ctx context.Context, id int) (*models.Submission, error)
	ListSubmissionsForPeriod(ctx context.Context, periodID int) ([]models.Submission, error)
	CreateSubmission(ctx context.Context, s models.Submission) (int64, error)
}

// ProfileRepository defines voter profile and subscription data operations
type ProfileRepository interface {
	GetSubscriptionTier(ctx context.Context, email string) (string, error)
	SetSubscriptionTier(ctx context.Context, email, tier string) error
}

// VoteRepository defines vote admission data operations
type VoteRepository interface {
	HasVote(ctx context.Context, voterID string, categoryID, periodID int) (bool, error)
	GetVoterActivity(ctx context.Context, voterID string, periodID int, now time.Time) (VoterActivity, error)
	CommitVote(ctx context.Context, c VoteCommit) error
	ListValidVotesForPeriod(ctx context.Context, periodID int) ([]models.Vote, error)
}

// AuditRepository defines audit log data operations. Events are insert-only.
type AuditRepository interface {
	ListCastEvents(ctx context.Context, periodID int) ([]CastEventRow, error)
	ListEventsForVote(ctx context.Context, voteID int64) ([]models.AuditEvent, error)
	InvalidateVotes(ctx context.Context, voteIDs []int64, actorID, reason string, at time.Time) (int, error)
}

// ResultsRepository defines winner, reward and pool data operations
type ResultsRepository interface {
	GetRewardPool(ctx context.Context, periodID int) (*models.RewardPool, error)
	UpsertRewardPool(ctx context.Context, p models.RewardPool) error
	ReplaceResults(ctx context.Context, r ResultsReplacement) error
	ListWinners(ctx context.Context, periodID int) ([]WinnerRow, error)
}

// SeedRepository defines bulk demo data operations
type SeedRepository interface {
	SeedPeriod(ctx context.Context, ps PeriodSeed) (*SeedOutcome, error)
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	PeriodRepository
	CatalogRepository
	ProfileRepository
	VoteRepository
	AuditRepository
	ResultsRepository
	SeedRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)

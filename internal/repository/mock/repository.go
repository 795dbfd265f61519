package mock

import (
	"context"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.ReplaceResultsError = errors.New("database error")
//	svc := services.NewResultsService(log, mockRepo, clock)
//	_, err := svc.PublishResults(ctx, admin, periodID)
//	// err will now wrap the injected error
type Repository struct {
	repository.FullRepository

	// ===== Period / Catalog Errors =====
	GetPeriodError                error
	GetSubmissionError            error
	ListCategoriesError           error
	ListSubmissionsForPeriodError error

	// ===== Profile Errors =====
	GetSubscriptionTierError error

	// ===== Vote Errors =====
	HasVoteError                 error
	GetVoterActivityError        error
	CommitVoteError              error
	ListValidVotesForPeriodError error

	// ===== Audit Errors =====
	ListCastEventsError    error
	ListEventsForVoteError error
	InvalidateVotesError   error

	// ===== Results Errors =====
	GetRewardPoolError  error
	ReplaceResultsError error
	ListWinnersError    error

	// ===== Seed Errors =====
	SeedPeriodError error
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

func (m *Repository) GetPeriod(ctx context.Context, id int) (*models.ContestPeriod, error) {
	if m.GetPeriodError != nil {
		return nil, m.GetPeriodError
	}
	return m.FullRepository.GetPeriod(ctx, id)
}

func (m *Repository) GetSubmission(ctx context.Context, id int) (*models.Submission, error) {
	if m.GetSubmissionError != nil {
		return nil, m.GetSubmissionError
	}
	return m.FullRepository.GetSubmission(ctx, id)
}

func (m *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	if m.ListCategoriesError != nil {
		return nil, m.ListCategoriesError
	}
	return m.FullRepository.ListCategories(ctx)
}

func (m *Repository) ListSubmissionsForPeriod(ctx context.Context, periodID int) ([]models.Submission, error) {
	if m.ListSubmissionsForPeriodError != nil {
		return nil, m.ListSubmissionsForPeriodError
	}
	return m.FullRepository.ListSubmissionsForPeriod(ctx, periodID)
}

func (m *Repository) GetSubscriptionTier(ctx context.Context, email string) (string, error) {
	if m.GetSubscriptionTierError != nil {
		return "", m.GetSubscriptionTierError
	}
	return m.FullRepository.GetSubscriptionTier(ctx, email)
}

func (m *Repository) HasVote(ctx context.Context, voterID string, categoryID, periodID int) (bool, error) {
	if m.HasVoteError != nil {
		return false, m.HasVoteError
	}
	return m.FullRepository.HasVote(ctx, voterID, categoryID, periodID)
}

func (m *Repository) GetVoterActivity(ctx context.Context, voterID string, periodID int, now time.Time) (repository.VoterActivity, error) {
	if m.GetVoterActivityError != nil {
		return repository.VoterActivity{}, m.GetVoterActivityError
	}
	return m.FullRepository.GetVoterActivity(ctx, voterID, periodID, now)
}

func (m *Repository) CommitVote(ctx context.Context, c repository.VoteCommit) error {
	if m.CommitVoteError != nil {
		return m.CommitVoteError
	}
	return m.FullRepository.CommitVote(ctx, c)
}

func (m *Repository) ListValidVotesForPeriod(ctx context.Context, periodID int) ([]models.Vote, error) {
	if m.ListValidVotesForPeriodError != nil {
		return nil, m.ListValidVotesForPeriodError
	}
	return m.FullRepository.ListValidVotesForPeriod(ctx, periodID)
}

func (m *Repository) ListCastEvents(ctx context.Context, periodID int) ([]repository.CastEventRow, error) {
	if m.ListCastEventsError != nil {
		return nil, m.ListCastEventsError
	}
	return m.FullRepository.ListCastEvents(ctx, periodID)
}

func (m *Repository) ListEventsForVote(ctx context.Context, voteID int64) ([]models.AuditEvent, error) {
	if m.ListEventsForVoteError != nil {
		return nil, m.ListEventsForVoteError
	}
	return m.FullRepository.ListEventsForVote(ctx, voteID)
}

func (m *Repository) InvalidateVotes(ctx context.Context, voteIDs []int64, actorID, reason string, at time.Time) (int, error) {
	if m.InvalidateVotesError != nil {
		return 0, m.InvalidateVotesError
	}
	return m.FullRepository.InvalidateVotes(ctx, voteIDs, actorID, reason, at)
}

func (m *Repository) GetRewardPool(ctx context.Context, periodID int) (*models.RewardPool, error) {
	if m.GetRewardPoolError != nil {
		return nil, m.GetRewardPoolError
	}
	return m.FullRepository.GetRewardPool(ctx, periodID)
}

func (m *Repository) ReplaceResults(ctx context.Context, r repository.ResultsReplacement) error {
	if m.ReplaceResultsError != nil {
		return m.ReplaceResultsError
	}
	return m.FullRepository.ReplaceResults(ctx, r)
}

func (m *Repository) ListWinners(ctx context.Context, periodID int) ([]repository.WinnerRow, error) {
	if m.ListWinnersError != nil {
		return nil, m.ListWinnersError
	}
	return m.FullRepository.ListWinners(ctx, periodID)
}

func (m *Repository) SeedPeriod(ctx context.Context, ps repository.PeriodSeed) (*repository.SeedOutcome, error) {
	if m.SeedPeriodError != nil {
		return nil, m.SeedPeriodError
	}
	return m.FullRepository.SeedPeriod(ctx, ps)
}

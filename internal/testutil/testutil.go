package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// FixedClock returns the same instant until moved
type FixedClock struct {
	T time.Time
}

// Now returns the clock's current instant
func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// Fixture is a period with one category and helpers to add submissions
type Fixture struct {
	Repo       *repository.Repository
	PeriodID   int
	CategoryID int
	// VotingOpensAt is the start of the fixture period's voting window
	VotingOpensAt time.Time
}

// NewFixture creates a period whose voting window is open for one week from
// opensAt, plus a single category with the given weights (nil for defaults).
func NewFixture(t *testing.T, repo *repository.Repository, opensAt time.Time, weights *models.Weights) *Fixture {
	t.Helper()
	ctx := context.Background()

	periodID, err := repo.CreatePeriod(ctx, models.ContestPeriod{
		Label:             "Week " + opensAt.Format("2006-01-02"),
		SubmissionOpenAt:  opensAt.Add(-7 * 24 * time.Hour),
		SubmissionCloseAt: opensAt,
		VotingOpenAt:      opensAt,
		VotingCloseAt:     opensAt.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}

	f := &Fixture{Repo: repo, PeriodID: int(periodID), VotingOpensAt: opensAt}
	f.CategoryID = f.AddCategory(t, "Best Song", weights)
	return f
}

// AddCategory adds a category and returns its ID
func (f *Fixture) AddCategory(t *testing.T, name string, weights *models.Weights) int {
	t.Helper()
	c := models.Category{Name: name, DisplayOrder: 1}
	if weights != nil {
		c.WeightEmotion = &weights.Emotion
		c.WeightOriginality = &weights.Originality
		c.WeightProduction = &weights.Production
	}
	id, err := f.Repo.CreateCategory(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	return int(id)
}

// AddSubmission adds an approved submission owned by ownerID in the fixture category
func (f *Fixture) AddSubmission(t *testing.T, ownerID string) int {
	t.Helper()
	return f.AddSubmissionIn(t, f.CategoryID, ownerID, models.SubmissionApproved)
}

// AddSubmissionIn adds a submission with explicit category and status
func (f *Fixture) AddSubmissionIn(t *testing.T, categoryID int, ownerID, status string) int {
	t.Helper()
	id, err := f.Repo.CreateSubmission(context.Background(), models.Submission{
		PeriodID:   f.PeriodID,
		CategoryID: categoryID,
		OwnerID:    ownerID,
		Title:      fmt.Sprintf("Track by %s", ownerID),
		ArtistName: ownerID,
		Status:     status,
		CreatedAt:  f.VotingOpensAt.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}
	return int(id)
}

// Identity returns a confirmed identity whose account is a year old at opensAt
func (f *Fixture) Identity(userID string) models.Identity {
	created := f.VotingOpensAt.Add(-365 * 24 * time.Hour)
	return models.Identity{
		UserID:           userID,
		Email:            userID + "@example.com",
		EmailConfirmed:   true,
		DisplayName:      userID,
		AccountCreatedAt: &created,
	}
}

// Scores builds optional score pointers for a vote
func Scores(e, o, p int) (*int, *int, *int) {
	return &e, &o, &p
}

// InsertVote commits a vote with a cast event directly through the
// repository, bypassing admission limits. Used to lay down scan and scoring
// scenarios with precise timestamps.
func (f *Fixture) InsertVote(t *testing.T, voter models.Identity, submissionID int, ip string, at time.Time, e, o, p *int) int64 {
	t.Helper()
	sub, err := f.Repo.GetSubmission(context.Background(), submissionID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	v := &models.Vote{
		VoterID:      voter.UserID,
		SubmissionID: submissionID,
		CategoryID:   sub.CategoryID,
		PeriodID:     sub.PeriodID,
		Emotion:      e,
		Originality:  o,
		Production:   p,
	}
	ev := &models.AuditEvent{UserAgent: "Mozilla/5.0"}
	if ip != "" {
		ev.IPAddress = &ip
	}
	if err := f.Repo.CommitVote(context.Background(), repository.VoteCommit{
		Vote:  v,
		Event: ev,
		Voter: voter,
		Now:   at,
	}); err != nil {
		t.Fatalf("CommitVote failed: %v", err)
	}
	return v.ID
}

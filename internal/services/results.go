package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// WinnersPerCategory is the number of ranked places persisted per category
const WinnersPerCategory = 3

// Fallback reward labels by rank when the pool has no label configured
var defaultRewardLabels = [WinnersPerCategory]string{"Gold Spotlight", "Silver Spotlight", "Bronze Spotlight"}

// ResultsServiceRepository defines the repository methods needed by ResultsService
type ResultsServiceRepository interface {
	repository.PeriodRepository
	repository.CatalogRepository
	repository.VoteRepository
	repository.ResultsRepository
}

// ResultsService scores valid votes and publishes winners
type ResultsService struct {
	log         logger.Logger
	repo        ResultsServiceRepository
	clock       Clock
	broadcaster Broadcaster
}

// NewResultsService creates a new ResultsService
func NewResultsService(log logger.Logger, repo ResultsServiceRepository, clock Clock) *ResultsService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ResultsService{log: log.With("component", "results"), repo: repo, clock: clock}
}

// SetBroadcaster sets the live event broadcaster
func (s *ResultsService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// RankedSubmission is one submission's aggregate within a category
type RankedSubmission struct {
	SubmissionID  int       `json:"submission_id"`
	Title         string    `json:"title"`
	ArtistName    string    `json:"artist_name"`
	VoteCount     int       `json:"vote_count"`
	WeightedScore float64   `json:"weighted_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// CategoryRanking is the full ordering for one category
type CategoryRanking struct {
	CategoryID   int                `json:"category_id"`
	CategoryName string             `json:"category_name"`
	Weights      models.Weights     `json:"weights"`
	Ranked       []RankedSubmission `json:"ranked"`
}

// PublishResult summarizes a scoring run
type PublishResult struct {
	PeriodID     int       `json:"period_id"`
	WinnersCount int       `json:"winners_count"`
	RewardMode   string    `json:"reward_mode"`
	PublishedAt  time.Time `json:"published_at"`
}

// WeightedScore blends the three components of a vote. Missing
// components count as the neutral default.
func WeightedScore(v models.Vote, w models.Weights) float64 {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	e := scoreOrDefault(v.Emotion)
	o := scoreOrDefault(v.Originality)
	p := scoreOrDefault(v.Production)
	return (e*w.Emotion + o*w.Originality + p*w.Production) / sum
}

func scoreOrDefault(s *int) float64 {
	if s == nil {
		return models.DefaultComponentScore
	}
	return float64(*s)
}

// ComputeRanking ranks approved submissions per category by average
// weighted score. Ties break on vote count, then earlier submission, then
// lower id. Submissions without valid votes are left out.
func ComputeRanking(categories []models.Category, submissions []models.Submission, votes []models.Vote) []CategoryRanking {
	subs := make(map[int]models.Submission, len(submissions))
	for _, sub := range submissions {
		if sub.Status == models.SubmissionApproved {
			subs[sub.ID] = sub
		}
	}

	weights := make(map[int]models.Weights, len(categories))
	for _, c := range categories {
		weights[c.ID] = c.EffectiveWeights()
	}

	type agg struct {
		total float64
		count int
	}
	aggs := map[int]*agg{}
	for _, v := range votes {
		if !v.IsValid {
			continue
		}
		sub, ok := subs[v.SubmissionID]
		if !ok {
			continue
		}
		w, ok := weights[sub.CategoryID]
		if !ok {
			w = models.Category{}.EffectiveWeights()
		}
		a := aggs[v.SubmissionID]
		if a == nil {
			a = &agg{}
			aggs[v.SubmissionID] = a
		}
		a.total += WeightedScore(v, w)
		a.count++
	}

	byCategory := map[int][]RankedSubmission{}
	for id, a := range aggs {
		sub := subs[id]
		byCategory[sub.CategoryID] = append(byCategory[sub.CategoryID], RankedSubmission{
			SubmissionID:  id,
			Title:         sub.Title,
			ArtistName:    sub.ArtistName,
			VoteCount:     a.count,
			WeightedScore: a.total / float64(a.count),
			CreatedAt:     sub.CreatedAt,
		})
	}

	rankings := make([]CategoryRanking, 0, len(categories))
	for _, c := range categories {
		ranked := byCategory[c.ID]
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.WeightedScore != b.WeightedScore {
				return a.WeightedScore > b.WeightedScore
			}
			if a.VoteCount != b.VoteCount {
				return a.VoteCount > b.VoteCount
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.SubmissionID < b.SubmissionID
		})
		if ranked == nil {
			ranked = []RankedSubmission{}
		}
		rankings = append(rankings, CategoryRanking{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			Weights:      weights[c.ID],
			Ranked:       ranked,
		})
	}
	return rankings
}

// PublishResults scores the period and replaces its winners and rewards.
// Running it twice over the same votes persists the same rows.
func (s *ResultsService) PublishResults(ctx context.Context, actor models.Actor, periodID int) (*PublishResult, error) {
	ctx, span := tracer.Start(ctx, "results.PublishResults", trace.WithAttributes(
		attribute.Int("period_id", periodID),
	))
	defer span.End()

	res, err := s.publish(ctx, actor, periodID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("winners", res.WinnersCount),
		attribute.String("reward_mode", res.RewardMode),
	)
	return res, nil
}

func (s *ResultsService) publish(ctx context.Context, actor models.Actor, periodID int) (*PublishResult, error) {
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	rankings, err := s.rank(ctx, periodID)
	if err != nil {
		return nil, err
	}

	pool, err := s.repo.GetRewardPool(ctx, periodID)
	if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.Internal(err)
	}
	cash := pool.ThresholdMet()

	var winners []models.Winner
	var rewards []models.Reward
	for _, cr := range rankings {
		for i, rs := range cr.Ranked {
			if i >= WinnersPerCategory {
				break
			}
			rank := i + 1
			winners = append(winners, models.Winner{
				PeriodID:      periodID,
				CategoryID:    cr.CategoryID,
				Rank:          rank,
				SubmissionID:  rs.SubmissionID,
				VoteCount:     rs.VoteCount,
				WeightedScore: rs.WeightedScore,
			})
			rewards = append(rewards, buildReward(pool, cash, periodID, cr.CategoryID, rank))
		}
	}

	mode := models.RewardModeNonCash
	if cash {
		mode = models.RewardModeCash
	}
	now := s.clock.Now()

	if err := s.repo.ReplaceResults(ctx, repository.ResultsReplacement{
		PeriodID:    periodID,
		Winners:     winners,
		Rewards:     rewards,
		LockPool:    cash,
		PublishedAt: now,
	}); err != nil {
		s.log.Error("Failed to persist results", "period_id", periodID, "error", err)
		return nil, errors.Internal(err)
	}

	s.log.Info("Results published", "period_id", periodID, "actor", actor.ID, "winners", len(winners), "reward_mode", mode)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage("results_published", map[string]interface{}{
			"period_id":     periodID,
			"winners_count": len(winners),
			"reward_mode":   mode,
		})
	}

	return &PublishResult{
		PeriodID:     periodID,
		WinnersCount: len(winners),
		RewardMode:   mode,
		PublishedAt:  now,
	}, nil
}

func buildReward(pool *models.RewardPool, cash bool, periodID, categoryID, rank int) models.Reward {
	r := models.Reward{PeriodID: periodID, CategoryID: categoryID, Rank: rank}
	if cash {
		cents := pool.CentsForRank(rank)
		r.AmountCents = &cents
		return r
	}
	label := defaultRewardLabels[rank-1]
	if pool != nil && pool.FallbackLabel != "" {
		label = fmt.Sprintf("%s #%d", pool.FallbackLabel, rank)
	}
	r.Label = &label
	return r
}

// PreviewRanking computes the current ranking without persisting anything
func (s *ResultsService) PreviewRanking(ctx context.Context, actor models.Actor, periodID int) ([]CategoryRanking, error) {
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	return s.rank(ctx, periodID)
}

// GetWinners returns the persisted winners of a period
func (s *ResultsService) GetWinners(ctx context.Context, periodID int) ([]repository.WinnerRow, error) {
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Internal(err)
	}
	winners, err := s.repo.ListWinners(ctx, periodID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if winners == nil {
		winners = []repository.WinnerRow{}
	}
	return winners, nil
}

func (s *ResultsService) rank(ctx context.Context, periodID int) ([]CategoryRanking, error) {
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Internal(err)
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, errors.Internal(err)
	}
	submissions, err := s.repo.ListSubmissionsForPeriod(ctx, periodID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	votes, err := s.repo.ListValidVotesForPeriod(ctx, periodID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return ComputeRanking(categories, submissions, votes), nil
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// SeedServiceRepository defines the repository methods needed by SeedService
type SeedServiceRepository interface {
	repository.CatalogRepository
	repository.SeedRepository
}

// SeedService loads demo data for local runs
type SeedService struct {
	log   logger.Logger
	repo  SeedServiceRepository
	clock Clock
}

// NewSeedService creates a new SeedService
func NewSeedService(log logger.Logger, repo SeedServiceRepository, clock Clock) *SeedService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SeedService{log: log, repo: repo, clock: clock}
}

// SeedResult reports what SeedDemo created
type SeedResult struct {
	PeriodID    int    `json:"period_id"`
	Categories  int    `json:"categories"`
	Submissions int    `json:"submissions"`
	Message     string `json:"message"`
}

func weights(e, o, p float64) (*float64, *float64, *float64) {
	return &e, &o, &p
}

// SeedDemo creates a period whose voting window is open now, the demo
// categories when none exist, approved submissions and a funded pool.
func (s *SeedService) SeedDemo(ctx context.Context, actor models.Actor) (*SeedResult, error) {
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	now := s.clock.Now()

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if len(categories) == 0 {
		categories = []models.Category{
			{Name: "Best Song", DisplayOrder: 1},
			{Name: "Best Production", DisplayOrder: 2},
			{Name: "Most Original", DisplayOrder: 3},
		}
		categories[1].WeightEmotion, categories[1].WeightOriginality, categories[1].WeightProduction = weights(20, 20, 60)
		categories[2].WeightEmotion, categories[2].WeightOriginality, categories[2].WeightProduction = weights(20, 60, 20)
	}

	tracks := []struct{ title, artist string }{
		{"Midnight Static", "The Low Hums"},
		{"Paper Lanterns", "Iris Vale"},
		{"Northbound", "Copper Coast"},
		{"Glass Harbor", "Neon Orchard"},
	}
	var submissions []repository.SeedSubmission
	for ci := range categories {
		for ti, tr := range tracks {
			submissions = append(submissions, repository.SeedSubmission{
				CategoryIndex: ci,
				Submission: models.Submission{
					OwnerID:    fmt.Sprintf("demo-artist-%d-%d", ci+1, ti+1),
					Title:      tr.title,
					ArtistName: tr.artist,
					Status:     models.SubmissionApproved,
					CreatedAt:  now,
				},
			})
		}
	}

	out, err := s.repo.SeedPeriod(ctx, repository.PeriodSeed{
		Period: models.ContestPeriod{
			Label:             fmt.Sprintf("Week of %s", now.Format("2006-01-02")),
			SubmissionOpenAt:  now.Add(-7 * 24 * time.Hour),
			SubmissionCloseAt: now.Add(-time.Hour),
			VotingOpenAt:      now.Add(-time.Hour),
			VotingCloseAt:     now.Add(7 * 24 * time.Hour),
		},
		Categories:  categories,
		Submissions: submissions,
		Pool: &models.RewardPool{
			Status:    models.PoolFunded,
			Top1Cents: 10000,
			Top2Cents: 5000,
			Top3Cents: 2500,
		},
		Subscriptions: map[string]string{
			"pro@example.com":   string(models.TierPro),
			"elite@example.com": string(models.TierElite),
		},
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	added := len(out.SubmissionIDs)

	s.log.Info("Seeded demo data", "period_id", out.PeriodID, "categories", out.CategoriesCreated, "submissions", added)

	return &SeedResult{
		PeriodID:    out.PeriodID,
		Categories:  out.CategoriesCreated,
		Submissions: added,
		Message:     fmt.Sprintf("Seeded period %d with %d submissions", out.PeriodID, added),
	}, nil
}

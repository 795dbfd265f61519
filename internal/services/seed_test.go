package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository/mock"
	"github.com/abrezinsky/weeklyvote/internal/services"
	"github.com/abrezinsky/weeklyvote/internal/testutil"
)

func TestSeedDemo(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	clock := &testutil.FixedClock{T: t0}
	svc := services.NewSeedService(logger.Nop(), repo, clock)
	ctx := context.Background()

	res, err := svc.SeedDemo(ctx, admin)
	if err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}
	if res.Categories != 3 || res.Submissions != 12 {
		t.Errorf("unexpected seed result: %+v", res)
	}

	period, err := repo.GetPeriod(ctx, res.PeriodID)
	if err != nil {
		t.Fatalf("GetPeriod failed: %v", err)
	}
	if !period.VotingOpen(t0) {
		t.Error("expected seeded period to be open for voting")
	}
	pool, _ := repo.GetRewardPool(ctx, res.PeriodID)
	if !pool.ThresholdMet() {
		t.Errorf("expected funded pool, got %+v", pool)
	}
	tier, _ := services.NewRepositoryTierResolver(repo).ResolveTier(ctx, "elite@example.com")
	if tier != models.TierElite {
		t.Errorf("expected elite demo subscriber, got %q", tier)
	}

	// Seeding again reuses the categories.
	clock.Advance(time.Hour)
	res, err = svc.SeedDemo(ctx, admin)
	if err != nil {
		t.Fatalf("second SeedDemo failed: %v", err)
	}
	if res.Categories != 0 || res.Submissions != 12 {
		t.Errorf("expected existing categories reused, got %+v", res)
	}
}

func TestSeedDemo_RequiresAdmin(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewSeedService(logger.Nop(), repo, nil)

	if _, err := svc.SeedDemo(context.Background(), models.Actor{ID: "x"}); !errors.Is(err, services.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestSeedDemo_StorageErrorLeavesNoPeriod(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	mockRepo := mock.NewRepository(repo)
	mockRepo.SeedPeriodError = errors.New("disk full")
	svc := services.NewSeedService(logger.Nop(), mockRepo, &testutil.FixedClock{T: t0})
	ctx := context.Background()

	_, err := svc.SeedDemo(ctx, admin)
	if apperrors.KindOf(err) != apperrors.ErrInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, err := repo.GetPeriod(ctx, 1); err == nil {
		t.Error("expected no period after failed seed")
	}
}

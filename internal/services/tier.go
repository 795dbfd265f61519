package services

import (
	"context"
	stderrors "errors"

	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// RepositoryTierResolver reads tiers from the subscriptions table
type RepositoryTierResolver struct {
	repo repository.ProfileRepository
}

// NewRepositoryTierResolver creates a tier resolver backed by storage
func NewRepositoryTierResolver(repo repository.ProfileRepository) *RepositoryTierResolver {
	return &RepositoryTierResolver{repo: repo}
}

// ResolveTier returns free for unknown emails. Storage failures are
// returned alongside TierFree so callers can log and continue.
func (r *RepositoryTierResolver) ResolveTier(ctx context.Context, email string) (models.Tier, error) {
	if email == "" {
		return models.TierFree, nil
	}
	tier, err := r.repo.GetSubscriptionTier(ctx, email)
	if stderrors.Is(err, repository.ErrNotFound) {
		return models.TierFree, nil
	}
	if err != nil {
		return models.TierFree, err
	}
	return models.ParseTier(tier), nil
}

package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// SubmissionService serves public submission details and share codes
type SubmissionService struct {
	log     logger.Logger
	repo    repository.CatalogRepository
	baseURL string
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(log logger.Logger, repo repository.CatalogRepository, baseURL string) *SubmissionService {
	return &SubmissionService{log: log, repo: repo, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// GetSubmission returns a submission by ID
func (s *SubmissionService) GetSubmission(ctx context.Context, id int) (*models.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return sub, nil
}

// ShareURL returns the public voting link for a submission
func (s *SubmissionService) ShareURL(id int) string {
	return fmt.Sprintf("%s/submissions/%d", s.baseURL, id)
}

// ShareQR returns a PNG QR code linking to an approved submission
func (s *SubmissionService) ShareQR(ctx context.Context, id int) ([]byte, error) {
	if s.baseURL == "" {
		return nil, errors.Internalf("base url not configured")
	}
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionApproved {
		return nil, ErrSubmissionNotApproved
	}
	return qrcode.Encode(s.ShareURL(id), qrcode.Medium, 256)
}

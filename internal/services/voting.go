package services

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
	"github.com/abrezinsky/weeklyvote/pkg/riskscore"
)

var tracer = otel.Tracer("github.com/abrezinsky/weeklyvote/internal/services")

// Admission limits
const (
	HourlyVoteLimit      = 50
	BurstVoteLimit       = 5
	FreeVotesPerPeriod   = 5
	ProCommentsPerPeriod = 5
	BlockRiskThreshold   = 70
	DefaultScorerTimeout = 1500 * time.Millisecond
)

var botMarkers = []string{
	"bot", "crawler", "spider", "curl", "wget", "python-requests",
	"headless", "go-http-client", "scrapy", "httpclient", "phantomjs",
}

// VotingServiceRepository defines the repository methods needed by VotingService
type VotingServiceRepository interface {
	repository.PeriodRepository
	repository.CatalogRepository
	repository.VoteRepository
}

// VotingService admits or rejects individual votes
type VotingService struct {
	log           logger.Logger
	repo          VotingServiceRepository
	tiers         TierResolver
	scorer        riskscore.Client
	clock         Clock
	scorerTimeout time.Duration
	broadcaster   Broadcaster
}

// NewVotingService creates a new VotingService
func NewVotingService(log logger.Logger, repo VotingServiceRepository, tiers TierResolver, scorer riskscore.Client, clock Clock) *VotingService {
	if scorer == nil {
		scorer = riskscore.AllowAll{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &VotingService{
		log:           log.With("component", "voting"),
		repo:          repo,
		tiers:         tiers,
		scorer:        scorer,
		clock:         clock,
		scorerTimeout: DefaultScorerTimeout,
	}
}

// SetScorerTimeout bounds each risk scorer call
func (s *VotingService) SetScorerTimeout(d time.Duration) {
	if d > 0 {
		s.scorerTimeout = d
	}
}

// SetBroadcaster sets the live event broadcaster
func (s *VotingService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// VoteRequest is one attempt to cast a vote
type VoteRequest struct {
	Identity     *models.Identity
	SubmissionID int
	Emotion      *int
	Originality  *int
	Production   *int
	Comment      *string
	IP           string
	UserAgent    string
}

// VoteResult contains the result of an admitted vote
type VoteResult struct {
	Status       string `json:"status"`
	VoteID       int64  `json:"vote_id"`
	SubmissionID int    `json:"submission_id"`
	CategoryID   int    `json:"category_id"`
	PeriodID     int    `json:"period_id"`
	CommentKept  bool   `json:"comment_kept"`
	RiskScore    int    `json:"risk_score"`
	RiskAction   string `json:"risk_action"`
}

// VoterStatus summarizes a voter's remaining allowances in a period
type VoterStatus struct {
	PeriodID           int         `json:"period_id"`
	Tier               models.Tier `json:"tier"`
	VotesThisPeriod    int         `json:"votes_this_period"`
	FreeVotesRemaining *int        `json:"free_votes_remaining"`
	CommentsRemaining  *int        `json:"comments_remaining"`
}

// CastVote runs the admission gate and, if every check passes, records the
// vote and its cast event atomically.
func (s *VotingService) CastVote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	ctx, span := tracer.Start(ctx, "voting.CastVote", trace.WithAttributes(
		attribute.Int("submission_id", req.SubmissionID),
	))
	defer span.End()

	result, err := s.castVote(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *VotingService) castVote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	id := req.Identity
	if id == nil || id.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if !id.EmailConfirmed {
		return nil, ErrEmailUnconfirmed
	}
	for _, score := range []*int{req.Emotion, req.Originality, req.Production} {
		if score != nil && (*score < 1 || *score > 5) {
			return nil, ErrInvalidScoreRange
		}
	}

	sub, err := s.repo.GetSubmission(ctx, req.SubmissionID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if sub.Status != models.SubmissionApproved {
		return nil, ErrSubmissionNotApproved
	}
	if sub.OwnerID == id.UserID {
		return nil, ErrSelfVoteForbidden
	}

	period, err := s.repo.GetPeriod(ctx, sub.PeriodID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	now := s.clock.Now()
	if !period.VotingOpen(now) {
		return nil, ErrVotingWindowClosed
	}

	tier, err := s.tiers.ResolveTier(ctx, id.Email)
	if err != nil {
		s.log.Warn("Tier lookup failed, treating voter as free", "user_id", id.UserID, "error", err)
		tier = models.TierFree
	}

	// Fast pre-check. The same limits are enforced again inside the commit.
	dup, err := s.repo.HasVote(ctx, id.UserID, sub.CategoryID, sub.PeriodID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if dup {
		return nil, ErrDuplicateVote
	}
	activity, err := s.repo.GetVoterActivity(ctx, id.UserID, sub.PeriodID, now)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := checkLimits(activity, tier); err != nil {
		return nil, err
	}

	signals := buildSignals(id, req, activity, tier, now)
	verdict, scorerOK := s.classify(ctx, signals)
	if verdict.Action == riskscore.ActionBlock && verdict.RiskScore >= BlockRiskThreshold {
		s.log.Info("Vote blocked by risk scorer", "user_id", id.UserID, "submission_id", sub.ID,
			"risk_score", verdict.RiskScore, "flags", verdict.Flags)
		return nil, ErrFraudBlocked
	}

	vote := &models.Vote{
		VoterID:      id.UserID,
		SubmissionID: sub.ID,
		CategoryID:   sub.CategoryID,
		PeriodID:     sub.PeriodID,
		Emotion:      req.Emotion,
		Originality:  req.Originality,
		Production:   req.Production,
		Comment:      normalizeComment(req.Comment),
	}
	event := &models.AuditEvent{
		UserAgent: req.UserAgent,
		Metadata: map[string]any{
			"signals":     signals,
			"tier":        string(tier),
			"risk_score":  verdict.RiskScore,
			"risk_action": verdict.Action,
			"risk_flags":  verdict.Flags,
		},
	}
	if !scorerOK {
		event.Metadata["scorer_unavailable"] = true
	}
	if ip := strings.TrimSpace(req.IP); ip != "" {
		event.IPAddress = &ip
	}

	err = s.repo.CommitVote(ctx, repository.VoteCommit{
		Vote:  vote,
		Event: event,
		Voter: *id,
		Now:   now,
		Guard: func(a repository.VoterActivity) error {
			if err := checkLimits(a, tier); err != nil {
				return err
			}
			if vote.Comment != nil && !commentAllowed(tier, a) {
				vote.Comment = nil
				event.Metadata["comment_dropped"] = true
			}
			return nil
		},
	})
	if err != nil {
		var svcErr *ServiceError
		switch {
		case stderrors.Is(err, repository.ErrDuplicateVote):
			return nil, ErrDuplicateVote
		case stderrors.As(err, &svcErr):
			return nil, svcErr
		default:
			s.log.Error("Failed to commit vote", "user_id", id.UserID, "submission_id", sub.ID, "error", err)
			return nil, errors.Internal(err)
		}
	}

	s.log.Info("Vote admitted", "vote_id", vote.ID, "submission_id", sub.ID, "category_id", sub.CategoryID,
		"period_id", sub.PeriodID, "tier", tier, "risk_score", verdict.RiskScore)

	if s.broadcaster != nil {
		count := sub.VoteCount + 1
		if fresh, err := s.repo.GetSubmission(ctx, sub.ID); err == nil {
			count = fresh.VoteCount
		}
		s.broadcaster.BroadcastMessage("vote_cast", map[string]interface{}{
			"submission_id": sub.ID,
			"category_id":   sub.CategoryID,
			"period_id":     sub.PeriodID,
			"vote_count":    count,
		})
	}

	return &VoteResult{
		Status:       "success",
		VoteID:       vote.ID,
		SubmissionID: sub.ID,
		CategoryID:   sub.CategoryID,
		PeriodID:     sub.PeriodID,
		CommentKept:  vote.Comment != nil,
		RiskScore:    verdict.RiskScore,
		RiskAction:   verdict.Action,
	}, nil
}

// classify asks the scorer for an opinion. Failures fail open.
func (s *VotingService) classify(ctx context.Context, signals riskscore.Signals) (riskscore.Verdict, bool) {
	sctx, cancel := context.WithTimeout(ctx, s.scorerTimeout)
	defer cancel()

	verdict, err := s.scorer.Classify(sctx, signals)
	if err != nil {
		s.log.Warn("Risk scorer unavailable, allowing vote", "error", err)
		return riskscore.Verdict{Action: "allow"}, false
	}
	return verdict, true
}

// GetVoterStatus reports how many votes and comments the caller has left
func (s *VotingService) GetVoterStatus(ctx context.Context, identity *models.Identity, periodID int) (*VoterStatus, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Internal(err)
	}

	tier, err := s.tiers.ResolveTier(ctx, identity.Email)
	if err != nil {
		tier = models.TierFree
	}
	a, err := s.repo.GetVoterActivity(ctx, identity.UserID, periodID, s.clock.Now())
	if err != nil {
		return nil, errors.Internal(err)
	}

	status := &VoterStatus{PeriodID: periodID, Tier: tier, VotesThisPeriod: a.ThisPeriod}
	switch tier {
	case models.TierFree:
		left := max(FreeVotesPerPeriod-a.ThisPeriod, 0)
		none := 0
		status.FreeVotesRemaining = &left
		status.CommentsRemaining = &none
	case models.TierPro:
		left := max(ProCommentsPerPeriod-a.CommentedThisPeriod, 0)
		status.CommentsRemaining = &left
	}
	return status, nil
}

func checkLimits(a repository.VoterActivity, tier models.Tier) error {
	if a.LastHour >= HourlyVoteLimit {
		return ErrRateLimited
	}
	if a.LastMinute >= BurstVoteLimit {
		return ErrBurstLimited
	}
	if tier == models.TierFree && a.ThisPeriod >= FreeVotesPerPeriod {
		return ErrQuotaExhausted
	}
	return nil
}

func commentAllowed(tier models.Tier, a repository.VoterActivity) bool {
	switch tier {
	case models.TierElite:
		return true
	case models.TierPro:
		return a.CommentedThisPeriod < ProCommentsPerPeriod
	default:
		return false
	}
}

func normalizeComment(c *string) *string {
	if c == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func buildSignals(id *models.Identity, req VoteRequest, a repository.VoterActivity, tier models.Tier, now time.Time) riskscore.Signals {
	age := int64(-1)
	if id.AccountCreatedAt != nil {
		age = max(int64(now.Sub(*id.AccountCreatedAt)/time.Minute), 0)
	}
	return riskscore.Signals{
		AccountAgeMinutes: age,
		UserAgent:         req.UserAgent,
		BotLikeUserAgent:  isBotLike(req.UserAgent),
		IP:                req.IP,
		Burst2Min:         a.LastTwoMinutes,
		LifetimeVotes:     a.Lifetime,
		Tier:              string(tier),
		EmailDomain:       emailDomain(id.Email),
	}
}

func isBotLike(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

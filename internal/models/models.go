package models

import "time"

// Default category weights used when a category has none configured.
const (
	DefaultWeightEmotion     = 33.0
	DefaultWeightOriginality = 34.0
	DefaultWeightProduction  = 33.0
)

// DefaultComponentScore is substituted for a missing score on a valid vote.
const DefaultComponentScore = 3

// Tier is the subscription level of a voter
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// ParseTier maps stored subscription values to a Tier, defaulting to free
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro:
		return TierPro
	case TierElite:
		return TierElite
	default:
		return TierFree
	}
}

// Submission statuses
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Audit event types
const (
	EventCast        = "cast"
	EventInvalidated = "invalidated"
)

// Reward pool statuses
const (
	PoolCollecting = "collecting"
	PoolFunded     = "funded"
	PoolLocked     = "locked"
)

// Reward modes reported by a scoring run
const (
	RewardModeCash    = "cash"
	RewardModeNonCash = "non_cash"
)

// ContestPeriod is one weekly contest
type ContestPeriod struct {
	ID                 int        `json:"id"`
	Label              string     `json:"label"`
	SubmissionOpenAt   time.Time  `json:"submission_open_at"`
	SubmissionCloseAt  time.Time  `json:"submission_close_at"`
	VotingOpenAt       time.Time  `json:"voting_open_at"`
	VotingCloseAt      time.Time  `json:"voting_close_at"`
	ResultsPublishedAt *time.Time `json:"results_published_at,omitempty"`
}

// VotingOpen reports whether t falls inside the inclusive voting window
func (p ContestPeriod) VotingOpen(t time.Time) bool {
	return !t.Before(p.VotingOpenAt) && !t.After(p.VotingCloseAt)
}

// Category is a judging category with optional score weights
type Category struct {
	ID                int      `json:"id"`
	Name              string   `json:"name"`
	DisplayOrder      int      `json:"display_order"`
	WeightEmotion     *float64 `json:"weight_emotion,omitempty"`
	WeightOriginality *float64 `json:"weight_originality,omitempty"`
	WeightProduction  *float64 `json:"weight_production,omitempty"`
}

// Weights is an effective (emotion, originality, production) triple
type Weights struct {
	Emotion     float64 `json:"emotion"`
	Originality float64 `json:"originality"`
	Production  float64 `json:"production"`
}

// Sum returns the total of all three weights
func (w Weights) Sum() float64 {
	return w.Emotion + w.Originality + w.Production
}

// EffectiveWeights returns the category weights, falling back to the
// defaults when any weight is missing or negative, or when all are zero.
func (c Category) EffectiveWeights() Weights {
	def := Weights{DefaultWeightEmotion, DefaultWeightOriginality, DefaultWeightProduction}
	if c.WeightEmotion == nil || c.WeightOriginality == nil || c.WeightProduction == nil {
		return def
	}
	w := Weights{*c.WeightEmotion, *c.WeightOriginality, *c.WeightProduction}
	if w.Emotion < 0 || w.Originality < 0 || w.Production < 0 || w.Sum() <= 0 {
		return def
	}
	return w
}

// Submission is an approved-or-pending entry in a category
type Submission struct {
	ID         int       `json:"id"`
	PeriodID   int       `json:"period_id"`
	CategoryID int       `json:"category_id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	ArtistName string    `json:"artist_name"`
	Status     string    `json:"status"`
	VoteCount  int       `json:"vote_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the authenticated caller as supplied by the identity provider
type Identity struct {
	UserID           string     `json:"user_id"`
	Email            string     `json:"email"`
	EmailConfirmed   bool       `json:"email_confirmed"`
	DisplayName      string     `json:"display_name"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`
}

// Actor is the caller of an operator action
type Actor struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"is_admin"`
}

// Vote is one voter's choice in one category for one period
type Vote struct {
	ID           int64     `json:"id"`
	VoterID      string    `json:"voter_id"`
	SubmissionID int       `json:"submission_id"`
	CategoryID   int       `json:"category_id"`
	PeriodID     int       `json:"period_id"`
	Emotion      *int      `json:"emotion,omitempty"`
	Originality  *int      `json:"originality,omitempty"`
	Production   *int      `json:"production,omitempty"`
	Comment      *string   `json:"comment,omitempty"`
	IsValid      bool      `json:"is_valid"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditEvent is an append-only record of a vote lifecycle step
type AuditEvent struct {
	ID         string         `json:"id"`
	VoteID     int64          `json:"vote_id"`
	EventType  string         `json:"event_type"`
	IPAddress  *string        `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Winner is a ranked submission for a (period, category)
type Winner struct {
	PeriodID      int     `json:"period_id"`
	CategoryID    int     `json:"category_id"`
	Rank          int     `json:"rank"`
	SubmissionID  int     `json:"submission_id"`
	VoteCount     int     `json:"vote_count"`
	WeightedScore float64 `json:"weighted_score"`
}

// Reward is the payout attached to a winner
type Reward struct {
	PeriodID    int     `json:"period_id"`
	CategoryID  int     `json:"category_id"`
	Rank        int     `json:"rank"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Label       *string `json:"label,omitempty"`
}

// RewardPool is the per-period cash pool
type RewardPool struct {
	PeriodID      int        `json:"period_id"`
	Status        string     `json:"status"`
	Top1Cents     int64      `json:"top1_cents"`
	Top2Cents     int64      `json:"top2_cents"`
	Top3Cents     int64      `json:"top3_cents"`
	FallbackLabel string     `json:"fallback_label,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
}

// ThresholdMet reports whether cash rewards apply
func (p *RewardPool) ThresholdMet() bool {
	return p != nil && (p.Status == PoolFunded || p.Status == PoolLocked)
}

// CentsForRank returns the cash amount for rank 1..3
func (p *RewardPool) CentsForRank(rank int) int64 {
	switch rank {
	case 1:
		return p.Top1Cents
	case 2:
		return p.Top2Cents
	case 3:
		return p.Top3Cents
	}
	return 0
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

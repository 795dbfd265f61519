package services

// Admission, scan and scoring errors. Each carries a stable code that the
// HTTP layer passes through to clients.
var (
	ErrUnauthenticated       = &ServiceError{Code: "UNAUTHENTICATED", Message: "sign in to vote"}
	ErrEmailUnconfirmed      = &ServiceError{Code: "EMAIL_UNCONFIRMED", Message: "confirm your email address before voting"}
	ErrInvalidScoreRange     = &ServiceError{Code: "INVALID_SCORE_RANGE", Message: "scores must be between 1 and 5"}
	ErrSubmissionNotFound    = &ServiceError{Code: "SUBMISSION_NOT_FOUND", Message: "submission not found"}
	ErrSubmissionNotApproved = &ServiceError{Code: "SUBMISSION_NOT_APPROVED", Message: "submission is not open for voting"}
	ErrSelfVoteForbidden     = &ServiceError{Code: "SELF_VOTE_FORBIDDEN", Message: "you cannot vote for your own submission"}
	ErrVotingWindowClosed    = &ServiceError{Code: "VOTING_WINDOW_CLOSED", Message: "voting is closed for this period"}
	ErrDuplicateVote         = &ServiceError{Code: "DUPLICATE_VOTE", Message: "you have already voted in this category"}
	ErrRateLimited           = &ServiceError{Code: "RATE_LIMITED", Message: "too many votes in the last hour"}
	ErrBurstLimited          = &ServiceError{Code: "BURST_LIMITED", Message: "too many votes in the last minute"}
	ErrQuotaExhausted        = &ServiceError{Code: "QUOTA_EXHAUSTED", Message: "free vote quota for this period is used up"}
	ErrFraudBlocked          = &ServiceError{Code: "FRAUD_BLOCKED", Message: "vote rejected by risk checks"}
	ErrUnauthorized          = &ServiceError{Code: "UNAUTHORIZED", Message: "admin access required"}
	ErrPeriodNotFound        = &ServiceError{Code: "PERIOD_NOT_FOUND", Message: "contest period not found"}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

package handlers

// VoteSubmitRequest represents a vote cast by a signed-in listener
type VoteSubmitRequest struct {
	SubmissionID int     `json:"submission_id"`
	Emotion      *int    `json:"emotion"`
	Originality  *int    `json:"originality"`
	Production   *int    `json:"production"`
	Comment      *string `json:"comment"`
}

// FraudScanRequest controls a fraud scan. An empty body is a report-only scan.
type FraudScanRequest struct {
	DryRun     bool `json:"dry_run"`
	Invalidate bool `json:"invalidate"`
}

// LoginRequest represents admin credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

package services

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
)

// Fraud heuristics
const (
	BurstWindow            = 120 * time.Second
	BurstSize              = 3
	IPClusterMinVoters     = 3
	NewAccountWindow       = 24 * time.Hour
	ConcentrationMinVotes  = 3
	InvalidationReasonScan = "fraud_scan"
)

// Voter flags
const (
	FlagBurst      = "burst"
	FlagIPCluster  = "ip_cluster"
	FlagNewAccount = "new_account"
)

// FraudServiceRepository defines the repository methods needed by FraudService
type FraudServiceRepository interface {
	repository.PeriodRepository
	repository.AuditRepository
}

// FraudService analyzes a period's audit log for coordinated abuse
type FraudService struct {
	log         logger.Logger
	repo        FraudServiceRepository
	clock       Clock
	broadcaster Broadcaster
}

// NewFraudService creates a new FraudService
func NewFraudService(log logger.Logger, repo FraudServiceRepository, clock Clock) *FraudService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FraudService{log: log.With("component", "fraud"), repo: repo, clock: clock}
}

// SetBroadcaster sets the live event broadcaster
func (s *FraudService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// ScanOptions controls whether a scan writes
type ScanOptions struct {
	DryRun     bool `json:"dry_run"`
	Invalidate bool `json:"invalidate"`
}

// ScanSummary holds aggregate counts for a scan
type ScanSummary struct {
	TotalVotesScanned  int  `json:"total_votes_scanned"`
	FlaggedVotes       int  `json:"flagged_votes"`
	FlaggedVoters      int  `json:"flagged_voters"`
	FlaggedIPs         int  `json:"flagged_ips"`
	FlaggedSubmissions int  `json:"flagged_submissions"`
	Invalidated        *int `json:"invalidated,omitempty"`
}

// SuspiciousVoter is a voter matching at least one heuristic
type SuspiciousVoter struct {
	VoterID     string   `json:"voter_id"`
	DisplayName string   `json:"display_name"`
	VoteCount   int      `json:"vote_count"`
	Flags       []string `json:"flags"`
}

// SuspiciousIP is an address shared by too many voters
type SuspiciousIP struct {
	IP             string   `json:"ip"`
	DistinctVoters int      `json:"distinct_voters"`
	VoteCount      int      `json:"vote_count"`
	VoterIDs       []string `json:"voter_ids"`
}

// SuspiciousSubmission is a submission whose votes come mostly from one IP
type SuspiciousSubmission struct {
	SubmissionID  int     `json:"submission_id"`
	VoteCount     int     `json:"vote_count"`
	DominantIP    string  `json:"dominant_ip"`
	DominantVotes int     `json:"dominant_votes"`
	DominantShare float64 `json:"dominant_share"`
}

// FraudReport is the deterministic output of a scan
type FraudReport struct {
	PeriodID       int                    `json:"period_id"`
	DryRun         bool                   `json:"dry_run"`
	Summary        ScanSummary            `json:"summary"`
	Voters         []SuspiciousVoter      `json:"voters"`
	IPs            []SuspiciousIP         `json:"ips"`
	Submissions    []SuspiciousSubmission `json:"submissions"`
	FlaggedVoteIDs []int64                `json:"flagged_vote_ids"`
}

// ScanFraud runs every heuristic over the period's cast events. Flagged
// votes are invalidated only when opts.Invalidate is set and opts.DryRun is not.
func (s *FraudService) ScanFraud(ctx context.Context, actor models.Actor, periodID int, opts ScanOptions) (*FraudReport, error) {
	ctx, span := tracer.Start(ctx, "fraud.ScanFraud", trace.WithAttributes(
		attribute.Int("period_id", periodID),
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("invalidate", opts.Invalidate),
	))
	defer span.End()

	report, err := s.scan(ctx, actor, periodID, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("flagged_votes", report.Summary.FlaggedVotes))
	return report, nil
}

func (s *FraudService) scan(ctx context.Context, actor models.Actor, periodID int, opts ScanOptions) (*FraudReport, error) {
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Internal(err)
	}

	events, err := s.repo.ListCastEvents(ctx, periodID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	report := AnalyzeCastEvents(events)
	report.PeriodID = periodID
	report.DryRun = opts.DryRun

	if opts.Invalidate && !opts.DryRun {
		n := 0
		if len(report.FlaggedVoteIDs) > 0 {
			n, err = s.repo.InvalidateVotes(ctx, report.FlaggedVoteIDs, actor.ID, InvalidationReasonScan, s.clock.Now())
			if err != nil {
				s.log.Error("Failed to invalidate flagged votes", "period_id", periodID, "error", err)
				return nil, errors.Internal(err)
			}
		}
		report.Summary.Invalidated = &n
	}

	s.log.Info("Fraud scan completed", "period_id", periodID, "actor", actor.ID,
		"scanned", report.Summary.TotalVotesScanned, "flagged_votes", report.Summary.FlaggedVotes,
		"flagged_voters", report.Summary.FlaggedVoters, "dry_run", opts.DryRun)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage("fraud_scan_completed", map[string]interface{}{
			"period_id": periodID,
			"summary":   report.Summary,
		})
	}

	return report, nil
}

// GetAuditTrail returns a vote's events, oldest first
func (s *FraudService) GetAuditTrail(ctx context.Context, actor models.Actor, voteID int64) ([]models.AuditEvent, error) {
	if !actor.IsAdmin {
		return nil, ErrUnauthorized
	}
	events, err := s.repo.ListEventsForVote(ctx, voteID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if len(events) == 0 {
		return nil, errors.NotFoundf("vote %d not found", voteID)
	}
	return events, nil
}

// AnalyzeCastEvents applies the burst, IP cluster, new account and IP
// concentration heuristics. It reads nothing but its input.
func AnalyzeCastEvents(events []repository.CastEventRow) *FraudReport {
	report := &FraudReport{
		Voters:         []SuspiciousVoter{},
		IPs:            []SuspiciousIP{},
		Submissions:    []SuspiciousSubmission{},
		FlaggedVoteIDs: []int64{},
	}
	if len(events) == 0 {
		return report
	}

	sorted := make([]repository.CastEventRow, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].VoteID < sorted[j].VoteID
	})

	byVoter := map[string][]repository.CastEventRow{}
	names := map[string]string{}
	voteSeen := map[int64]bool{}
	for _, e := range sorted {
		byVoter[e.VoterID] = append(byVoter[e.VoterID], e)
		if e.DisplayName != "" {
			names[e.VoterID] = e.DisplayName
		}
		voteSeen[e.VoteID] = true
	}
	report.Summary.TotalVotesScanned = len(voteSeen)

	flags := map[string]map[string]bool{}
	flag := func(voter, f string) {
		if flags[voter] == nil {
			flags[voter] = map[string]bool{}
		}
		flags[voter][f] = true
	}

	// Burst and new account, per voter.
	for voter, evs := range byVoter {
		for i := 0; i+BurstSize-1 < len(evs); i++ {
			if evs[i+BurstSize-1].OccurredAt.Sub(evs[i].OccurredAt) <= BurstWindow {
				flag(voter, FlagBurst)
				break
			}
		}
		// A creation time after the first vote is treated as unknown age.
		if created := evs[0].AccountCreatedAt; created != nil {
			if age := evs[0].OccurredAt.Sub(*created); age >= 0 && age < NewAccountWindow {
				flag(voter, FlagNewAccount)
			}
		}
	}

	// IP clustering.
	ipVoters := map[string]map[string]bool{}
	ipVotes := map[string]int{}
	for _, e := range sorted {
		ip, ok := usableIP(e.IPAddress)
		if !ok {
			continue
		}
		if ipVoters[ip] == nil {
			ipVoters[ip] = map[string]bool{}
		}
		ipVoters[ip][e.VoterID] = true
		ipVotes[ip]++
	}
	for ip, voters := range ipVoters {
		if len(voters) < IPClusterMinVoters {
			continue
		}
		ids := make([]string, 0, len(voters))
		for v := range voters {
			ids = append(ids, v)
			flag(v, FlagIPCluster)
		}
		sort.Strings(ids)
		report.IPs = append(report.IPs, SuspiciousIP{IP: ip, DistinctVoters: len(voters), VoteCount: ipVotes[ip], VoterIDs: ids})
	}
	sort.Slice(report.IPs, func(i, j int) bool { return report.IPs[i].IP < report.IPs[j].IP })

	// Submission IP concentration.
	subTotal := map[int]int{}
	subIP := map[int]map[string]int{}
	for _, e := range sorted {
		subTotal[e.SubmissionID]++
		if ip, ok := usableIP(e.IPAddress); ok {
			if subIP[e.SubmissionID] == nil {
				subIP[e.SubmissionID] = map[string]int{}
			}
			subIP[e.SubmissionID][ip]++
		}
	}
	dominant := map[int]string{}
	for subID, total := range subTotal {
		if total < ConcentrationMinVotes {
			continue
		}
		ip, n := dominantIP(subIP[subID])
		if n*2 <= total {
			continue
		}
		dominant[subID] = ip
		report.Submissions = append(report.Submissions, SuspiciousSubmission{
			SubmissionID:  subID,
			VoteCount:     total,
			DominantIP:    ip,
			DominantVotes: n,
			DominantShare: float64(n) / float64(total),
		})
	}
	sort.Slice(report.Submissions, func(i, j int) bool {
		return report.Submissions[i].SubmissionID < report.Submissions[j].SubmissionID
	})

	// Flagged vote set.
	flagged := map[int64]bool{}
	for _, e := range sorted {
		if flags[e.VoterID] != nil {
			flagged[e.VoteID] = true
			continue
		}
		if ip, ok := dominant[e.SubmissionID]; ok {
			if eip, usable := usableIP(e.IPAddress); usable && eip == ip {
				flagged[e.VoteID] = true
			}
		}
	}
	for id := range flagged {
		report.FlaggedVoteIDs = append(report.FlaggedVoteIDs, id)
	}
	sort.Slice(report.FlaggedVoteIDs, func(i, j int) bool { return report.FlaggedVoteIDs[i] < report.FlaggedVoteIDs[j] })

	for voter, set := range flags {
		fl := make([]string, 0, len(set))
		for f := range set {
			fl = append(fl, f)
		}
		sort.Strings(fl)
		report.Voters = append(report.Voters, SuspiciousVoter{
			VoterID:     voter,
			DisplayName: names[voter],
			VoteCount:   len(byVoter[voter]),
			Flags:       fl,
		})
	}
	sort.Slice(report.Voters, func(i, j int) bool { return report.Voters[i].VoterID < report.Voters[j].VoterID })

	report.Summary.FlaggedVotes = len(report.FlaggedVoteIDs)
	report.Summary.FlaggedVoters = len(report.Voters)
	report.Summary.FlaggedIPs = len(report.IPs)
	report.Summary.FlaggedSubmissions = len(report.Submissions)
	return report
}

func usableIP(ip *string) (string, bool) {
	if ip == nil {
		return "", false
	}
	v := strings.TrimSpace(*ip)
	if v == "" || strings.EqualFold(v, "unknown") {
		return "", false
	}
	return v, true
}

// dominantIP returns the most frequent IP; ties go to the smallest address.
func dominantIP(counts map[string]int) (string, int) {
	best, bestN := "", 0
	for ip, n := range counts {
		if n > bestN || (n == bestN && ip < best) {
			best, bestN = ip, n
		}
	}
	return best, bestN
}

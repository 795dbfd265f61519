package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abrezinsky/weeklyvote/internal/auth"
	"github.com/abrezinsky/weeklyvote/internal/handlers"
	"github.com/abrezinsky/weeklyvote/internal/logger"
	"github.com/abrezinsky/weeklyvote/internal/models"
	"github.com/abrezinsky/weeklyvote/internal/repository"
	"github.com/abrezinsky/weeklyvote/internal/services"
	"github.com/abrezinsky/weeklyvote/internal/testutil"
	"github.com/abrezinsky/weeklyvote/pkg/riskscore"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type testSetup struct {
	h          *handlers.Handlers
	router     http.Handler
	repo       *repository.Repository
	fx         *testutil.Fixture
	clock      *testutil.FixedClock
	authCookie *http.Cookie
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()

	repo := testutil.NewTestRepository(t)
	fx := testutil.NewFixture(t, repo, t0, nil)
	clock := &testutil.FixedClock{T: t0.Add(time.Hour)}
	log := logger.Nop()

	voting := services.NewVotingService(log, repo, services.NewRepositoryTierResolver(repo), riskscore.AllowAll{}, clock)
	fraud := services.NewFraudService(log, repo, clock)
	results := services.NewResultsService(log, repo, clock)
	submission := services.NewSubmissionService(log, repo, "https://votes.example.com")
	seed := services.NewSeedService(log, repo, clock)

	h := handlers.NewForTesting(voting, fraud, results, submission, seed, log)

	token, ok := h.Auth.Login("admin", "test-password")
	if !ok {
		t.Fatal("test login failed")
	}

	return &testSetup{
		h:          h,
		router:     h.Router(),
		repo:       repo,
		fx:         fx,
		clock:      clock,
		authCookie: &http.Cookie{Name: auth.CookieName, Value: token},
	}
}

func (s *testSetup) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testSetup) admin(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.AddCookie(s.authCookie)
	return s.do(req)
}

func voteRequest(userID string, body interface{}) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/votes", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderEmail, userID+"@example.com")
		req.Header.Set(auth.HeaderEmailVerified, "true")
		req.Header.Set(auth.HeaderDisplayName, userID)
		req.Header.Set(auth.HeaderAccountCreatedAt, t0.AddDate(-1, 0, 0).Format(time.RFC3339))
	}
	return req
}

func voteBody(submissionID int) map[string]interface{} {
	return map[string]interface{}{
		"submission_id": submissionID,
		"emotion":       5,
		"originality":   4,
		"production":    3,
		"comment":       "great hook",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["code"] != code {
		t.Errorf("expected code %q, got %q", code, body["code"])
	}
}

func TestHealth(t *testing.T) {
	s := newTestSetup(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCastVote_Success(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")

	rec := s.do(voteRequest("listener-1", voteBody(subID)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.VoteResult
	decodeBody(t, rec, &result)
	if result.VoteID == 0 || result.SubmissionID != subID || result.PeriodID != s.fx.PeriodID {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.CommentKept {
		t.Error("free tier comment must be dropped")
	}

	events, err := s.repo.ListEventsForVote(context.Background(), result.VoteID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one cast event, got %d (%v)", len(events), err)
	}
	if events[0].IPAddress == nil || *events[0].IPAddress != "192.0.2.1" {
		t.Errorf("expected remote address recorded, got %v", events[0].IPAddress)
	}
}

func TestCastVote_UsesForwardedAddress(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")

	req := voteRequest("listener-1", voteBody(subID))
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	rec := s.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result services.VoteResult
	decodeBody(t, rec, &result)
	events, _ := s.repo.ListEventsForVote(context.Background(), result.VoteID)
	if len(events) != 1 || events[0].IPAddress == nil || *events[0].IPAddress != "198.51.100.7" {
		t.Errorf("expected forwarded address recorded, got %+v", events)
	}
}

func TestCastVote_Errors(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")
	pendingID := s.fx.AddSubmissionIn(t, s.fx.CategoryID, "artist-2", models.SubmissionPending)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"anonymous", voteRequest("", voteBody(subID)), http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"self vote", voteRequest("artist-1", voteBody(subID)), http.StatusForbidden, "SELF_VOTE_FORBIDDEN"},
		{"unknown submission", voteRequest("listener-1", voteBody(9999)), http.StatusNotFound, "SUBMISSION_NOT_FOUND"},
		{"pending submission", voteRequest("listener-1", voteBody(pendingID)), http.StatusConflict, "SUBMISSION_NOT_APPROVED"},
		{"score out of range", voteRequest("listener-1", map[string]interface{}{
			"submission_id": subID, "emotion": 6, "originality": 4, "production": 3,
		}), http.StatusBadRequest, "INVALID_SCORE_RANGE"},
		{"missing submission id", voteRequest("listener-1", map[string]interface{}{"emotion": 3}), http.StatusBadRequest, handlers.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(tt.req), tt.status, tt.code)
		})
	}
}

func TestCastVote_InvalidJSON(t *testing.T) {
	s := newTestSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader("{not json"))
	req.Header.Set(auth.HeaderUserID, "listener-1")
	expectError(t, s.do(req), http.StatusBadRequest, handlers.ErrCodeBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/api/votes", nil)
	expectError(t, s.do(req), http.StatusBadRequest, handlers.ErrCodeBadRequest)
}

func TestCastVote_Duplicate(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")

	if rec := s.do(voteRequest("listener-1", voteBody(subID))); rec.Code != http.StatusCreated {
		t.Fatalf("first vote failed: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, s.do(voteRequest("listener-1", voteBody(subID))), http.StatusConflict, "DUPLICATE_VOTE")
}

func TestCastVote_WindowClosed(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")
	s.clock.T = t0.Add(8 * 24 * time.Hour)

	expectError(t, s.do(voteRequest("listener-1", voteBody(subID))), http.StatusConflict, "VOTING_WINDOW_CLOSED")
}

// stubVoting returns a fixed error from CastVote
type stubVoting struct {
	err error
}

func (s stubVoting) CastVote(ctx context.Context, req services.VoteRequest) (*services.VoteResult, error) {
	return nil, s.err
}

func (s stubVoting) GetVoterStatus(ctx context.Context, identity *models.Identity, periodID int) (*services.VoterStatus, error) {
	return nil, s.err
}

func TestCastVote_ThrottledSetsRetryAfter(t *testing.T) {
	tests := []struct {
		err        error
		code       string
		retryAfter string
	}{
		{services.ErrBurstLimited, "BURST_LIMITED", "60"},
		{services.ErrRateLimited, "RATE_LIMITED", "3600"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := handlers.NewForTesting(stubVoting{err: tt.err}, nil, nil, nil, nil, logger.Nop())
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, voteRequest("listener-1", voteBody(1)))

			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("expected Retry-After %s, got %q", tt.retryAfter, got)
			}
			expectError(t, rec, http.StatusTooManyRequests, tt.code)
		})
	}
}

func TestVoterStatus(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")
	s.do(voteRequest("listener-1", voteBody(subID)))

	req := voteRequest("listener-1", nil)
	req.Method = http.MethodGet
	req.URL.Path = fmt.Sprintf("/api/periods/%d/voter-status", s.fx.PeriodID)
	rec := s.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status services.VoterStatus
	decodeBody(t, rec, &status)
	if status.VotesThisPeriod != 1 || status.Tier != models.TierFree {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.FreeVotesRemaining == nil || *status.FreeVotesRemaining != services.FreeVotesPerPeriod-1 {
		t.Errorf("expected %d free votes remaining, got %v", services.FreeVotesPerPeriod-1, status.FreeVotesRemaining)
	}
}

func TestVoterStatus_Errors(t *testing.T) {
	s := newTestSetup(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/periods/%d/voter-status", s.fx.PeriodID), nil))
	expectError(t, rec, http.StatusUnauthorized, "UNAUTHENTICATED")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/periods/abc/voter-status", nil))
	expectError(t, rec, http.StatusBadRequest, handlers.ErrCodeBadRequest)
}

func TestGetSubmission(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")

	rec := s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/submissions/%d", subID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sub models.Submission
	decodeBody(t, rec, &sub)
	if sub.ID != subID || sub.OwnerID != "artist-1" {
		t.Errorf("unexpected submission: %+v", sub)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/9999", nil))
	expectError(t, rec, http.StatusNotFound, "SUBMISSION_NOT_FOUND")
}

func TestSubmissionQR(t *testing.T) {
	s := newTestSetup(t)
	subID := s.fx.AddSubmission(t, "artist-1")

	rec := s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/submissions/%d/qr", subID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG data")
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/9999/qr", nil))
	expectError(t, rec, http.StatusNotFound, "SUBMISSION_NOT_FOUND")
}

func TestAdminRoutes_RequireSession(t *testing.T) {
	s := newTestSetup(t)
	paths := []struct{ method, path string }{
		{http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/fraud-scan", s.fx.PeriodID)},
		{http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/publish", s.fx.PeriodID)},
		{http.MethodGet, fmt.Sprintf("/api/admin/periods/%d/ranking-preview", s.fx.PeriodID)},
		{http.MethodGet, "/api/admin/votes/1/events"},
		{http.MethodPost, "/api/admin/seed"},
	}
	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			expectError(t, s.do(httptest.NewRequest(p.method, p.path, nil)), http.StatusUnauthorized, "UNAUTHORIZED")
		})
	}
}

func TestLoginLogout(t *testing.T) {
	s := newTestSetup(t)

	body := `{"username":"admin","password":"test-password"}`
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil)
	req.AddCookie(cookie)
	if rec := s.do(req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/seed", nil)
	req.AddCookie(cookie)
	expectError(t, s.do(req), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLogin_BadCredentials(t *testing.T) {
	s := newTestSetup(t)

	body := `{"username":"admin","password":"wrong"}`
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body)))
	expectError(t, rec, http.StatusUnauthorized, handlers.ErrCodeUnauthorized)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("expected no cookie on failed login")
	}
}

func seedBurst(t *testing.T, s *testSetup) []int64 {
	t.Helper()
	voter := s.fx.Identity("burst-voter")
	ids := make([]int64, 3)
	for i := range ids {
		catID := s.fx.AddCategory(t, fmt.Sprintf("Burst %d", i), nil)
		subID := s.fx.AddSubmissionIn(t, catID, fmt.Sprintf("artist-%d", i), models.SubmissionApproved)
		e, o, p := testutil.Scores(5, 5, 5)
		ids[i] = s.fx.InsertVote(t, voter, subID, "203.0.113.50", t0.Add(time.Duration(i)*30*time.Second), e, o, p)
	}
	return ids
}

func TestFraudScan_ReportOnly(t *testing.T) {
	s := newTestSetup(t)
	seedBurst(t, s)

	rec := s.admin(http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/fraud-scan", s.fx.PeriodID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report services.FraudReport
	decodeBody(t, rec, &report)
	if report.Summary.FlaggedVotes != 3 || report.Summary.Invalidated != nil {
		t.Errorf("unexpected summary: %+v", report.Summary)
	}

	votes, _ := s.repo.ListValidVotesForPeriod(context.Background(), s.fx.PeriodID)
	if len(votes) != 3 {
		t.Errorf("report-only scan must not invalidate, %d valid votes left", len(votes))
	}
}

func TestFraudScan_Invalidate(t *testing.T) {
	s := newTestSetup(t)
	ids := seedBurst(t, s)

	rec := s.admin(http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/fraud-scan", s.fx.PeriodID), `{"invalidate":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report services.FraudReport
	decodeBody(t, rec, &report)
	if report.Summary.Invalidated == nil || *report.Summary.Invalidated != 3 {
		t.Errorf("expected 3 invalidated, got %v", report.Summary.Invalidated)
	}

	rec = s.admin(http.MethodGet, fmt.Sprintf("/api/admin/votes/%d/events", ids[0]), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var trail struct {
		VoteID int                 `json:"vote_id"`
		Events []models.AuditEvent `json:"events"`
	}
	decodeBody(t, rec, &trail)
	if len(trail.Events) != 2 || trail.Events[1].EventType != models.EventInvalidated {
		t.Errorf("expected cast then invalidated, got %+v", trail.Events)
	}
}

func TestFraudScan_DryRunWithInvalidate(t *testing.T) {
	s := newTestSetup(t)
	seedBurst(t, s)

	rec := s.admin(http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/fraud-scan", s.fx.PeriodID), `{"dry_run":true,"invalidate":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	votes, _ := s.repo.ListValidVotesForPeriod(context.Background(), s.fx.PeriodID)
	if len(votes) != 3 {
		t.Errorf("dry run must not invalidate, %d valid votes left", len(votes))
	}
}

func TestFraudScan_Errors(t *testing.T) {
	s := newTestSetup(t)

	expectError(t, s.admin(http.MethodPost, "/api/admin/periods/9999/fraud-scan", ""), http.StatusNotFound, "PERIOD_NOT_FOUND")
	expectError(t, s.admin(http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/fraud-scan", s.fx.PeriodID), "{bad"), http.StatusBadRequest, handlers.ErrCodeBadRequest)
	expectError(t, s.admin(http.MethodGet, "/api/admin/votes/424242/events", ""), http.StatusNotFound, handlers.ErrCodeNotFound)
}

func TestPublishAndWinners(t *testing.T) {
	s := newTestSetup(t)
	subA := s.fx.AddSubmission(t, "artist-a")
	subB := s.fx.AddSubmission(t, "artist-b")
	for i, sub := range []int{subA, subA, subB} {
		e, o, p := testutil.Scores(5-i, 4, 4)
		s.fx.InsertVote(t, s.fx.Identity(fmt.Sprintf("voter-%d-%d", i, sub)), sub, "", t0.Add(time.Duration(i)*time.Hour), e, o, p)
	}
	s.clock.T = t0.Add(8 * 24 * time.Hour)

	rec := s.admin(http.MethodGet, fmt.Sprintf("/api/admin/periods/%d/ranking-preview", s.fx.PeriodID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.admin(http.MethodPost, fmt.Sprintf("/api/admin/periods/%d/publish", s.fx.PeriodID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var published services.PublishResult
	decodeBody(t, rec, &published)
	if published.WinnersCount != 2 || published.RewardMode != models.RewardModeNonCash {
		t.Errorf("unexpected publish result: %+v", published)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/periods/%d/winners", s.fx.PeriodID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("winners: expected 200, got %d", rec.Code)
	}
	var winners struct {
		PeriodID int                    `json:"period_id"`
		Winners  []repository.WinnerRow `json:"winners"`
	}
	decodeBody(t, rec, &winners)
	if len(winners.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(winners.Winners))
	}
	if winners.Winners[0].Rank != 1 || winners.Winners[0].RewardLabel == nil {
		t.Errorf("unexpected first winner: %+v", winners.Winners[0])
	}
}

func TestWinners_UnknownPeriod(t *testing.T) {
	s := newTestSetup(t)
	expectError(t, s.do(httptest.NewRequest(http.MethodGet, "/api/periods/9999/winners", nil)), http.StatusNotFound, "PERIOD_NOT_FOUND")
}

func TestSeedDemo(t *testing.T) {
	s := newTestSetup(t)

	rec := s.admin(http.MethodPost, "/api/admin/seed", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.SeedResult
	decodeBody(t, rec, &result)
	if result.PeriodID == 0 || result.Submissions == 0 {
		t.Errorf("unexpected seed result: %+v", result)
	}
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/abrezinsky/weeklyvote/internal/models"
)

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new Repository. Transactions take the write lock when they
// begin so the counted reads of a vote commit cannot race another writer.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", withDSNParams(dbPath, "_txlock=immediate", "_busy_timeout=5000"))
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

func withDSNParams(dsn string, params ...string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DB returns the underlying database connection
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS contest_periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			submission_open_at DATETIME NOT NULL,
			submission_close_at DATETIME NOT NULL,
			voting_open_at DATETIME NOT NULL,
			voting_close_at DATETIME NOT NULL,
			results_published_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			weight_emotion REAL,
			weight_originality REAL,
			weight_production REAL
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			period_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist_name TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			vote_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (period_id) REFERENCES contest_periods(id),
			FOREIGN KEY (category_id) REFERENCES categories(id)
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			display_name TEXT,
			email TEXT,
			account_created_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			email TEXT PRIMARY KEY,
			tier TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			voter_id TEXT NOT NULL,
			submission_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			period_id INTEGER NOT NULL,
			emotion INTEGER CHECK (emotion BETWEEN 1 AND 5),
			originality INTEGER CHECK (originality BETWEEN 1 AND 5),
			production INTEGER CHECK (production BETWEEN 1 AND 5),
			comment TEXT,
			is_valid BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (submission_id) REFERENCES submissions(id),
			FOREIGN KEY (category_id) REFERENCES categories(id),
			FOREIGN KEY (period_id) REFERENCES contest_periods(id),
			UNIQUE(voter_id, category_id, period_id)
		)`,
		`CREATE TABLE IF NOT EXISTS vote_events (
			id TEXT PRIMARY KEY,
			vote_id INTEGER NOT NULL,
			event_type TEXT NOT NULL CHECK (event_type IN ('cast', 'invalidated')),
			ip_address TEXT,
			user_agent TEXT,
			actor_id TEXT,
			reason TEXT,
			metadata TEXT,
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (vote_id) REFERENCES votes(id)
		)`,
		`CREATE TABLE IF NOT EXISTS winners (
			period_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			rank INTEGER NOT NULL CHECK (rank BETWEEN 1 AND 3),
			submission_id INTEGER NOT NULL,
			vote_count INTEGER NOT NULL,
			weighted_score REAL NOT NULL,
			PRIMARY KEY (period_id, category_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS rewards (
			period_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			amount_cents INTEGER,
			label TEXT,
			PRIMARY KEY (period_id, category_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS reward_pools (
			period_id INTEGER PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'collecting',
			top1_cents INTEGER NOT NULL DEFAULT 0,
			top2_cents INTEGER NOT NULL DEFAULT 0,
			top3_cents INTEGER NOT NULL DEFAULT 0,
			fallback_label TEXT,
			locked_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_voter_created ON votes(voter_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_period ON votes(period_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_submission ON votes(submission_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_events_vote ON vote_events(vote_id)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_period ON submissions(period_id, category_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Period Methods ====================

// GetPeriod retrieves a contest period by ID
func (r *Repository) GetPeriod(ctx context.Context, id int) (*models.ContestPeriod, error) {
	var p models.ContestPeriod
	var published sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, label, submission_open_at, submission_close_at, voting_open_at, voting_close_at, results_published_at
		FROM contest_periods WHERE id = ?
	`, id).Scan(&p.ID, &p.Label, &p.SubmissionOpenAt, &p.SubmissionCloseAt, &p.VotingOpenAt, &p.VotingCloseAt, &published)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ResultsPublishedAt = timePtr(published)
	return &p, nil
}

// CreatePeriod inserts a contest period
func (r *Repository) CreatePeriod(ctx context.Context, p models.ContestPeriod) (int64, error) {
	return createPeriod(ctx, r.db, p)
}

func createPeriod(ctx context.Context, q querier, p models.ContestPeriod) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO contest_periods (label, submission_open_at, submission_close_at, voting_open_at, voting_close_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.Label, p.SubmissionOpenAt.UTC(), p.SubmissionCloseAt.UTC(), p.VotingOpenAt.UTC(), p.VotingCloseAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ==================== Catalog Methods ====================

// ListCategories returns all categories in display order
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, display_order, weight_emotion, weight_originality, weight_production
		FROM categories ORDER BY display_order, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category
func (r *Repository) CreateCategory(ctx context.Context, c models.Category) (int64, error) {
	return createCategory(ctx, r.db, c)
}

func createCategory(ctx context.Context, q querier, c models.Category) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO categories (name, display_order, weight_emotion, weight_originality, weight_production)
		VALUES (?, ?, ?, ?, ?)
	`, c.Name, c.DisplayOrder, c.WeightEmotion, c.WeightOriginality, c.WeightProduction)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	var we, wo, wp sql.NullFloat64
	if err := row.Scan(&c.ID, &c.Name, &c.DisplayOrder, &we, &wo, &wp); err != nil {
		return nil, err
	}
	c.WeightEmotion = floatPtr(we)
	c.WeightOriginality = floatPtr(wo)
	c.WeightProduction = floatPtr(wp)
	return &c, nil
}

// GetSubmission retrieves a submission by ID
func (r *Repository) GetSubmission(ctx context.Context, id int) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, period_id, category_id, owner_id, title, artist_name, status, vote_count, created_at
		FROM submissions WHERE id = ?
	`, id)
	s, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubmissionsForPeriod returns every submission in a period regardless of status
func (r *Repository) ListSubmissionsForPeriod(ctx context.Context, periodID int) ([]models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, period_id, category_id, owner_id, title, artist_name, status, vote_count, created_at
		FROM submissions WHERE period_id = ? ORDER BY category_id, id
	`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// CreateSubmission inserts a submission
func (r *Repository) CreateSubmission(ctx context.Context, s models.Submission) (int64, error) {
	return createSubmission(ctx, r.db, s)
}

func createSubmission(ctx context.Context, q querier, s models.Submission) (int64, error) {
	status := s.Status
	if status == "" {
		status = models.SubmissionPending
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO submissions (period_id, category_id, owner_id, title, artist_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.PeriodID, s.CategoryID, s.OwnerID, s.Title, s.ArtistName, status, createdAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	var artist sql.NullString
	if err := row.Scan(&s.ID, &s.PeriodID, &s.CategoryID, &s.OwnerID, &s.Title, &artist, &s.Status, &s.VoteCount, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ArtistName = artist.String
	return &s, nil
}

// ==================== Profile Methods ====================

// GetSubscriptionTier returns the stored tier for an email
func (r *Repository) GetSubscriptionTier(ctx context.Context, email string) (string, error) {
	var tier string
	err := r.db.QueryRowContext(ctx, `SELECT tier FROM subscriptions WHERE email = ?`, strings.ToLower(email)).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return tier, err
}

// SetSubscriptionTier records the tier for an email
func (r *Repository) SetSubscriptionTier(ctx context.Context, email, tier string) error {
	return setSubscriptionTier(ctx, r.db, email, tier)
}

func setSubscriptionTier(ctx context.Context, q querier, email, tier string) error {
	_, err := q.ExecContext(ctx, `INSERT OR REPLACE INTO subscriptions (email, tier) VALUES (?, ?)`, strings.ToLower(email), tier)
	return err
}

func upsertProfile(ctx context.Context, q querier, id models.Identity) error {
	var created any
	if id.AccountCreatedAt != nil {
		created = id.AccountCreatedAt.UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, email, account_created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			account_created_at = COALESCE(excluded.account_created_at, profiles.account_created_at)
	`, id.UserID, id.DisplayName, id.Email, created)
	return err
}

// ==================== Vote Methods ====================

// VoterActivity holds the vote counts that drive admission limits
type VoterActivity struct {
	LastHour            int `json:"last_hour"`
	LastMinute          int `json:"last_minute"`
	LastTwoMinutes      int `json:"last_two_minutes"`
	ThisPeriod          int `json:"this_period"`
	CommentedThisPeriod int `json:"commented_this_period"`
	Lifetime            int `json:"lifetime"`
}

// VoteCommit is everything written by one admitted vote
type VoteCommit struct {
	Vote  *models.Vote
	Event *models.AuditEvent
	Voter models.Identity
	Now   time.Time

	// Guard runs inside the transaction against freshly counted activity.
	// It may clear Vote.Comment or extend Event.Metadata. A non-nil error
	// aborts the commit and is returned unchanged.
	Guard func(VoterActivity) error
}

// HasVote reports whether the voter already voted in the category this period
func (r *Repository) HasVote(ctx context.Context, voterID string, categoryID, periodID int) (bool, error) {
	return hasVote(ctx, r.db, voterID, categoryID, periodID)
}

func hasVote(ctx context.Context, q querier, voterID string, categoryID, periodID int) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes WHERE voter_id = ? AND category_id = ? AND period_id = ?
	`, voterID, categoryID, periodID).Scan(&n)
	return n > 0, err
}

// GetVoterActivity counts a voter's votes over the admission windows
func (r *Repository) GetVoterActivity(ctx context.Context, voterID string, periodID int, now time.Time) (VoterActivity, error) {
	return voterActivity(ctx, r.db, voterID, periodID, now)
}

func voterActivity(ctx context.Context, q querier, voterID string, periodID int, now time.Time) (VoterActivity, error) {
	now = now.UTC()
	var a VoterActivity
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN period_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN period_id = ? AND comment IS NOT NULL THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM votes WHERE voter_id = ?
	`, now.Add(-time.Hour), now.Add(-time.Minute), now.Add(-2*time.Minute), periodID, periodID, voterID).Scan(
		&a.LastHour, &a.LastMinute, &a.LastTwoMinutes, &a.ThisPeriod, &a.CommentedThisPeriod, &a.Lifetime)
	return a, err
}

// CommitVote writes the vote, its cast event, the voter profile and the
// cached submission count in one transaction. The duplicate check and the
// Guard run against rows read inside the same transaction.
func (r *Repository) CommitVote(ctx context.Context, c VoteCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	v := c.Vote
	dup, err := hasVote(ctx, tx, v.VoterID, v.CategoryID, v.PeriodID)
	if err != nil {
		return err
	}
	if dup {
		return ErrDuplicateVote
	}

	if c.Guard != nil {
		activity, err := voterActivity(ctx, tx, v.VoterID, v.PeriodID, c.Now)
		if err != nil {
			return err
		}
		if err := c.Guard(activity); err != nil {
			return err
		}
	}

	if err := upsertProfile(ctx, tx, c.Voter); err != nil {
		return err
	}

	v.CreatedAt = c.Now.UTC()
	v.IsValid = true
	res, err := tx.ExecContext(ctx, `
		INSERT INTO votes (voter_id, submission_id, category_id, period_id, emotion, originality, production, comment, is_valid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, v.VoterID, v.SubmissionID, v.CategoryID, v.PeriodID, v.Emotion, v.Originality, v.Production, v.Comment, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateVote
		}
		return err
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	e := c.Event
	e.VoteID = v.ID
	e.EventType = models.EventCast
	e.OccurredAt = v.CreatedAt
	if err := insertEvent(ctx, tx, e); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE submissions SET vote_count = vote_count + 1 WHERE id = ?`, v.SubmissionID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListValidVotesForPeriod returns currently valid votes ordered by ID
func (r *Repository) ListValidVotesForPeriod(ctx context.Context, periodID int) ([]models.Vote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, voter_id, submission_id, category_id, period_id, emotion, originality, production, comment, is_valid, created_at
		FROM votes WHERE period_id = ? AND is_valid = 1
		ORDER BY id
	`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		var e, o, p sql.NullInt64
		var comment sql.NullString
		if err := rows.Scan(&v.ID, &v.VoterID, &v.SubmissionID, &v.CategoryID, &v.PeriodID, &e, &o, &p, &comment, &v.IsValid, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Emotion, v.Originality, v.Production = intPtr(e), intPtr(o), intPtr(p)
		if comment.Valid {
			v.Comment = &comment.String
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ==================== Audit Methods ====================

// CastEventRow is a cast event joined with its vote and voter profile
type CastEventRow struct {
	EventID          string
	VoteID           int64
	VoterID          string
	DisplayName      string
	SubmissionID     int
	IPAddress        *string
	OccurredAt       time.Time
	AccountCreatedAt *time.Time
}

// ListCastEvents returns every cast event for votes in the period, oldest first
func (r *Repository) ListCastEvents(ctx context.Context, periodID int) ([]CastEventRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.vote_id, v.voter_id, COALESCE(p.display_name, ''), v.submission_id,
			e.ip_address, e.occurred_at, p.account_created_at
		FROM vote_events e
		JOIN votes v ON v.id = e.vote_id
		LEFT JOIN profiles p ON p.user_id = v.voter_id
		WHERE v.period_id = ? AND e.event_type = 'cast'
		ORDER BY e.occurred_at, e.vote_id
	`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CastEventRow
	for rows.Next() {
		var row CastEventRow
		var ip sql.NullString
		var created sql.NullTime
		if err := rows.Scan(&row.EventID, &row.VoteID, &row.VoterID, &row.DisplayName, &row.SubmissionID,
			&ip, &row.OccurredAt, &created); err != nil {
			return nil, err
		}
		if ip.Valid {
			row.IPAddress = &ip.String
		}
		row.AccountCreatedAt = timePtr(created)
		events = append(events, row)
	}
	return events, rows.Err()
}

// ListEventsForVote returns a vote's audit trail in order
func (r *Repository) ListEventsForVote(ctx context.Context, voteID int64) ([]models.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vote_id, event_type, ip_address, user_agent, actor_id, reason, metadata, occurred_at
		FROM vote_events WHERE vote_id = ?
		ORDER BY occurred_at, rowid
	`, voteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var ip, ua, actor, reason, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.VoteID, &e.EventType, &ip, &ua, &actor, &reason, &meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		if ip.Valid {
			e.IPAddress = &ip.String
		}
		e.UserAgent = ua.String
		e.ActorID = actor.String
		e.Reason = reason.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InvalidateVotes flips still-valid votes to invalid and appends one
// invalidated event per flipped vote. Votes already invalid are skipped.
// Returns the number of votes flipped.
func (r *Repository) InvalidateVotes(ctx context.Context, voteIDs []int64, actorID, reason string, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	flipped := 0
	for _, id := range voteIDs {
		res, err := tx.ExecContext(ctx, `UPDATE votes SET is_valid = 0 WHERE id = ? AND is_valid = 1`, id)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			continue
		}
		if err := insertEvent(ctx, tx, &models.AuditEvent{
			VoteID:     id,
			EventType:  models.EventInvalidated,
			ActorID:    actorID,
			Reason:     reason,
			OccurredAt: at,
		}); err != nil {
			return 0, err
		}
		flipped++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return flipped, nil
}

func insertEvent(ctx context.Context, q querier, e *models.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var meta any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	var ip any
	if e.IPAddress != nil {
		ip = *e.IPAddress
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO vote_events (id, vote_id, event_type, ip_address, user_agent, actor_id, reason, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.VoteID, e.EventType, ip, nullString(e.UserAgent), nullString(e.ActorID), nullString(e.Reason), meta, e.OccurredAt.UTC())
	return err
}

// ==================== Results Methods ====================

// ResultsReplacement is the full output of one scoring run
type ResultsReplacement struct {
	PeriodID    int
	Winners     []models.Winner
	Rewards     []models.Reward
	LockPool    bool
	PublishedAt time.Time
}

// WinnerRow is a persisted winner joined with its reward and submission
type WinnerRow struct {
	models.Winner
	CategoryName string  `json:"category_name"`
	Title        string  `json:"title"`
	ArtistName   string  `json:"artist_name"`
	AmountCents  *int64  `json:"amount_cents,omitempty"`
	RewardLabel  *string `json:"reward_label,omitempty"`
}

// GetRewardPool returns the reward pool for a period
func (r *Repository) GetRewardPool(ctx context.Context, periodID int) (*models.RewardPool, error) {
	var p models.RewardPool
	var label sql.NullString
	var locked sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT period_id, status, top1_cents, top2_cents, top3_cents, fallback_label, locked_at
		FROM reward_pools WHERE period_id = ?
	`, periodID).Scan(&p.PeriodID, &p.Status, &p.Top1Cents, &p.Top2Cents, &p.Top3Cents, &label, &locked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.FallbackLabel = label.String
	p.LockedAt = timePtr(locked)
	return &p, nil
}

// UpsertRewardPool creates or updates a period's reward pool.
// Returns ErrPoolLocked if the existing pool is locked.
func (r *Repository) UpsertRewardPool(ctx context.Context, p models.RewardPool) error {
	return upsertRewardPool(ctx, r.db, p)
}

func upsertRewardPool(ctx context.Context, q querier, p models.RewardPool) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO reward_pools (period_id, status, top1_cents, top2_cents, top3_cents, fallback_label)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id) DO UPDATE SET
			status = excluded.status,
			top1_cents = excluded.top1_cents,
			top2_cents = excluded.top2_cents,
			top3_cents = excluded.top3_cents,
			fallback_label = excluded.fallback_label
		WHERE reward_pools.status <> 'locked'
	`, p.PeriodID, p.Status, p.Top1Cents, p.Top2Cents, p.Top3Cents, nullString(p.FallbackLabel))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPoolLocked
	}
	return nil
}

// ReplaceResults atomically replaces a period's winners and rewards,
// recomputes cached vote counts from valid votes, marks the period
// published and optionally locks the reward pool.
func (r *Repository) ReplaceResults(ctx context.Context, rr ResultsReplacement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	at := rr.PublishedAt.UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rewards WHERE period_id = ?`, rr.PeriodID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM winners WHERE period_id = ?`, rr.PeriodID); err != nil {
		return err
	}

	for _, w := range rr.Winners {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO winners (period_id, category_id, rank, submission_id, vote_count, weighted_score)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rr.PeriodID, w.CategoryID, w.Rank, w.SubmissionID, w.VoteCount, w.WeightedScore); err != nil {
			return err
		}
	}

	for _, rw := range rr.Rewards {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rewards (period_id, category_id, rank, amount_cents, label)
			VALUES (?, ?, ?, ?, ?)
		`, rr.PeriodID, rw.CategoryID, rw.Rank, rw.AmountCents, rw.Label); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE submissions SET vote_count = (
			SELECT COUNT(*) FROM votes WHERE votes.submission_id = submissions.id AND votes.is_valid = 1
		) WHERE period_id = ?
	`, rr.PeriodID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE contest_periods SET results_published_at = ? WHERE id = ?`, at, rr.PeriodID); err != nil {
		return err
	}

	if rr.LockPool {
		if _, err := tx.ExecContext(ctx, `
			UPDATE reward_pools SET status = 'locked', locked_at = COALESCE(locked_at, ?) WHERE period_id = ?
		`, at, rr.PeriodID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListWinners returns a period's winners with rewards, by category then rank
func (r *Repository) ListWinners(ctx context.Context, periodID int) ([]WinnerRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT w.period_id, w.category_id, w.rank, w.submission_id, w.vote_count, w.weighted_score,
			c.name, s.title, COALESCE(s.artist_name, ''), rw.amount_cents, rw.label
		FROM winners w
		JOIN categories c ON c.id = w.category_id
		JOIN submissions s ON s.id = w.submission_id
		LEFT JOIN rewards rw ON rw.period_id = w.period_id AND rw.category_id = w.category_id AND rw.rank = w.rank
		WHERE w.period_id = ?
		ORDER BY c.display_order, w.category_id, w.rank
	`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []WinnerRow
	for rows.Next() {
		var w WinnerRow
		var amount sql.NullInt64
		var label sql.NullString
		if err := rows.Scan(&w.PeriodID, &w.CategoryID, &w.Rank, &w.SubmissionID, &w.VoteCount, &w.WeightedScore,
			&w.CategoryName, &w.Title, &w.ArtistName, &amount, &label); err != nil {
			return nil, err
		}
		if amount.Valid {
			w.AmountCents = &amount.Int64
		}
		if label.Valid {
			w.RewardLabel = &label.String
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// ==================== Helpers ====================

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ==================== Seed Methods ====================

// PeriodSeed is everything SeedPeriod writes for one new period
type PeriodSeed struct {
	Period models.ContestPeriod
	// Categories are referenced by index from Submissions. Entries with a
	// zero ID are created.
	Categories    []models.Category
	Submissions   []SeedSubmission
	Pool          *models.RewardPool
	Subscriptions map[string]string
}

// SeedSubmission places a submission in PeriodSeed.Categories[CategoryIndex]
type SeedSubmission struct {
	CategoryIndex int
	Submission    models.Submission
}

// SeedOutcome reports the rows SeedPeriod created
type SeedOutcome struct {
	PeriodID          int
	CategoriesCreated int
	SubmissionIDs     []int
}

// SeedPeriod writes a period with its categories, submissions, pool and
// subscriptions in one transaction. Nothing is written if any step fails.
func (r *Repository) SeedPeriod(ctx context.Context, ps PeriodSeed) (*SeedOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	periodID, err := createPeriod(ctx, tx, ps.Period)
	if err != nil {
		return nil, err
	}
	out := &SeedOutcome{PeriodID: int(periodID)}

	categoryIDs := make([]int, len(ps.Categories))
	for i, c := range ps.Categories {
		if c.ID != 0 {
			categoryIDs[i] = c.ID
			continue
		}
		id, err := createCategory(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		categoryIDs[i] = int(id)
		out.CategoriesCreated++
	}

	for _, ss := range ps.Submissions {
		if ss.CategoryIndex < 0 || ss.CategoryIndex >= len(categoryIDs) {
			return nil, fmt.Errorf("seed submission %q: category index %d out of range", ss.Submission.Title, ss.CategoryIndex)
		}
		sub := ss.Submission
		sub.PeriodID = out.PeriodID
		sub.CategoryID = categoryIDs[ss.CategoryIndex]
		id, err := createSubmission(ctx, tx, sub)
		if err != nil {
			return nil, err
		}
		out.SubmissionIDs = append(out.SubmissionIDs, int(id))
	}

	if ps.Pool != nil {
		pool := *ps.Pool
		pool.PeriodID = out.PeriodID
		if err := upsertRewardPool(ctx, tx, pool); err != nil {
			return nil, err
		}
	}

	for email, tier := range ps.Subscriptions {
		if err := setSubscriptionTier(ctx, tx, email, tier); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/amishk599/jobsweep/internal/model"
)

// SQLiteStore keeps the ledger, enriched jobs, watermarks and run history in
// one SQLite file. Writers are serialized on a single connection.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS raw_postings (
	source         TEXT NOT NULL,
	source_job_id  TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	company        TEXT NOT NULL,
	employer       TEXT NOT NULL,
	title          TEXT NOT NULL,
	location       TEXT NOT NULL,
	description    TEXT NOT NULL,
	url            TEXT NOT NULL,
	posted_at      TEXT,
	first_seen     TEXT NOT NULL,
	last_seen      TEXT NOT NULL,
	blocked_reason TEXT,
	identity_key   TEXT NOT NULL,
	compensation   TEXT,
	PRIMARY KEY (source, source_job_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_raw_postings_identity ON raw_postings(identity_key);
CREATE INDEX IF NOT EXISTS idx_raw_postings_source_seen ON raw_postings(source, last_seen);

CREATE TABLE IF NOT EXISTS enriched_jobs (
	identity_key        TEXT PRIMARY KEY,
	employer            TEXT NOT NULL,
	title               TEXT NOT NULL,
	job_family          TEXT NOT NULL,
	job_subfamily       TEXT NOT NULL,
	seniority           TEXT NOT NULL,
	track               TEXT NOT NULL,
	working_arrangement TEXT NOT NULL,
	skills              TEXT NOT NULL,
	compensation        TEXT,
	summary             TEXT NOT NULL,
	source              TEXT NOT NULL,
	content_hash        TEXT NOT NULL,
	content_seen_at     TEXT NOT NULL,
	agency_score        REAL NOT NULL,
	agency_signals      TEXT NOT NULL,
	model               TEXT NOT NULL,
	taxonomy_version    TEXT NOT NULL,
	first_seen          TEXT NOT NULL,
	last_seen           TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS watermarks (
	source       TEXT NOT NULL,
	company      TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	PRIMARY KEY (source, company)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	summary    TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const rawColumns = `r.source, r.source_job_id, r.content_hash, r.company, r.employer, r.title,
	r.location, r.description, r.url, r.posted_at, r.first_seen, r.last_seen,
	r.blocked_reason, r.identity_key, r.compensation`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLitePosting(row scanner, extra ...any) (model.RawPosting, error) {
	var (
		p                   model.RawPosting
		postedAt, blocked   sql.NullString
		firstSeen, lastSeen string
		comp                []byte
	)
	dest := []any{
		&p.Source, &p.SourceJobID, &p.ContentHash, &p.Company, &p.Employer, &p.Title,
		&p.Location, &p.Description, &p.URL, &postedAt, &firstSeen, &lastSeen,
		&blocked, &p.IdentityKey, &comp,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return p, err
	}

	var err error
	if p.FirstSeen, err = parseTime(firstSeen); err != nil {
		return p, err
	}
	if p.LastSeen, err = parseTime(lastSeen); err != nil {
		return p, err
	}
	if postedAt.Valid {
		t, err := parseTime(postedAt.String)
		if err != nil {
			return p, err
		}
		p.PostedAt = &t
	}
	p.BlockedReason = model.BlockReason(blocked.String)
	if p.Compensation, err = decodeCompensation(comp); err != nil {
		return p, err
	}
	return p, nil
}

// RecordSighting inserts a posting or advances last_seen on the existing row.
func (s *SQLiteStore) RecordSighting(ctx context.Context, p model.RawPosting) (model.RawPosting, error) {
	comp, err := encodeCompensation(p.Compensation)
	if err != nil {
		return p, err
	}
	var postedAt sql.NullString
	if p.PostedAt != nil {
		postedAt = sql.NullString{String: formatTime(*p.PostedAt), Valid: true}
	}
	var compText sql.NullString
	if comp != nil {
		compText = sql.NullString{String: string(comp), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_postings (source, source_job_id, content_hash, company, employer, title,
			location, description, url, posted_at, first_seen, last_seen, identity_key, compensation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, source_job_id, content_hash)
		DO UPDATE SET last_seen = MAX(last_seen, excluded.last_seen)`,
		p.Source, p.SourceJobID, p.ContentHash, p.Company, p.Employer, p.Title,
		p.Location, p.Description, p.URL, postedAt, formatTime(p.FirstSeen), formatTime(p.LastSeen),
		p.IdentityKey, compText,
	)
	if err != nil {
		return p, fmt.Errorf("recording sighting %s/%s: %w", p.Source, p.SourceJobID, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+rawColumns+` FROM raw_postings r
		WHERE r.source = ? AND r.source_job_id = ? AND r.content_hash = ?`,
		p.Source, p.SourceJobID, p.ContentHash)
	stored, err := scanSQLitePosting(row)
	if err != nil {
		return p, fmt.Errorf("reading sighting %s/%s: %w", p.Source, p.SourceJobID, err)
	}
	return stored, nil
}

// SetBlockedReason records the prefilter verdict on a ledger row.
func (s *SQLiteStore) SetBlockedReason(ctx context.Context, p model.RawPosting, reason model.BlockReason) error {
	var v sql.NullString
	if reason != model.BlockNone {
		v = sql.NullString{String: string(reason), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE raw_postings SET blocked_reason = ?
		WHERE source = ? AND source_job_id = ? AND content_hash = ?`,
		v, p.Source, p.SourceJobID, p.ContentHash)
	if err != nil {
		return fmt.Errorf("setting blocked reason for %s/%s: %w", p.Source, p.SourceJobID, err)
	}
	return nil
}

// PendingEnrichment returns unblocked rows with no enriched job, oldest first.
func (s *SQLiteStore) PendingEnrichment(ctx context.Context, source string, limit int) ([]model.RawPosting, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+rawColumns+` FROM raw_postings r
		WHERE r.blocked_reason IS NULL
		  AND (? = '' OR r.source = ?)
		  AND NOT EXISTS (SELECT 1 FROM enriched_jobs e WHERE e.identity_key = r.identity_key)
		ORDER BY r.first_seen
		LIMIT ?`, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending postings: %w", err)
	}
	defer rows.Close()

	var out []model.RawPosting
	for rows.Next() {
		p, err := scanSQLitePosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pending posting: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPostings returns ledger rows with their derived status, newest first.
func (s *SQLiteStore) ListPostings(ctx context.Context, q model.LedgerQuery) ([]model.RawPosting, []model.PostingStatus, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM (
			SELECT `+rawColumns+`, `+statusCase+` AS status
			FROM raw_postings r
			LEFT JOIN enriched_jobs e ON e.identity_key = r.identity_key
			WHERE (? = '' OR r.source = ?)
		) AS t WHERE (? = '' OR status = ?)
		ORDER BY last_seen DESC
		LIMIT ?`, q.Source, q.Source, string(q.Status), string(q.Status), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var (
		postings []model.RawPosting
		statuses []model.PostingStatus
	)
	for rows.Next() {
		var status string
		p, err := scanSQLitePosting(rows, &status)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		postings = append(postings, p)
		statuses = append(statuses, model.PostingStatus(status))
	}
	return postings, statuses, rows.Err()
}

// LedgerCounts summarizes the ledger per source.
func (s *SQLiteStore) LedgerCounts(ctx context.Context) ([]model.LedgerCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.source, `+statusCase+` AS status, COUNT(*)
		FROM raw_postings r
		LEFT JOIN enriched_jobs e ON e.identity_key = r.identity_key
		GROUP BY r.source, status
		ORDER BY r.source`)
	if err != nil {
		return nil, fmt.Errorf("counting ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerCount
	for rows.Next() {
		var (
			source, status string
			n              int
		)
		if err := rows.Scan(&source, &status, &n); err != nil {
			return nil, fmt.Errorf("scanning ledger count: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Source != source {
			out = append(out, model.LedgerCount{Source: source})
		}
		tally(&out[len(out)-1], model.PostingStatus(status), n)
	}
	return out, rows.Err()
}

const jobColumns = `identity_key, employer, title, job_family, job_subfamily, seniority, track,
	working_arrangement, skills, compensation, summary, source, content_hash, content_seen_at,
	agency_score, agency_signals, model, taxonomy_version, first_seen, last_seen, created_at, updated_at`

func scanSQLiteJob(row scanner) (model.EnrichedJob, error) {
	var (
		j                                          model.EnrichedJob
		arrangement                                string
		skills, comp, signals                      []byte
		contentSeen, first, last, created, updated string
	)
	err := row.Scan(&j.IdentityKey, &j.Employer, &j.Title, &j.JobFamily, &j.JobSubfamily, &j.Seniority,
		&j.Track, &arrangement, &skills, &comp, &j.Summary, &j.Source, &j.ContentHash, &contentSeen,
		&j.AgencyScore, &signals, &j.Model, &j.TaxonomyVersion, &first, &last, &created, &updated)
	if err != nil {
		return j, err
	}
	j.WorkingArrangement = model.WorkingArrangement(arrangement)

	doc, err := decodeJobDoc(skills, comp, signals)
	if err != nil {
		return j, err
	}
	j.Skills, j.Compensation, j.AgencySignals = doc.Skills, doc.Compensation, doc.AgencySignals

	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&j.ContentSeenAt, contentSeen}, {&j.FirstSeen, first}, {&j.LastSeen, last},
		{&j.CreatedAt, created}, {&j.UpdatedAt, updated},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return j, err
		}
	}
	return j, nil
}

// GetJob returns the enriched job for key or model.ErrNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, key string) (model.EnrichedJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enriched_jobs WHERE identity_key = ?`, key)
	j, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return j, model.ErrNotFound
	}
	if err != nil {
		return j, fmt.Errorf("loading job %s: %w", key, err)
	}
	return j, nil
}

// UpsertJob runs merge against the current row inside one transaction.
func (s *SQLiteStore) UpsertJob(ctx context.Context, key string, merge model.MergeFunc) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	var existing *model.EnrichedJob
	cur, err := scanSQLiteJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enriched_jobs WHERE identity_key = ?`, key))
	switch {
	case err == nil:
		existing = &cur
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("loading job %s: %w", key, err)
	}

	merged, changed := merge(existing)
	if !changed {
		return false, nil
	}
	merged.IdentityKey = key
	now := time.Now().UTC()
	merged.UpdatedAt = now
	if existing == nil {
		merged.CreatedAt = now
	}

	skills, comp, signals, err := encodeJobDoc(merged)
	if err != nil {
		return false, err
	}
	var compText sql.NullString
	if comp != nil {
		compText = sql.NullString{String: string(comp), Valid: true}
	}
	args := []any{
		merged.Employer, merged.Title, merged.JobFamily, merged.JobSubfamily, merged.Seniority,
		merged.Track, string(merged.WorkingArrangement), string(skills), compText, merged.Summary,
		merged.Source, merged.ContentHash, formatTime(merged.ContentSeenAt), merged.AgencyScore,
		string(signals), merged.Model, merged.TaxonomyVersion, formatTime(merged.FirstSeen),
		formatTime(merged.LastSeen), formatTime(merged.CreatedAt), formatTime(merged.UpdatedAt), key,
	}

	if existing == nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO enriched_jobs (employer, title, job_family, job_subfamily,
			seniority, track, working_arrangement, skills, compensation, summary, source, content_hash,
			content_seen_at, agency_score, agency_signals, model, taxonomy_version, first_seen, last_seen,
			created_at, updated_at, identity_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE enriched_jobs SET employer = ?, title = ?, job_family = ?,
			job_subfamily = ?, seniority = ?, track = ?, working_arrangement = ?, skills = ?,
			compensation = ?, summary = ?, source = ?, content_hash = ?, content_seen_at = ?,
			agency_score = ?, agency_signals = ?, model = ?, taxonomy_version = ?, first_seen = ?,
			last_seen = ?, created_at = ?, updated_at = ?
			WHERE identity_key = ?`, args...)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("upserting job %s: %w", key, model.ErrConflict)
		}
		return false, fmt.Errorf("upserting job %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing job %s: %w", key, err)
	}
	return existing == nil, nil
}

// TouchJob advances last_seen; older timestamps are ignored.
func (s *SQLiteStore) TouchJob(ctx context.Context, key string, seenAt time.Time) error {
	ts := formatTime(seenAt)
	res, err := s.db.ExecContext(ctx, `UPDATE enriched_jobs SET last_seen = MAX(last_seen, ?), updated_at = ?
		WHERE identity_key = ?`, ts, formatTime(time.Now()), key)
	if err != nil {
		return fmt.Errorf("touching job %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("touching job %s: %w", key, model.ErrNotFound)
	}
	return nil
}

// Watermark returns the last completion time of a unit.
func (s *SQLiteStore) Watermark(ctx context.Context, source, company string) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `SELECT completed_at FROM watermarks WHERE source = ? AND company = ?`,
		source, company).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading watermark %s: %w", model.UnitKey(source, company), err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// SetWatermark records a unit's completion time.
func (s *SQLiteStore) SetWatermark(ctx context.Context, source, company string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO watermarks (source, company, completed_at) VALUES (?, ?, ?)
		ON CONFLICT (source, company) DO UPDATE SET completed_at = excluded.completed_at`,
		source, company, formatTime(at))
	if err != nil {
		return fmt.Errorf("writing watermark %s: %w", model.UnitKey(source, company), err)
	}
	return nil
}

// SaveRun stores a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, sum model.RunSummary) error {
	b, err := encodeJSON(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs (run_id, started_at, summary) VALUES (?, ?, ?)`,
		sum.RunID, formatTime(sum.StartedAt), string(b))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", sum.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT summary FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var sum model.RunSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("decoding run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

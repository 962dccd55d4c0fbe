package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobsweep/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses, so tests can swap in
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements model.Store on PostgreSQL.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool sizing.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

const postgresSchema = `
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
	posted_at      TIMESTAMPTZ,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL,
	blocked_reason TEXT,
	identity_key   TEXT NOT NULL,
	compensation   JSONB,
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
	working_arrangement TEXT NOT NULL DEFAULT 'unknown',
	skills              JSONB NOT NULL,
	compensation        JSONB,
	summary             TEXT NOT NULL,
	source              TEXT NOT NULL,
	content_hash        TEXT NOT NULL,
	content_seen_at     TIMESTAMPTZ NOT NULL,
	agency_score        DOUBLE PRECISION NOT NULL,
	agency_signals      JSONB NOT NULL,
	model               TEXT NOT NULL,
	taxonomy_version    TEXT NOT NULL,
	first_seen          TIMESTAMPTZ NOT NULL,
	last_seen           TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS watermarks (
	source       TEXT NOT NULL,
	company      TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, company)
);

CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	summary    JSONB NOT NULL
);
`

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	cfg.MaxConns = 8
	if poolCfg != nil && poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg != nil && poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func limitArg(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

func scanPgPosting(row pgx.Row, extra ...any) (model.RawPosting, error) {
	var (
		p       model.RawPosting
		blocked *string
		comp    []byte
	)
	dest := []any{
		&p.Source, &p.SourceJobID, &p.ContentHash, &p.Company, &p.Employer, &p.Title,
		&p.Location, &p.Description, &p.URL, &p.PostedAt, &p.FirstSeen, &p.LastSeen,
		&blocked, &p.IdentityKey, &comp,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return p, err
	}
	if blocked != nil {
		p.BlockedReason = model.BlockReason(*blocked)
	}
	var err error
	p.Compensation, err = decodeCompensation(comp)
	return p, err
}

func (s *PostgresStore) RecordSighting(ctx context.Context, p model.RawPosting) (model.RawPosting, error) {
	comp, err := encodeCompensation(p.Compensation)
	if err != nil {
		return p, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO raw_postings AS r (source, source_job_id, content_hash, company, employer, title,
			location, description, url, posted_at, first_seen, last_seen, identity_key, compensation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (source, source_job_id, content_hash)
		DO UPDATE SET last_seen = GREATEST(r.last_seen, EXCLUDED.last_seen)
		RETURNING `+rawColumns,
		p.Source, p.SourceJobID, p.ContentHash, p.Company, p.Employer, p.Title,
		p.Location, p.Description, p.URL, p.PostedAt, p.FirstSeen.UTC(), p.LastSeen.UTC(),
		p.IdentityKey, comp,
	)
	stored, err := scanPgPosting(row)
	if err != nil {
		return p, fmt.Errorf("postgres: record sighting %s/%s: %w", p.Source, p.SourceJobID, err)
	}
	return stored, nil
}

func (s *PostgresStore) SetBlockedReason(ctx context.Context, p model.RawPosting, reason model.BlockReason) error {
	var v *string
	if reason != model.BlockNone {
		r := string(reason)
		v = &r
	}
	_, err := s.pool.Exec(ctx, `UPDATE raw_postings SET blocked_reason = $1
		WHERE source = $2 AND source_job_id = $3 AND content_hash = $4`,
		v, p.Source, p.SourceJobID, p.ContentHash)
	if err != nil {
		return fmt.Errorf("postgres: set blocked reason %s/%s: %w", p.Source, p.SourceJobID, err)
	}
	return nil
}

func (s *PostgresStore) PendingEnrichment(ctx context.Context, source string, limit int) ([]model.RawPosting, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rawColumns+` FROM raw_postings r
		WHERE r.blocked_reason IS NULL
		  AND ($1 = '' OR r.source = $1)
		  AND NOT EXISTS (SELECT 1 FROM enriched_jobs e WHERE e.identity_key = r.identity_key)
		ORDER BY r.first_seen
		LIMIT $2`, source, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: pending postings: %w", err)
	}
	defer rows.Close()

	var out []model.RawPosting
	for rows.Next() {
		p, err := scanPgPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending posting: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPostings(ctx context.Context, q model.LedgerQuery) ([]model.RawPosting, []model.PostingStatus, error) {
	rows, err := s.pool.Query(ctx, `SELECT * FROM (
			SELECT `+rawColumns+`, `+statusCase+` AS status
			FROM raw_postings r
			LEFT JOIN enriched_jobs e ON e.identity_key = r.identity_key
			WHERE ($1 = '' OR r.source = $1)
		) AS t WHERE ($2 = '' OR status = $2)
		ORDER BY last_seen DESC
		LIMIT $3`, q.Source, string(q.Status), limitArg(q.Limit))
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list postings: %w", err)
	}
	defer rows.Close()

	var (
		postings []model.RawPosting
		statuses []model.PostingStatus
	)
	for rows.Next() {
		var status string
		p, err := scanPgPosting(rows, &status)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: scan ledger row: %w", err)
		}
		postings = append(postings, p)
		statuses = append(statuses, model.PostingStatus(status))
	}
	return postings, statuses, rows.Err()
}

func (s *PostgresStore) LedgerCounts(ctx context.Context) ([]model.LedgerCount, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.source, `+statusCase+` AS status, COUNT(*)
		FROM raw_postings r
		LEFT JOIN enriched_jobs e ON e.identity_key = r.identity_key
		GROUP BY r.source, status
		ORDER BY r.source`)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger counts: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerCount
	for rows.Next() {
		var (
			source, status string
			n              int64
		)
		if err := rows.Scan(&source, &status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger count: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Source != source {
			out = append(out, model.LedgerCount{Source: source})
		}
		tally(&out[len(out)-1], model.PostingStatus(status), int(n))
	}
	return out, rows.Err()
}

func scanPgJob(row pgx.Row) (model.EnrichedJob, error) {
	var (
		j                     model.EnrichedJob
		arrangement           string
		skills, comp, signals []byte
	)
	err := row.Scan(&j.IdentityKey, &j.Employer, &j.Title, &j.JobFamily, &j.JobSubfamily, &j.Seniority,
		&j.Track, &arrangement, &skills, &comp, &j.Summary, &j.Source, &j.ContentHash, &j.ContentSeenAt,
		&j.AgencyScore, &signals, &j.Model, &j.TaxonomyVersion, &j.FirstSeen, &j.LastSeen,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, err
	}
	j.WorkingArrangement = model.WorkingArrangement(arrangement)
	doc, err := decodeJobDoc(skills, comp, signals)
	if err != nil {
		return j, err
	}
	j.Skills, j.Compensation, j.AgencySignals = doc.Skills, doc.Compensation, doc.AgencySignals
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, key string) (model.EnrichedJob, error) {
	j, err := scanPgJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM enriched_jobs WHERE identity_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return j, model.ErrNotFound
	}
	if err != nil {
		return j, fmt.Errorf("postgres: get job %s: %w", key, err)
	}
	return j, nil
}

// UpsertJob locks the row (if any), merges and writes in one transaction.
// A concurrent first insert of the same key surfaces as model.ErrConflict.
func (s *PostgresStore) UpsertJob(ctx context.Context, key string, merge model.MergeFunc) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing *model.EnrichedJob
	cur, err := scanPgJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM enriched_jobs WHERE identity_key = $1 FOR UPDATE`, key))
	switch {
	case err == nil:
		existing = &cur
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("postgres: load job %s: %w", key, err)
	}

	merged, changed := merge(existing)
	if !changed {
		return false, nil
	}
	now := time.Now().UTC()
	merged.UpdatedAt = now
	if existing == nil {
		merged.CreatedAt = now
	}

	skills, comp, signals, err := encodeJobDoc(merged)
	if err != nil {
		return false, err
	}
	args := []any{
		key, merged.Employer, merged.Title, merged.JobFamily, merged.JobSubfamily, merged.Seniority,
		merged.Track, string(merged.WorkingArrangement), skills, comp, merged.Summary,
		merged.Source, merged.ContentHash, merged.ContentSeenAt.UTC(), merged.AgencyScore,
		signals, merged.Model, merged.TaxonomyVersion, merged.FirstSeen.UTC(),
		merged.LastSeen.UTC(), merged.CreatedAt.UTC(), merged.UpdatedAt,
	}

	if existing == nil {
		_, err = tx.Exec(ctx, `INSERT INTO enriched_jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
			args...)
	} else {
		_, err = tx.Exec(ctx, `UPDATE enriched_jobs SET employer = $2, title = $3, job_family = $4,
			job_subfamily = $5, seniority = $6, track = $7, working_arrangement = $8, skills = $9,
			compensation = $10, summary = $11, source = $12, content_hash = $13, content_seen_at = $14,
			agency_score = $15, agency_signals = $16, model = $17, taxonomy_version = $18,
			first_seen = $19, last_seen = $20, created_at = $21, updated_at = $22
			WHERE identity_key = $1`, args...)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, fmt.Errorf("postgres: upsert job %s: %w", key, model.ErrConflict)
		}
		return false, fmt.Errorf("postgres: upsert job %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit job %s: %w", key, err)
	}
	return existing == nil, nil
}

func (s *PostgresStore) TouchJob(ctx context.Context, key string, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE enriched_jobs
		SET last_seen = GREATEST(last_seen, $2), updated_at = now()
		WHERE identity_key = $1`, key, seenAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: touch job %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: touch job %s: %w", key, model.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Watermark(ctx context.Context, source, company string) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `SELECT completed_at FROM watermarks WHERE source = $1 AND company = $2`,
		source, company).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("postgres: watermark %s: %w", model.UnitKey(source, company), err)
	}
	return t, true, nil
}

func (s *PostgresStore) SetWatermark(ctx context.Context, source, company string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO watermarks (source, company, completed_at) VALUES ($1, $2, $3)
		ON CONFLICT (source, company) DO UPDATE SET completed_at = EXCLUDED.completed_at`,
		source, company, at.UTC())
	if err != nil {
		return fmt.Errorf("postgres: set watermark %s: %w", model.UnitKey(source, company), err)
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, sum model.RunSummary) error {
	b, err := encodeJSON(sum)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO runs (run_id, started_at, summary) VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET summary = EXCLUDED.summary`,
		sum.RunID, sum.StartedAt.UTC(), b)
	if err != nil {
		return fmt.Errorf("postgres: save run %s: %w", sum.RunID, err)
	}
	return nil
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT summary FROM runs ORDER BY started_at DESC LIMIT $1`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: recent runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		var sum model.RunSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, fmt.Errorf("postgres: decode run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

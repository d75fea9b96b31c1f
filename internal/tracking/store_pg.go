package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique_violation.
const pgUniqueViolation = "23505"

// PGStore persists TrackingRows in Postgres via pgx, following the
// inline-SQL repository style of the teacher's repository/email.go (no
// migration framework; schema is ensured idempotently at startup).
type PGStore struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewPGStore builds a PGStore over db.
func NewPGStore(db *pgxpool.Pool, logger zerolog.Logger) *PGStore {
	return &PGStore{db: db, logger: logger}
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("ensure tracking schema: %w", err)
	}
	return nil
}

func (s *PGStore) InsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO email_send_tracking (
				org_id, contact_id, email_type, scheduled_date, send_status, send_mode,
				test_email, send_attempt_count, batch_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $9)
		`, r.OrgID, r.ContactID, r.Kind, r.ScheduledDate.String(), StatusPending, r.SendMode, r.TestEmail, r.BatchID, now)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrDuplicateRow
			}
			return fmt.Errorf("insert tracking row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

func (s *PGStore) ListBatches(ctx context.Context, filter ListFilter) ([]BatchSummary, error) {
	query := `
		SELECT batch_id, send_mode,
		       count(*) AS total,
		       count(*) FILTER (WHERE send_status = 'pending') AS pending
		FROM email_send_tracking
		WHERE org_id = $1
	`
	args := []any{filter.OrgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND send_status = $%d", len(args))
	}
	if filter.SendMode != "" {
		args = append(args, filter.SendMode)
		query += fmt.Sprintf(" AND send_mode = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, filter.DateFrom.String())
		query += fmt.Sprintf(" AND scheduled_date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, filter.DateTo.String())
		query += fmt.Sprintf(" AND scheduled_date <= $%d", len(args))
	}
	query += " GROUP BY batch_id, send_mode ORDER BY batch_id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.BatchID, &b.SendMode, &b.Total, &b.Pending); err != nil {
			return nil, fmt.Errorf("scan batch summary: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) GetBatch(ctx context.Context, batchID string) (BatchAggregate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(max(send_mode), '') AS send_mode,
			count(*) AS total,
			count(*) FILTER (WHERE send_status IN ('pending', 'processing')) AS pending,
			count(*) FILTER (WHERE send_status IN ('sent', 'delivered')) AS sent,
			count(*) FILTER (WHERE send_status = 'failed') AS failed,
			count(*) FILTER (WHERE send_status = 'deferred') AS deferred,
			count(*) FILTER (WHERE send_status = 'bounced') AS bounced,
			count(*) FILTER (WHERE send_status = 'dropped') AS dropped,
			count(*) FILTER (WHERE send_status = 'skipped') AS skipped
		FROM email_send_tracking
		WHERE batch_id = $1
	`, batchID)

	var agg BatchAggregate
	agg.BatchID = batchID
	if err := row.Scan(&agg.SendMode, &agg.Total, &agg.Pending, &agg.Sent, &agg.Failed, &agg.Deferred, &agg.Bounced, &agg.Dropped, &agg.Skipped); err != nil {
		return BatchAggregate{}, fmt.Errorf("get batch: %w", err)
	}
	if agg.Total == 0 {
		return BatchAggregate{}, ErrNotFound
	}
	return agg, nil
}

// ClaimChunk performs the pending->processing transition as a single
// UPDATE ... WHERE send_status = 'pending' statement so that concurrent
// workers claiming disjoint chunks never double-claim a row; this is
// the linearizability point spec §4.5/§5 requires.
func (s *PGStore) ClaimChunk(ctx context.Context, batchID string, n int) ([]Row, Lease, error) {
	rows, err := s.db.Query(ctx, `
		WITH claimed AS (
			SELECT id FROM email_send_tracking
			WHERE batch_id = $1 AND send_status = 'pending'
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_send_tracking t
		SET send_status = 'processing', updated_at = now()
		FROM claimed
		WHERE t.id = claimed.id
		RETURNING t.id, t.org_id, t.contact_id, t.email_type, t.scheduled_date, t.send_status,
		          t.send_mode, t.test_email, t.send_attempt_count, t.last_attempt_date,
		          t.last_error, t.last_error_transient, t.batch_id, t.message_id, t.delivery_status,
		          t.status_checked_at, t.status_details, t.created_at, t.updated_at
	`, batchID, n)
	if err != nil {
		return nil, 0, fmt.Errorf("claim chunk: %w", err)
	}
	defer rows.Close()

	claimed, err := scanRows(rows)
	if err != nil {
		return nil, 0, err
	}

	lease := Lease(time.Now().UnixNano())
	return claimed, lease, nil
}

// Finalize applies outcome to rowID. Allowed transitions are enforced
// in SQL via the WHERE clause rather than a read-modify-write, keeping
// the check linearizable with ClaimChunk.
func (s *PGStore) Finalize(ctx context.Context, rowID int64, outcome Outcome) error {
	allowedFrom, ok := allowedSourceStatuses[outcome.Status]
	if !ok {
		return fmt.Errorf("%w: no rule for target status %q", ErrInvalidTransition, outcome.Status)
	}

	cmd, err := s.db.Exec(ctx, `
		UPDATE email_send_tracking
		SET send_status = $1,
		    send_attempt_count = CASE WHEN $1 = 'pending' THEN send_attempt_count + 1 ELSE send_attempt_count END,
		    last_attempt_date = now(),
		    last_error = COALESCE($2, last_error),
		    last_error_transient = CASE WHEN $1 = 'failed' THEN $5 ELSE last_error_transient END,
		    message_id = COALESCE($3, message_id),
		    delivery_status = COALESCE($4, delivery_status),
		    status_checked_at = CASE WHEN $4 IS NOT NULL THEN now() ELSE status_checked_at END,
		    test_email = COALESCE($6, test_email),
		    updated_at = now()
		WHERE id = $7 AND send_status = ANY($8)
	`, outcome.Status, outcome.LastError, outcome.ExternalMessageID, outcome.DeliveryStatus, outcome.LastErrorTransient, outcome.TestEmail, rowID, allowedFrom)
	if err != nil {
		return fmt.Errorf("finalize row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// allowedSourceStatuses enumerates, for each target status, the
// send_status values a row may transition from, per spec §4.5.
var allowedSourceStatuses = map[SendStatus][]string{
	StatusSent:      {string(StatusProcessing)},
	StatusFailed:    {string(StatusProcessing)},
	StatusSkipped:   {string(StatusProcessing)},
	StatusDeferred:  {string(StatusProcessing), string(StatusSent)},
	StatusDelivered: {string(StatusSent), string(StatusDeferred)},
	StatusBounced:   {string(StatusSent), string(StatusDeferred)},
	StatusDropped:   {string(StatusSent), string(StatusDeferred)},
}

// MarkFailedAsRetryable retries failed rows whose failure was transient
// or whose transience was never recorded; a row explicitly marked
// non-transient (a permanent gateway rejection, per spec §7) is left
// failed regardless of remaining attempts.
func (s *PGStore) MarkFailedAsRetryable(ctx context.Context, batchID string, n int, maxAttempts int) (int, error) {
	cmd, err := s.db.Exec(ctx, `
		WITH retryable AS (
			SELECT id FROM email_send_tracking
			WHERE batch_id = $1 AND send_status = 'failed' AND send_attempt_count < $2
			  AND last_error_transient IS NOT FALSE
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_send_tracking t
		SET send_status = 'pending', send_attempt_count = send_attempt_count + 1, updated_at = now()
		FROM retryable
		WHERE t.id = retryable.id
	`, batchID, maxAttempts, n)
	if err != nil {
		return 0, fmt.Errorf("mark failed as retryable: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PGStore) RowsStaleForStatusCheck(ctx context.Context, batchID string, staleAfterSeconds int) ([]Row, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, contact_id, email_type, scheduled_date, send_status,
		       send_mode, test_email, send_attempt_count, last_attempt_date,
		       last_error, last_error_transient, batch_id, message_id, delivery_status,
		       status_checked_at, status_details, created_at, updated_at
		FROM email_send_tracking
		WHERE batch_id = $1
		  AND send_status IN ('sent', 'deferred')
		  AND (status_checked_at IS NULL OR status_checked_at < now() - ($2 || ' seconds')::interval)
	`, batchID, staleAfterSeconds)
	if err != nil {
		return nil, fmt.Errorf("select stale rows: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		var scheduledDate string
		if err := rows.Scan(
			&r.ID, &r.OrgID, &r.ContactID, &r.Kind, &scheduledDate, &r.SendStatus,
			&r.SendMode, &r.TestEmail, &r.AttemptCount, &r.LastAttemptTime,
			&r.LastError, &r.LastErrorTransient, &r.BatchID, &r.ExternalMessageID, &r.DeliveryStatus,
			&r.StatusCheckedAt, &r.StatusDetails, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tracking row: %w", err)
		}
		d, err := calendar.Parse(scheduledDate)
		if err != nil {
			return nil, fmt.Errorf("parse scheduled_date: %w", err)
		}
		r.ScheduledDate = d
		out = append(out, r)
	}
	return out, rows.Err()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS email_send_tracking (
	id SERIAL PRIMARY KEY,
	org_id INTEGER NOT NULL,
	contact_id TEXT NOT NULL,
	email_type TEXT NOT NULL,
	scheduled_date TEXT NOT NULL,
	send_status TEXT NOT NULL,
	send_mode TEXT NOT NULL,
	test_email TEXT,
	send_attempt_count INTEGER NOT NULL DEFAULT 0,
	last_attempt_date TIMESTAMPTZ,
	last_error TEXT,
	last_error_transient BOOLEAN,
	batch_id TEXT NOT NULL,
	message_id TEXT,
	delivery_status TEXT,
	status_checked_at TIMESTAMPTZ,
	status_details TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (batch_id, contact_id, email_type, scheduled_date)
);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_batch_id ON email_send_tracking (batch_id);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_send_status ON email_send_tracking (send_status);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_send_mode ON email_send_tracking (send_mode);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_contact_id ON email_send_tracking (contact_id);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_contact_kind ON email_send_tracking (contact_id, email_type);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_status_date ON email_send_tracking (send_status, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_message_id ON email_send_tracking (message_id);
CREATE INDEX IF NOT EXISTS idx_email_send_tracking_delivery_status ON email_send_tracking (delivery_status);
`

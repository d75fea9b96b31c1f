package tracking

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations, compared with
// errors.Is the way the teacher's repository package compares
// repository.ErrSuppressionExists.
var (
	// ErrDuplicateRow is returned by InsertBatch when a row collides on
	// the (batch_id, contact_id, email_type, scheduled_date) uniqueness
	// invariant; the whole call fails, no rows are inserted.
	ErrDuplicateRow = errors.New("tracking: duplicate row in batch")
	// ErrNotFound is returned when a row or batch ID has no match.
	ErrNotFound = errors.New("tracking: not found")
	// ErrInvalidTransition is returned by Finalize when the requested transition is not reachable from the row's
	// current send_status.
	ErrInvalidTransition = errors.New("tracking: invalid status transition")
)

// Lease identifies one claimChunk call's hold on a set of rows; it is
// monotonically increasing per store instance.
type Lease int64

// Store is the Tracking Store of spec §4.5. All operations scope to a
// single organization's rows except where OrgID is explicit in the
// filter.
type Store interface {
	// InsertBatch atomically inserts rows, stamping created_at/updated_at.
	// It fails the whole call on a uniqueness collision.
	InsertBatch(ctx context.Context, rows []Row) error

	// ListBatches returns the batches matching filter.
	ListBatches(ctx context.Context, filter ListFilter) ([]BatchSummary, error)

	// GetBatch returns the aggregate counts and send mode for batchID.
	GetBatch(ctx context.Context, batchID string) (BatchAggregate, error)

	// ClaimChunk atomically selects up to n pending rows in batchID and
	// transitions them to processing, returning the claimed rows under a
	// fresh Lease.
	ClaimChunk(ctx context.Context, batchID string, n int) ([]Row, Lease, error)

	// Finalize transitions a claimed (processing) row to its terminal or
	// retryable-failed outcome, or records a post-send delivery status
	// update (sent -> delivered/deferred/bounced/dropped).
	Finalize(ctx context.Context, rowID int64, outcome Outcome) error

	// MarkFailedAsRetryable atomically transitions up to n failed rows in
	// batchID back to pending, provided their attempt count has not
	// reached maxAttempts, incrementing attempt count.
	MarkFailedAsRetryable(ctx context.Context, batchID string, n int, maxAttempts int) (int, error)

	// RowsStaleForStatusCheck returns rows in batchID whose send status
	// is sent/deferred and whose status_checked_at is older than
	// staleAfterSeconds (or never set).
	RowsStaleForStatusCheck(ctx context.Context, batchID string, staleAfterSeconds int) ([]Row, error)

	// EnsureSchema idempotently creates the tracking table and its
	// indexes if they do not already exist.
	EnsureSchema(ctx context.Context) error
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/bluebrook/enroll-scheduler/internal/batch"
	"github.com/bluebrook/enroll-scheduler/internal/scheduling"
	"github.com/bluebrook/enroll-scheduler/internal/tracking"
)

// BuildRows converts one contact's Scheduled intents into pending
// TrackingRows for a batch, recording only the send mode on each row;
// for test mode the substitute address is chosen at send time.
func BuildRows(orgID int64, scheduled []scheduling.Intent, batchID string, mode tracking.SendMode) []tracking.Row {
	rows := make([]tracking.Row, 0, len(scheduled))
	for _, in := range scheduled {
		rows = append(rows, tracking.NewRow(orgID, in.ContactID, string(in.Kind), in.TargetDate, batchID, mode))
	}
	return rows
}

// InsertScope filters results to scope, converts the survivors to
// TrackingRows, and inserts them as one batch.
func InsertScope(ctx context.Context, store tracking.Store, orgID int64, scope Scope, bulkKind scheduling.Kind, results []batch.Result, batchID string, mode tracking.SendMode) (int, error) {
	var rows []tracking.Row
	for _, r := range results {
		filtered := Filter(scope, bulkKind, r.Scheduled)
		rows = append(rows, BuildRows(orgID, filtered, batchID, mode)...)
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := store.InsertBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return len(rows), nil
}

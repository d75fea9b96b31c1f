// Package tracking persists scheduled Intents as TrackingRows and
// drives them through the send-status state machine of spec §4.5.
package tracking

import (
	"time"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
)

// SendStatus is the lifecycle state of one TrackingRow.
type SendStatus string

const (
	StatusPending    SendStatus = "pending"
	StatusProcessing SendStatus = "processing"
	StatusAccepted   SendStatus = "accepted"
	StatusDelivered  SendStatus = "delivered"
	StatusSent       SendStatus = "sent"
	StatusDeferred   SendStatus = "deferred"
	StatusBounced    SendStatus = "bounced"
	StatusDropped    SendStatus = "dropped"
	StatusFailed     SendStatus = "failed"
	StatusSkipped    SendStatus = "skipped"
)

// Terminal reports whether s is a terminal state for the purposes of
// Batch.Complete (no row pending).
func (s SendStatus) Terminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusDeferred, StatusBounced, StatusDropped, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// SendMode selects whether a row's recipient is a fixed test address or
// the contact's own address.
type SendMode string

const (
	ModeTest       SendMode = "test"
	ModeProduction SendMode = "production"
)

// Row is a persisted TrackingRow: the state of one Scheduled Intent as
// it progresses through delivery.
type Row struct {
	ID                 int64
	OrgID              int64
	ContactID          string
	Kind               string
	ScheduledDate      calendar.Date
	SendStatus         SendStatus
	SendMode           SendMode
	TestEmail          *string
	AttemptCount       int
	LastAttemptTime    *time.Time
	LastError          *string
	LastErrorTransient *bool
	BatchID            string
	ExternalMessageID  *string
	DeliveryStatus     *string
	StatusCheckedAt    *time.Time
	StatusDetails      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewRow builds a pending Row from the caller-supplied identity; ID,
// attempt bookkeeping and timestamps are left to the store.
func NewRow(orgID int64, contactID, kind string, scheduledDate calendar.Date, batchID string, mode SendMode) Row {
	return Row{
		OrgID:         orgID,
		ContactID:     contactID,
		Kind:          kind,
		ScheduledDate: scheduledDate,
		SendStatus:    StatusPending,
		SendMode:      mode,
		BatchID:       batchID,
	}
}

// Outcome is the result `finalize` applies to a claimed row.
type Outcome struct {
	Status             SendStatus
	ExternalMessageID  *string
	DeliveryStatus     *string
	LastError          *string
	LastErrorTransient *bool
	TestEmail          *string
}

// BatchAggregate is the derived view `getBatch` returns: counts by
// bucket plus the batch's send mode.
type BatchAggregate struct {
	BatchID  string
	SendMode SendMode
	Total    int
	Pending  int
	Sent     int // terminal-success union: sent, delivered
	Failed   int
	Deferred int
	Bounced  int
	Dropped  int
	Skipped  int
}

// Complete reports whether no row in the batch remains pending or
// processing.
func (a BatchAggregate) Complete() bool {
	return a.Total > 0 && a.Pending == 0
}

// ListFilter narrows `listBatches` by status, send mode and a
// scheduled-date range.
type ListFilter struct {
	OrgID      int64
	Status     SendStatus
	SendMode   SendMode
	DateFrom   *calendar.Date
	DateTo     *calendar.Date
}

// BatchSummary is one row of a `listBatches` result.
type BatchSummary struct {
	BatchID  string
	SendMode SendMode
	Total    int
	Pending  int
}

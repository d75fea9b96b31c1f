package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/gateway"
	"github.com/bluebrook/enroll-scheduler/internal/render"
	"github.com/bluebrook/enroll-scheduler/internal/tracking"
)

func newTestPipeline(t *testing.T, cfg Config, resolver ContactResolver, gw gateway.Gateway) (*Pipeline, tracking.Store) {
	t.Helper()
	store := tracking.NewMemStore()
	p, err := New(store, gw, render.New(), resolver, cfg, zerolog.Nop())
	require.NoError(t, err)
	return p, store
}

func insertRow(t *testing.T, store tracking.Store, contactID, kind string, mode tracking.SendMode) {
	t.Helper()
	d, err := calendar.Parse("2024-06-01")
	require.NoError(t, err)
	row := tracking.NewRow(1, contactID, kind, d, "batch-1", mode)
	require.NoError(t, store.InsertBatch(context.Background(), []tracking.Row{row}))
}

// ProcessChunk in dry-run mode synthesizes a dry: external message ID
// and finalizes the row as sent, without calling the gateway at all.
func TestProcessChunk_DryRunSynthesizesMessageID(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{
		{ID: "c1", Email: "c1@example.com"},
	})
	p, store := newTestPipeline(t, Config{DryRun: true}, resolver, nil)
	insertRow(t, store, "c1", "birthday", tracking.ModeProduction)

	n, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Sent)

	rows, err := store.RowsStaleForStatusCheck(context.Background(), "batch-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ExternalMessageID)
	assert.Equal(t, "dry:batch-1-1", *rows[0].ExternalMessageID)
}

// A production-mode row for a contact with no email address is
// finalized as skipped with reason "missing recipient", never reaching
// the gateway.
func TestProcessChunk_MissingRecipientSkips(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{
		{ID: "c2", Email: ""},
	})
	fake := gateway.NewFakeGateway()
	p, store := newTestPipeline(t, Config{ProductionEnabled: true}, resolver, fake)
	insertRow(t, store, "c2", "birthday", tracking.ModeProduction)

	_, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Skipped)
	assert.Empty(t, fake.Sent())
}

// An unrecognized message kind fails rendering, which is surfaced as a
// skip rather than a hard error, per spec.md step 4 of processChunk.
func TestProcessChunk_UnknownKindSkipsWithTemplateError(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{
		{ID: "c3", Email: "c3@example.com"},
	})
	p, store := newTestPipeline(t, Config{DryRun: true}, resolver, nil)
	insertRow(t, store, "c3", "not_a_real_kind", tracking.ModeProduction)

	_, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Skipped)
}

// Test-mode rows round-robin across the configured test addresses
// instead of using the contact's own address.
func TestProcessChunk_TestModeRoundRobinsAddresses(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{
		{ID: "c4", Email: "real@example.com"},
		{ID: "c5", Email: "real2@example.com"},
	})
	fake := gateway.NewFakeGateway()
	cfg := Config{ProductionEnabled: true, TestSendingEnabled: true, TestAddresses: []string{"t1@test.local", "t2@test.local"}}
	p, store := newTestPipeline(t, cfg, resolver, fake)
	insertRow(t, store, "c4", "birthday", tracking.ModeTest)
	insertRow(t, store, "c5", "birthday", tracking.ModeTest)

	n, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := fake.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "t1@test.local", sent[0].ToAddress)
	assert.Equal(t, "t2@test.local", sent[1].ToAddress)
}

// RetryFailed moves failed rows back to pending (respecting
// max attempts) and immediately drives them through ProcessChunk again.
func TestRetryFailed_RetriesAndResends(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{{ID: "c6", Email: "c6@example.com"}})
	p, store := newTestPipeline(t, Config{DryRun: true, MaxAttempts: 3}, resolver, nil)
	insertRow(t, store, "c6", "birthday", tracking.ModeProduction)

	rows, _, err := store.ClaimChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	errMsg := "simulated failure"
	require.NoError(t, store.Finalize(context.Background(), rows[0].ID, tracking.Outcome{Status: tracking.StatusFailed, LastError: &errMsg}))

	n, err := p.RetryFailed(context.Background(), "batch-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Sent)
}

// UpdateDeliveryStatus transitions a sent row to whatever terminal
// status the gateway reports.
func TestUpdateDeliveryStatus_AppliesGatewayResult(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{{ID: "c7", Email: "c7@example.com"}})
	fake := gateway.NewFakeGateway()
	p, store := newTestPipeline(t, Config{ProductionEnabled: true}, resolver, fake)
	insertRow(t, store, "c7", "birthday", tracking.ModeProduction)

	_, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Equal(t, 1, agg.Sent)

	sent := fake.Sent()
	require.Len(t, sent, 1)

	rows, err := store.RowsStaleForStatusCheck(context.Background(), "batch-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ExternalMessageID)
	fake.SetStatus(*rows[0].ExternalMessageID, gateway.StatusResult{Status: gateway.StatusDelivered})

	n, err := p.UpdateDeliveryStatus(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	agg, err = store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Sent) // StatusDelivered still counts as Sent in the aggregate bucket
}

// Test-mode rows record the address they were actually routed to in
// TestEmail, not just the real contact's own address.
func TestProcessChunk_TestModeRecordsTestEmail(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{{ID: "c8", Email: "real@example.com"}})
	fake := gateway.NewFakeGateway()
	cfg := Config{ProductionEnabled: true, TestSendingEnabled: true, TestAddresses: []string{"t1@test.local"}}
	p, store := newTestPipeline(t, cfg, resolver, fake)
	insertRow(t, store, "c8", "birthday", tracking.ModeTest)

	_, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)

	rows, err := store.RowsStaleForStatusCheck(context.Background(), "batch-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].TestEmail)
	assert.Equal(t, "t1@test.local", *rows[0].TestEmail)
}

// RetryFailed leaves a row the gateway rejected permanently (Transient
// false) in the failed state rather than resending it.
func TestRetryFailed_SkipsPermanentFailures(t *testing.T) {
	resolver := contact.NewMapResolver([]contact.Contact{{ID: "c9", Email: "c9@example.com"}})
	fake := gateway.NewFakeGateway()
	fake.RejectAddress("c9@example.com", gateway.SendResult{Accepted: false, Error: "address blacklisted", Transient: false})
	p, store := newTestPipeline(t, Config{ProductionEnabled: true, MaxAttempts: 3}, resolver, fake)
	insertRow(t, store, "c9", "birthday", tracking.ModeProduction)

	_, err := p.ProcessChunk(context.Background(), "batch-1", 10)
	require.NoError(t, err)

	n, err := p.RetryFailed(context.Background(), "batch-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a permanent rejection should never be marked retryable")

	agg, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Failed)
}

func TestNew_RejectsProductionSendWithoutGateway(t *testing.T) {
	resolver := contact.NewMapResolver(nil)
	_, err := New(tracking.NewMemStore(), nil, render.New(), resolver, Config{ProductionEnabled: true}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrConfigMissing)
}

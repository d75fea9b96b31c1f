// Package pipeline drives TrackingRows through the Delivery Pipeline
// state machine of spec.md §4.6: claim, render, send, finalize, retry,
// resume and status-refresh, independent of the Scheduling Engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/gateway"
	"github.com/bluebrook/enroll-scheduler/internal/observability"
	"github.com/bluebrook/enroll-scheduler/internal/render"
	"github.com/bluebrook/enroll-scheduler/internal/tracking"
)

// ErrConfigMissing is returned at pipeline start when a non-dry-run
// send is requested without the gateway credentials it needs.
var ErrConfigMissing = errors.New("pipeline: missing configuration for non-dry-run send")

// ContactResolver resolves a contact by ID for rendering. Separate from
// tracking.Store so the pipeline never depends on how contacts are
// loaded (JSON file, relational table, in-memory map).
type ContactResolver interface {
	Resolve(ctx context.Context, id string) (contact.Contact, error)
}

// Config controls one pipeline run, following spec.md §6's control
// environment: two booleans gate real sending, and the pipeline must
// be told its recipient substitution list for test mode.
type Config struct {
	DryRun              bool
	TestSendingEnabled  bool
	ProductionEnabled   bool
	TestAddresses       []string
	InterMessageDelay   time.Duration
	GatewayCallTimeout  time.Duration
	MaxAttempts         int
	StatusCheckStaleAge time.Duration
	Org                 render.Organization
}

// Pipeline wires a tracking.Store, a mail gateway.Gateway, a
// render.Renderer and a ContactResolver into the operations of
// spec.md §4.6.
type Pipeline struct {
	store    tracking.Store
	gw       gateway.Gateway
	renderer *render.Renderer
	contacts ContactResolver
	cfg      Config
	logger   zerolog.Logger

	testAddrIdx int
}

// New builds a Pipeline. It returns ErrConfigMissing if cfg enables
// non-dry-run production sending but no gateway is given.
func New(store tracking.Store, gw gateway.Gateway, renderer *render.Renderer, contacts ContactResolver, cfg Config, logger zerolog.Logger) (*Pipeline, error) {
	if !cfg.DryRun && cfg.ProductionEnabled && gw == nil {
		return nil, ErrConfigMissing
	}
	if cfg.InterMessageDelay == 0 {
		cfg.InterMessageDelay = 500 * time.Millisecond
	}
	if cfg.GatewayCallTimeout == 0 {
		cfg.GatewayCallTimeout = 15 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.StatusCheckStaleAge == 0 {
		cfg.StatusCheckStaleAge = 10 * time.Minute
	}
	return &Pipeline{store: store, gw: gw, renderer: renderer, contacts: contacts, cfg: cfg, logger: logger}, nil
}

// ProcessChunk claims up to size pending rows in batchID and drives
// each through render/send/finalize, honoring the inter-message delay
// between adjacent sends.
func (p *Pipeline) ProcessChunk(ctx context.Context, batchID string, size int) (int, error) {
	rows, _, err := p.store.ClaimChunk(ctx, batchID, size)
	if err != nil {
		return 0, fmt.Errorf("claim chunk: %w", err)
	}
	observability.ChunkClaimedTotal.WithLabelValues(batchID).Add(float64(len(rows)))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			// Cancellation takes effect between rows only: the row just
			// finalized above stays finalized, nothing claimed-but-unsent
			// is left behind because finalizeRow already ran for it.
			return i, nil
		}

		p.finalizeSend(ctx, row)

		if i < len(rows)-1 && p.cfg.InterMessageDelay > 0 {
			select {
			case <-time.After(p.cfg.InterMessageDelay):
			case <-ctx.Done():
				return i + 1, nil
			}
		}
	}

	return len(rows), nil
}

// finalizeSend resolves, renders and sends a single claimed row, then
// finalizes its outcome. It never returns an error: every failure mode
// is itself a terminal state transition, per spec.md §4.6 steps 3-5.
func (p *Pipeline) finalizeSend(ctx context.Context, row tracking.Row) {
	c, err := p.contacts.Resolve(ctx, row.ContactID)
	if err != nil {
		p.finalize(ctx, row.ID, tracking.Outcome{Status: tracking.StatusFailed, LastError: strPtr(fmt.Sprintf("resolve contact: %v", err))})
		return
	}

	toAddr, testEmail := p.recipientFor(c, row.SendMode)
	if toAddr == "" {
		p.finalize(ctx, row.ID, tracking.Outcome{Status: tracking.StatusSkipped, LastError: strPtr("missing recipient")})
		return
	}

	rendered, err := p.renderer.Render(row.Kind, c, p.cfg.Org, render.Links{})
	if err != nil {
		p.finalize(ctx, row.ID, tracking.Outcome{Status: tracking.StatusSkipped, LastError: strPtr("template error: " + err.Error()), TestEmail: testEmail})
		return
	}

	env := gateway.Envelope{
		ToAddress: toAddr,
		FromName:  p.cfg.Org.FromName,
		FromAddr:  p.cfg.Org.FromEmail,
		Subject:   rendered.Subject,
		HTML:      rendered.HTMLBody,
		Text:      rendered.TextBody,
	}

	result, sendErr := p.send(ctx, row, env)

	if sendErr != nil || !result.Accepted {
		msg := result.Error
		transient := result.Transient
		if sendErr != nil {
			msg = sendErr.Error()
			transient = true
		}
		p.finalize(ctx, row.ID, tracking.Outcome{Status: tracking.StatusFailed, LastError: strPtr(msg), LastErrorTransient: boolPtr(transient), TestEmail: testEmail})
		return
	}

	p.finalize(ctx, row.ID, tracking.Outcome{Status: tracking.StatusSent, ExternalMessageID: strPtr(result.ExternalMessageID), TestEmail: testEmail})
}

// send dispatches env through the real gateway, or synthesizes a
// dry:-prefixed acceptance when dry-run, or a disabled flag for the
// row's send mode, suppresses the actual call.
func (p *Pipeline) send(ctx context.Context, row tracking.Row, env gateway.Envelope) (gateway.SendResult, error) {
	modeEnabled := p.cfg.ProductionEnabled
	if row.SendMode == tracking.ModeTest {
		modeEnabled = p.cfg.TestSendingEnabled
	}
	if p.cfg.DryRun || !modeEnabled {
		observability.SendOutcomeTotal.WithLabelValues("dry_run").Inc()
		return gateway.SendResult{Accepted: true, ExternalMessageID: fmt.Sprintf("dry:%s-%d", row.BatchID, row.ID)}, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.GatewayCallTimeout)
	defer cancel()

	started := time.Now()
	result, err := p.gw.Send(sendCtx, env)
	elapsed := time.Since(started).Seconds()

	switch {
	case err != nil:
		observability.SendOutcomeTotal.WithLabelValues("error").Inc()
		observability.SendDurationSeconds.WithLabelValues("error").Observe(elapsed)
	case result.Accepted:
		observability.SendOutcomeTotal.WithLabelValues("accepted").Inc()
		observability.SendDurationSeconds.WithLabelValues("accepted").Observe(elapsed)
	default:
		observability.SendOutcomeTotal.WithLabelValues("rejected").Inc()
		observability.SendDurationSeconds.WithLabelValues("rejected").Observe(elapsed)
	}

	return result, err
}

// recipientFor applies the send-mode substitution rule: test mode
// round-robins across configured test addresses, production mode uses
// the contact's own address.
func (p *Pipeline) recipientFor(c contact.Contact, mode tracking.SendMode) (addr string, testEmail *string) {
	if mode == tracking.ModeTest {
		if len(p.cfg.TestAddresses) == 0 {
			return "", nil
		}
		chosen := p.cfg.TestAddresses[p.testAddrIdx%len(p.cfg.TestAddresses)]
		p.testAddrIdx++
		return chosen, &chosen
	}
	return c.Email, nil
}

func (p *Pipeline) finalize(ctx context.Context, rowID int64, outcome tracking.Outcome) {
	if err := p.store.Finalize(ctx, rowID, outcome); err != nil {
		p.logger.Error().Err(err).Int64("row_id", rowID).Str("target_status", string(outcome.Status)).Msg("finalize failed")
	}
}

// RetryFailed marks up to size failed rows as retryable and immediately
// runs them through ProcessChunk.
func (p *Pipeline) RetryFailed(ctx context.Context, batchID string, size int) (int, error) {
	if _, err := p.store.MarkFailedAsRetryable(ctx, batchID, size, p.cfg.MaxAttempts); err != nil {
		return 0, fmt.Errorf("mark failed as retryable: %w", err)
	}
	return p.ProcessChunk(ctx, batchID, size)
}

// Resume is equivalent to ProcessChunk: claimChunk only ever selects
// pending rows, so resuming after a crash or cancellation needs no
// separate code path.
func (p *Pipeline) Resume(ctx context.Context, batchID string, size int) (int, error) {
	return p.ProcessChunk(ctx, batchID, size)
}

// UpdateDeliveryStatus queries the gateway for terminal outcomes on
// rows whose status hasn't been checked recently, transitioning each to
// its reported terminal state.
func (p *Pipeline) UpdateDeliveryStatus(ctx context.Context, batchID string) (int, error) {
	stale, err := p.store.RowsStaleForStatusCheck(ctx, batchID, int(p.cfg.StatusCheckStaleAge.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("list stale rows: %w", err)
	}

	updated := 0
	for _, row := range stale {
		if row.ExternalMessageID == nil {
			continue
		}
		result, err := p.gw.QueryStatus(ctx, *row.ExternalMessageID)
		if err != nil {
			p.logger.Warn().Err(err).Int64("row_id", row.ID).Msg("query delivery status failed")
			continue
		}
		if result.Status == gateway.StatusUnknown {
			continue
		}

		outcome := tracking.Outcome{
			Status:         deliveryToSendStatus(result.Status),
			DeliveryStatus: strPtr(string(result.Status)),
		}
		if result.Details != "" {
			outcome.LastError = strPtr(result.Details)
		}
		if err := p.store.Finalize(ctx, row.ID, outcome); err != nil {
			p.logger.Warn().Err(err).Int64("row_id", row.ID).Msg("finalize delivery status failed")
			continue
		}
		updated++
	}

	return updated, nil
}

func deliveryToSendStatus(s gateway.DeliveryStatus) tracking.SendStatus {
	switch s {
	case gateway.StatusDelivered:
		return tracking.StatusDelivered
	case gateway.StatusDeferred:
		return tracking.StatusDeferred
	case gateway.StatusBounced:
		return tracking.StatusBounced
	case gateway.StatusDropped:
		return tracking.StatusDropped
	default:
		return tracking.StatusDeferred
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// Package gateway adapts the Delivery Pipeline's send/query calls to an
// outbound mail provider, per spec.md §6's gateway interface.
package gateway

import (
	"context"
	"errors"
)

// Envelope is the rendered message the pipeline hands to the gateway.
type Envelope struct {
	ToAddress string
	FromName  string
	FromAddr  string
	Subject   string
	HTML      string
	Text      string
}

// SendResult is the gateway's immediate response to send.
type SendResult struct {
	Accepted          bool
	ExternalMessageID string
	Error             string
	Transient         bool
}

// DeliveryStatus is the terminal or pending outcome queryStatus reports.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusDeferred  DeliveryStatus = "deferred"
	StatusBounced   DeliveryStatus = "bounced"
	StatusDropped   DeliveryStatus = "dropped"
	StatusUnknown   DeliveryStatus = "unknown"
)

// StatusResult is the queryStatus response.
type StatusResult struct {
	Status  DeliveryStatus
	Details string
}

// Gateway is the opaque mail-sink interface the Delivery Pipeline
// consumes; it never depends on a specific provider SDK directly.
type Gateway interface {
	Send(ctx context.Context, env Envelope) (SendResult, error)
	QueryStatus(ctx context.Context, externalMessageID string) (StatusResult, error)
}

// ErrNoCredentials is returned by NewSESGateway, at pipeline start, when
// a non-dry-run gateway is requested without the credentials it needs.
var ErrNoCredentials = errors.New("gateway: missing credentials for non-dry-run send")

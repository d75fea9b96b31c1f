package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeGateway_SendAssignsIncrementingIDsAndRecordsEnvelopes(t *testing.T) {
	g := NewFakeGateway()
	ctx := context.Background()

	r1, err := g.Send(ctx, Envelope{ToAddress: "a@example.com", Subject: "one"})
	require.NoError(t, err)
	r2, err := g.Send(ctx, Envelope{ToAddress: "b@example.com", Subject: "two"})
	require.NoError(t, err)

	assert.True(t, r1.Accepted)
	assert.True(t, r2.Accepted)
	assert.Equal(t, "dry:1", r1.ExternalMessageID)
	assert.Equal(t, "dry:2", r2.ExternalMessageID)

	sent := g.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "a@example.com", sent[0].ToAddress)
	assert.Equal(t, "b@example.com", sent[1].ToAddress)
}

func TestFakeGateway_QueryStatusDefaultsToUnknown(t *testing.T) {
	g := NewFakeGateway()
	got, err := g.QueryStatus(context.Background(), "dry:99")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, got.Status)
}

func TestFakeGateway_SetStatusIsReturnedByQueryStatus(t *testing.T) {
	g := NewFakeGateway()
	g.SetStatus("dry:1", StatusResult{Status: StatusDelivered, Details: "ok"})

	got, err := g.QueryStatus(context.Background(), "dry:1")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, "ok", got.Details)
}

func TestFakeGateway_SentReturnsACopy(t *testing.T) {
	g := NewFakeGateway()
	_, err := g.Send(context.Background(), Envelope{ToAddress: "a@example.com"})
	require.NoError(t, err)

	sent := g.Sent()
	sent[0].ToAddress = "mutated@example.com"

	again := g.Sent()
	assert.Equal(t, "a@example.com", again[0].ToAddress)
}

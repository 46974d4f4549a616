//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_ConnectPublishSubscribe(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	require.True(t, tc.IsReady())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	sub, err := tc.Client.Subscribe(ctx, "lnrelay.node.0.events", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, tc.Client.Publish(ctx, "lnrelay.node.0.events", []byte(`{"source":"ECL"}`)))

	select {
	case data := <-received:
		assert.JSONEq(t, `{"source":"ECL"}`, string(data))
	case <-ctx.Done():
		t.Fatal("message not received")
	}

	status := tc.Client.GetStatus()
	assert.Equal(t, StatusConnected, status.Status)
	assert.Equal(t, int32(0), status.FailureCount)
}

func TestIntegration_KeyValueBucket(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	cfg := jetstream.KeyValueConfig{Bucket: "LNRELAY_TEST"}
	kv, err := tc.Client.KeyValueBucket(ctx, cfg)
	require.NoError(t, err)

	_, err = kv.Put(ctx, "1", []byte(`{"index":1}`))
	require.NoError(t, err)

	// Second call returns the existing bucket
	again, err := tc.Client.KeyValueBucket(ctx, cfg)
	require.NoError(t, err)

	entry, err := again.Get(ctx, "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":1}`, string(entry.Value()))
}

func TestIntegration_ConnectFailureCountsTowardCircuit(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(100*time.Millisecond),
		WithMaxReconnects(0),
		WithCircuitBreakerThreshold(2),
	)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, client.Connect(ctx))
	assert.ErrorIs(t, client.Connect(ctx), ErrCircuitOpen)
	assert.ErrorIs(t, client.Connect(ctx), ErrCircuitOpen)
}

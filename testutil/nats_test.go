package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockNATSClient_PubSub(t *testing.T) {
	c := NewMockNATSClient()
	ctx := context.Background()

	var got [][]byte
	sub, err := c.Subscribe(ctx, "a.b", func(_ context.Context, data []byte) {
		got = append(got, data)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.SubscriberCount("a.b"))

	require.NoError(t, c.Publish(ctx, "a.b", []byte("one")))
	require.NoError(t, c.Publish(ctx, "a.c", []byte("elsewhere")))
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, c.Publish(ctx, "a.b", []byte("two")))

	assert.Equal(t, [][]byte{[]byte("one")}, got)
	assert.Equal(t, 2, c.GetMessageCount("a.b"))
	assert.Equal(t, []byte("two"), WaitForMessage(t, c, "a.b", time.Second))
	assert.Error(t, sub.Unsubscribe())
}

func TestMockNATSClient_Errors(t *testing.T) {
	c := NewMockNATSClient()
	ctx := context.Background()

	c.SetPublishError(fmt.Errorf("down"))
	assert.Error(t, c.Publish(ctx, "x", nil))
	AssertNoMessages(t, c, "x")
	c.SetPublishError(nil)

	require.NoError(t, c.Close())
	assert.Error(t, c.Publish(ctx, "x", nil))
	_, err := c.Subscribe(ctx, "x", func(context.Context, []byte) {})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewMockNATSClient().Subscribe(cancelled, "x", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}

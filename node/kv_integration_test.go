//go:build integration

package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/natsclient"
)

func TestIntegration_KVRegistry(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream(), natsclient.WithFastStartup())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kv, err := tc.CreateKVBucket(ctx, DefaultBucket)
	require.NoError(t, err)

	seed := NewKVRegistry(kv, nil)
	require.NoError(t, seed.Put(ctx, Descriptor{Index: 0, Name: "alice", Implementation: Eclair, ServerURL: "https://alice:8080"}))

	r := NewKVRegistry(kv, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	d, ok := r.Find(0)
	require.True(t, ok, "initial contents are loaded by Start")
	assert.Equal(t, "alice", d.Name)

	require.NoError(t, r.Put(ctx, Descriptor{Index: 1, Name: "bob", Implementation: LND}))
	require.Eventually(t, func() bool {
		_, ok := r.Find(1)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, kv.Delete(ctx, Key(0)))
	require.Eventually(t, func() bool {
		_, ok := r.Find(0)
		return !ok
	}, 5*time.Second, 20*time.Millisecond)

	assert.Error(t, r.Put(ctx, Descriptor{Index: 2, Implementation: "BTCD"}))
}

package control

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/errors"
	"github.com/c360/lnrelay/metric"
	"github.com/c360/lnrelay/natsclient"
	"github.com/c360/lnrelay/node"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "lnrelay.control.ecl", Subject("lnrelay", node.Eclair))
	assert.Equal(t, "rtl.control.lnd", Subject("rtl", node.LND))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{"numeric index", `{"action":"CONNECT","node_index":1}`, Command{Connect, 1}, false},
		{"string index", `{"action":"DISCONNECT","node_index":"3"}`, Command{Disconnect, 3}, false},
		{"lowercase action", `{"action":"connect","node_index":0}`, Command{Connect, 0}, false},
		{"unknown action", `{"action":"RESTART","node_index":1}`, Command{}, true},
		{"missing index", `{"action":"CONNECT"}`, Command{}, true},
		{"non-numeric index", `{"action":"CONNECT","node_index":"abc"}`, Command{}, true},
		{"bool index", `{"action":"CONNECT","node_index":true}`, Command{}, true},
		{"not json", `CONNECT 1`, Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommand_MarshalRoundTrip(t *testing.T) {
	data, err := Command{Action: Disconnect, NodeIndex: 4}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"DISCONNECT","node_index":4}`, string(data))
}

type fakeSubscription struct {
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

type fakeSubscriber struct {
	mu      sync.Mutex
	subject string
	handler func(context.Context, []byte)
	sub     *fakeSubscription
	ready   chan struct{}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subject = subject
	f.handler = handler
	f.sub = &fakeSubscription{}
	close(f.ready)
	return f.sub, nil
}

func TestNATSChannel_Listen(t *testing.T) {
	subscriber := &fakeSubscriber{ready: make(chan struct{})}
	m := metric.NewMetrics()
	ch := NewNATSChannel(subscriber, "lnrelay.control.ecl", nil, m)

	var mu sync.Mutex
	var got []Command
	handler := func(_ context.Context, cmd Command) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cmd)
		if cmd.NodeIndex == 9 {
			return errors.WrapInvalid(errors.ErrUnknownNode, "test", "handler", "resolve node")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Listen(ctx, handler) }()

	<-subscriber.ready
	assert.Equal(t, "lnrelay.control.ecl", subscriber.subject)

	subscriber.handler(context.Background(), []byte(`{"action":"CONNECT","node_index":1}`))
	subscriber.handler(context.Background(), []byte(`garbage`))
	subscriber.handler(context.Background(), []byte(`{"action":"DISCONNECT","node_index":"9"}`))

	cancel()
	require.NoError(t, <-done)
	assert.True(t, subscriber.sub.unsubscribed)

	mu.Lock()
	assert.Equal(t, []Command{{Connect, 1}, {Disconnect, 9}}, got)
	mu.Unlock()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("CONNECT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("DISCONNECT", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("invalid", "error")))
}

package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/c360/lnrelay/natsclient"
)

type subscription struct {
	id      int
	handler func(context.Context, []byte)
}

// MockNATSClient is an in-memory NATS client for core pub/sub.
// Thread-safe for concurrent use from multiple goroutines.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]subscription
	nextID        int
	publishErr    error
	closed        bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]subscription),
	}
}

// Publish records data and delivers it to the subject's subscribers
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return natsclient.ErrNotConnected
	}
	if c.publishErr != nil {
		err := c.publishErr
		c.mu.Unlock()
		return err
	}

	c.messages[subject] = append(c.messages[subject], append([]byte(nil), data...))

	// Copy handlers to avoid holding the lock during callbacks
	subs := append([]subscription(nil), c.subscriptions[subject]...)
	c.mu.Unlock()

	for _, s := range subs {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		s.handler(msgCtx, data)
		cancel()
	}
	return nil
}

// Subscribe registers handler for subject (matches natsclient.Client signature)
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, natsclient.ErrNotConnected
	}

	c.nextID++
	c.subscriptions[subject] = append(c.subscriptions[subject], subscription{id: c.nextID, handler: handler})
	return &mockSubscription{client: c, subject: subject, id: c.nextID}, nil
}

// SetPublishError makes every Publish fail with err until cleared with nil
func (c *MockNATSClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// GetMessages returns a copy of the messages published on subject
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// SubscriberCount returns the number of live subscriptions on subject
func (c *MockNATSClient) SubscriberCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions[subject])
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type mockSubscription struct {
	client  *MockNATSClient
	subject string
	id      int
}

func (s *mockSubscription) Unsubscribe() error {
	c := s.client
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.subscriptions[s.subject]
	for i, sub := range subs {
		if sub.id == s.id {
			c.subscriptions[s.subject] = append(subs[:i:i], subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("subscription %d on %s not found", s.id, s.subject)
}

// WaitForMessage waits for a message on subject and returns the latest one
func WaitForMessage(t *testing.T, client *MockNATSClient, subject string, timeout time.Duration) []byte {
	t.Helper()

	WaitForMessageCount(t, client, subject, 1, timeout)
	messages := client.GetMessages(subject)
	return messages[len(messages)-1]
}

// WaitForMessageCount waits for at least count messages on subject
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if client.GetMessageCount(subject) >= count {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)",
				count, subject, client.GetMessageCount(subject))
			return
		case <-ticker.C:
		}
	}
}

// WaitForSubscriber waits until subject has at least one subscriber
func WaitForSubscriber(t *testing.T, client *MockNATSClient, subject string, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for client.SubscriberCount(subject) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for a subscriber on %s", subject)
			return
		case <-ticker.C:
		}
	}
}

// AssertNoMessages checks that no messages were received on a subject.
func AssertNoMessages(t *testing.T, client *MockNATSClient, subject string) {
	t.Helper()

	if n := client.GetMessageCount(subject); n > 0 {
		t.Fatalf("expected no messages on subject %s, got %d", subject, n)
	}
}

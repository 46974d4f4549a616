package health

import (
	"sync"
	"testing"
)

func TestMonitor_UpdateAndGet(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("nats", Status{Status: StatusHealthy, Message: "connected"})

	got, ok := monitor.Get("nats")
	if !ok {
		t.Fatal("Component should exist after update")
	}
	if got.Component != "nats" {
		t.Errorf("Expected component nats, got %s", got.Component)
	}
	if got.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}

	if _, ok := monitor.Get("missing"); ok {
		t.Error("Unknown component should not exist")
	}
}

func TestMonitor_ProviderEvaluatedOnRead(t *testing.T) {
	monitor := NewMonitor()

	state := StatusDegraded
	monitor.Register("relay", func() Status {
		return Status{Status: state}
	})

	got, ok := monitor.Get("relay")
	if !ok || got.Status != StatusDegraded {
		t.Fatalf("Expected degraded relay, got %+v", got)
	}

	state = StatusHealthy
	got, _ = monitor.Get("relay")
	if got.Status != StatusHealthy {
		t.Errorf("Provider should be re-evaluated, got %s", got.Status)
	}
	if got.Component != "relay" {
		t.Errorf("Provider status should carry the registered name, got %s", got.Component)
	}
}

func TestMonitor_UpdateReplacesProvider(t *testing.T) {
	monitor := NewMonitor()

	monitor.Register("relay", func() Status { return NewHealthy("", "") })
	monitor.UpdateUnhealthy("relay", "stopped")

	got, _ := monitor.Get("relay")
	if got.Status != StatusUnhealthy {
		t.Errorf("Expected pushed status to win, got %s", got.Status)
	}
	if monitor.Count() != 1 {
		t.Errorf("Expected 1 component, got %d", monitor.Count())
	}
}

func TestMonitor_AggregateHealth(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("nats", "connected")
	monitor.Register("relay", func() Status { return NewDegraded("", "reconnecting") })

	agg := monitor.AggregateHealth("lnrelay")
	if agg.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", agg.Status)
	}
	if len(agg.SubStatuses) != 2 {
		t.Fatalf("Expected 2 sub-statuses, got %d", len(agg.SubStatuses))
	}
	if agg.SubStatuses[0].Component != "nats" || agg.SubStatuses[1].Component != "relay" {
		t.Errorf("Sub-statuses should be ordered by name, got %s, %s",
			agg.SubStatuses[0].Component, agg.SubStatuses[1].Component)
	}

	monitor.Remove("relay")
	if monitor.AggregateHealth("lnrelay").Status != StatusHealthy {
		t.Error("Expected healthy after removing degraded component")
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.UpdateDegraded("nats", "reconnecting")
		}()
		go func() {
			defer wg.Done()
			_ = monitor.AggregateHealth("lnrelay")
		}()
	}
	wg.Wait()

	if monitor.Count() != 1 {
		t.Errorf("Expected 1 component, got %d", monitor.Count())
	}
}

package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/lnrelay/errors"
)

// DefaultBucket is the JetStream KV bucket holding node descriptors
const DefaultBucket = "LNRELAY_NODES"

// KVRegistry resolves nodes from a JetStream KV bucket. Keys are decimal node
// indexes, values are descriptor JSON. A watcher keeps the local cache current,
// so Find never touches the network.
type KVRegistry struct {
	kv     jetstream.KeyValue
	logger *slog.Logger

	mu    sync.RWMutex
	nodes map[int]*Descriptor

	watcher jetstream.KeyWatcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKVRegistry creates a registry over an existing bucket
func NewKVRegistry(kv jetstream.KeyValue, logger *slog.Logger) *KVRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &KVRegistry{
		kv:     kv,
		logger: logger.With("component", "node-registry", "bucket", kv.Bucket()),
		nodes:  make(map[int]*Descriptor),
	}
}

// Start loads the current bucket contents and keeps watching for changes.
// It returns once the initial contents are cached.
func (r *KVRegistry) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)

	watcher, err := r.kv.WatchAll(watchCtx)
	if err != nil {
		cancel()
		return errors.WrapTransient(err, "KVRegistry", "Start", "watch node bucket")
	}
	r.watcher = watcher
	r.cancel = cancel

	// Initial values end with a nil entry
	for entry := range watcher.Updates() {
		if entry == nil {
			break
		}
		r.apply(entry.Key(), entry.Value(), entry.Operation())
	}

	r.wg.Add(1)
	go r.watch(watchCtx)

	r.logger.Info("Node registry loaded", "nodes", r.Len())
	return nil
}

// Stop ends the watcher
func (r *KVRegistry) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	var err error
	if r.watcher != nil {
		err = r.watcher.Stop()
	}
	r.wg.Wait()
	return err
}

func (r *KVRegistry) watch(ctx context.Context) {
	defer r.wg.Done()

	updates := r.watcher.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			r.apply(entry.Key(), entry.Value(), entry.Operation())
		}
	}
}

// apply folds one bucket change into the cache
func (r *KVRegistry) apply(key string, value []byte, op jetstream.KeyValueOp) {
	index, err := strconv.Atoi(key)
	if err != nil {
		r.logger.Warn("Ignoring node entry with non-numeric key", "key", key)
		return
	}

	if op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge {
		r.mu.Lock()
		delete(r.nodes, index)
		r.mu.Unlock()
		r.logger.Info("Node removed from registry", "node_index", index)
		return
	}

	var d Descriptor
	if err := json.Unmarshal(value, &d); err != nil {
		r.logger.Warn("Ignoring malformed node entry", "node_index", index, "error", err)
		return
	}
	// The key is authoritative for identity
	d.Index = index
	if err := d.Validate(); err != nil {
		r.logger.Warn("Ignoring invalid node entry", "node_index", index, "error", err)
		return
	}

	r.mu.Lock()
	r.nodes[index] = &d
	r.mu.Unlock()
	r.logger.Debug("Node updated in registry", d.LogAttrs()...)
}

// Find returns the cached descriptor for index. The returned value is never
// mutated; an update replaces it with a new descriptor.
func (r *KVRegistry) Find(index int) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.nodes[index]
	return d, ok
}

// List returns all cached descriptors ordered by index
func (r *KVRegistry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.nodes))
	for _, d := range r.nodes {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len returns the number of cached nodes
func (r *KVRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Put writes a descriptor to the bucket. The cache picks it up through the watcher.
func (r *KVRegistry) Put(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return errors.WrapInvalid(err, "KVRegistry", "Put", "marshal descriptor")
	}
	if _, err := r.kv.Put(ctx, Key(d.Index), data); err != nil {
		return errors.WrapTransient(err, "KVRegistry", "Put", fmt.Sprintf("put node %d", d.Index))
	}
	return nil
}

// Key returns the bucket key for a node index
func Key(index int) string {
	return strconv.Itoa(index)
}

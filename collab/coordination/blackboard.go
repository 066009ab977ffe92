// Package coordination provides the Blackboard shared key/value store,
// SyncBarrier rendezvous, and MutexLock exclusive-access primitives.
package coordination

import (
	"context"
	"sync"
	"time"
)

// entryKey identifies a (namespace, key) pair inside the blackboard.
type entryKey struct {
	namespace string
	key       string
}

// HistoryEntry records a single write for Blackboard.History.
type HistoryEntry struct {
	Namespace string
	Key       string
	Value     any
	Author    string
	Version   int
	Timestamp time.Time
}

// Blackboard is a namespaced key/value store with per-key versioning and
// one-shot change-notification watchers.
//
// Delete semantics (documented design choice): deleting a key removes its
// version counter entirely; re-creating that key afterward restarts
// versioning at 1. This mirrors the source Python implementation's behavior
// exactly rather than leaving the counter in place.
type Blackboard struct {
	mu       sync.Mutex
	data     map[entryKey]any
	versions map[entryKey]int
	watchers map[entryKey][]chan struct{}
	history  []HistoryEntry
	histCap  int
}

// NewBlackboard creates a Blackboard whose History is bounded to historyCap
// entries (0 uses a default of 1000).
func NewBlackboard(historyCap int) *Blackboard {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Blackboard{
		data:     make(map[entryKey]any),
		versions: make(map[entryKey]int),
		watchers: make(map[entryKey][]chan struct{}),
		histCap:  historyCap,
	}
}

// Write atomically stores value under (namespace, key), incrementing its
// version, recording history, and waking every pending watcher on that key.
func (bb *Blackboard) Write(namespace, key string, value any, author string) int {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	ek := entryKey{namespace, key}
	version := bb.versions[ek] + 1
	bb.data[ek] = value
	bb.versions[ek] = version

	bb.history = append(bb.history, HistoryEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		Author:    author,
		Version:   version,
		Timestamp: time.Now(),
	})
	if len(bb.history) > bb.histCap {
		bb.history = bb.history[len(bb.history)-bb.histCap:]
	}

	for _, ch := range bb.watchers[ek] {
		close(ch)
	}
	delete(bb.watchers, ek)

	return version
}

// Read returns the current value for (namespace, key), or nil, false if
// absent.
func (bb *Blackboard) Read(namespace, key string) (any, bool) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	v, ok := bb.data[entryKey{namespace, key}]
	return v, ok
}

// ReadNamespace returns a snapshot of every key/value pair in namespace.
func (bb *Blackboard) ReadNamespace(namespace string) map[string]any {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	out := make(map[string]any)
	for ek, v := range bb.data {
		if ek.namespace == namespace {
			out[ek.key] = v
		}
	}
	return out
}

// Version returns the current version for (namespace, key), or 0 if absent.
func (bb *Blackboard) Version(namespace, key string) int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.versions[entryKey{namespace, key}]
}

// Watch blocks until the next Write to (namespace, key), ctx is cancelled, or
// timeout elapses (timeout <= 0 means no timeout). Returns true iff a write
// was observed. Each call registers its own one-shot notification, removed
// on return whether it fires or times out.
func (bb *Blackboard) Watch(ctx context.Context, namespace, key string, timeout time.Duration) bool {
	ek := entryKey{namespace, key}
	ch := make(chan struct{})

	bb.mu.Lock()
	bb.watchers[ek] = append(bb.watchers[ek], ch)
	bb.mu.Unlock()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	defer bb.removeWatcher(ek, ch)

	select {
	case <-ch:
		return true
	case <-timeoutCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (bb *Blackboard) removeWatcher(ek entryKey, target chan struct{}) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	watchers := bb.watchers[ek]
	for i, ch := range watchers {
		if ch == target {
			bb.watchers[ek] = append(watchers[:i], watchers[i+1:]...)
			return
		}
	}
}

// Delete removes (namespace, key), including its version counter. Returns
// true if the key existed.
func (bb *Blackboard) Delete(namespace, key string) bool {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	ek := entryKey{namespace, key}
	if _, ok := bb.data[ek]; !ok {
		return false
	}
	delete(bb.data, ek)
	delete(bb.versions, ek)
	return true
}

// ClearNamespace deletes every key in namespace, including version counters,
// and returns the count of keys removed.
func (bb *Blackboard) ClearNamespace(namespace string) int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	count := 0
	for ek := range bb.data {
		if ek.namespace == namespace {
			delete(bb.data, ek)
			delete(bb.versions, ek)
			count++
		}
	}
	return count
}

// History returns up to the last limit writes, oldest first.
func (bb *Blackboard) History(limit int) []HistoryEntry {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if limit <= 0 || limit > len(bb.history) {
		limit = len(bb.history)
	}
	out := make([]HistoryEntry, limit)
	copy(out, bb.history[len(bb.history)-limit:])
	return out
}

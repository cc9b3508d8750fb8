// Package binding gives a consumer a live, auto-refreshing view of one
// store key. Any number of independent views may be bound to the same
// key; every write through any of them, or through the out-of-band
// action path, refreshes them all.
package binding

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mindflow-hq/mindflow/internal/logging"
	"github.com/mindflow-hq/mindflow/internal/store"
)

// View is a bound, cached copy of the value at one key. The cache is
// a read snapshot: mutating it in place is never visible to siblings;
// changes go back through Set or Update.
type View[T any] struct {
	kv  *store.KV
	key string
	def T

	sub       *store.Subscription
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	cur      T
	onChange func(T)
}

// Bind subscribes to key and initializes the cached copy from the
// store, or from def when the key has never been written. The view
// must be closed when the consumer goes away.
func Bind[T any](ctx context.Context, kv *store.KV, key string, def T) (*View[T], error) {
	v := &View[T]{
		kv:   kv,
		key:  key,
		def:  def,
		done: make(chan struct{}),
	}

	v.cur = v.read(ctx)
	v.sub = kv.Subscribe(key)
	go v.track()

	return v, nil
}

// read fetches the latest persisted value, degrading to the default on
// a missing key or a value that no longer decodes.
func (v *View[T]) read(ctx context.Context) T {
	val := v.def
	found, err := v.kv.Get(ctx, v.key, &val)
	if err != nil {
		logging.Warn("binding: re-read of %q failed, using default: %v", v.key, err)
		return v.def
	}
	if !found {
		return v.def
	}
	return val
}

// track refreshes the cache on every change notification until the
// view is closed.
func (v *View[T]) track() {
	for {
		select {
		case <-v.done:
			return
		case _, ok := <-v.sub.C():
			if !ok {
				return
			}
			// Re-read rather than trusting the notification payload:
			// notifications may coalesce under load.
			val := v.read(context.Background())

			v.mu.Lock()
			v.cur = val
			fn := v.onChange
			v.mu.Unlock()

			if fn != nil {
				fn(val)
			}
		}
	}
}

// Get returns the cached snapshot of the current value.
func (v *View[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set writes a literal new value through the store. The local cache is
// refreshed synchronously so a Get immediately after Set observes the
// written value even before the notification arrives.
func (v *View[T]) Set(ctx context.Context, val T) error {
	if err := v.kv.Set(ctx, v.key, val); err != nil {
		return err
	}

	v.mu.Lock()
	v.cur = val
	v.mu.Unlock()
	return nil
}

// Update applies fn to the latest persisted value, not to the possibly
// stale cached copy, closing the race between "read current" and
// "write new" inside one logical update.
func (v *View[T]) Update(ctx context.Context, fn func(T) T) error {
	var next T
	err := v.kv.Update(ctx, v.key, func(raw json.RawMessage) (any, error) {
		cur := v.def
		if raw != nil {
			if err := json.Unmarshal(raw, &cur); err != nil {
				logging.Warn("binding: stored %q no longer decodes, updating from default: %v", v.key, err)
				cur = v.def
			}
		}
		next = fn(cur)
		return next, nil
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.cur = next
	v.mu.Unlock()
	return nil
}

// OnChange registers a callback invoked with the fresh value after
// every refresh. Used by consumers to schedule a re-render.
func (v *View[T]) OnChange(fn func(T)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// Close unsubscribes the view. No refresh is delivered after Close,
// even if the underlying key changes later.
func (v *View[T]) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
		v.sub.Close()
	})
}

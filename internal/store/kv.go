package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindflow-hq/mindflow/internal/core"
	"github.com/mindflow-hq/mindflow/internal/logging"
)

// ErrUnchanged aborts an Update without an error. The stored value is
// left as-is and no change notification is raised.
var ErrUnchanged = errors.New("value unchanged")

// Change is delivered to subscribers after every successful write.
// Value is the raw serialized form; consumers re-read through Get
// rather than trusting a possibly coalesced Change.
type Change struct {
	Key   string
	Value json.RawMessage
}

// Subscription is a live registration for changes to one key.
type Subscription struct {
	id  string
	key string
	ch  chan Change
	kv  *KV

	closeOnce sync.Once
}

// C returns the channel change notifications arrive on.
func (s *Subscription) C() <-chan Change {
	return s.ch
}

// Close removes the registration. No notification is delivered after
// Close returns. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.kv.unsubscribe(s)
	})
}

// KV is the persistent keyed store: a flat namespace of string keys to
// JSON-encoded values, durable across process restarts, with a
// publish/subscribe registry fed by every write. It is the single
// source of truth; every entry point into the process (UI-driven
// mutation or out-of-band action) funnels through it.
type KV struct {
	db *DB

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription

	lockMu   sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewKV creates a keyed store over an open database.
func NewKV(db *DB) *KV {
	return &KV{
		db:       db,
		subs:     make(map[string]map[string]*Subscription),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing writers of one key.
func (kv *KV) keyLock(key string) *sync.Mutex {
	kv.lockMu.Lock()
	defer kv.lockMu.Unlock()

	l, ok := kv.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		kv.keyLocks[key] = l
	}
	return l
}

// Get reads the value at key into dest. A missing key is not an error:
// Get returns found=false and leaves dest untouched, so the caller's
// default stays in place.
func (kv *KV) Get(ctx context.Context, key string, dest any) (bool, error) {
	var raw string
	err := kv.db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// GetRaw reads the serialized value at key. nil means the key is absent.
func (kv *KV) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	var raw string
	err := kv.db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return json.RawMessage(raw), nil
}

// Set fully overwrites the value at key, durably, before returning.
// A value that cannot be serialized fails with core.ErrNotSerializable
// and the stored value is unchanged. Every successful Set raises a
// change notification tagged with the key.
func (kv *KV) Set(ctx context.Context, key string, value any) error {
	lock := kv.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return kv.setLocked(ctx, key, value)
}

// setLocked writes and notifies. Caller holds the key lock.
func (kv *KV) setLocked(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNotSerializable, err)
	}

	_, err = kv.db.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	kv.notify(key, raw)
	return nil
}

// Update performs a whole-value read-modify-write on one key under the
// key's writer lock, so two entry points mutating the same key can
// never interleave. apply receives the latest persisted raw value (nil
// when the key is absent) and returns the next value. Returning
// ErrUnchanged skips the write.
func (kv *KV) Update(ctx context.Context, key string, apply func(raw json.RawMessage) (any, error)) error {
	lock := kv.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	raw, err := kv.GetRaw(ctx, key)
	if err != nil {
		return err
	}

	next, err := apply(raw)
	if errors.Is(err, ErrUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	return kv.setLocked(ctx, key, next)
}

// Subscribe registers for change notifications on one key. The
// returned subscription must be closed when the consumer goes away;
// an unclosed subscription keeps receiving into a buffer nobody
// drains.
func (kv *KV) Subscribe(key string) *Subscription {
	sub := &Subscription{
		id:  uuid.New().String(),
		key: key,
		ch:  make(chan Change, 16),
		kv:  kv,
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	if kv.subs[key] == nil {
		kv.subs[key] = make(map[string]*Subscription)
	}
	kv.subs[key][sub.id] = sub
	return sub
}

func (kv *KV) unsubscribe(sub *Subscription) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if m, ok := kv.subs[sub.key]; ok {
		delete(m, sub.id)
	}
	close(sub.ch)
}

// notify fans a change out to every subscriber of the key. Delivery is
// non-blocking: a full buffer drops the notification, which is safe
// because subscribers re-read the key and an already-queued signal
// forces that re-read.
func (kv *KV) notify(key string, raw json.RawMessage) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	for _, sub := range kv.subs[key] {
		select {
		case sub.ch <- Change{Key: key, Value: raw}:
		default:
			logging.Debug("store: dropped coalesced notification for %q", key)
		}
	}
}

package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker holds leases in process memory. It only excludes runs inside one process.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.entries[key]; ok && now.Before(entry.expires) {
		return nil, ErrLeaseHeld
	}

	token := uuid.NewString()
	l.entries[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLease) Key() string {
	return l.key
}

func (l *localLease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if entry, ok := l.locker.entries[l.key]; ok && entry.token == l.token {
		delete(l.locker.entries, l.key)
	}
	return nil
}

func (l *localLease) Extend(_ context.Context, ttl time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	entry, ok := l.locker.entries[l.key]
	if !ok || entry.token != l.token {
		return ErrLeaseLost
	}
	entry.expires = l.locker.now().Add(ttl)
	l.locker.entries[l.key] = entry
	return nil
}

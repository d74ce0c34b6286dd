// Package audit provides audit log implementations: in-memory, JSON lines,
// fan-out, and a resilient wrapper for persistent sinks.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	domainaudit "github.com/felixgeelhaar/ideaflow/domain/audit"
)

// MemoryLog implements audit.Log using in-memory storage.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []domainaudit.Entry
	nextID  atomic.Int64
	now     func() time.Time
}

// MemoryLogOption configures the memory log.
type MemoryLogOption func(*MemoryLog)

// WithClock sets the time source used for default timestamps.
func WithClock(now func() time.Time) MemoryLogOption {
	return func(l *MemoryLog) {
		l.now = now
	}
}

// NewMemoryLog creates a new in-memory audit log.
func NewMemoryLog(opts ...MemoryLogOption) *MemoryLog {
	l := &MemoryLog{
		entries: make([]domainaudit.Entry, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry.
func (l *MemoryLog) Record(ctx context.Context, entry domainaudit.Entry) (domainaudit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return domainaudit.Entry{}, err
	}

	entry, err := domainaudit.Normalize(entry, l.now().UTC())
	if err != nil {
		return domainaudit.Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ID = l.nextID.Add(1)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Query retrieves entries matching the filter.
func (l *MemoryLog) Query(ctx context.Context, filter domainaudit.Filter) ([]domainaudit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domainaudit.Entry, 0)
	for _, e := range l.entries {
		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Len returns the number of recorded entries.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close releases resources.
func (l *MemoryLog) Close() error {
	return nil
}

var _ domainaudit.Log = (*MemoryLog)(nil)

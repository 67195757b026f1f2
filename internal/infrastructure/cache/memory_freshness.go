package cache

import (
	"context"
	"sync"
	"time"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// MemoryFreshness keeps freshness stamps in process. It is used when no
// Redis address is configured, which is only correct for a single replica.
type MemoryFreshness struct {
	now func() time.Time

	mu      sync.Mutex
	updated int64
	mobile  map[string]int64
}

func NewMemoryFreshness() *MemoryFreshness {
	return &MemoryFreshness{now: time.Now, mobile: make(map[string]int64)}
}

var _ ports.FreshnessStore = (*MemoryFreshness)(nil)

func (m *MemoryFreshness) Updated(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updated == 0 {
		m.updated = m.now().UnixMilli()
	}
	return m.updated, nil
}

func (m *MemoryFreshness) MobileUpdated(_ context.Context, appID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp, ok := m.mobile[appID]
	if !ok {
		// Never at or below the global stamp, so a client polling across a
		// Stamp always sees the app stamp move.
		stamp = nextStamp(m.updated, m.now().UnixMilli())
		m.mobile[appID] = stamp
	}
	return stamp, nil
}

func (m *MemoryFreshness) Stamp(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mobile = make(map[string]int64)
	m.updated = nextStamp(m.updated, m.now().UnixMilli())
	return nil
}

// nextStamp never goes backwards, even when two stamps land in the same
// millisecond or the clock steps back.
func nextStamp(previous, now int64) int64 {
	if now <= previous {
		return previous + 1
	}
	return now
}

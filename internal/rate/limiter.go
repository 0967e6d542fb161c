package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Action namespaces. Each has an independent budget per agent.
const (
	ActionPost    = "post"
	ActionComment = "comment"
	ActionVote    = "vote"
	ActionLaunch  = "launch"
	ActionPayment = "payment"
)

// Key builds the limiter key for one action kind and agent.
func Key(action, agentID string) string {
	return action + ":" + agentID
}

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter records the attempt and decides admission in one step. Rejected
// attempts are recorded too.
type Limiter interface {
	CheckAndRecord(ctx context.Context, key string) (Decision, error)
}

type Option func(*options)

type options struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// MemoryLimiter is a sliding-log limiter for single-process deployments.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	logs      map[string][]time.Time
	lastSweep time.Time
}

func NewMemory(limit int, window time.Duration, opts ...Option) *MemoryLimiter {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    o.now,
		logs:   make(map[string][]time.Time),
	}
}

func (m *MemoryLimiter) CheckAndRecord(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.sweep(now, cutoff)

	hits := append(prune(m.logs[key], cutoff), now)
	// Only the newest limit+1 entries can affect a decision.
	if len(hits) > m.limit+1 {
		hits = append(hits[:0], hits[len(hits)-m.limit-1:]...)
	}
	m.logs[key] = hits

	return decide(len(hits), m.limit, hits[0].Add(m.window)), nil
}

// sweep drops keys whose whole log has expired, at most once per window.
func (m *MemoryLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for k, hits := range m.logs {
		if len(prune(hits, cutoff)) == 0 {
			delete(m.logs, k)
		}
	}
}

func (m *MemoryLimiter) String() string {
	return fmt.Sprintf("memory(limit=%d, window=%s)", m.limit, m.window)
}

func (m *MemoryLimiter) keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// prune removes entries at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// DefaultHistorySize is how many samples each connection keeps in memory.
const DefaultHistorySize = 60

// ring is a fixed-capacity buffer that overwrites its oldest entry.
type ring[T any] struct {
	buf  []T
	next int // slot the next push writes
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	r.n = min(r.n+1, len(r.buf))
}

// tail copies out the newest k entries, oldest first.
func (r *ring[T]) tail(k int) []T {
	k = min(k, r.n)
	if k <= 0 {
		return nil
	}
	out := make([]T, k)
	start := r.next - k + len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// History holds each connection's recent samples. It backs the dashboard
// and short metric windows without a database round trip.
type History struct {
	size int

	mu    sync.RWMutex
	conns map[string]*ring[*models.Sample]
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, conns: make(map[string]*ring[*models.Sample])}
}

// Push records s under its connection. Once full, the oldest sample goes.
func (h *History) Push(s *models.Sample) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.conns[s.ConnectionID]
	if r == nil {
		r = newRing[*models.Sample](h.size)
		h.conns[s.ConnectionID] = r
	}
	r.push(s)
}

// Last returns up to count of id's newest samples, oldest first.
func (h *History) Last(id string, count int) []*models.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r := h.conns[id]; r != nil {
		return r.tail(count)
	}
	return nil
}

func (h *History) All(id string) []*models.Sample { return h.Last(id, h.size) }

// Since returns id's samples taken at or after t, oldest first.
func (h *History) Since(id string, t time.Time) []*models.Sample {
	all := h.All(id)
	i := slices.IndexFunc(all, func(s *models.Sample) bool { return !s.Timestamp.Before(t) })
	if i < 0 {
		return nil
	}
	return all[i:]
}

// Latest returns id's newest sample, or nil.
func (h *History) Latest(id string) *models.Sample {
	if last := h.Last(id, 1); len(last) == 1 {
		return last[0]
	}
	return nil
}

func (h *History) Count(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r := h.conns[id]; r != nil {
		return r.n
	}
	return 0
}

// Clear drops id's samples, e.g. when the connection is removed.
func (h *History) Clear(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

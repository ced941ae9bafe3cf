// Package progress tracks per-request synthesis progress for the SSE
// endpoint. State lives in one tracker owned by the server rather than
// package-level globals, and stale entries are evicted on access.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// evictAfter is how long a finished or abandoned request's record stays
// visible before it is dropped.
const evictAfter = 5 * time.Minute

// Update is one progress snapshot, shaped for the SSE payload.
type Update struct {
	Percent int     `json:"progress"`
	Stage   string  `json:"stage"`
	Message string  `json:"message"`
	Elapsed float64 `json:"elapsed_time"`
}

type record struct {
	update  Update
	started time.Time
	touched time.Time
}

type Tracker struct {
	mu   sync.Mutex
	data map[string]record
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		data: make(map[string]record),
		now:  time.Now,
	}
}

// NewRequestID mints the identifier clients use to follow a request.
func NewRequestID() string {
	return uuid.NewString()
}

// Update records a new snapshot for id, keeping the first update's
// timestamp as the start of the request.
func (t *Tracker) Update(id string, percent int, stage, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.data[id]
	if !ok {
		rec = record{started: now}
	}
	rec.update = Update{
		Percent: percent,
		Stage:   stage,
		Message: message,
		Elapsed: now.Sub(rec.started).Seconds(),
	}
	rec.touched = now
	t.data[id] = rec
	t.evictLocked(now)
}

// Get returns the latest snapshot for id, if one is still tracked.
func (t *Tracker) Get(id string) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked(t.now())
	rec, ok := t.data[id]
	return rec.update, ok
}

func (t *Tracker) evictLocked(now time.Time) {
	for id, rec := range t.data {
		if now.Sub(rec.touched) > evictAfter {
			delete(t.data, id)
		}
	}
}

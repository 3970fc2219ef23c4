package progress

import (
	"sync"
	"time"
)

// DefaultInterval bounds how often coalesced snapshots are delivered.
const DefaultInterval = 100 * time.Millisecond

// Reporter fans snapshots out to subscribers.
type Reporter struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	latest   Snapshot
	has      bool
	lastSent time.Time
	lastKey  Phase
	timer    *time.Timer
	subs     map[int]chan Snapshot
	nextID   int
	closed   bool
}

// NewReporter returns a reporter delivering at most once per interval.
func NewReporter(interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		interval: interval,
		now:      time.Now,
		subs:     make(map[int]chan Snapshot),
	}
}

// Publish records snap as the latest state. It never blocks.
func (r *Reporter) Publish(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.latest = snap
	r.has = true

	now := r.now()
	urgent := snap.Phase != r.lastKey || snap.Phase.Terminal()
	if urgent || now.Sub(r.lastSent) >= r.interval {
		r.flushLocked(now)
		return
	}
	if r.timer == nil {
		wait := r.interval - now.Sub(r.lastSent)
		r.timer = time.AfterFunc(wait, r.flushPending)
	}
}

func (r *Reporter) flushPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer = nil
	if r.closed || !r.has {
		return
	}
	r.flushLocked(r.now())
}

func (r *Reporter) flushLocked(now time.Time) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.lastSent = now
	r.lastKey = r.latest.Phase
	for _, ch := range r.subs {
		offer(ch, r.latest)
	}
}

// offer replaces any undelivered snapshot in the one-slot channel.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Subscribe returns a channel of snapshots and a cancel func. The latest
// snapshot, if any, is queued immediately. The channel closes when the
// reporter closes or cancel is called.
func (r *Reporter) Subscribe() (<-chan Snapshot, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if r.has {
		ch <- r.latest
	}
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if sub, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(sub)
			}
		})
	}
}

// Latest returns the most recent snapshot published.
func (r *Reporter) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.has
}

// Close delivers the latest snapshot and closes every subscriber channel.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.has {
		r.flushLocked(r.now())
	}
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// Package window holds recently ingested events for temporal correlation lookups.
//
// Events are kept in a ring of one-second buckets sized to the correlation window,
// so inserts are amortized O(1) and a query scans at most window+1 buckets. The
// watermark is the highest timestamp observed so far; anything older than
// watermark-window is evicted and can never be returned by a query.
package window

import (
	"sync"

	"github.com/miradorstack/mirador-alarmcorr/internal/models"
)

// Index is a concurrency-safe sliding window over event time.
type Index struct {
	mu        sync.RWMutex
	window    int64
	buckets   []bucket
	watermark int64
	started   bool
	present   map[models.EventKey]struct{}
	size      int
}

type bucket struct {
	second int64
	used   bool
	events []models.Event
}

// NewIndex creates an index retaining events no older than windowSeconds behind the watermark.
func NewIndex(windowSeconds int) *Index {
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	return &Index{
		window:  int64(windowSeconds),
		buckets: make([]bucket, windowSeconds+1),
		present: make(map[models.EventKey]struct{}),
	}
}

// Insert adds ev to the window, advancing the watermark and evicting expired buckets.
// It returns false when ev was not stored: either it is already behind the horizon or
// an event with the same identity is already held.
func (x *Index) Insert(ev models.Event) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started {
		x.started = true
		x.watermark = ev.Timestamp
	} else if ev.Timestamp > x.watermark {
		x.advance(ev.Timestamp)
	}

	if ev.Timestamp < x.horizon() {
		return false
	}
	key := ev.Key()
	if _, dup := x.present[key]; dup {
		return false
	}

	b := &x.buckets[x.slot(ev.Timestamp)]
	if b.used && b.second != ev.Timestamp {
		x.evict(b)
	}
	b.used = true
	b.second = ev.Timestamp
	b.events = append(b.events, ev)
	x.present[key] = struct{}{}
	x.size++
	return true
}

// Query returns events with |ts-center| <= radius in ascending timestamp order;
// events sharing a second keep their insertion order. The result is a private copy.
func (x *Index) Query(center, radius int64) []models.Event {
	return x.QueryNodes(center, radius, nil)
}

// QueryNodes is Query with an optional predicate applied during the scan.
func (x *Index) QueryNodes(center, radius int64, accept func(models.Event) bool) []models.Event {
	if radius < 0 {
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.started {
		return nil
	}
	lo, hi := center-radius, center+radius
	if h := x.horizon(); lo < h {
		lo = h
	}
	if hi > x.watermark {
		hi = x.watermark
	}

	var out []models.Event
	for s := lo; s <= hi; s++ {
		b := &x.buckets[x.slot(s)]
		if !b.used || b.second != s {
			continue
		}
		for _, ev := range b.events {
			if accept == nil || accept(ev) {
				out = append(out, ev)
			}
		}
	}
	return out
}

// contains reports whether an event with the given identity is currently held.
func (x *Index) contains(key models.EventKey) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.present[key]
	return ok
}

// Len returns the number of events currently held.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// Watermark returns the highest observed timestamp and whether anything was inserted yet.
func (x *Index) Watermark() (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.watermark, x.started
}

// WindowSeconds returns the configured retention.
func (x *Index) WindowSeconds() int64 {
	return x.window
}

func (x *Index) horizon() int64 {
	return x.watermark - x.window
}

func (x *Index) slot(second int64) int {
	n := int64(len(x.buckets))
	return int(((second % n) + n) % n)
}

func (x *Index) advance(ts int64) {
	oldHorizon := x.horizon()
	x.watermark = ts
	newHorizon := x.horizon()

	if newHorizon-oldHorizon >= int64(len(x.buckets)) {
		for i := range x.buckets {
			if x.buckets[i].used {
				x.evict(&x.buckets[i])
			}
		}
		return
	}
	for s := oldHorizon; s < newHorizon; s++ {
		b := &x.buckets[x.slot(s)]
		if b.used && b.second == s {
			x.evict(b)
		}
	}
}

func (x *Index) evict(b *bucket) {
	for _, ev := range b.events {
		delete(x.present, ev.Key())
	}
	x.size -= len(b.events)
	b.events = b.events[:0]
	b.used = false
}

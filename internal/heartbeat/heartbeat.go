// Package heartbeat tracks last-seen timestamps for clients, machines,
// and nodes, and sweeps stale entries into alert-derivation input on a
// fixed interval.
package heartbeat

import (
	"sync"
	"time"
)

// Kind distinguishes the three independent heartbeat maps.
type Kind int

const (
	KindClient Kind = iota
	KindMachine
	KindNode
)

// DefaultTTL is the staleness threshold the sweep applies when none is
// given explicitly.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 60 * time.Second

// Miss describes one entry the sweep found stale and removed.
type Miss struct {
	Kind Kind
	ID   string
	Last time.Time
}

// Tracker holds three reader/writer-locked maps, one per Kind, each
// serialised independently so a sweep over one kind never blocks posts
// to another.
type Tracker struct {
	ttl time.Duration

	client  lockedMap
	machine lockedMap
	node    lockedMap
}

type lockedMap struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewTracker builds a Tracker with the given staleness TTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		client:  lockedMap{seen: make(map[string]time.Time)},
		machine: lockedMap{seen: make(map[string]time.Time)},
		node:    lockedMap{seen: make(map[string]time.Time)},
	}
}

func (t *Tracker) mapFor(kind Kind) *lockedMap {
	switch kind {
	case KindClient:
		return &t.client
	case KindMachine:
		return &t.machine
	default:
		return &t.node
	}
}

// Post records id as seen right now (upsert).
func (t *Tracker) Post(kind Kind, id string) {
	t.PostAt(kind, id, time.Now())
}

// PostAt records id as seen at the given time; exposed for deterministic
// tests.
func (t *Tracker) PostAt(kind Kind, id string, when time.Time) {
	m := t.mapFor(kind)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = when
}

// Get returns the last-seen time for id, if any.
func (t *Tracker) Get(kind Kind, id string) (time.Time, bool) {
	m := t.mapFor(kind)
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.seen[id]
	return last, ok
}

// Sweep scans every kind for entries older than the TTL as of `now`,
// removing each and returning it as a Miss. The write lock for each map
// is held only for the duration of that map's scan, not across all
// three.
func (t *Tracker) Sweep(now time.Time) []Miss {
	var misses []Miss
	for _, kind := range []Kind{KindClient, KindMachine, KindNode} {
		misses = append(misses, t.sweepOne(kind, now)...)
	}
	return misses
}

func (t *Tracker) sweepOne(kind Kind, now time.Time) []Miss {
	m := t.mapFor(kind)
	m.mu.Lock()
	defer m.mu.Unlock()

	var misses []Miss
	for id, last := range m.seen {
		if now.Sub(last) > t.ttl {
			misses = append(misses, Miss{Kind: kind, ID: id, Last: last})
			delete(m.seen, id)
		}
	}
	return misses
}

// Run drives the periodic sweep until stop is closed, invoking onMiss
// for every miss found each cycle.
func (t *Tracker) Run(stop <-chan struct{}, interval time.Duration, onMiss func(Miss)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, miss := range t.Sweep(now) {
				onMiss(miss)
			}
		}
	}
}

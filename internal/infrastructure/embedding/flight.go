package embedding

import "sync"

// flight is one in-progress computation of a single content hash.
type flight struct {
	done chan struct{}
	vec  []float32
	err  error
}

// flightTable tracks which content hashes are being computed. A key has at
// most one flight; it is removed only after its vector reached the cache.
type flightTable struct {
	cache *Cache

	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightTable(cache *Cache) *flightTable {
	return &flightTable{cache: cache, flights: make(map[string]*flight)}
}

type flightClaim struct {
	// owned flights must be computed and resolved by the claiming caller.
	owned map[string]*flight
	// waiting holds every flight the caller depends on, owned ones included.
	waiting map[string]*flight
	// cached keys were filled by a flight that finished before the claim.
	cached map[string][]float32
}

func (t *flightTable) claim(keys []string) flightClaim {
	c := flightClaim{
		owned:   make(map[string]*flight),
		waiting: make(map[string]*flight, len(keys)),
		cached:  make(map[string][]float32),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range keys {
		if fl, ok := t.flights[key]; ok {
			c.waiting[key] = fl
			continue
		}
		if vec, ok := t.cache.peek(key); ok {
			c.cached[key] = vec
			continue
		}
		fl := &flight{done: make(chan struct{})}
		t.flights[key] = fl
		c.owned[key] = fl
		c.waiting[key] = fl
	}
	return c
}

func (t *flightTable) resolve(key string, fl *flight, vec []float32, err error) {
	t.mu.Lock()
	if t.flights[key] == fl {
		delete(t.flights, key)
	}
	t.mu.Unlock()

	fl.vec, fl.err = vec, err
	close(fl.done)
}

func (t *flightTable) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flights)
}

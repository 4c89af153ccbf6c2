package ports

import "time"

// RetrievalObserver receives engine-level measurements. Implementations must
// be safe for concurrent use.
type RetrievalObserver interface {
	ObserveRetrieval(outcome string, results int, duration time.Duration)
	ObserveChannel(channel, outcome string, candidates int, duration time.Duration)
	ObserveIngest(outcome string, chunks int, duration time.Duration)
}

type NopObserver struct{}

func (NopObserver) ObserveRetrieval(string, int, time.Duration)       {}
func (NopObserver) ObserveChannel(string, string, int, time.Duration) {}
func (NopObserver) ObserveIngest(string, int, time.Duration)          {}

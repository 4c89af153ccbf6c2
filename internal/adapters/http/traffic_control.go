package httpadapter

import (
	"net/http"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
)

// backpressureMiddleware caps concurrent requests. A request that cannot get
// a slot within wait is shed with 503 instead of queueing behind slow
// vector-store calls.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration, onReject func()) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acquireSlot(r, slots, wait) {
			if onReject != nil {
				onReject()
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:     "server is overloaded, retry later",
				RequestID: logging.RequestID(r.Context()),
			})
			return
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

func acquireSlot(r *http.Request, slots chan struct{}, wait time.Duration) bool {
	select {
	case slots <- struct{}{}:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-r.Context().Done():
		return false
	}
}

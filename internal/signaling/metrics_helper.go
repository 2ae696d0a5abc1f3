package signaling

import (
	"time"

	"CallCoordinator/internal/callsession"
	"CallCoordinator/internal/metrics"
)

func eventIn(event, result string) {
	metrics.SignalEvents.WithLabelValues(event, result).Inc()
}

func rateLimitedInc(event string) {
	metrics.SignalRateLimited.WithLabelValues(event).Inc()
}

func observeHandler(event string, start time.Time) {
	metrics.SignalHandlerDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

func callTransition(s callsession.Session) {
	metrics.SignalCallTransitions.WithLabelValues(string(s.Status), string(s.Reason)).Inc()
}

func activeCallsSet(n int) {
	metrics.SignalActiveCalls.Set(float64(n))
}

func connectionsSet(n int) {
	metrics.SignalConnections.Set(float64(n))
}

func storeWrite(store string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeWriteResult(store, result)
}

func storeWriteResult(store, result string) {
	metrics.SignalStoreWrites.WithLabelValues(store, result).Inc()
}

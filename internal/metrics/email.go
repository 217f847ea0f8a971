package metrics

import "time"

// EmailAttempted records one delivery outcome and how long the transport took.
func EmailAttempted(testType, status, transport string, duration time.Duration) {
	EmailsSentTotal.WithLabelValues(testType, status).Inc()
	EmailSendDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// BulkDispatched records the size of a bulk run.
func BulkDispatched(recipients int) {
	BulkBatchSize.Observe(float64(recipients))
}

// LogWriteFailed records an outcome that was delivered but not logged.
func LogWriteFailed() {
	LogWriteFailures.Inc()
}

// LoginAttempted records a login result ("success", "failure", "throttled").
func LoginAttempted(result string) {
	LoginsTotal.WithLabelValues(result).Inc()
}

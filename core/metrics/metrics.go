// Package metrics defines small instrumentation interfaces so the core
// packages stay decoupled from any concrete backend. A Prometheus
// implementation lives in adapters/prometheus; the nop implementations here
// are the default everywhere instrumentation is optional.
package metrics

// Counter only ever goes up.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add increments the counter by delta, which must be >= 0.
	Add(delta float64)
}

// Gauge tracks a value that can rise and fall.
type Gauge interface {
	// Set sets the gauge to value.
	Set(value float64)
	// Inc increments the gauge by 1.
	Inc()
	// Dec decrements the gauge by 1.
	Dec()
	// Add adds delta to the gauge; delta may be negative.
	Add(delta float64)
}

// Histogram records observations such as request latencies.
type Histogram interface {
	// Observe adds one observation.
	Observe(value float64)
}

// Timer measures one operation. ObserveDuration records the time elapsed
// since the Timer was created, enabling:
//
//	defer m.CommandDuration("nodes").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

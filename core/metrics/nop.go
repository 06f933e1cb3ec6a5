package metrics

type nopCounter struct{}

func (nopCounter) Inc()        {}
func (nopCounter) Add(float64) {}

type nopGauge struct{}

func (nopGauge) Set(float64) {}
func (nopGauge) Inc()        {}
func (nopGauge) Dec()        {}
func (nopGauge) Add(float64) {}

type nopHistogram struct{}

func (nopHistogram) Observe(float64) {}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopCounter returns a Counter that records nothing.
func NopCounter() Counter { return nopCounter{} }

// NopGauge returns a Gauge that records nothing.
func NopGauge() Gauge { return nopGauge{} }

// NopHistogram returns a Histogram that records nothing.
func NopHistogram() Histogram { return nopHistogram{} }

// NopTimer returns a Timer that records nothing.
func NopTimer() Timer { return nopTimer{} }

package progress

import "time"

// RateMeter derives a smoothed bytes-per-second figure from cumulative byte
// counts.
type RateMeter struct {
	alpha    float64
	rate     float64
	lastAt   time.Time
	lastSeen uint64
	started  bool
}

// NewRateMeter returns a meter with exponential smoothing factor alpha in (0, 1].
func NewRateMeter(alpha float64) *RateMeter {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &RateMeter{alpha: alpha}
}

// Observe records the cumulative count at now and returns the current rate.
// Counts that go backwards reset the baseline.
func (m *RateMeter) Observe(total uint64, now time.Time) float64 {
	if !m.started || total < m.lastSeen {
		m.started = true
		m.lastAt = now
		m.lastSeen = total
		return m.rate
	}
	elapsed := now.Sub(m.lastAt).Seconds()
	if elapsed < 0.05 {
		return m.rate
	}
	instant := float64(total-m.lastSeen) / elapsed
	if m.rate == 0 {
		m.rate = instant
	} else {
		m.rate = m.alpha*instant + (1-m.alpha)*m.rate
	}
	m.lastAt = now
	m.lastSeen = total
	return m.rate
}

// Set forces the rate, for sources that report their own speed.
func (m *RateMeter) Set(rate float64) {
	if rate >= 0 {
		m.rate = rate
	}
}

// Rate returns the last computed rate.
func (m *RateMeter) Rate() float64 { return m.rate }

// Reset clears history, typically at a phase boundary.
func (m *RateMeter) Reset() {
	*m = RateMeter{alpha: m.alpha}
}

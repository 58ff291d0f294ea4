package transfer

import (
	"sync"
	"time"
)

// sampleWindow is the minimum interval between speed samples
const sampleWindow = time.Second

// speedMeter tracks instantaneous throughput. It is written by the chunk
// loop and read by reporting goroutines.
type speedMeter struct {
	mu          sync.Mutex
	current     float64
	sampleStart time.Time
	sampleBytes int64
}

// reset starts a new sampling window without discarding the last speed
func (m *speedMeter) reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sampleStart = now
	m.sampleBytes = 0
}

// add records n transferred bytes and recomputes the speed once the
// sampling window has elapsed.
func (m *speedMeter) add(n int64, now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sampleStart.IsZero() {
		m.sampleStart = now
	}
	m.sampleBytes += n

	elapsed := now.Sub(m.sampleStart)
	if elapsed >= sampleWindow {
		m.current = float64(m.sampleBytes) / elapsed.Seconds()
		m.sampleStart = now
		m.sampleBytes = 0
	}
	return m.current
}

func (m *speedMeter) get() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *speedMeter) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = 0
	m.sampleStart = time.Time{}
	m.sampleBytes = 0
}

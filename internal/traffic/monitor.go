package traffic

import (
	"context"
	"sync/atomic"
	"time"
)

// Monitor counts requests and publishes the count of the last full window as
// the current request rate.
type Monitor struct {
	window   time.Duration
	current  atomic.Int64
	rate     atomic.Int64
	inFlight atomic.Int64
}

func NewMonitor(window time.Duration) *Monitor {
	if window <= 0 {
		window = time.Second
	}
	return &Monitor{window: window}
}

// Hit records one request.
func (m *Monitor) Hit() {
	m.current.Add(1)
}

// Begin records one request and tracks it as in flight until the returned
// func is called.
func (m *Monitor) Begin() func() {
	m.Hit()
	m.inFlight.Add(1)
	return func() { m.inFlight.Add(-1) }
}

// RequestRate is the number of requests seen in the last completed window.
func (m *Monitor) RequestRate() int64 {
	return m.rate.Load()
}

func (m *Monitor) InFlight() int64 {
	return m.inFlight.Load()
}

func (m *Monitor) tick() {
	m.rate.Store(m.current.Swap(0))
}

// Run rolls the window until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

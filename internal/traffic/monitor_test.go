package traffic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorWindow(t *testing.T) {
	m := NewMonitor(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Hit()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), m.RequestRate(), "rate only moves on tick")
	m.tick()
	assert.Equal(t, int64(150), m.RequestRate())
	m.tick()
	assert.Equal(t, int64(0), m.RequestRate())
}

func TestMonitorInFlight(t *testing.T) {
	m := NewMonitor(time.Second)
	done1 := m.Begin()
	done2 := m.Begin()
	assert.Equal(t, int64(2), m.InFlight())
	done1()
	done2()
	assert.Equal(t, int64(0), m.InFlight())
	m.tick()
	assert.Equal(t, int64(2), m.RequestRate())
}

func TestMonitorRun(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 5; i++ {
		m.Hit()
	}
	go m.Run(ctx)
	assert.Eventually(t, func() bool { return m.RequestRate() == 5 }, time.Second, time.Millisecond)
}

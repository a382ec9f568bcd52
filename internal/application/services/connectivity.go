package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsecrm/syncd/internal/domain/ports"
)

// ConnectivityMonitor probes the upstream on a ticker and tracks its
// reachability. An offline→online transition fires the registered callback
// (the sync engine's flush trigger); online→online does not.
type ConnectivityMonitor struct {
	deliverer ports.Deliverer
	interval  time.Duration

	online    atomic.Bool
	lastCheck atomic.Int64

	onOnline func()

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool // Prevents double-close of stopChan
}

// NewConnectivityMonitor creates a monitor; the callback is registered later
// to break the construction cycle with the sync engine.
func NewConnectivityMonitor(deliverer ports.Deliverer, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ConnectivityMonitor{
		deliverer: deliverer,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// SetOnOnline registers the offline→online callback. Must be called before Start.
func (m *ConnectivityMonitor) SetOnOnline(fn func()) {
	m.onOnline = fn
}

// Start begins the probe loop in a background goroutine
func (m *ConnectivityMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		log.Printf("📡 Connectivity monitor started with %v interval", m.interval)

		// Probe immediately on start so the first enqueue sees a real state
		m.probe()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopChan:
				log.Println("📡 Connectivity monitor stopping...")
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

// Stop gracefully stops the monitor
func (m *ConnectivityMonitor) Stop() {
	m.mu.Lock()
	if !m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.stopped = true
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
}

// probe checks the upstream once and handles the state transition
func (m *ConnectivityMonitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	err := m.deliverer.Ping(ctx)
	m.lastCheck.Store(time.Now().Unix())

	if err != nil {
		if m.online.Swap(false) {
			log.Printf("📡 Upstream went offline: %v", err)
		}
		return
	}

	// The monitor starts in the offline state, so the first successful
	// probe also fires: anything queued while syncd was down is waiting.
	if wasOnline := m.online.Swap(true); !wasOnline {
		log.Println("📡 Upstream online, triggering flush")
		if m.onOnline != nil {
			m.onOnline()
		}
	}
}

// IsOnline reports the last known upstream state
func (m *ConnectivityMonitor) IsOnline() bool {
	return m.online.Load()
}

// LastCheck returns when the upstream was last probed (zero time if never)
func (m *ConnectivityMonitor) LastCheck() time.Time {
	ts := m.lastCheck.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

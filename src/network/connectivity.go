package network

import (
	"context"
	"net"
	"sync"
	"time"

	"multisig-observer/src/logger"

	"github.com/juju/clock"
)

// -----------------------------------------------------------------------------
// ConnectivityMonitor tracks whether the network is reachable by dialing a
// probe address periodically. With no probe address it always reports online.
// -----------------------------------------------------------------------------

type ConnectivityMonitor struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   *logger.Logger
	Dial     func(ctx context.Context, network, address string) (net.Conn, error)

	mu        sync.Mutex
	online    bool
	listeners map[uint64]func()
	nextID    uint64
}

// -----------------------------------------------------------------------------

func NewConnectivityMonitor(address string, interval time.Duration, log *logger.Logger) *ConnectivityMonitor {
	dialer := &net.Dialer{}
	return &ConnectivityMonitor{
		Address:   address,
		Interval:  interval,
		Timeout:   3 * time.Second,
		Clock:     clock.WallClock,
		Logger:    log,
		Dial:      dialer.DialContext,
		online:    true,
		listeners: make(map[uint64]func()),
	}
}

// -----------------------------------------------------------------------------

// Run probes until ctx is cancelled.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	if m.Address == "" || m.Interval <= 0 {
		return
	}

	m.Logger.Info("Connectivity monitor probing %s every %v", m.Address, m.Interval)
	for {
		m.SetOnline(m.probe(ctx))

		select {
		case <-ctx.Done():
			return
		case <-m.Clock.After(m.Interval):
		}
	}
}

// -----------------------------------------------------------------------------

func (m *ConnectivityMonitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	conn, err := m.Dial(ctx, "tcp", m.Address)
	if err != nil {
		m.Logger.Debug("Probe of %s failed: %v", m.Address, err)
		return false
	}
	conn.Close()
	return true
}

// -----------------------------------------------------------------------------

func (m *ConnectivityMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// -----------------------------------------------------------------------------

// SetOnline records the connectivity state. Going from offline to online
// fires and clears every pending WhenOnline listener.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	var fire []func()
	if online && !was {
		for id, fn := range m.listeners {
			fire = append(fire, fn)
			delete(m.listeners, id)
		}
	}
	m.mu.Unlock()

	if was != online {
		if online {
			m.Logger.Info("Network is back online")
		} else {
			m.Logger.Warning("Network went offline")
		}
	}
	for _, fn := range fire {
		go fn()
	}
}

// -----------------------------------------------------------------------------

// WhenOnline registers a one-shot listener. If the network is already online
// fn runs right away on its own goroutine.
func (m *ConnectivityMonitor) WhenOnline(fn func()) (cancel func()) {
	m.mu.Lock()
	if m.online {
		m.mu.Unlock()
		go fn()
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// PendingListeners returns how many WhenOnline listeners are registered.
func (m *ConnectivityMonitor) PendingListeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

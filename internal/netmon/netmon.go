package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

type Event int

const (
	BecameOnline Event = iota
	BecameOffline
)

// ProbeFunc reports whether the remote API is reachable right now.
type ProbeFunc func(ctx context.Context) bool

// Monitor polls a reachability probe and notifies subscribers on transitions.
// Subscriber channels are buffered and sends are non-blocking, so a flapping
// link coalesces into at most one queued event per subscriber rather than
// unbounded work.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan Event
}

func New(probe ProbeFunc, interval time.Duration) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
	}
}

// HTTPProbe builds a probe that issues a HEAD request against the given URL.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		res, err := client.Do(req)
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode < 500
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving BecameOnline/BecameOffline events.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 1)
	m.subs = append(m.subs, ch)
	return ch
}

// Start runs the poll loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

func (m *Monitor) check(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}

	event := BecameOffline
	if online {
		event = BecameOnline
	}
	log.Infof("reachability changed, online=%v", online)

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

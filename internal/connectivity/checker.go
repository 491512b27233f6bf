// SPDX-License-Identifier: MIT

// Package connectivity tracks whether the media server is reachable and
// publishes state changes to subscribers. The cache policy and auth layers
// consult it to adapt request behaviour while offline.
package connectivity

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/castbridge/castbridge/internal/log"
)

// NetworkClass is a coarse classification of the path to the server.
type NetworkClass string

const (
	ClassUnknown  NetworkClass = "unknown"
	ClassLoopback NetworkClass = "loopback"
	ClassLAN      NetworkClass = "lan"
	ClassWAN      NetworkClass = "wan"
)

// State is the published connectivity snapshot.
type State struct {
	Online  bool
	Class   NetworkClass
	Checked time.Time
}

// Dialer is the probe primitive, swappable in tests.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Checker probes the server address on an interval and fans state changes out
// to subscribers. Single writer, emit-on-change.
type Checker struct {
	target   string
	interval time.Duration
	timeout  time.Duration
	dial     Dialer
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
	subs  map[chan State]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Checker probing the host of serverURL. The checker starts
// offline until the first probe completes.
func New(serverURL string, interval time.Duration) (*Checker, error) {
	target, err := probeAddress(serverURL)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{
		target:   target,
		interval: interval,
		timeout:  3 * time.Second,
		dial:     net.DialTimeout,
		logger:   log.WithComponent("connectivity"),
		state:    State{Online: false, Class: ClassUnknown},
		subs:     make(map[chan State]struct{}),
	}, nil
}

// Start launches the probe loop. Idempotent start is not supported; callers
// own exactly one Start/Stop pair.
func (c *Checker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.probe()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (c *Checker) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

// State returns the current snapshot.
func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Online reports whether the server was reachable at the last probe.
func (c *Checker) Online() bool {
	return c.State().Online
}

// Subscribe returns a channel receiving every state change. The caller must
// call the returned cancel function when done.
func (c *Checker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 4)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
	}
	return ch, cancel
}

// Force overrides the published state. Used by tests and by the daemon's
// offline toggle.
func (c *Checker) Force(online bool) {
	c.publish(State{Online: online, Class: c.State().Class, Checked: time.Now()})
}

func (c *Checker) probe() {
	conn, err := c.dial("tcp", c.target, c.timeout)
	next := State{Checked: time.Now()}
	if err != nil {
		next.Online = false
		next.Class = ClassUnknown
	} else {
		next.Online = true
		next.Class = classify(conn.RemoteAddr())
		_ = conn.Close()
	}
	c.publish(next)
}

func (c *Checker) publish(next State) {
	c.mu.Lock()
	changed := next.Online != c.state.Online || next.Class != c.state.Class
	c.state = next
	var targets []chan State
	if changed {
		for ch := range c.subs {
			targets = append(targets, ch)
		}
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	c.logger.Info().Bool("online", next.Online).Str("class", string(next.Class)).Msg("connectivity changed")
	for _, ch := range targets {
		select {
		case ch <- next:
		default:
			// Slow subscriber: drop rather than block the probe loop.
		}
	}
}

func probeAddress(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}

func classify(addr net.Addr) NetworkClass {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp.IP == nil {
		return ClassUnknown
	}
	switch {
	case tcp.IP.IsLoopback():
		return ClassLoopback
	case tcp.IP.IsPrivate() || tcp.IP.IsLinkLocalUnicast():
		return ClassLAN
	default:
		return ClassWAN
	}
}

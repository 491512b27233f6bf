// SPDX-License-Identifier: MIT

package connectivity

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker(t *testing.T, dial Dialer) *Checker {
	t.Helper()
	c, err := New("http://media.local:8096", 5*time.Millisecond)
	require.NoError(t, err)
	c.dial = dial
	return c
}

func TestProbeAddressDefaults(t *testing.T) {
	addr, err := probeAddress("https://media.local")
	require.NoError(t, err)
	assert.Equal(t, "media.local:443", addr)

	addr, err = probeAddress("http://media.local")
	require.NoError(t, err)
	assert.Equal(t, "media.local:80", addr)
}

func TestSubscribeEmitsOnChangeOnly(t *testing.T) {
	c := newTestChecker(t, func(network, address string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("down")
	})

	ch, cancel := c.Subscribe()
	defer cancel()

	// Starts offline; an offline probe result must not re-emit.
	c.probe()
	select {
	case <-ch:
		t.Fatal("unchanged state must not emit")
	case <-time.After(20 * time.Millisecond):
	}

	c.Force(true)
	select {
	case st := <-ch:
		assert.True(t, st.Online)
	case <-time.After(time.Second):
		t.Fatal("expected online transition")
	}
}

func TestProbeClassifiesLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := newTestChecker(t, func(network, address string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", ln.Addr().String(), timeout)
	})

	c.probe()
	st := c.State()
	assert.True(t, st.Online)
	assert.Equal(t, ClassLoopback, st.Class)
}

func TestStartStop(t *testing.T) {
	c := newTestChecker(t, func(network, address string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("down")
	})
	c.Start()
	time.Sleep(15 * time.Millisecond)
	c.Stop()
	// Stop after Stop must not panic.
	c.Stop()
}

package netstatus

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/domain"
)

func upInterface(name string) net.Interface {
	return net.Interface{Name: name, Flags: net.FlagUp}
}

func TestMonitorCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL+"/", Options{}, adapter.NullLogger())
	m.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}, upInterface("wlan0")}, nil
	}

	var seen []domain.NetworkState
	unsubscribe := m.Subscribe(func(s domain.NetworkState) { seen = append(seen, s) })

	state := m.Check(context.Background())
	assert.True(t, state.Online())
	assert.Equal(t, domain.ConnectionWiFi, state.ConnectionType)

	// Unchanged state does not notify.
	m.Check(context.Background())
	require.Len(t, seen, 1)

	healthy.Store(false)
	state = m.Check(context.Background())
	assert.True(t, state.IsConnected)
	assert.False(t, state.IsInternetReachable)
	require.Len(t, seen, 2)

	unsubscribe()
	healthy.Store(true)
	m.Check(context.Background())
	assert.Len(t, seen, 2)
	assert.True(t, m.CurrentState().Online())
}

func TestMonitorNoInterfaces(t *testing.T) {
	m := NewMonitor("http://127.0.0.1:1", Options{}, adapter.NullLogger())
	m.interfaces = func() ([]net.Interface, error) { return nil, nil }

	state := m.Check(context.Background())
	assert.False(t, state.IsConnected)
	assert.Equal(t, domain.ConnectionNone, state.ConnectionType)
}

func TestClassifyInterface(t *testing.T) {
	assert.Equal(t, domain.ConnectionWiFi, classifyInterface("wlp2s0"))
	assert.Equal(t, domain.ConnectionEthernet, classifyInterface("eth0"))
	assert.Equal(t, domain.ConnectionEthernet, classifyInterface("enp3s0"))
	assert.Equal(t, domain.ConnectionCellular, classifyInterface("rmnet_data0"))
	assert.Equal(t, domain.ConnectionUnknown, classifyInterface("tun0"))
}

func TestStatic(t *testing.T) {
	s := NewStatic(Offline())
	var calls int
	unsubscribe := s.Subscribe(func(domain.NetworkState) { calls++ })

	s.Set(Offline())
	assert.Equal(t, 0, calls)

	s.Set(Online())
	assert.Equal(t, 1, calls)
	assert.True(t, s.CurrentState().Online())

	unsubscribe()
	unsubscribe()
	s.Set(Offline())
	assert.Equal(t, 1, calls)
}

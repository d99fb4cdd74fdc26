// Package netstatus reports whether the API is reachable.
package netstatus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/brewsync/internal/domain"
)

const (
	defaultProbePath     = "/health"
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Options configures a Monitor.
type Options struct {
	ProbePath     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Monitor probes the API health endpoint on an interval and classifies the
// active link from interface names.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	// interfaces is swapped in tests.
	interfaces func() ([]net.Interface, error)

	mu    sync.RWMutex
	state domain.NetworkState
	subs  subscribers
}

// NewMonitor creates a monitor for serverURL. The state is unknown (offline)
// until the first Check.
func NewMonitor(serverURL string, opts Options, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProbePath == "" {
		opts.ProbePath = defaultProbePath
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	return &Monitor{
		probeURL:   strings.TrimRight(serverURL, "/") + "/" + strings.TrimLeft(opts.ProbePath, "/"),
		interval:   opts.ProbeInterval,
		client:     &http.Client{Timeout: opts.ProbeTimeout},
		logger:     logger,
		interfaces: net.Interfaces,
		state:      Offline(),
	}
}

func (m *Monitor) CurrentState() domain.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) Subscribe(fn func(domain.NetworkState)) func() {
	return m.subs.add(fn)
}

// Check probes once, stores the result and notifies subscribers on change.
func (m *Monitor) Check(ctx context.Context) domain.NetworkState {
	state := domain.NetworkState{ConnectionType: m.connectionType()}
	state.IsConnected = state.ConnectionType != domain.ConnectionNone

	if state.IsConnected {
		if err := m.probe(ctx); err != nil {
			m.logger.Debug("api probe failed", "url", m.probeURL, "error", err)
		} else {
			state.IsInternetReachable = true
		}
	}

	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()

	if changed {
		m.logger.Info("network state changed",
			"connected", state.IsConnected,
			"reachable", state.IsInternetReachable,
			"type", state.ConnectionType,
		)
		m.subs.publish(state)
	}
	return state
}

// Start checks immediately and then on every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// connectionType guesses the link from the first up, non-loopback interface.
func (m *Monitor) connectionType() domain.ConnectionType {
	ifaces, err := m.interfaces()
	if err != nil {
		m.logger.Debug("failed to list interfaces", "error", err)
		return domain.ConnectionUnknown
	}

	found := false
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		found = true
		if t := classifyInterface(iface.Name); t != domain.ConnectionUnknown {
			return t
		}
	}
	if !found {
		return domain.ConnectionNone
	}
	return domain.ConnectionUnknown
}

func classifyInterface(name string) domain.ConnectionType {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"), strings.HasPrefix(name, "ath"):
		return domain.ConnectionWiFi
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ppp"), strings.HasPrefix(name, "pdp_ip"):
		return domain.ConnectionCellular
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return domain.ConnectionEthernet
	}
	return domain.ConnectionUnknown
}

package domain

// ConnectionType is the kind of link the device is using.
type ConnectionType string

const (
	ConnectionNone     ConnectionType = "none"
	ConnectionWiFi     ConnectionType = "wifi"
	ConnectionCellular ConnectionType = "cellular"
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionUnknown  ConnectionType = "unknown"
)

// NetworkState is a connectivity snapshot.
type NetworkState struct {
	IsConnected         bool
	ConnectionType      ConnectionType
	IsInternetReachable bool
}

// Online reports whether requests to the API are worth attempting.
func (s NetworkState) Online() bool {
	return s.IsConnected && s.IsInternetReachable
}

// NetworkMonitor reports connectivity and notifies on changes.
type NetworkMonitor interface {
	CurrentState() NetworkState
	// Subscribe registers fn for state changes; the returned func unsubscribes.
	Subscribe(fn func(NetworkState)) (unsubscribe func())
}

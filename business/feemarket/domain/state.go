package domain

// ConnectionState represents the state of the node connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// Gauge maps the state to a metric value.
func (s ConnectionState) Gauge() int64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	default:
		return 0
	}
}

// MonitorState is a state of the sampling loop.
type MonitorState string

const (
	MonitorIdle       MonitorState = "idle"
	MonitorConnecting MonitorState = "connecting"
	MonitorFetching   MonitorState = "fetching"
	MonitorSleeping   MonitorState = "sleeping"
	MonitorStopped    MonitorState = "stopped"
)

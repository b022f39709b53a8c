package sync

// ConnectionStatus is the realtime channel state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Role is this client's control role within the account session.
type Role string

const (
	RoleNone   Role = "none_controlling"
	RoleSelf   Role = "self_controlling"
	RoleRemote Role = "remote_controlling"
)

// Status is the read-mostly view exposed to surrounding surfaces.
type Status struct {
	Mode             string           `json:"mode"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	Role             Role             `json:"role"`
	ControllerName   string           `json:"controllerName,omitempty"`
	CanControl       bool             `json:"canControl"`
	SessionVersion   int64            `json:"sessionVersion"`
}

// IsController reports whether this client currently controls playback.
func (s Status) IsController() bool {
	return s.Role == RoleSelf
}

package channel

// Role is the duplex role an endpoint takes when opening a named-pipe pair.
type Role int

const (
	// RoleNone is used for channels that need no open-order negotiation,
	// such as serial devices and in-memory transports.
	RoleNone Role = iota
	// RoleResponder opens the receive pipe first.
	RoleResponder
	// RoleInitiator opens the transmit pipe first.
	RoleInitiator
)

// RoleForAddress derives the pipe role from an endpoint address.
// Even addresses respond, odd addresses initiate.
func RoleForAddress(address int) Role {
	if address%2 == 0 {
		return RoleResponder
	}

	return RoleInitiator
}

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleResponder:
		return "responder"
	case RoleInitiator:
		return "initiator"
	default:
		return "unknown"
	}
}

package ipc

// Protocol is an opaque extension point for the application protocol riding
// on top of framed messages. The connection manager never interprets it; it
// only carries the value so higher layers can query capabilities and
// negotiate versions.
type Protocol interface {
	// Version returns the protocol version marker, empty when unversioned
	Version() string
	// Supports reports whether the protocol offers the named capability
	Supports(capability string) bool
}

// BaseProtocol is a minimal Protocol carrying only a version marker. It
// supports no capabilities and exists to be embedded by real protocols.
type BaseProtocol struct {
	Ver string
}

// Version returns the protocol version marker
func (p BaseProtocol) Version() string {
	return p.Ver
}

// Supports always reports false
func (p BaseProtocol) Supports(string) bool {
	return false
}

package model

// PortRef identifies a device-port pair without carrying peer metadata.
type PortRef struct {
	DeviceName string
	PortName   string
}

// DevicePort is one port on a device. Its identity is (DeviceName,
// PortName) only; Peer is metadata describing what it is wired to, and is
// never part of a DevicePort's identity or hash.
type DevicePort struct {
	DeviceName string
	PortName   string
	Peer       *PortRef
}

// Ref returns this port's identity.
func (p *DevicePort) Ref() PortRef {
	return PortRef{DeviceName: p.DeviceName, PortName: p.PortName}
}

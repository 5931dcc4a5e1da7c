package descriptor

import (
	"bytes"
	"encoding/json"
)

// EmptySet is the OVS database literal for an empty column.
const EmptySet = "[]"

// Port VLAN modes, as stored in the vlan_mode column.
const (
	ModeAccess         = "access"
	ModeTrunk          = "trunk"
	ModeNativeTagged   = "native-tagged"
	ModeNativeUntagged = "native-untagged"
	ModeDot1QTunnel    = "dot1q-tunnel"
)

// ValidVLANMode reports whether mode is a vlan_mode OVS accepts.
func ValidVLANMode(mode string) bool {
	switch mode {
	case ModeAccess, ModeTrunk, ModeNativeTagged, ModeNativeUntagged, ModeDot1QTunnel:
		return true
	}
	return false
}

// Switch is the captured state of one OVS bridge.
type Switch struct {
	Ports     []Port `json:"ports"`
	STPEnable string `json:"stp_enable"`

	// Legacy is set when the document was a bare array of ports.
	Legacy bool `json:"-"`
}

// NewSwitch returns an empty descriptor with spanning tree disabled.
func NewSwitch() *Switch {
	return &Switch{Ports: make([]Port, 0), STPEnable: "false"}
}

// Port is one bridge port. Tag and Trunks hold EmptySet when unset.
type Port struct {
	Bonding  *PortBonding `json:"bonding,omitempty"`
	Name     string       `json:"name"`
	Tag      string       `json:"tag"`
	Trunks   string       `json:"trunks"`
	VLANMode string       `json:"vlan_mode"`
}

// PortBonding lists the member interfaces of a bonded port.
type PortBonding struct {
	Members []string `json:"members"`
}

// IsBonded reports whether the port aggregates member interfaces.
func (p Port) IsBonded() bool {
	return p.Bonding != nil
}

// UnmarshalJSON accepts the current object form and the legacy bare array.
func (s *Switch) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ports []Port
		if err := json.Unmarshal(data, &ports); err != nil {
			return err
		}
		*s = Switch{Ports: ports, STPEnable: "false", Legacy: true}
		s.applyDefaults()
		return nil
	}

	type plain Switch
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Switch(p)
	s.applyDefaults()
	return nil
}

func (s *Switch) applyDefaults() {
	if s.Ports == nil {
		s.Ports = make([]Port, 0)
	}
	if s.STPEnable == "" {
		s.STPEnable = "false"
	}
	for i := range s.Ports {
		p := &s.Ports[i]
		if p.Tag == "" {
			p.Tag = EmptySet
		}
		if p.Trunks == "" {
			p.Trunks = EmptySet
		}
		if p.VLANMode == "" {
			p.VLANMode = ModeAccess
		}
	}
}

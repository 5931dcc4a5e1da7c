package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
)

// AddressKind classifies how an address was assigned.
type AddressKind string

const (
	KindPermanent AddressKind = "PERMANENT"
	KindDynamic   AddressKind = "DYNAMIC"
	KindSLAAC     AddressKind = "SLAAC"
)

// Valid reports whether k is one of the known kinds.
func (k AddressKind) Valid() bool {
	switch k {
	case KindPermanent, KindDynamic, KindSLAAC:
		return true
	}
	return false
}

// Host is the captured state of a node's kernel networking.
type Host struct {
	Bondings   map[string]*Bond     `json:"bondings"`
	Interfaces map[string][]Address `json:"interfaces"`
	Routes     []Route              `json:"routes"`
	VLANs      map[string]*VLAN     `json:"vlans"`
}

// NewHost returns an empty descriptor with every section allocated.
func NewHost() *Host {
	return &Host{
		Bondings:   make(map[string]*Bond),
		Interfaces: make(map[string][]Address),
		Routes:     make([]Route, 0),
		VLANs:      make(map[string]*VLAN),
	}
}

// Bond is an aggregated link.
type Bond struct {
	Addresses []Address `json:"addresses"`
	Mode      int       `json:"mode"`
	Slaves    []string  `json:"slaves"`
}

// VLAN is an 802.1Q sub-interface on top of Link.
type VLAN struct {
	Addresses []Address `json:"addresses"`
	Link      LinkRef   `json:"link"`
	VLANID    int       `json:"vlan_id"`
}

// Route is a gateway route. An empty Gateway means the route was captured
// without one and is never applied.
type Route struct {
	Dst     string `json:"dst"`
	Family  int    `json:"family"`
	Gateway string `json:"gateway"`
}

// DefaultDst is the destination recorded for zero-length prefixes.
const DefaultDst = "default"

// IsDefault reports whether the route targets the default destination.
func (r Route) IsDefault() bool {
	return r.Dst == DefaultDst
}

// Address is one address assigned to an interface.
type Address struct {
	Address string      `json:"address"`
	Kind    AddressKind `json:"kind"`
	Version int         `json:"version"`

	// Legacy is set when the address was decoded from the bare string form
	// or from a record without a kind.
	Legacy bool `json:"-"`
}

// Prefix parses the address.
func (a Address) Prefix() (netip.Prefix, error) {
	return netip.ParsePrefix(a.Address)
}

// UnmarshalJSON accepts both the record form and the legacy "addr/len" string.
func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Address{Address: s, Kind: KindPermanent, Version: versionOf(s), Legacy: true}
		return nil
	}

	type record Address
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*a = Address(r)
	if a.Kind == "" {
		a.Kind = KindPermanent
		a.Legacy = true
	}
	if a.Version == 0 {
		a.Version = versionOf(a.Address)
	}
	return nil
}

func versionOf(addr string) int {
	p, err := netip.ParsePrefix(addr)
	if err != nil {
		return 0
	}
	if p.Addr().Is4() {
		return 4
	}
	return 6
}

// LinkRef names the underlying link of a VLAN, either by interface name or,
// when the name could not be resolved, by kernel interface index.
type LinkRef struct {
	Name  string
	Index int
}

// LinkByName returns a reference to a named link.
func LinkByName(name string) LinkRef {
	return LinkRef{Name: name}
}

// LinkByIndex returns a reference to a link index.
func LinkByIndex(index int) LinkRef {
	return LinkRef{Index: index}
}

// IsZero reports whether the reference is empty.
func (l LinkRef) IsZero() bool {
	return l.Name == "" && l.Index == 0
}

func (l LinkRef) String() string {
	if l.Name != "" {
		return l.Name
	}
	return strconv.Itoa(l.Index)
}

// MarshalJSON encodes a name as a string and an index as a number.
func (l LinkRef) MarshalJSON() ([]byte, error) {
	if l.Name != "" {
		return json.Marshal(l.Name)
	}
	return json.Marshal(l.Index)
}

// UnmarshalJSON accepts a string or a number.
func (l *LinkRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LinkRef{Name: s}
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("vlan link must be a name or an index: %w", err)
	}
	*l = LinkRef{Index: i}
	return nil
}

// UnmarshalJSON fills in sections missing from older files.
func (h *Host) UnmarshalJSON(data []byte) error {
	type plain Host
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*h = Host(p)
	h.normalize()
	return nil
}

func (h *Host) normalize() {
	if h.Bondings == nil {
		h.Bondings = make(map[string]*Bond)
	}
	if h.Interfaces == nil {
		h.Interfaces = make(map[string][]Address)
	}
	if h.Routes == nil {
		h.Routes = make([]Route, 0)
	}
	if h.VLANs == nil {
		h.VLANs = make(map[string]*VLAN)
	}
	for name, addrs := range h.Interfaces {
		if addrs == nil {
			h.Interfaces[name] = make([]Address, 0)
		}
	}
	for _, b := range h.Bondings {
		if b == nil {
			continue
		}
		if b.Addresses == nil {
			b.Addresses = make([]Address, 0)
		}
		if b.Slaves == nil {
			b.Slaves = make([]string, 0)
		}
	}
	for _, v := range h.VLANs {
		if v != nil && v.Addresses == nil {
			v.Addresses = make([]Address, 0)
		}
	}
}

// LegacyAddresses counts addresses decoded from the legacy forms.
func (h *Host) LegacyAddresses() int {
	n := 0
	count := func(addrs []Address) {
		for _, a := range addrs {
			if a.Legacy {
				n++
			}
		}
	}
	for _, addrs := range h.Interfaces {
		count(addrs)
	}
	for _, b := range h.Bondings {
		if b != nil {
			count(b.Addresses)
		}
	}
	for _, v := range h.VLANs {
		if v != nil {
			count(v.Addresses)
		}
	}
	return n
}

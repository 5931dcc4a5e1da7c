package descriptor

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// Bond modes accepted by the Linux bonding driver (balance-rr .. balance-alb).
const (
	minBondMode = 0
	maxBondMode = 6
)

// Problem is a defect in one descriptor entry. Owner names the bond, VLAN,
// interface or bridge holding a slave or an address.
type Problem struct {
	Kind   string
	Name   string
	Owner  string
	Reason string
}

func (p Problem) Error() string {
	subject := p.Kind
	if p.Name != "" {
		subject += " " + p.Name
	}
	if p.Owner != "" {
		subject = p.Owner + ": " + subject
	}
	return subject + ": " + p.Reason
}

// ValidationError collects every problem found in a descriptor.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid descriptor: %s", strings.Join(e.Problems, "; "))
}

type problems []Problem

func (p *problems) add(kind, name, owner, format string, args ...any) {
	*p = append(*p, Problem{Kind: kind, Name: name, Owner: owner, Reason: fmt.Sprintf(format, args...)})
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	msgs := make([]string, len(p))
	for i, pr := range p {
		msgs[i] = pr.Error()
	}
	return &ValidationError{Problems: msgs}
}

// Validate reports every problem of h as one error.
func (h *Host) Validate() error {
	_, p := h.Sanitize()
	return problems(p).err()
}

// Sanitize returns a copy of h holding only the entries that can be applied,
// along with the problems of the ones left out. A bad address or slave drops
// only itself; any other problem drops its whole bond, VLAN or route.
func (h *Host) Sanitize() (*Host, []Problem) {
	var p problems
	out := NewHost()

	for _, name := range sortedKeys(h.Interfaces) {
		out.Interfaces[name] = p.addresses("interface "+name, h.Interfaces[name])
	}

	owner := make(map[string]string)
	for _, name := range sortedKeys(h.Bondings) {
		b := h.Bondings[name]
		if b == nil {
			p.add("bond", name, "", "empty definition")
			continue
		}
		if b.Mode < minBondMode || b.Mode > maxBondMode {
			p.add("bond", name, "", "mode %d out of range %d-%d", b.Mode, minBondMode, maxBondMode)
			continue
		}

		where := "bond " + name
		clean := &Bond{
			Addresses: p.addresses(where, b.Addresses),
			Mode:      b.Mode,
			Slaves:    make([]string, 0, len(b.Slaves)),
		}
		for _, slave := range b.Slaves {
			prev, taken := owner[slave]
			switch {
			case slave == "":
				p.add("slave", "", where, "empty name")
			case taken && prev == name:
				p.add("slave", slave, where, "listed twice")
			case taken:
				p.add("slave", slave, where, "already belongs to bond %s", prev)
			default:
				owner[slave] = name
				clean.Slaves = append(clean.Slaves, slave)
			}
		}
		out.Bondings[name] = clean
	}

	for _, name := range sortedKeys(h.VLANs) {
		v := h.VLANs[name]
		if v == nil {
			p.add("vlan", name, "", "empty definition")
			continue
		}
		before := len(p)
		if v.VLANID < 1 || v.VLANID > 4094 {
			p.add("vlan", name, "", "id %d out of range 1-4094", v.VLANID)
		}
		if v.Link.IsZero() {
			p.add("vlan", name, "", "missing link")
		}
		if len(p) > before {
			continue
		}
		out.VLANs[name] = &VLAN{
			Addresses: p.addresses("vlan "+name, v.Addresses),
			Link:      v.Link,
			VLANID:    v.VLANID,
		}
	}

	for i, r := range h.Routes {
		before := len(p)
		id := strconv.Itoa(i)
		if !r.IsDefault() {
			if _, err := netip.ParsePrefix(r.Dst); err != nil {
				p.add("route", id, "", "invalid destination %q", r.Dst)
			}
		}
		if r.Gateway != "" {
			if _, err := netip.ParseAddr(r.Gateway); err != nil {
				p.add("route", id, "", "invalid gateway %q", r.Gateway)
			}
		}
		if len(p) == before {
			out.Routes = append(out.Routes, r)
		}
	}

	return out, p
}

// addresses returns the usable addresses of one link.
func (p *problems) addresses(where string, addrs []Address) []Address {
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		prefix, err := a.Prefix()
		if err != nil {
			p.add("address", a.Address, where, "invalid")
			continue
		}
		if !a.Kind.Valid() {
			p.add("address", a.Address, where, "unknown kind %q", a.Kind)
			continue
		}
		want := 6
		if prefix.Addr().Is4() {
			want = 4
		}
		if a.Version != 0 && a.Version != want {
			p.add("address", a.Address, where, "declared as IPv%d", a.Version)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Validate reports every problem of s as one error.
func (s *Switch) Validate() error {
	_, p := s.Sanitize()
	return problems(p).err()
}

// Sanitize returns a copy of s holding only the ports that can be applied,
// along with the problems of the ones left out. An invalid stp_enable is
// cleared, which leaves spanning tree untouched.
func (s *Switch) Sanitize() (*Switch, []Problem) {
	var p problems
	out := &Switch{Ports: make([]Port, 0, len(s.Ports)), STPEnable: s.STPEnable, Legacy: s.Legacy}

	if s.STPEnable != "true" && s.STPEnable != "false" {
		p.add("bridge", "stp_enable", "", "must be \"true\" or \"false\", got %q", s.STPEnable)
		out.STPEnable = ""
	}

	seen := make(map[string]bool)
	member := make(map[string]string)
	for _, port := range s.Ports {
		if port.Name == "" {
			p.add("port", "", "", "empty name")
			continue
		}
		before := len(p)
		if seen[port.Name] {
			p.add("port", port.Name, "", "duplicate name")
		}
		if port.Tag != EmptySet {
			if _, err := parseVLANID(port.Tag); err != nil {
				p.add("port", port.Name, "", "invalid tag %q", port.Tag)
			}
		}
		if port.Trunks != EmptySet {
			if _, err := ParseTrunks(port.Trunks); err != nil {
				p.add("port", port.Name, "", "invalid trunks %q: %v", port.Trunks, err)
			}
		}
		if !ValidVLANMode(port.VLANMode) {
			p.add("port", port.Name, "", "unknown vlan_mode %q", port.VLANMode)
		}
		if port.Bonding != nil {
			if len(port.Bonding.Members) == 0 {
				p.add("port", port.Name, "", "bond without members")
			}
			for _, m := range port.Bonding.Members {
				if prev, ok := member[m]; ok {
					p.add("port", port.Name, "", "member %s already bonded in %s", m, prev)
				}
			}
		}
		if len(p) > before {
			continue
		}

		seen[port.Name] = true
		if port.Bonding != nil {
			for _, m := range port.Bonding.Members {
				member[m] = port.Name
			}
		}
		out.Ports = append(out.Ports, port)
	}

	return out, p
}

// ParseTrunks parses a comma separated VLAN list such as "10,20".
func ParseTrunks(s string) ([]int, error) {
	var ids []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := parseVLANID(field)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("empty trunk list")
	}
	return ids, nil
}

func parseVLANID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if id < 0 || id > 4095 {
		return 0, fmt.Errorf("vlan %d out of range 0-4095", id)
	}
	return id, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedBondNames returns bond names in apply order.
func (h *Host) SortedBondNames() []string {
	return sortedKeys(h.Bondings)
}

// SortedVLANNames returns VLAN names in apply order.
func (h *Host) SortedVLANNames() []string {
	return sortedKeys(h.VLANs)
}

// SortedInterfaceNames returns plain interface names in apply order.
func (h *Host) SortedInterfaceNames() []string {
	return sortedKeys(h.Interfaces)
}

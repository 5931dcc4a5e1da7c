package network

import (
	"fmt"
	"sync"

	"github.com/vishvananda/netlink"
)

// DryRunNetlinker records netlink operations as ip(8) commands instead of
// performing them. Lookups and dumps are answered by base when one is given;
// links the recorder was asked to create are remembered so later lookups in
// the same run find them.
type DryRunNetlinker struct {
	mu      sync.Mutex
	Ops     []string
	base    Netlinker
	created map[string]netlink.Link
	next    int
}

// NewDryRunNetlinker creates a recorder. base may be nil, in which case
// only links created during the run exist.
func NewDryRunNetlinker(base Netlinker) *DryRunNetlinker {
	return &DryRunNetlinker{base: base, created: make(map[string]netlink.Link), next: 1000}
}

func (n *DryRunNetlinker) log(op string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Ops = append(n.Ops, fmt.Sprintf("ip %s", op))
}

// Recorded returns a copy of the operations seen so far.
func (n *DryRunNetlinker) Recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Ops))
	copy(out, n.Ops)
	return out
}

func (n *DryRunNetlinker) LinkByName(name string) (netlink.Link, error) {
	n.mu.Lock()
	link, ok := n.created[name]
	n.mu.Unlock()
	if ok {
		return link, nil
	}
	if n.base != nil {
		return n.base.LinkByName(name)
	}
	return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, name)
}

func (n *DryRunNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	n.mu.Lock()
	for _, link := range n.created {
		if link.Attrs().Index == index {
			n.mu.Unlock()
			return link, nil
		}
	}
	n.mu.Unlock()
	if n.base != nil {
		return n.base.LinkByIndex(index)
	}
	return nil, fmt.Errorf("%w: index %d", ErrLinkNotFound, index)
}

func (n *DryRunNetlinker) LinkList() ([]netlink.Link, error) {
	if n.base != nil {
		return n.base.LinkList()
	}
	return nil, nil
}

func (n *DryRunNetlinker) LinkSetUp(link netlink.Link) error {
	n.log(fmt.Sprintf("link set %s up", link.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) LinkSetDown(link netlink.Link) error {
	n.log(fmt.Sprintf("link set %s down", link.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	n.log(fmt.Sprintf("link set %s master %s", slave.Attrs().Name, master.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) LinkAdd(link netlink.Link) error {
	switch l := link.(type) {
	case *netlink.Bond:
		n.log(fmt.Sprintf("link add %s type bond mode %d", l.Name, int(l.Mode)))
	case *netlink.Vlan:
		n.log(fmt.Sprintf("link add link %d name %s type vlan id %d", l.ParentIndex, l.Name, l.VlanId))
	default:
		n.log(fmt.Sprintf("link add %s type %s", link.Attrs().Name, link.Type()))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	link.Attrs().Index = n.next
	n.created[link.Attrs().Name] = link
	return nil
}

func (n *DryRunNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	if n.base != nil {
		return n.base.AddrList(link, family)
	}
	return nil, nil
}

func (n *DryRunNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	n.log(fmt.Sprintf("addr add %s dev %s", addr.IPNet.String(), link.Attrs().Name))
	return nil
}

func (n *DryRunNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	if n.base != nil {
		return n.base.RouteList(link, family)
	}
	return nil, nil
}

func (n *DryRunNetlinker) RouteAdd(route *netlink.Route) error {
	dst := "default"
	if route.Dst != nil {
		dst = route.Dst.String()
	}
	n.log(fmt.Sprintf("route add %s via %s", dst, route.Gw))
	return nil
}

package network

import (
	"fmt"
	"net"
	"sort"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// ifaPermanent mirrors IFA_F_PERMANENT so the fake builds on every platform.
const ifaPermanent = 0x80

// fakeNetlinker is a small in-memory kernel. Mutating calls are recorded in
// order and can be made to fail.
type fakeNetlinker struct {
	links     []netlink.Link
	addrs     map[int][]netlink.Addr
	routes    []netlink.Route
	calls     []string
	failures  map[string]*fakeFailure
	nextIndex int
}

type fakeFailure struct {
	err   error
	times int // remaining failures, negative means always
}

func newFakeNetlinker(devices ...string) *fakeNetlinker {
	f := &fakeNetlinker{
		addrs:     make(map[int][]netlink.Addr),
		failures:  make(map[string]*fakeFailure),
		nextIndex: 1,
	}
	for _, name := range devices {
		f.addLink(&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name}})
	}
	return f
}

func (f *fakeNetlinker) addLink(link netlink.Link) netlink.Link {
	f.nextIndex++
	link.Attrs().Index = f.nextIndex
	f.links = append(f.links, link)
	return link
}

func (f *fakeNetlinker) addAddr(name, cidr string, flags, scope int) {
	link := f.find(name)
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		panic(err)
	}
	addr.Flags = flags
	addr.Scope = scope
	f.addrs[link.Attrs().Index] = append(f.addrs[link.Attrs().Index], *addr)
}

// failOn makes the call identified by key fail times times (negative for always).
func (f *fakeNetlinker) failOn(key string, err error, times int) {
	f.failures[key] = &fakeFailure{err: err, times: times}
}

func (f *fakeNetlinker) check(key string) error {
	fail, ok := f.failures[key]
	if !ok || fail.times == 0 {
		return nil
	}
	if fail.times > 0 {
		fail.times--
	}
	return fail.err
}

func (f *fakeNetlinker) record(key string) error {
	f.calls = append(f.calls, key)
	return f.check(key)
}

func (f *fakeNetlinker) count(key string) int {
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeNetlinker) find(name string) netlink.Link {
	for _, l := range f.links {
		if l.Attrs().Name == name {
			return l
		}
	}
	return nil
}

func (f *fakeNetlinker) LinkByName(name string) (netlink.Link, error) {
	if err := f.check("LinkByName " + name); err != nil {
		return nil, err
	}
	if l := f.find(name); l != nil {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, name)
}

func (f *fakeNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	for _, l := range f.links {
		if l.Attrs().Index == index {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: index %d", ErrLinkNotFound, index)
}

func (f *fakeNetlinker) LinkList() ([]netlink.Link, error) {
	if err := f.check("LinkList"); err != nil {
		return nil, err
	}
	return append([]netlink.Link(nil), f.links...), nil
}

func (f *fakeNetlinker) LinkSetUp(link netlink.Link) error {
	if err := f.record("LinkSetUp " + link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().Flags |= net.FlagUp
	return nil
}

func (f *fakeNetlinker) LinkSetDown(link netlink.Link) error {
	if err := f.record("LinkSetDown " + link.Attrs().Name); err != nil {
		return err
	}
	link.Attrs().Flags &^= net.FlagUp
	return nil
}

func (f *fakeNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	if err := f.record("LinkSetMaster " + slave.Attrs().Name + " " + master.Attrs().Name); err != nil {
		return err
	}
	slave.Attrs().MasterIndex = master.Attrs().Index
	return nil
}

func (f *fakeNetlinker) LinkAdd(link netlink.Link) error {
	if err := f.record("LinkAdd " + link.Attrs().Name); err != nil {
		return err
	}
	if f.find(link.Attrs().Name) != nil {
		return unix.EEXIST
	}
	if v, ok := link.(*netlink.Vlan); ok {
		if _, err := f.LinkByIndex(v.ParentIndex); err != nil {
			return unix.ENODEV
		}
	}
	f.addLink(link)
	return nil
}

func (f *fakeNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	if err := f.check("AddrList " + link.Attrs().Name); err != nil {
		return nil, err
	}
	return append([]netlink.Addr(nil), f.addrs[link.Attrs().Index]...), nil
}

func (f *fakeNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	if err := f.record("AddrAdd " + link.Attrs().Name + " " + addr.IPNet.String()); err != nil {
		return err
	}
	idx := link.Attrs().Index
	for _, a := range f.addrs[idx] {
		if a.IPNet.String() == addr.IPNet.String() {
			return unix.EEXIST
		}
	}
	stored := *addr
	stored.Flags = ifaPermanent
	f.addrs[idx] = append(f.addrs[idx], stored)
	return nil
}

func (f *fakeNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	if err := f.check("RouteList"); err != nil {
		return nil, err
	}
	return append([]netlink.Route(nil), f.routes...), nil
}

func routeKey(r *netlink.Route) string {
	dst := "default"
	if r.Dst != nil {
		dst = r.Dst.String()
	}
	return dst + " via " + r.Gw.String()
}

func (f *fakeNetlinker) RouteAdd(route *netlink.Route) error {
	key := routeKey(route)
	if err := f.record("RouteAdd " + key); err != nil {
		return err
	}
	for i := range f.routes {
		if routeKey(&f.routes[i]) == key {
			return unix.EEXIST
		}
	}
	f.routes = append(f.routes, *route)
	return nil
}

// snapshot renders the fake kernel state for equality checks.
func (f *fakeNetlinker) snapshot() []string {
	var out []string
	for _, l := range f.links {
		a := l.Attrs()
		out = append(out, fmt.Sprintf("link %s type=%s master=%d up=%t", a.Name, l.Type(), a.MasterIndex, a.Flags&net.FlagUp != 0))
		for _, addr := range f.addrs[a.Index] {
			out = append(out, fmt.Sprintf("addr %s %s", a.Name, addr.IPNet))
		}
	}
	for i := range f.routes {
		out = append(out, "route "+routeKey(&f.routes[i]))
	}
	sort.Strings(out)
	return out
}

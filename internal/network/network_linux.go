//go:build linux
// +build linux

package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// dumpAttempts bounds how often an interrupted netlink dump is repeated.
const dumpAttempts = 3

// RealNetlinker is a concrete implementation of Netlinker bound to one
// network namespace.
type RealNetlinker struct {
	h *netlink.Handle
}

// NewRealNetlinker opens a netlink handle. An empty nsName uses the current
// namespace; a name containing a slash is treated as a path such as
// /proc/1234/ns/net, anything else as a name under /var/run/netns.
func NewRealNetlinker(nsName string) (*RealNetlinker, error) {
	if nsName == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, fmt.Errorf("failed to open netlink handle: %w", err)
		}
		return &RealNetlinker{h: h}, nil
	}

	var ns netns.NsHandle
	var err error
	if strings.Contains(nsName, "/") {
		ns, err = netns.GetFromPath(nsName)
	} else {
		ns, err = netns.GetFromName(nsName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open network namespace %s: %w", nsName, err)
	}
	defer ns.Close()

	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink handle in %s: %w", nsName, err)
	}
	return &RealNetlinker{h: h}, nil
}

// Close releases the netlink sockets.
func (r *RealNetlinker) Close() {
	r.h.Close()
}

// LinkByName retrieves a link by name.
func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	return r.h.LinkByName(name)
}

// LinkByIndex retrieves a link by index.
func (r *RealNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return r.h.LinkByIndex(index)
}

// LinkList retrieves all links, repeating the dump if the kernel reports it
// was interrupted by a concurrent change.
func (r *RealNetlinker) LinkList() ([]netlink.Link, error) {
	var links []netlink.Link
	err := redump(func() (err error) {
		links, err = r.h.LinkList()
		return err
	})
	return links, err
}

// LinkSetUp sets the link up.
func (r *RealNetlinker) LinkSetUp(link netlink.Link) error {
	return r.h.LinkSetUp(link)
}

// LinkSetDown sets the link down.
func (r *RealNetlinker) LinkSetDown(link netlink.Link) error {
	return r.h.LinkSetDown(link)
}

// LinkSetMaster sets the master of a slave link.
func (r *RealNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	return r.h.LinkSetMaster(slave, master)
}

// LinkAdd adds a link.
func (r *RealNetlinker) LinkAdd(link netlink.Link) error {
	return r.h.LinkAdd(link)
}

// AddrList retrieves a list of addresses for a link.
func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	var addrs []netlink.Addr
	err := redump(func() (err error) {
		addrs, err = r.h.AddrList(link, family)
		return err
	})
	return addrs, err
}

// AddrAdd adds an address to a link.
func (r *RealNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return r.h.AddrAdd(link, addr)
}

// RouteList retrieves the routes of the main table.
func (r *RealNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	var routes []netlink.Route
	err := redump(func() (err error) {
		routes, err = r.h.RouteList(link, family)
		return err
	})
	return routes, err
}

// RouteAdd adds a route.
func (r *RealNetlinker) RouteAdd(route *netlink.Route) error {
	return r.h.RouteAdd(route)
}

func redump(dump func() error) error {
	var err error
	for i := 0; i < dumpAttempts; i++ {
		if err = dump(); !errors.Is(err, netlink.ErrDumpInterrupted) {
			return err
		}
	}
	return err
}

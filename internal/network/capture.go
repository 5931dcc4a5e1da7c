package network

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/metrics"
)

// CaptureError reports a failed read of live state. A capture either
// succeeds completely or returns one of these.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// CaptureOptions selects what is recorded.
type CaptureOptions struct {
	// Prefix limits plain interfaces to names starting with it.
	Prefix string
	// All records every plain interface regardless of Prefix.
	All bool
}

// Capturer reads live kernel state.
type Capturer struct {
	nl      Netlinker
	opts    CaptureOptions
	log     *logging.Logger
	metrics *metrics.Registry
}

// NewCapturer creates a capturer on top of nl.
func NewCapturer(nl Netlinker, opts CaptureOptions, m *metrics.Registry) *Capturer {
	return &Capturer{
		nl:      nl,
		opts:    opts,
		log:     logging.WithComponent("network"),
		metrics: m,
	}
}

// Capture builds a host descriptor from the running system.
func (c *Capturer) Capture() (*descriptor.Host, error) {
	links, err := c.nl.LinkList()
	if err != nil {
		return nil, &CaptureError{Op: "list links", Err: err}
	}

	byIndex := make(map[int]netlink.Link, len(links))
	for _, link := range links {
		byIndex[link.Attrs().Index] = link
	}

	h := descriptor.NewHost()
	bond := func(name string) *descriptor.Bond {
		b, ok := h.Bondings[name]
		if !ok {
			b = &descriptor.Bond{Addresses: []descriptor.Address{}, Slaves: []string{}}
			h.Bondings[name] = b
		}
		return b
	}

	for _, link := range links {
		attrs := link.Attrs()

		if master, ok := byIndex[attrs.MasterIndex]; ok && attrs.MasterIndex != 0 && master.Type() == "bond" {
			b := bond(master.Attrs().Name)
			b.Slaves = append(b.Slaves, attrs.Name)
		}

		// Bonds and VLANs live in their own sections only, whatever their name.
		switch l := link.(type) {
		case *netlink.Bond:
			addrs, err := c.addresses(link)
			if err != nil {
				return nil, err
			}
			b := bond(attrs.Name)
			b.Mode = int(l.Mode)
			b.Addresses = addrs
			continue

		case *netlink.Vlan:
			addrs, err := c.addresses(link)
			if err != nil {
				return nil, err
			}
			ref := descriptor.LinkByIndex(attrs.ParentIndex)
			if parent, ok := byIndex[attrs.ParentIndex]; ok {
				ref = descriptor.LinkByName(parent.Attrs().Name)
			}
			h.VLANs[attrs.Name] = &descriptor.VLAN{
				Addresses: addrs,
				Link:      ref,
				VLANID:    l.VlanId,
			}
			continue
		}

		if !c.opts.All && !strings.HasPrefix(attrs.Name, c.opts.Prefix) {
			continue
		}
		addrs, err := c.addresses(link)
		if err != nil {
			return nil, err
		}
		h.Interfaces[attrs.Name] = addrs
	}

	for _, b := range h.Bondings {
		sort.Strings(b.Slaves)
	}

	routes, err := c.routes()
	if err != nil {
		return nil, err
	}
	h.Routes = routes

	c.metrics.Captured(Tool, "interfaces", len(h.Interfaces))
	c.metrics.Captured(Tool, "bondings", len(h.Bondings))
	c.metrics.Captured(Tool, "vlans", len(h.VLANs))
	c.metrics.Captured(Tool, "routes", len(h.Routes))
	c.log.Info("captured host state", "interfaces", len(h.Interfaces), "bonds", len(h.Bondings),
		"vlans", len(h.VLANs), "routes", len(h.Routes))
	return h, nil
}

// addresses returns the global-scope addresses of link.
func (c *Capturer) addresses(link netlink.Link) ([]descriptor.Address, error) {
	list, err := c.nl.AddrList(link, unix.AF_UNSPEC)
	if err != nil {
		return nil, &CaptureError{Op: "list addresses of " + link.Attrs().Name, Err: err}
	}

	out := make([]descriptor.Address, 0, len(list))
	for _, a := range list {
		// RT_SCOPE_UNIVERSE only
		if a.Scope != 0 || a.IPNet == nil {
			continue
		}
		version := 6
		if a.IP.To4() != nil {
			version = 4
		}
		out = append(out, descriptor.Address{
			Address: a.IPNet.String(),
			Kind:    addressKind(a.Flags),
			Version: version,
		})
	}
	return out, nil
}

// routes returns the gateway routes of the main table. Routes through an
// fe80::/10 gateway are skipped.
func (c *Capturer) routes() ([]descriptor.Route, error) {
	list, err := c.nl.RouteList(nil, unix.AF_UNSPEC)
	if err != nil {
		return nil, &CaptureError{Op: "list routes", Err: err}
	}

	out := make([]descriptor.Route, 0, len(list))
	for _, r := range list {
		if r.Gw == nil || (r.Gw.To4() == nil && r.Gw.IsLinkLocalUnicast()) {
			continue
		}
		out = append(out, descriptor.Route{
			Dst:     routeDst(r.Dst),
			Family:  routeFamily(r),
			Gateway: r.Gw.String(),
		})
	}
	return out, nil
}

func routeDst(dst *net.IPNet) string {
	if dst == nil {
		return descriptor.DefaultDst
	}
	if ones, _ := dst.Mask.Size(); ones == 0 {
		return descriptor.DefaultDst
	}
	return dst.String()
}

func routeFamily(r netlink.Route) int {
	if r.Family != 0 {
		return r.Family
	}
	if r.Gw.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

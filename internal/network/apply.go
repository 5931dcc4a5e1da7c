package network

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/metrics"
	"grimm.is/netemstate/internal/retry"
)

// Tool is the name reported in logs and metrics.
const Tool = "network-config"

// Reconciler applies host descriptors through a Netlinker.
type Reconciler struct {
	nl      Netlinker
	policy  retry.Policy
	log     *logging.Logger
	metrics *metrics.Registry
}

// NewReconciler creates a reconciler with injected dependencies.
func NewReconciler(nl Netlinker, policy retry.Policy, m *metrics.Registry) *Reconciler {
	return &Reconciler{
		nl:      nl,
		policy:  policy,
		log:     logging.WithComponent("network"),
		metrics: m,
	}
}

// Apply drives the kernel towards h. Items that fail are logged and skipped;
// a pass that cannot continue is restarted from the first step until the
// retry policy gives up.
func (r *Reconciler) Apply(ctx context.Context, h *descriptor.Host) error {
	if n := h.LegacyAddresses(); n > 0 {
		r.log.Warn("descriptor uses legacy address entries, treating them as permanent", "count", n)
	}

	// Bad entries are item failures. They are reported once, not per pass.
	h, problems := h.Sanitize()
	for _, p := range problems {
		r.item(p.Kind, p.Name, func() error { return p })
	}

	err := r.policy.Run(ctx, Tool, func(attempt int) error {
		r.metrics.Attempt(Tool)
		r.log.Debug("starting pass", "attempt", attempt)
		return r.pass(h)
	})
	r.metrics.ApplyDone(Tool, err == nil)
	return err
}

func (r *Reconciler) pass(h *descriptor.Host) error {
	bonds := r.ensureBonds(h)
	r.attachSlaves(h, bonds)
	r.ensureVLANs(h)

	for _, name := range h.SortedBondNames() {
		if err := r.configureLink("bond", name, h.Bondings[name].Addresses); err != nil {
			return err
		}
	}
	for _, name := range h.SortedVLANNames() {
		v := h.VLANs[name]
		if len(v.Addresses) == 0 {
			continue
		}
		if err := r.configureLink("vlan", name, v.Addresses); err != nil {
			return err
		}
	}
	for _, name := range h.SortedInterfaceNames() {
		if err := r.configureLink("interface", name, h.Interfaces[name]); err != nil {
			return err
		}
	}

	r.addRoutes(h.Routes)
	return nil
}

// item runs one independent step. A failure is logged, counted and
// swallowed so the remaining items still run.
func (r *Reconciler) item(kind, name string, fn func() error) bool {
	if err := fn(); err != nil {
		r.log.Warn(fmt.Sprintf("failed to apply %s %s", kind, name), "error", err)
		r.metrics.ItemFailed(Tool, kind)
		return false
	}
	return true
}

// ensureBonds returns the bond links that exist after this step, keyed by name.
func (r *Reconciler) ensureBonds(h *descriptor.Host) map[string]netlink.Link {
	links := make(map[string]netlink.Link, len(h.Bondings))
	for _, name := range h.SortedBondNames() {
		b := h.Bondings[name]
		r.item("bond", name, func() error {
			link, err := r.ensureBond(name, b.Mode)
			if err != nil {
				return err
			}
			links[name] = link
			return nil
		})
	}
	return links
}

func (r *Reconciler) ensureBond(name string, mode int) (netlink.Link, error) {
	link, err := r.nl.LinkByName(name)
	if err == nil {
		if link.Type() != "bond" {
			return nil, fmt.Errorf("link %s exists with type %s", name, link.Type())
		}
		return link, nil
	}
	if !IsLinkNotFound(err) {
		return nil, fmt.Errorf("failed to look up bond %s: %w", name, err)
	}

	bond := netlink.NewLinkBond(netlink.LinkAttrs{Name: name})
	bond.Mode = netlink.BondMode(mode)
	if err := r.nl.LinkAdd(bond); err != nil {
		return nil, fmt.Errorf("failed to add bond %s: %w", name, err)
	}
	link, err = r.nl.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get newly created bond link %s: %w", name, err)
	}
	r.log.Info("created bond", "bond", name, "mode", mode)
	return link, nil
}

// attachSlaves enslaves the declared interfaces of every bond that exists.
// Each slave is independent of the others.
func (r *Reconciler) attachSlaves(h *descriptor.Host, bonds map[string]netlink.Link) {
	for _, name := range h.SortedBondNames() {
		master, ok := bonds[name]
		if !ok {
			continue
		}
		for _, slave := range h.Bondings[name].Slaves {
			r.item("slave", slave, func() error {
				return r.attachSlave(master, slave)
			})
		}
	}
}

func (r *Reconciler) attachSlave(master netlink.Link, slave string) error {
	link, err := r.nl.LinkByName(slave)
	if err != nil {
		return fmt.Errorf("bond member interface %s not found: %w", slave, err)
	}
	if idx := master.Attrs().Index; idx != 0 && link.Attrs().MasterIndex == idx {
		return nil
	}
	if err := r.nl.LinkSetDown(link); err != nil {
		return fmt.Errorf("failed to bring down member link %s: %w", slave, err)
	}
	if err := r.nl.LinkSetMaster(link, master); err != nil {
		return fmt.Errorf("failed to add %s to bond %s: %w", slave, master.Attrs().Name, err)
	}
	return nil
}

func (r *Reconciler) ensureVLANs(h *descriptor.Host) {
	for _, name := range h.SortedVLANNames() {
		v := h.VLANs[name]
		r.item("vlan", name, func() error {
			return r.ensureVLAN(name, v)
		})
	}
}

func (r *Reconciler) ensureVLAN(name string, v *descriptor.VLAN) error {
	if _, err := r.nl.LinkByName(name); err == nil {
		return nil
	}

	parent, err := r.resolveLink(v.Link)
	if err != nil {
		return fmt.Errorf("underlying link %s not found: %w", v.Link, err)
	}

	vlan := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        name,
			ParentIndex: parent.Attrs().Index,
		},
		VlanId: v.VLANID,
	}
	if err := r.nl.LinkAdd(vlan); err != nil && !isExist(err) {
		return fmt.Errorf("failed to add VLAN %s: %w", name, err)
	}
	r.log.Info("created vlan", "vlan", name, "link", parent.Attrs().Name, "id", v.VLANID)
	return nil
}

func (r *Reconciler) resolveLink(ref descriptor.LinkRef) (netlink.Link, error) {
	if ref.Name != "" {
		return r.nl.LinkByName(ref.Name)
	}
	return r.nl.LinkByIndex(ref.Index)
}

// configureLink brings a link up and adds its permanent addresses. A missing
// link is skipped; failing to bring an existing link up fails the pass.
func (r *Reconciler) configureLink(kind, name string, addrs []descriptor.Address) error {
	link, err := r.nl.LinkByName(name)
	if err != nil {
		if IsLinkNotFound(err) {
			r.log.Warn(fmt.Sprintf("%s %s not found, skipping", kind, name))
			r.metrics.ItemFailed(Tool, kind)
			return nil
		}
		return fmt.Errorf("failed to look up %s %s: %w", kind, name, err)
	}

	if err := r.nl.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up %s %s: %w", kind, name, err)
	}

	for _, a := range addrs {
		if a.Kind != descriptor.KindPermanent {
			continue
		}
		r.item("address", name+" "+a.Address, func() error {
			addr, err := netlink.ParseAddr(a.Address)
			if err != nil {
				return fmt.Errorf("invalid IP address %s: %w", a.Address, err)
			}
			if err := r.nl.AddrAdd(link, addr); err != nil && !isExist(err) {
				return fmt.Errorf("failed to add IP address %s to %s: %w", a.Address, name, err)
			}
			return nil
		})
	}
	return nil
}

// addRoutes installs every route that has a gateway.
func (r *Reconciler) addRoutes(routes []descriptor.Route) {
	for _, rt := range routes {
		if rt.Gateway == "" {
			r.log.Debug("skipping route without gateway", "dst", rt.Dst)
			continue
		}
		r.item("route", rt.Dst+" via "+rt.Gateway, func() error {
			route, err := netlinkRoute(rt)
			if err != nil {
				return err
			}
			if err := r.nl.RouteAdd(route); err != nil {
				if isExist(err) {
					r.log.Debug("route already exists", "dst", rt.Dst, "gateway", rt.Gateway)
					return nil
				}
				return fmt.Errorf("failed to add route: %w", err)
			}
			return nil
		})
	}
}

func netlinkRoute(rt descriptor.Route) (*netlink.Route, error) {
	gw := net.ParseIP(rt.Gateway)
	if gw == nil {
		return nil, fmt.Errorf("invalid gateway %q", rt.Gateway)
	}
	route := &netlink.Route{Gw: gw, Family: rt.Family}
	if !rt.IsDefault() {
		_, dst, err := net.ParseCIDR(rt.Dst)
		if err != nil {
			return nil, fmt.Errorf("invalid destination %q: %w", rt.Dst, err)
		}
		route.Dst = dst
	}
	return route, nil
}

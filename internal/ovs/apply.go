package ovs

import (
	"context"
	"fmt"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/metrics"
	"grimm.is/netemstate/internal/retry"
)

// Reconciler applies switch descriptors to a bridge.
type Reconciler struct {
	client  *Client
	policy  retry.Policy
	log     *logging.Logger
	metrics *metrics.Registry
}

// NewReconciler creates a reconciler with injected dependencies.
func NewReconciler(client *Client, policy retry.Policy, m *metrics.Registry) *Reconciler {
	return &Reconciler{
		client:  client,
		policy:  policy,
		log:     logging.WithComponent("ovs"),
		metrics: m,
	}
}

// Apply drives bridge towards sw. A missing bridge is reported at once as
// ErrBridgeNotFound; anything else that stops a pass restarts it.
func (r *Reconciler) Apply(ctx context.Context, bridge string, sw *descriptor.Switch) error {
	if err := r.client.RequireBridge(bridge); err != nil {
		return err
	}
	if sw.Legacy {
		r.log.Warn("descriptor is a bare port list, spanning tree will be disabled", "bridge", bridge)
	}

	sw, problems := sw.Sanitize()
	for _, p := range problems {
		r.item(p.Kind, p.Name, func() error { return p })
	}

	err := r.policy.Run(ctx, Tool, func(attempt int) error {
		r.metrics.Attempt(Tool)
		r.log.Debug("starting pass", "bridge", bridge, "attempt", attempt)
		return r.pass(bridge, sw)
	})
	r.metrics.ApplyDone(Tool, err == nil)
	return err
}

func (r *Reconciler) pass(bridge string, sw *descriptor.Switch) error {
	if err := r.resetPorts(bridge); err != nil {
		return err
	}

	if sw.STPEnable != "" {
		if err := r.client.Set("bridge", bridge, "stp_enable="+sw.STPEnable); err != nil {
			return fmt.Errorf("failed to set stp_enable on %s: %w", bridge, err)
		}
	}

	for _, p := range sw.Ports {
		if !p.IsBonded() {
			continue
		}
		r.item("bond", p.Name, func() error {
			return r.ensureBond(bridge, p)
		})
	}

	for _, p := range sw.Ports {
		if err := r.client.Set("port", p.Name,
			"tag="+p.Tag, "vlan_mode="+p.VLANMode, "trunks="+p.Trunks); err != nil {
			return fmt.Errorf("failed to configure port %s: %w", p.Name, err)
		}
	}
	return nil
}

// resetPorts puts every current port back into access mode so that a port
// absent from the descriptor does not keep a stale trunk configuration.
func (r *Reconciler) resetPorts(bridge string) error {
	ports, err := r.client.ListPorts(bridge)
	if err != nil {
		return fmt.Errorf("failed to list ports of %s: %w", bridge, err)
	}
	for _, p := range ports {
		if err := r.client.Set("port", p, "vlan_mode="+descriptor.ModeAccess); err != nil {
			r.log.Debug("failed to reset port", "port", p, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) ensureBond(bridge string, p descriptor.Port) error {
	for _, m := range p.Bonding.Members {
		if err := r.client.DelPort(bridge, m); err != nil {
			return fmt.Errorf("failed to remove member %s: %w", m, err)
		}
	}
	if err := r.client.AddBond(bridge, p.Name, p.Bonding.Members, "lacp=active"); err != nil {
		return fmt.Errorf("failed to add bond %s: %w", p.Name, err)
	}
	return nil
}

func (r *Reconciler) item(kind, name string, fn func() error) bool {
	if err := fn(); err != nil {
		r.log.Warn(fmt.Sprintf("failed to apply %s %s", kind, name), "error", err)
		r.metrics.ItemFailed(Tool, kind)
		return false
	}
	return true
}

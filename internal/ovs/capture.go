package ovs

import (
	"fmt"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/metrics"
)

// Tool is the name reported in logs and metrics.
const Tool = "ovs-config"

// CaptureError reports a failed read of switch state.
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

// Capturer reads the VLAN, bonding and spanning tree state of a bridge.
type Capturer struct {
	client  *Client
	log     *logging.Logger
	metrics *metrics.Registry
}

// NewCapturer creates a capturer using client.
func NewCapturer(client *Client, m *metrics.Registry) *Capturer {
	return &Capturer{
		client:  client,
		log:     logging.WithComponent("ovs"),
		metrics: m,
	}
}

// Capture builds a switch descriptor for bridge. The first failing command
// aborts the capture.
func (c *Capturer) Capture(bridge string) (*descriptor.Switch, error) {
	if err := c.client.RequireBridge(bridge); err != nil {
		return nil, err
	}

	sw := descriptor.NewSwitch()

	stp, err := c.client.Get("bridge", bridge, "stp_enable")
	if err != nil {
		return nil, &CaptureError{Op: "read stp_enable", Err: err}
	}
	sw.STPEnable = normalizeBool(stp)

	bonds, err := c.client.Bonds()
	if err != nil {
		return nil, &CaptureError{Op: "read bonds", Err: err}
	}

	ports, err := c.client.ListPorts(bridge)
	if err != nil {
		return nil, &CaptureError{Op: "list ports", Err: err}
	}

	for _, name := range ports {
		port, err := c.port(name)
		if err != nil {
			return nil, err
		}
		if members, ok := bonds[name]; ok {
			port.Bonding = &descriptor.PortBonding{Members: members}
		}
		sw.Ports = append(sw.Ports, port)
	}

	c.metrics.Captured(Tool, "ports", len(sw.Ports))
	c.metrics.Captured(Tool, "bonds", len(bonds))
	c.log.Info("captured switch state", "bridge", bridge, "ports", len(sw.Ports), "bonds", len(bonds))
	return sw, nil
}

func (c *Capturer) port(name string) (descriptor.Port, error) {
	p := descriptor.Port{Name: name}
	read := func(column string) (string, error) {
		v, err := c.client.Get("port", name, column)
		if err != nil {
			return "", &CaptureError{Op: fmt.Sprintf("read %s of port %s", column, name), Err: err}
		}
		return v, nil
	}

	tag, err := read("tag")
	if err != nil {
		return p, err
	}
	trunks, err := read("trunks")
	if err != nil {
		return p, err
	}
	mode, err := read("vlan_mode")
	if err != nil {
		return p, err
	}

	p.Tag = normalizeTag(tag)
	p.Trunks = normalizeTrunks(trunks)
	p.VLANMode = normalizeVLANMode(mode)
	return p, nil
}

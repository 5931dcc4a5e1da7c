// Package ovs captures and applies Open vSwitch bridge state through the
// ovs-vsctl and ovs-appctl command line tools.
//
// All process execution goes through [executor.CommandExecutor]; the text
// formats those tools print are handled in parse.go.
package ovs

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/netemstate/internal/executor"
)

// ErrBridgeNotFound is returned when ovs-vsctl reports that a bridge does not exist.
var ErrBridgeNotFound = errors.New("bridge not found")

// Options locates the OVS tools.
type Options struct {
	VSCtl   string
	AppCtl  string
	Timeout int // seconds; 0 disables --timeout
}

// DefaultOptions returns the tool names looked up on $PATH.
func DefaultOptions() Options {
	return Options{VSCtl: "ovs-vsctl", AppCtl: "ovs-appctl", Timeout: 30}
}

// Client issues single OVS database operations.
type Client struct {
	exec executor.CommandExecutor
	opts Options
}

// NewClient creates a client running commands through exec.
func NewClient(exec executor.CommandExecutor, opts Options) *Client {
	if opts.VSCtl == "" {
		opts.VSCtl = "ovs-vsctl"
	}
	if opts.AppCtl == "" {
		opts.AppCtl = "ovs-appctl"
	}
	return &Client{exec: exec, opts: opts}
}

func (c *Client) vsctl(args ...string) (string, error) {
	if c.opts.Timeout > 0 {
		args = append([]string{fmt.Sprintf("--timeout=%d", c.opts.Timeout)}, args...)
	}
	out, err := c.exec.RunCommand(c.opts.VSCtl, args...)
	if err != nil {
		return "", fmt.Errorf("failed to run '%s': %w", executor.CommandLine(c.opts.VSCtl, args...), err)
	}
	return strings.TrimSpace(out), nil
}

// BridgeExists asks ovs-vsctl br-exists. Exit status 2 means the bridge is
// absent; any other failure is returned as an error.
func (c *Client) BridgeExists(bridge string) (bool, error) {
	_, err := c.vsctl("br-exists", bridge)
	if err == nil {
		return true, nil
	}
	if code, ok := executor.ExitCode(err); ok && code == 2 {
		return false, nil
	}
	return false, err
}

// RequireBridge returns ErrBridgeNotFound when bridge does not exist.
func (c *Client) RequireBridge(bridge string) error {
	ok, err := c.BridgeExists(bridge)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBridgeNotFound, bridge)
	}
	return nil
}

// ListPorts returns the ports of bridge in the order ovs-vsctl prints them.
func (c *Client) ListPorts(bridge string) ([]string, error) {
	out, err := c.vsctl("list-ports", bridge)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Get reads one column of a record.
func (c *Client) Get(table, record, column string) (string, error) {
	return c.vsctl("get", table, record, column)
}

// Set writes column=value pairs on a record in one transaction.
func (c *Client) Set(table, record string, values ...string) error {
	args := append([]string{"set", table, record}, values...)
	_, err := c.vsctl(args...)
	return err
}

// Remove deletes values from a set column.
func (c *Client) Remove(table, record, column string, values ...string) error {
	args := append([]string{"remove", table, record, column}, values...)
	_, err := c.vsctl(args...)
	return err
}

// DelPort removes port from bridge. A missing port is not an error.
func (c *Client) DelPort(bridge, port string) error {
	_, err := c.vsctl("--if-exists", "del-port", bridge, port)
	return err
}

// AddBond creates a bonded port. An existing bond with that name is kept.
func (c *Client) AddBond(bridge, name string, members []string, options ...string) error {
	args := append([]string{"--may-exist", "add-bond", bridge, name}, members...)
	args = append(args, options...)
	_, err := c.vsctl(args...)
	return err
}

// Bonds returns the bond groups known to the switch daemon, keyed by port
// name. A daemon without bonds yields an empty map.
func (c *Client) Bonds() (map[string][]string, error) {
	out, err := c.exec.RunCommand(c.opts.AppCtl, "bond/show")
	if err != nil {
		if isNoBond(out) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("failed to run '%s': %w", executor.CommandLine(c.opts.AppCtl, "bond/show"), err)
	}
	return parseBondShow(out), nil
}

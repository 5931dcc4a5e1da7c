// Package console implements an interactive line-mode console for the VLAN
// configuration of one Open vSwitch bridge.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"grimm.is/netemstate/internal/brand"
	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/ovs"
)

const intro = "Welcome to switch console. Type help or ? to list commands."

// ErrExit is returned by Execute when the user asked to leave.
var ErrExit = errors.New("exit")

var (
	accessArgs = regexp.MustCompile(`^(\d+) (\d+)$`)
	trunkArgs  = regexp.MustCompile(`^(\d+) ([\d,]+)$`)
)

type command struct {
	name string
	help string
	run  func(args string)
}

// Console runs VLAN commands against a bridge. Ports are addressed by the
// number after the bridge name, so port 3 of sw1 is sw1.3.
type Console struct {
	client   *ovs.Client
	bridge   string
	out      io.Writer
	errOut   io.Writer
	log      *logging.Logger
	commands map[string]*command
}

// New returns a console for bridge. It fails when the bridge does not exist.
func New(client *ovs.Client, bridge string, out, errOut io.Writer) (*Console, error) {
	ok, err := client.BridgeExists(bridge)
	if err != nil {
		return nil, fmt.Errorf("unable to check switch '%s': %w", bridge, err)
	}
	if !ok {
		return nil, fmt.Errorf("Ovs switch '%s' not found", bridge)
	}

	c := &Console{
		client: client,
		bridge: bridge,
		out:    out,
		errOut: errOut,
		log:    logging.WithComponent("console"),
	}
	c.commands = map[string]*command{
		"vlan_show":      {name: "vlan_show", help: "Show actual configuration", run: c.vlanShow},
		"vlan_access":    {name: "vlan_access", help: "Add a port to a VLAN in access mode", run: c.vlanAccess},
		"no_vlan_access": {name: "no_vlan_access", help: "Remove a port from a VLAN in access mode", run: c.noVLANAccess},
		"vlan_trunks":    {name: "vlan_trunks", help: "Add a port to vlans in trunk mode", run: c.vlanTrunks},
		"no_vlan_trunks": {name: "no_vlan_trunks", help: "Remove a port from vlans in trunk mode", run: c.noVLANTrunks},
	}
	return c, nil
}

// Prompt returns the prompt shown before each line.
func (c *Console) Prompt() string {
	return fmt.Sprintf("[%s]>", c.bridge)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) errorf(format string, args ...any) {
	fmt.Fprintf(c.errOut, format+"\n", args...)
}

// Execute runs one input line. It returns ErrExit for exit and quit; every
// other outcome, failures included, is reported on the console itself.
func (c *Console) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	name, args, _ := strings.Cut(line, " ")
	args = strings.Join(strings.Fields(args), " ")

	switch name {
	case "exit", "quit":
		return ErrExit
	case "help", "?":
		c.help(args)
		return nil
	}

	cmd, ok := c.commands[name]
	if !ok {
		c.errorf("*** Unknown syntax: %s", line)
		return nil
	}
	c.log.Debug("running command", "command", name, "args", args)
	cmd.run(args)
	return nil
}

func (c *Console) sortedCommands() []string {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Console) help(topic string) {
	if topic != "" {
		if cmd, ok := c.commands[topic]; ok {
			c.printf("%s", cmd.help)
			return
		}
		c.errorf("*** No help on %s", topic)
		return
	}
	c.printf("Documented commands (use 'help <command>'):")
	for _, n := range c.sortedCommands() {
		c.printf("  %-16s %s", n, c.commands[n].help)
	}
	c.printf("  %-16s %s", "help", "List available commands")
	c.printf("  %-16s %s", "exit", "Leave the console")
}

func (c *Console) port(number string) string {
	return c.bridge + "." + number
}

func (c *Console) vlanShow(string) {
	ports, err := c.client.ListPorts(c.bridge)
	if err != nil {
		c.errorf("Unable to list ports: %v", err)
		return
	}
	prefix := c.bridge + "."
	for _, p := range ports {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		c.printf("Port %s", strings.TrimPrefix(p, prefix))

		tag, err := c.client.Get("port", p, "tag")
		if err != nil {
			c.errorf("Unable to get port info: %v", err)
			continue
		}
		if tag == descriptor.EmptySet {
			tag = "0"
		}
		c.printf("  VLAN Access: %s", tag)

		trunks, err := c.client.Get("port", p, "trunks")
		if err != nil {
			c.errorf("Unable to get port info: %v", err)
			continue
		}
		if trunks != descriptor.EmptySet {
			c.printf("  VLAN Trunk: %s", strings.Trim(trunks, "[]"))
		}
	}
}

func (c *Console) vlanAccess(args string) {
	m := accessArgs.FindStringSubmatch(args)
	if m == nil {
		c.errorf("This command takes 2 arguments: <port-number> <vlan-id>")
		return
	}
	if err := c.client.Set("port", c.port(m[1]), "tag="+m[2]); err != nil {
		c.errorf("Unable add port %s to vlan %s: %v", m[1], m[2], err)
	}
}

func (c *Console) noVLANAccess(args string) {
	m := accessArgs.FindStringSubmatch(args)
	if m == nil {
		c.errorf("This command takes 2 arguments: <port-number> <vlan-id>")
		return
	}
	if err := c.client.Remove("port", c.port(m[1]), "tag", m[2]); err != nil {
		c.errorf("Unable remove port %s from vlan %s: %v", m[1], m[2], err)
	}
}

func (c *Console) vlanTrunks(args string) {
	m := trunkArgs.FindStringSubmatch(args)
	if m == nil {
		c.errorf("This command takes 2 arguments: <port-number> <vlan-ids>")
		return
	}
	if err := c.client.Set("port", c.port(m[1]), "trunks="+m[2]); err != nil {
		c.errorf("Unable add port %s to trunks %s: %v", m[1], m[2], err)
	}
}

func (c *Console) noVLANTrunks(args string) {
	m := trunkArgs.FindStringSubmatch(args)
	if m == nil {
		c.errorf("This command takes 2 arguments: <port-number> <vlan-ids>")
		return
	}
	if err := c.client.Remove("port", c.port(m[1]), "trunks", m[2]); err != nil {
		c.errorf("Unable remove port %s from trunks %s: %v", m[1], m[2], err)
	}
}

// portNumbers lists the port numbers of the bridge for completion.
func (c *Console) portNumbers(string) []string {
	ports, err := c.client.ListPorts(c.bridge)
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range ports {
		if n, ok := strings.CutPrefix(p, c.bridge+"."); ok {
			out = append(out, n)
		}
	}
	return out
}

func (c *Console) completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help", readline.PcItemDynamic(func(string) []string { return c.sortedCommands() })),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	}
	for _, n := range c.sortedCommands() {
		if n == "vlan_show" {
			items = append(items, readline.PcItem(n))
			continue
		}
		items = append(items, readline.PcItem(n, readline.PcItemDynamic(c.portNumbers)))
	}
	return readline.NewPrefixCompleter(items...)
}

// closeOnCancel closes c when ctx ends first. It returns as soon as either
// ctx or done is finished.
func closeOnCancel(ctx context.Context, done <-chan struct{}, c io.Closer) {
	select {
	case <-ctx.Done():
		c.Close()
	case <-done:
	}
}

// Run reads commands until exit, Ctrl-D or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.Prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), "."+brand.LowerName+"_ovs_console_history"),
		AutoComplete:    c.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          c.out,
		Stderr:          c.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	done := make(chan struct{})
	defer close(done)
	go closeOnCancel(ctx, done, rl)

	c.printf("%s", intro)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}
		if err := c.Execute(line); errors.Is(err, ErrExit) {
			return nil
		}
	}
}

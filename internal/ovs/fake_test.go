package ovs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"grimm.is/netemstate/internal/executor"
)

type fakePort struct {
	tag     string
	trunks  []int
	mode    string
	members []string
}

// fakeSwitch answers ovs-vsctl and ovs-appctl from an in-memory database.
type fakeSwitch struct {
	bridge   string
	stp      string
	ports    map[string]*fakePort
	calls    []string
	failures map[string]int // command line prefix -> remaining failures, negative means always
}

func newFakeSwitch(bridge string, ports ...string) *fakeSwitch {
	f := &fakeSwitch{bridge: bridge, stp: "false", ports: make(map[string]*fakePort), failures: make(map[string]int)}
	for _, p := range ports {
		f.ports[p] = &fakePort{tag: "[]"}
	}
	return f
}

func (f *fakeSwitch) failOn(prefix string, times int) {
	f.failures[prefix] = times
}

func (f *fakeSwitch) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeSwitch) RunCommand(name string, arg ...string) (string, error) {
	var args []string
	for _, a := range arg {
		if strings.HasPrefix(a, "--timeout=") || a == "--if-exists" || a == "--may-exist" {
			continue
		}
		args = append(args, a)
	}
	line := executor.CommandLine(name, args...)
	f.calls = append(f.calls, line)

	for prefix, times := range f.failures {
		if times != 0 && strings.HasPrefix(line, prefix) {
			if times > 0 {
				f.failures[prefix] = times - 1
			}
			return "ovs-vsctl: transaction error", &executor.RunError{Command: line, ExitCode: 1, Err: errors.New("exit status 1")}
		}
	}

	if name == "ovs-appctl" {
		return f.bondShow(), nil
	}
	return f.vsctl(line, args)
}

func (f *fakeSwitch) vsctl(line string, args []string) (string, error) {
	fail := func(code int) (string, error) {
		return "", &executor.RunError{Command: line, ExitCode: code, Err: fmt.Errorf("exit status %d", code)}
	}

	switch args[0] {
	case "br-exists":
		if args[1] != f.bridge {
			return fail(2)
		}
		return "", nil
	case "list-ports":
		names := make([]string, 0, len(f.ports))
		for n := range f.ports {
			names = append(names, n)
		}
		sort.Strings(names)
		return strings.Join(names, "\n"), nil
	case "get":
		if args[1] == "bridge" {
			return f.stp, nil
		}
		p, ok := f.ports[args[2]]
		if !ok {
			return fail(1)
		}
		switch args[3] {
		case "tag":
			return p.tag, nil
		case "trunks":
			return renderSet(p.trunks), nil
		case "vlan_mode":
			if p.mode == "" {
				return "[]", nil
			}
			return p.mode, nil
		}
	case "set":
		if args[1] == "bridge" {
			f.stp = strings.TrimPrefix(args[3], "stp_enable=")
			return "", nil
		}
		p, ok := f.ports[args[2]]
		if !ok {
			return fail(1)
		}
		for _, kv := range args[3:] {
			k, v, _ := strings.Cut(kv, "=")
			switch k {
			case "tag":
				p.tag = v
			case "trunks":
				p.trunks = parseSet(v)
			case "vlan_mode":
				p.mode = v
			}
		}
		return "", nil
	case "remove":
		p, ok := f.ports[args[2]]
		if !ok {
			return fail(1)
		}
		switch args[3] {
		case "tag":
			if p.tag == args[4] {
				p.tag = "[]"
			}
		case "trunks":
			drop := map[int]bool{}
			for _, id := range parseSet(args[4]) {
				drop[id] = true
			}
			var kept []int
			for _, id := range p.trunks {
				if !drop[id] {
					kept = append(kept, id)
				}
			}
			p.trunks = kept
		}
		return "", nil
	case "del-port":
		delete(f.ports, args[2])
		return "", nil
	case "add-bond":
		if _, ok := f.ports[args[2]]; ok {
			return "", nil
		}
		var members []string
		for _, a := range args[3:] {
			if !strings.Contains(a, "=") {
				members = append(members, a)
			}
		}
		f.ports[args[2]] = &fakePort{tag: "[]", members: members}
		return "", nil
	}
	return fail(1)
}

func (f *fakeSwitch) bondShow() string {
	var b strings.Builder
	names := make([]string, 0)
	for n, p := range f.ports {
		if p.members != nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "---- %s ----\nbond_mode: balance-slb\nlacp_status: negotiated\n\n", n)
		for _, m := range f.ports[n].members {
			fmt.Fprintf(&b, "member %s: enabled\n  may_enable: true\n\n", m)
		}
	}
	return b.String()
}

func parseSet(v string) []int {
	v = strings.Trim(v, "[]")
	var ids []int
	for _, s := range strings.Split(v, ",") {
		if id, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func renderSet(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

package ovs

import (
	"sort"
	"strings"

	"grimm.is/netemstate/internal/descriptor"
)

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// unquote strips the double quotes ovs-vsctl puts around string values.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// normalizeTag keeps a tag as printed, mapping blank output to the empty set.
func normalizeTag(v string) string {
	v = unquote(v)
	if v == "" {
		return descriptor.EmptySet
	}
	return v
}

// normalizeTrunks turns "[10, 20]" into "10,20". An empty set stays "[]".
func normalizeTrunks(v string) string {
	v = strings.TrimSpace(v)
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(v, "["), "]"))
	if inner == "" {
		return descriptor.EmptySet
	}
	fields := strings.Split(inner, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return strings.Join(fields, ",")
}

// normalizeVLANMode maps an unset vlan_mode to access, which is how OVS
// treats it.
func normalizeVLANMode(v string) string {
	v = unquote(v)
	if v == "" || v == descriptor.EmptySet {
		return descriptor.ModeAccess
	}
	return v
}

// normalizeBool maps the stp_enable column to "true" or "false".
func normalizeBool(v string) string {
	if unquote(v) == "true" {
		return "true"
	}
	return "false"
}

// parseBondShow reads the output of `ovs-appctl bond/show`. Each bond starts
// with a "---- name ----" header; its members are the unindented
// "member <if>: ..." lines, spelled "slave <if>: ..." by older releases.
func parseBondShow(out string) map[string][]string {
	bonds := make(map[string][]string)
	current := ""
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if strings.HasPrefix(line, "----") && strings.HasSuffix(line, "----") {
			current = strings.TrimSpace(strings.Trim(line, "-"))
			if current != "" {
				if _, ok := bonds[current]; !ok {
					bonds[current] = []string{}
				}
			}
			continue
		}
		if current == "" || line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		for _, prefix := range []string{"member ", "slave "} {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			rest := strings.TrimPrefix(line, prefix)
			if i := strings.IndexByte(rest, ':'); i > 0 {
				bonds[current] = append(bonds[current], strings.TrimSpace(rest[:i]))
			}
		}
	}
	for _, members := range bonds {
		sort.Strings(members)
	}
	return bonds
}

func isNoBond(out string) bool {
	return strings.Contains(strings.ToLower(out), "no such bond")
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"grimm.is/netemstate/internal/descriptor"
	"grimm.is/netemstate/internal/executor"
	"grimm.is/netemstate/internal/network"
)

type testApp struct {
	*app
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(strings.NewReader(""), &out, &errOut)
	a.exec = new(executor.MockCommandExecutor)
	a.netlinker = func(string) (network.Netlinker, func(), error) {
		t.Fatal("netlink must not be opened")
		return nil, nil, nil
	}
	// Never pick up a settings file from the machine running the tests.
	t.Setenv("NETEMSTATE_CONFIG_DIR", t.TempDir())
	return &testApp{app: a, out: &out, errOut: &errOut}
}

func (ta *testApp) run(args ...string) int {
	return ta.app.run(context.Background(), append([]string{"netemstate"}, args...))
}

func TestToolArgs(t *testing.T) {
	assert.Equal(t, []string{"network-config", "-s", "f.json"}, toolArgs([]string{"/usr/bin/network-config", "-s", "f.json"}))
	assert.Equal(t, []string{"ovs-config", "-a", "save"}, toolArgs([]string{"netemstate", "ovs-config", "-a", "save"}))
	assert.Equal(t, []string{"sw1"}, toolArgs([]string{"ovs-console", "sw1"})[1:])
	assert.Nil(t, toolArgs(nil))
}

func TestNetworkConfigArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no action", []string{"network-config", "f.json"}, "save load"},
		{"both actions", []string{"network-config", "-s", "-l", "f.json"}, "save load"},
		{"no file", []string{"network-config", "-s"}, "accepts 1 arg(s)"},
		{"missing file", []string{"network-config", "-l", "/nonexistent/f.json"}, "descriptor file does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			assert.Equal(t, ExitCodeError, ta.run(tt.args...))
			assert.Contains(t, ta.errOut.String(), tt.want)
		})
	}
}

func TestNetworkConfigInvalidEntry(t *testing.T) {
	ta := newTestApp(t)
	mockNetlink := new(network.MockNetlinker)
	eth0 := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "eth0", Index: 2}}
	mockNetlink.On("LinkByName", "eth0").Return(eth0, nil)
	ta.netlinker = func(string) (network.Netlinker, func(), error) { return mockNetlink, func() {}, nil }

	path := filepath.Join(t.TempDir(), "network.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"bondings": {"bond9": {"mode": 9, "slaves": ["eth1"]}},
		"interfaces": {"eth0": [{"address": "10.0.0.1/24", "kind": "PERMANENT", "version": 4}]}
	}`), 0644))

	// The bad bond is reported and the rest is still applied.
	require.Equal(t, ExitCodeSuccess, ta.run("network-config", "--dry-run", "-l", path), ta.errOut.String())
	assert.Contains(t, ta.errOut.String(), "mode 9 out of range")
	assert.Contains(t, ta.errOut.String(), " network-config[")
	assert.Equal(t, "ip link set eth0 up\nip addr add 10.0.0.1/24 dev eth0\n", ta.out.String())
	mockNetlink.AssertNotCalled(t, "LinkByName", "bond9")
}

func TestNetworkConfigDryRunLoad(t *testing.T) {
	ta := newTestApp(t)
	mockNetlink := new(network.MockNetlinker)
	eth0 := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "eth0", Index: 2}}
	mockNetlink.On("LinkByName", "eth0").Return(eth0, nil)

	var openedNS string
	ta.netlinker = func(ns string) (network.Netlinker, func(), error) {
		openedNS = ns
		return mockNetlink, func() {}, nil
	}

	path := filepath.Join(t.TempDir(), "network.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"interfaces": {"eth0": ["10.0.0.1/24"]}}`), 0644))

	require.Equal(t, ExitCodeSuccess, ta.run("network-config", "--dry-run", "--netns", "node1", "-l", path), ta.errOut.String())
	assert.Equal(t, "node1", openedNS)
	assert.Equal(t, "ip link set eth0 up\nip addr add 10.0.0.1/24 dev eth0\n", ta.out.String())
	// The legacy address form is reported.
	assert.Contains(t, ta.errOut.String(), "legacy address")
	mockNetlink.AssertNotCalled(t, "LinkSetUp", mock.Anything)
}

func TestNetworkConfigSave(t *testing.T) {
	ta := newTestApp(t)
	mockNetlink := new(network.MockNetlinker)
	eth0 := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "eth0", Index: 2}}
	lo := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo", Index: 1}}
	addr, err := netlink.ParseAddr("10.0.0.1/24")
	require.NoError(t, err)
	addr.Flags = 0x80

	mockNetlink.On("LinkList").Return([]netlink.Link{lo, eth0}, nil)
	mockNetlink.On("AddrList", eth0, mock.Anything).Return([]netlink.Addr{*addr}, nil)
	mockNetlink.On("RouteList", nil, mock.Anything).Return([]netlink.Route{}, nil)
	ta.netlinker = func(string) (network.Netlinker, func(), error) { return mockNetlink, func() {}, nil }

	path := filepath.Join(t.TempDir(), "network.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	require.Equal(t, ExitCodeSuccess, ta.run("network-config", "-s", path), ta.errOut.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, string(doc["interfaces"]), `"eth0"`)
	assert.NotContains(t, string(doc["interfaces"]), `"lo"`)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"bondings\""))
}

func TestOVSConfigArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no conf", []string{"ovs-config", "-a", "save", "sw1"}, "conf file is required"},
		{"bad action", []string{"ovs-config", "-c", "f.json", "-a", "dump", "sw1"}, "required action: load or save"},
		{"no switch", []string{"ovs-config", "-c", "f.json", "-a", "save"}, "you must enter an ovs switch name"},
		{"missing file", []string{"ovs-config", "-c", "/nonexistent/f.json", "-a", "load", "sw1"}, "descriptor file does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			assert.Equal(t, ExitCodeError, ta.run(tt.args...))
			assert.Contains(t, ta.errOut.String(), tt.want)
		})
	}
}

func TestOVSConfigMissingSwitch(t *testing.T) {
	ta := newTestApp(t)
	mockExec := ta.exec.(*executor.MockCommandExecutor)
	mockExec.On("RunCommand", "ovs-vsctl", "--timeout=30", "br-exists", "sw9").
		Return("", &executor.RunError{Command: "ovs-vsctl br-exists sw9", ExitCode: 2})

	path := filepath.Join(t.TempDir(), "sw9.json")
	assert.Equal(t, ExitCodeError, ta.run("ovs-config", "-c", path, "-a", "save", "sw9"))
	assert.Contains(t, ta.errOut.String(), "bridge not found")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOVSConfigDryRunLoad(t *testing.T) {
	ta := newTestApp(t)
	sw := descriptor.NewSwitch()
	sw.Ports = []descriptor.Port{{Name: "sw1.1", Tag: "10", Trunks: "[]", VLANMode: "access"}}
	path := filepath.Join(t.TempDir(), "sw1.json")
	require.NoError(t, descriptor.Save(path, sw))

	settings := filepath.Join(t.TempDir(), "settings.hcl")
	require.NoError(t, os.WriteFile(settings, []byte("switch {\n  timeout = 0\n}\n"), 0644))

	require.Equal(t, ExitCodeSuccess, ta.run("--settings", settings, "ovs-config", "--dry-run", "-c", path, "-a", "load", "sw1"), ta.errOut.String())
	assert.Equal(t, strings.Join([]string{
		"ovs-vsctl br-exists sw1",
		"ovs-vsctl list-ports sw1",
		"ovs-vsctl set bridge sw1 stp_enable=false",
		"ovs-vsctl set port sw1.1 tag=10 vlan_mode=access trunks=[]",
	}, "\n")+"\n", ta.out.String())
}

func TestMetricsFile(t *testing.T) {
	ta := newTestApp(t)
	metricsFile := filepath.Join(t.TempDir(), "netemstate.prom")

	sw := descriptor.NewSwitch()
	path := filepath.Join(t.TempDir(), "sw1.json")
	require.NoError(t, descriptor.Save(path, sw))

	require.Equal(t, ExitCodeSuccess, ta.run("--metrics-file", metricsFile, "ovs-config", "--dry-run", "-c", path, "-a", "load", "sw1"))
	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `netemstate_apply_success{tool="ovs-config"} 1`)
}

func TestInvalidSettings(t *testing.T) {
	ta := newTestApp(t)
	assert.Equal(t, ExitCodeError, ta.run("--log-level", "loud", "ovs-config", "sw1"))
	assert.Contains(t, ta.errOut.String(), "invalid settings")
}

func TestEthGenRequiresInterface(t *testing.T) {
	ta := newTestApp(t)
	assert.Equal(t, ExitCodeError, ta.run("eth-gen"))
	assert.Contains(t, ta.errOut.String(), `"ifname" not set`)
}

package console

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/netemstate/internal/executor"
	"grimm.is/netemstate/internal/ovs"
)

func newConsole(t *testing.T) (*Console, *executor.MockCommandExecutor, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	mockExec := new(executor.MockCommandExecutor)
	mockExec.On("RunCommand", "ovs-vsctl", "br-exists", "sw1").Return("", nil).Once()

	var out, errOut bytes.Buffer
	c, err := New(ovs.NewClient(mockExec, ovs.Options{}), "sw1", &out, &errOut)
	require.NoError(t, err)
	return c, mockExec, &out, &errOut
}

func TestNewMissingSwitch(t *testing.T) {
	mockExec := new(executor.MockCommandExecutor)
	mockExec.On("RunCommand", "ovs-vsctl", "br-exists", "sw9").
		Return("", &executor.RunError{Command: "ovs-vsctl br-exists sw9", ExitCode: 2, Err: errors.New("exit status 2")})

	_, err := New(ovs.NewClient(mockExec, ovs.Options{}), "sw9", &bytes.Buffer{}, &bytes.Buffer{})
	assert.EqualError(t, err, "Ovs switch 'sw9' not found")
}

func TestPrompt(t *testing.T) {
	c, _, _, _ := newConsole(t)
	assert.Equal(t, "[sw1]>", c.Prompt())
}

func TestVLANShow(t *testing.T) {
	c, mockExec, out, errOut := newConsole(t)
	mockExec.On("RunCommand", "ovs-vsctl", "list-ports", "sw1").Return("eth0\nsw1.1\nsw1.2", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.1", "tag").Return("10", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.1", "trunks").Return("[]", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.2", "tag").Return("[]", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.2", "trunks").Return("[10, 20]", nil)

	require.NoError(t, c.Execute("vlan_show"))
	assert.Equal(t, "Port 1\n  VLAN Access: 10\nPort 2\n  VLAN Access: 0\n  VLAN Trunk: 10, 20\n", out.String())
	assert.Empty(t, errOut.String())
	mockExec.AssertExpectations(t)
}

func TestVLANShowPortFailure(t *testing.T) {
	c, mockExec, out, errOut := newConsole(t)
	mockExec.On("RunCommand", "ovs-vsctl", "list-ports", "sw1").Return("sw1.1\nsw1.2", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.1", "tag").
		Return("", &executor.RunError{Command: "ovs-vsctl get port sw1.1 tag", ExitCode: 1, Err: errors.New("exit status 1")})
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.2", "tag").Return("20", nil)
	mockExec.On("RunCommand", "ovs-vsctl", "get", "port", "sw1.2", "trunks").Return("[]", nil)

	require.NoError(t, c.Execute("vlan_show"))
	assert.Equal(t, "Port 1\nPort 2\n  VLAN Access: 20\n", out.String())
	assert.Contains(t, errOut.String(), "Unable to get port info")
}

func TestVLANCommands(t *testing.T) {
	tests := []struct {
		line string
		args []interface{}
	}{
		{"vlan_access 3 100", []interface{}{"ovs-vsctl", "set", "port", "sw1.3", "tag=100"}},
		{"no_vlan_access 3 100", []interface{}{"ovs-vsctl", "remove", "port", "sw1.3", "tag", "100"}},
		{"vlan_trunks 4 10,20", []interface{}{"ovs-vsctl", "set", "port", "sw1.4", "trunks=10,20"}},
		{"no_vlan_trunks  4   20", []interface{}{"ovs-vsctl", "remove", "port", "sw1.4", "trunks", "20"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, mockExec, _, errOut := newConsole(t)
			mockExec.On("RunCommand", tt.args...).Return("", nil).Once()

			require.NoError(t, c.Execute(tt.line))
			assert.Empty(t, errOut.String())
			mockExec.AssertExpectations(t)
		})
	}
}

func TestVLANCommandErrors(t *testing.T) {
	c, mockExec, _, errOut := newConsole(t)

	require.NoError(t, c.Execute("vlan_access 3"))
	assert.Equal(t, "This command takes 2 arguments: <port-number> <vlan-id>\n", errOut.String())

	errOut.Reset()
	require.NoError(t, c.Execute("vlan_trunks 3 ten"))
	assert.Equal(t, "This command takes 2 arguments: <port-number> <vlan-ids>\n", errOut.String())

	errOut.Reset()
	mockExec.On("RunCommand", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("ovs-vsctl: no row \"sw1.9\" in table Port", &executor.RunError{Command: "ovs-vsctl set", ExitCode: 1, Err: errors.New("exit status 1")})
	require.NoError(t, c.Execute("vlan_access 9 100"))
	assert.Contains(t, errOut.String(), "Unable add port 9 to vlan 100")

	errOut.Reset()
	require.NoError(t, c.Execute("frobnicate"))
	assert.Equal(t, "*** Unknown syntax: frobnicate\n", errOut.String())
}

func TestExecuteControl(t *testing.T) {
	c, _, out, _ := newConsole(t)

	assert.NoError(t, c.Execute(""))
	assert.NoError(t, c.Execute("   "))
	assert.ErrorIs(t, c.Execute("exit"), ErrExit)
	assert.ErrorIs(t, c.Execute("quit"), ErrExit)

	require.NoError(t, c.Execute("help"))
	assert.Contains(t, out.String(), "vlan_show")
	assert.Contains(t, out.String(), "no_vlan_trunks")

	out.Reset()
	require.NoError(t, c.Execute("help vlan_access"))
	assert.Equal(t, "Add a port to a VLAN in access mode\n", out.String())
}

func TestPortNumbers(t *testing.T) {
	c, mockExec, _, _ := newConsole(t)
	mockExec.On("RunCommand", "ovs-vsctl", "list-ports", "sw1").Return("sw1.1\nsw1.12\nuplink", nil)

	assert.Equal(t, []string{"1", "12"}, c.portNumbers(""))
}

type countingCloser struct {
	closed atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestCloseOnCancel(t *testing.T) {
	run := func(ctx context.Context, done chan struct{}, c *countingCloser) <-chan struct{} {
		returned := make(chan struct{})
		go func() {
			closeOnCancel(ctx, done, c)
			close(returned)
		}()
		return returned
	}

	t.Run("cancel closes the reader", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := &countingCloser{}
		returned := run(ctx, make(chan struct{}), c)

		cancel()
		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("watcher did not return after cancel")
		}
		assert.Equal(t, int32(1), c.closed.Load())
	})

	t.Run("leaving the loop stops the watcher", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan struct{})
		c := &countingCloser{}
		returned := run(ctx, done, c)

		close(done)
		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("watcher still running after the loop ended")
		}
		assert.Zero(t, c.closed.Load())
	})
}

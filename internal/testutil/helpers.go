// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"os"
	"testing"
)

// VMTestEnv gates tests that change real kernel state.
const VMTestEnv = "NETEMSTATE_VM_TEST"

// RequireVM skips the test if the NETEMSTATE_VM_TEST environment variable is not set.
// This ensures that tests requiring real kernel capabilities (netlink, bonding, namespaces)
// are only run in the proper environment.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv(VMTestEnv) == "" {
		t.Skip("Skipping test: requires " + VMTestEnv + " environment")
	}
}

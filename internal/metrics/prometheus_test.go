package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecords(t *testing.T) {
	r := New()

	r.Attempt("ovs-config")
	r.Attempt("ovs-config")
	r.ItemFailed("ovs-config", "bond")
	r.ApplyDone("ovs-config", true)
	r.Captured("network-config", "routes", 3)
	r.ObserveRun("network-config", "save", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ApplyAttempts.WithLabelValues("ovs-config")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ApplyItemFailures.WithLabelValues("ovs-config", "bond")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ApplySuccess.WithLabelValues("ovs-config")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.CaptureObjects.WithLabelValues("network-config", "routes")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.RunDuration.WithLabelValues("network-config", "save")))

	r.ApplyDone("ovs-config", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ApplySuccess.WithLabelValues("ovs-config")))
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Attempt("x")
		r.ItemFailed("x", "y")
		r.ApplyDone("x", true)
		r.Captured("x", "y", 1)
		r.ObserveRun("x", "y", time.Second)
	})
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Attempt("network-config")

	path := filepath.Join(t.TempDir(), "netemstate.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `netemstate_apply_attempts_total{tool="network-config"} 1`))
}

package xrtmetrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofpga/goxrt/driver/emu"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/gofpga/goxrt/xrt"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RunStarted("add")
	c.RunStarted("add")
	c.RunFinished("add", xrt.StateCompleted, 3*time.Millisecond)
	c.RunFinished("add", xrt.StateError, time.Second)
	c.BytesTransferred("add", xrt.HostToDevice, 64)
	c.BytesTransferred("add", xrt.HostToDevice, 64)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.RunsStarted.WithLabelValues("add")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.RunsFinished.WithLabelValues("add", "Completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.RunsFinished.WithLabelValues("add", "Error")))
	assert.Equal(t, float64(128), testutil.ToFloat64(c.BytesTransfer.WithLabelValues("add", "HostToDevice")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.RunDuration), "one series per kernel")

	// Registering the same metrics again fails.
	assert.Panics(t, func() { New(reg) })
	// Without a registry nothing is registered.
	assert.NotPanics(t, func() { New(nil) })
}

func TestCollectorWithManager(t *testing.T) {
	rt := emu.New()
	path := filepath.Join(t.TempDir(), xrt.BitstreamPath("add", "sw_emu"))
	must.M1(rt.WriteBitstream(path, "add"))
	m := xrt.NewManager(must.M1(xrt.OpenDevice(rt, 0)))
	defer m.Destroy()
	c := New(prometheus.NewRegistry())
	m.WithObserver(c)
	require.NoError(t, m.LoadBitstream(path))
	require.NoError(t, m.AddKernel("add"))

	mr := m.PrepareRun("add").
		SetScalarInput(0, uint32(20)).
		SetScalarInput(1, uint32(22)).
		PrepareOutputBuffer(2, dtypes.Uint32, 1)
	require.NoError(t, m.StartAll())
	require.NoError(t, m.WaitForAll(1000))
	got := make([]uint32, 1)
	require.NoError(t, mr.ReadOutput(2, got))
	require.Equal(t, uint32(42), got[0])
	require.NoError(t, m.WaitForAll(1000))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.RunsStarted.WithLabelValues("add")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.RunsFinished.WithLabelValues("add", "Completed")),
		"waiting again doesn't count the run twice")
	assert.Equal(t, uint64(1), histogramCount(t, c, "add"))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.BytesTransfer.WithLabelValues("add", "DeviceToHost")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(c.LiveResources.WithLabelValues("run")), float64(1))
}

// histogramCount returns the number of observations of the run duration of the kernel.
func histogramCount(t *testing.T, c *Collector, kernel string) uint64 {
	var m dto.Metric
	require.NoError(t, c.RunDuration.WithLabelValues(kernel).(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

package runconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

const vscaleConfig = `
runtime: emu
bitstream: vscale
emulation_mode: sw_emu
runs:
  - kernel: vscale_f32
    repeat: 2
    arguments:
      - {index: 0, dtype: u32, scalar: 4}
      - {index: 1, dtype: f32, scalar: 0.5}
      - {index: 2, dtype: f32, input: [1, 2, 3.5, -4]}
      - {index: 3, dtype: f32, output: 4}
  - kernel: vscale_f16
    arguments:
      - {index: 0, dtype: u32, scalar: 3}
      - {index: 1, dtype: f16, scalar: 2}
      - {index: 2, dtype: f16, fill: {value: 1.5, count: 3}}
      - {index: 3, dtype: Float16, output: 3}
  - kernel: vscale_f32
`

func TestParse(t *testing.T) {
	t.Setenv(EmulationModeEnv, "")
	config, err := Parse([]byte(vscaleConfig))
	require.NoError(t, err)
	require.Equal(t, "emu", config.Runtime)
	require.Equal(t, uint32(0), config.Device)
	require.Equal(t, uint32(DefaultTimeoutMs), config.TimeoutMs)
	require.Equal(t, "vscale_sw_emu.xclbin", config.BitstreamPath())
	require.Equal(t, []string{"vscale_f32", "vscale_f16"}, config.Kernels())
	require.Len(t, config.Runs, 3)
	require.Equal(t, 2, config.Runs[0].Repeat)
	require.Equal(t, 1, config.Runs[1].Repeat)

	args := config.Runs[0].Arguments
	require.Equal(t, KindScalar, args[0].Kind())
	value, err := args[0].ScalarValue()
	require.NoError(t, err)
	require.Equal(t, uint32(4), value)
	value, err = args[1].ScalarValue()
	require.NoError(t, err)
	require.Equal(t, float32(0.5), value)
	require.Equal(t, KindInput, args[2].Kind())
	values, err := args[2].InputValues()
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3.5, -4}, values)
	require.Equal(t, KindOutput, args[3].Kind())
	dtype, err := args[3].ElementType()
	require.NoError(t, err)
	require.Equal(t, dtypes.Float32, dtype)

	args = config.Runs[1].Arguments
	values, err = args[2].InputValues()
	require.NoError(t, err)
	require.Equal(t, []float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(1.5), float16.Fromfloat32(1.5)}, values)
	dtype, err = args[3].ElementType()
	require.NoError(t, err)
	require.Equal(t, dtypes.Float16, dtype)
}

func TestEmulationMode(t *testing.T) {
	t.Setenv(EmulationModeEnv, "")
	require.Equal(t, "hw", EmulationMode("hw"))
	t.Setenv(EmulationModeEnv, "hw_emu")
	require.Equal(t, "hw_emu", EmulationMode("sw_emu"))

	config, err := Parse([]byte(vscaleConfig))
	require.NoError(t, err)
	require.Equal(t, "vscale_hw_emu.xclbin", config.BitstreamPath())

	// Explicit paths are not resolved.
	config.Bitstream = "/opt/xclbin/vscale.xclbin"
	require.Equal(t, "/opt/xclbin/vscale.xclbin", config.BitstreamPath())
}

func TestParseErrors(t *testing.T) {
	for name, content := range map[string]string{
		"no bitstream":   "runs: [{kernel: add}]",
		"no runs":        "bitstream: add",
		"no kernel":      "bitstream: add\nruns: [{repeat: 1}]",
		"bad yaml":       "bitstream: [add",
		"unknown dtype":  "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u31, scalar: 1}]}]",
		"overflow":       "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u8, scalar: 256}]}]",
		"negative":       "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32, scalar: -1}]}]",
		"not integer":    "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: i32, scalar: 1.5}]}]",
		"two kinds":      "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32, scalar: 1, output: 1}]}]",
		"no kind":        "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32}]}]",
		"input and fill": "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32, input: [1], fill: {value: 1, count: 2}}]}]",
		"bad fill":       "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32, fill: {value: 1, count: 0}}]}]",
		"duplicate":      "bitstream: add\nruns: [{kernel: add, arguments: [{index: 0, dtype: u32, scalar: 1}, {index: 0, dtype: u32, scalar: 2}]}]",
		"bad element":    "bitstream: add\nruns: [{kernel: add, arguments: [{index: 2, dtype: u32, input: [1, x]}]}]",
	} {
		_, err := Parse([]byte(content))
		require.Errorf(t, err, "case %q should fail", name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(vscaleConfig), 0o644))
	config, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "vscale", config.Bitstream)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

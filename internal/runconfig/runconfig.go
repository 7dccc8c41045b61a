// Package runconfig reads the YAML files describing kernel invocations for the xrt_run tool.
//
// Example:
//
//	runtime: emu
//	device: 0
//	bitstream: vscale          # Resolved with xrt.BitstreamPath, unless it ends in ".xclbin".
//	emulation_mode: sw_emu     # XCL_EMULATION_MODE takes precedence.
//	timeout_ms: 1000
//	runs:
//	  - kernel: vscale_f32
//	    repeat: 2
//	    arguments:
//	      - {index: 0, dtype: u32, scalar: 4}
//	      - {index: 1, dtype: f32, scalar: 0.5}
//	      - {index: 2, dtype: f32, input: [1, 2, 3, 4]}
//	      - {index: 3, dtype: f32, output: 4}
package runconfig

import (
	"os"
	"reflect"
	"strings"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/gofpga/goxrt/xrt"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EmulationModeEnv is the environment variable with the emulation mode, as used by the XRT tools.
const EmulationModeEnv = "XCL_EMULATION_MODE"

// DefaultTimeoutMs is used when the configuration doesn't set timeout_ms.
const DefaultTimeoutMs = 1000

// EmulationMode returns the mode set in XCL_EMULATION_MODE, or fallback if it is not set.
func EmulationMode(fallback string) string {
	if mode, found := os.LookupEnv(EmulationModeEnv); found && mode != "" {
		return mode
	}
	return fallback
}

// Config describes a device, the bitstream to load and the runs to execute.
type Config struct {
	Runtime       string `yaml:"runtime"`
	Device        uint32 `yaml:"device"`
	Bitstream     string `yaml:"bitstream"`
	EmulationMode string `yaml:"emulation_mode"`
	TimeoutMs     uint32 `yaml:"timeout_ms"`
	Runs          []Run  `yaml:"runs"`
}

// Run describes the invocations of one kernel.
type Run struct {
	Kernel    string     `yaml:"kernel"`
	Repeat    int        `yaml:"repeat"`
	Arguments []Argument `yaml:"arguments"`
}

// Argument describes how one kernel argument is bound. Exactly one of Scalar, Input, Fill or Output must be set.
type Argument struct {
	Index int    `yaml:"index"`
	DType string `yaml:"dtype"`

	// Scalar value.
	Scalar any `yaml:"scalar"`

	// Input buffer values.
	Input []any `yaml:"input"`

	// Fill is an input buffer with Count copies of Value.
	Fill *Fill `yaml:"fill"`

	// Output buffer with the given number of elements.
	Output int `yaml:"output"`
}

// Fill describes an input buffer with all elements set to the same value.
type Fill struct {
	Value any `yaml:"value"`
	Count int `yaml:"count"`
}

// ArgumentKind is how an Argument is bound.
type ArgumentKind int

const (
	KindInvalid ArgumentKind = iota
	KindScalar
	KindInput
	KindOutput
)

// Load reads and validates the configuration in path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading run configuration")
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "run configuration %q", path)
	}
	return config, nil
}

// Parse decodes and validates a YAML configuration, filling in the defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "parsing run configuration")
	}
	if config.Runtime == "" {
		config.Runtime = driver.DefaultName()
	}
	if config.TimeoutMs == 0 {
		config.TimeoutMs = DefaultTimeoutMs
	}
	for ii := range config.Runs {
		if config.Runs[ii].Repeat == 0 {
			config.Runs[ii].Repeat = 1
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration is complete and its values convert to the declared dtypes.
func (c *Config) Validate() error {
	if c.Bitstream == "" {
		return errors.New("bitstream not set")
	}
	if len(c.Runs) == 0 {
		return errors.New("no runs given")
	}
	for ii, run := range c.Runs {
		if run.Kernel == "" {
			return errors.Errorf("runs[%d]: kernel not set", ii)
		}
		if run.Repeat < 0 {
			return errors.Errorf("runs[%d]: invalid repeat %d", ii, run.Repeat)
		}
		seen := make(map[int]bool, len(run.Arguments))
		for _, arg := range run.Arguments {
			if seen[arg.Index] {
				return errors.Errorf("runs[%d] (%s): argument #%d given more than once", ii, run.Kernel, arg.Index)
			}
			seen[arg.Index] = true
			if err := arg.validate(); err != nil {
				return errors.WithMessagef(err, "runs[%d] (%s)", ii, run.Kernel)
			}
		}
	}
	return nil
}

// Mode returns the emulation mode: XCL_EMULATION_MODE if set, or the configured one.
func (c *Config) Mode() string {
	return EmulationMode(c.EmulationMode)
}

// BitstreamPath returns the path of the bitstream to load. Bitstream values ending in ".xclbin" are used as they
// are, other values are names resolved with xrt.BitstreamPath and the emulation mode.
func (c *Config) BitstreamPath() string {
	if strings.HasSuffix(c.Bitstream, ".xclbin") {
		return c.Bitstream
	}
	return xrt.BitstreamPath(c.Bitstream, c.Mode())
}

// Kernels returns the distinct kernel names, in order of first use.
func (c *Config) Kernels() []string {
	var names []string
	seen := make(map[string]bool)
	for _, run := range c.Runs {
		if !seen[run.Kernel] {
			seen[run.Kernel] = true
			names = append(names, run.Kernel)
		}
	}
	return names
}

// Kind returns how the argument is bound, or KindInvalid if none or more than one of the options is set.
func (a *Argument) Kind() ArgumentKind {
	kind, count := KindInvalid, 0
	if a.Scalar != nil {
		kind, count = KindScalar, count+1
	}
	if a.Input != nil || a.Fill != nil {
		kind, count = KindInput, count+1
	}
	if a.Input != nil && a.Fill != nil {
		count++
	}
	if a.Output != 0 {
		kind, count = KindOutput, count+1
	}
	if count != 1 {
		return KindInvalid
	}
	return kind
}

// ElementType returns the parsed dtype of the argument.
func (a *Argument) ElementType() (dtypes.DType, error) {
	dtype, found := dtypes.MapOfNames[a.DType]
	if !found {
		return dtypes.Invalid, errors.Errorf("argument #%d: unknown dtype %q", a.Index, a.DType)
	}
	return dtype, nil
}

func (a *Argument) validate() error {
	if a.Index < 0 {
		return errors.Errorf("invalid argument index %d", a.Index)
	}
	dtype, err := a.ElementType()
	if err != nil {
		return err
	}
	switch a.Kind() {
	case KindScalar:
		_, err = a.ScalarValue()
	case KindInput:
		_, err = a.InputValues()
	case KindOutput:
		if a.Output < 0 {
			err = errors.Errorf("argument #%d: invalid output size %d", a.Index, a.Output)
		}
	default:
		err = errors.Errorf("argument #%d (%s) must set exactly one of scalar, input, fill or output", a.Index, dtype)
	}
	return err
}

// ScalarValue returns the scalar converted to the argument dtype.
func (a *Argument) ScalarValue() (any, error) {
	dtype, err := a.ElementType()
	if err != nil {
		return nil, err
	}
	value, err := dtypes.FromNumber(dtype, a.Scalar)
	if err != nil {
		return nil, errors.WithMessagef(err, "argument #%d", a.Index)
	}
	return value, nil
}

// InputValues returns the input buffer values as a slice of the Go type of the argument dtype (e.g. []float32).
func (a *Argument) InputValues() (any, error) {
	dtype, err := a.ElementType()
	if err != nil {
		return nil, err
	}
	numbers := a.Input
	if a.Fill != nil {
		if a.Fill.Count <= 0 {
			return nil, errors.Errorf("argument #%d: invalid fill count %d", a.Index, a.Fill.Count)
		}
		numbers = make([]any, a.Fill.Count)
		for ii := range numbers {
			numbers[ii] = a.Fill.Value
		}
	}
	if len(numbers) == 0 {
		return nil, errors.Errorf("argument #%d: empty input", a.Index)
	}
	slice, err := dtypes.MakeSlice(dtype, len(numbers))
	if err != nil {
		return nil, err
	}
	sliceV := reflect.ValueOf(slice)
	for ii, number := range numbers {
		value, err := dtypes.FromNumber(dtype, number)
		if err != nil {
			return nil, errors.WithMessagef(err, "argument #%d element %d", a.Index, ii)
		}
		sliceV.Index(ii).Set(reflect.ValueOf(value))
	}
	return slice, nil
}

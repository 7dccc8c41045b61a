// xrt_run executes the kernel runs described in a YAML file (see package internal/runconfig) and prints their outputs.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/driver/emu"
	_ "github.com/gofpga/goxrt/driver/native"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/gofpga/goxrt/internal/runconfig"
	"github.com/gofpga/goxrt/xrt"
	"github.com/gofpga/goxrt/xrt/xrtmetrics"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"k8s.io/klog/v2"
)

var (
	flagConfig      = flag.String("config", "", "YAML file describing the runs")
	flagRuntime     = flag.String("runtime", "", "Overrides the runtime of the configuration file")
	flagEmuGenerate = flag.Bool("emu_generate", false, "When using the emulated runtime, write the bitstream with the configured kernels before loading it")
	flagMetrics     = flag.Bool("metrics", false, "Print the metrics of the runs at the end")
	flagMetricsAddr = flag.String("metrics_addr", "", "If set (e.g. \":9090\"), serve the metrics on /metrics after the runs, until interrupted")
)

// outputRead is an output argument of a run, to be read once it completes.
type outputRead struct {
	index int
	dtype dtypes.DType
	count int
}

// pendingRun is a prepared run and its outputs.
type pendingRun struct {
	mr      *xrt.ManagedRun
	outputs []outputRead
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `xrt_run executes the kernel runs described in a YAML file, and prints their outputs.

$ xrt_run -config=<run.yaml>

The bitstream is resolved from the configuration and the XCL_EMULATION_MODE environment variable, e.g.
"bitstream: vscale" loads "vscale_sw_emu.xclbin" if XCL_EMULATION_MODE=sw_emu.

With the emulated runtime ("emu", the default if not built with -tags xrt) use -emu_generate to create the bitstream.

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	if *flagConfig == "" {
		fmt.Fprintln(os.Stderr, "The run configuration must be given with the -config flag!")
		fmt.Fprintln(os.Stderr)
		flag.Usage()
		os.Exit(1)
	}
	config := must.M1(runconfig.Load(*flagConfig))
	if *flagRuntime != "" {
		config.Runtime = *flagRuntime
	}
	path := config.BitstreamPath()
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(*flagConfig), path)
	}
	if *flagEmuGenerate {
		generateBitstream(config.Runtime, path, config.Kernels())
	}

	device := must.M1(xrt.Open(config.Runtime, config.Device))
	registry := prometheus.NewRegistry()
	collector := xrtmetrics.New(registry)
	manager := xrt.NewManager(device).WithObserver(collector)
	defer manager.Destroy()
	must.M(manager.LoadBitstream(path))
	id, _ := device.UUID()
	fmt.Printf("Loaded %q (%s) on %s\n", path, id, device)

	for _, name := range config.Kernels() {
		must.M(manager.AddKernel(name))
	}
	var pending []pendingRun
	for _, run := range config.Runs {
		for range run.Repeat {
			pending = append(pending, prepareRun(manager, run))
		}
	}

	if err := manager.StartAll(); err != nil {
		klog.Errorf("Failed to start some runs: %+v", err)
	}
	if err := manager.WaitForAll(config.TimeoutMs); err != nil {
		klog.Errorf("Some runs did not complete: %+v", err)
	}
	for ii, p := range pending {
		printRun(ii, p)
	}
	collector.UpdateLiveResources()

	if *flagMetrics {
		for _, mf := range must.M1(registry.Gather()) {
			must.M1(expfmt.MetricFamilyToText(os.Stdout, mf))
		}
	}
	if *flagMetricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		klog.Infof("Serving metrics on %s/metrics", *flagMetricsAddr)
		must.M(http.ListenAndServe(*flagMetricsAddr, nil))
	}
}

// generateBitstream writes an emulation bitstream with the kernels to path.
func generateBitstream(runtimeName, path string, kernels []string) {
	rt, ok := must.M1(driver.Get(runtimeName)).(*emu.Runtime)
	if !ok {
		klog.Fatalf("-emu_generate can only be used with the emulated runtime, not %q", runtimeName)
	}
	id := must.M1(rt.WriteBitstream(path, kernels...))
	fmt.Printf("Generated %q (%s) with kernels %q\n", path, id, kernels)
}

// prepareRun creates the run and binds its arguments. Errors are kept in the ManagedRun and reported by printRun.
func prepareRun(manager *xrt.Manager, run runconfig.Run) pendingRun {
	p := pendingRun{mr: manager.PrepareRun(run.Kernel)}
	for _, arg := range run.Arguments {
		dtype := must.M1(arg.ElementType())
		switch arg.Kind() {
		case runconfig.KindScalar:
			p.mr.SetScalarInput(arg.Index, must.M1(arg.ScalarValue()))
		case runconfig.KindInput:
			p.mr.SetBufferInput(arg.Index, must.M1(arg.InputValues()))
		case runconfig.KindOutput:
			p.mr.PrepareOutputBuffer(arg.Index, dtype, arg.Output)
			p.outputs = append(p.outputs, outputRead{index: arg.Index, dtype: dtype, count: arg.Output})
		}
	}
	return p
}

func printRun(ii int, p pendingRun) {
	fmt.Printf("Run #%d %q: %s\n", ii, p.mr.KernelName(), p.mr.State())
	if err := p.mr.Err(); err != nil {
		fmt.Printf("\terror: %v\n", err)
		return
	}
	for _, out := range p.outputs {
		values := must.M1(dtypes.MakeSlice(out.dtype, out.count))
		if err := p.mr.ReadOutput(out.index, values); err != nil {
			fmt.Printf("\targument #%d: %v\n", out.index, err)
			continue
		}
		size := uint64(out.count * out.dtype.Size())
		fmt.Printf("\targument #%d (%s, %s): %v\n", out.index, out.dtype, humanize.IBytes(size), values)
	}
}

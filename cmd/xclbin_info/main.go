// xclbin_info prints the identity, sections and kernels of xclbin bitstream files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gofpga/goxrt/driver/emu"
	"github.com/gofpga/goxrt/xclbin"
	"github.com/janpfeifer/must"
	"google.golang.org/protobuf/encoding/protojson"
	"k8s.io/klog/v2"
)

var (
	flagEmu  = flag.String("emu", "", "Comma separated kernels of the emulated accelerator: if set, an xclbin with these kernels is first written to each given path")
	flagJSON = flag.Bool("json", false, "Print the BUILD_METADATA section as JSON")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `xclbin_info prints the UUID, sections and kernels of xclbin files.

$ xclbin_info [-json] <file.xclbin>...

To create an xclbin for the emulated accelerator (e.g. to use with xrt_run):

$ xclbin_info -emu=add,vscale vscale_sw_emu.xclbin

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "No xclbin file given.")
		fmt.Fprintln(os.Stderr)
		flag.Usage()
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		if *flagEmu != "" {
			kernels := strings.Split(*flagEmu, ",")
			id := must.M1(emu.New().WriteBitstream(path, kernels...))
			fmt.Printf("Wrote %q (%s) with kernels %q\n", path, id, kernels)
		}
		printInfo(path)
	}
}

func printInfo(path string) {
	f, err := xclbin.ReadFile(path)
	if err != nil {
		klog.Errorf("%+v", err)
		return
	}
	fmt.Printf("%s:\n", path)
	fmt.Printf("\tUUID:     %s\n", f.UUID)
	fmt.Printf("\tPlatform: %s\n", f.Platform)
	fmt.Printf("\tLength:   %s\n", humanize.IBytes(f.Length))
	fmt.Printf("\tSections (%d):\n", len(f.Sections))
	for _, header := range f.Sections {
		fmt.Printf("\t\t%-24s %-16q %10s at offset %d\n", header.Kind, header.Name, humanize.IBytes(header.Size),
			header.Offset)
	}

	kernels, err := f.Kernels()
	if err != nil {
		fmt.Printf("\tKernels: %v\n", err)
		return
	}
	fmt.Printf("\tKernels (%d):\n", len(kernels))
	for _, kernel := range kernels {
		fmt.Printf("\t\t%s:\n", kernel.Name)
		for _, arg := range kernel.Arguments {
			group := "-"
			if arg.IsBuffer() && arg.MemoryGroup >= 0 {
				group = fmt.Sprintf("%d", arg.MemoryGroup)
			}
			fmt.Printf("\t\t\t#%d %-12s %-16s %-8s size=%d group=%s\n", arg.Index, arg.Name, arg.Type,
				arg.AddressQualifier, arg.Size, group)
		}
	}

	if *flagJSON {
		metadata := must.M1(f.BuildMetadata())
		fmt.Println(protojson.MarshalOptions{Multiline: true, Indent: "  "}.Format(metadata))
	}
}

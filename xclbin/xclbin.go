// Package xclbin reads (and writes) the xclbin container format (the "axlf" layout) used to package FPGA
// bitstreams: a fixed-size header with the magic string and the bitstream UUID, a section-header table and
// the section payloads.
//
// Only what the lifecycle layer needs is decoded: the header identity, the section table, and the
// BUILD_METADATA section, a JSON document describing the kernels and their arguments.
package xclbin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Magic is the string at the start of every xclbin (version 2) file.
const Magic = "xclbin2"

// Offsets in the axlf header.
const (
	lengthOffset       = 304
	modeOffset         = 332
	platformOffset     = 352
	platformSize       = 64
	uuidOffset         = 416
	numSectionsOffset  = 448
	headerSize         = 456 // Start of the section headers table.
	sectionHeaderSize  = 40
	sectionNameSize    = 16
	sectionOffsetField = 24
	sectionSizeField   = 32
)

var (
	// ErrInvalidMagic is returned when the data doesn't start with Magic.
	ErrInvalidMagic = errors.New("invalid xclbin magic string")

	// ErrTruncated is returned when a header or section extends past the end of the data.
	ErrTruncated = errors.New("xclbin data truncated")

	// ErrNoBuildMetadata is returned when the xclbin has no BUILD_METADATA section.
	ErrNoBuildMetadata = errors.New("xclbin has no BUILD_METADATA section")

	// ErrKernelNotFound is returned by File.Kernel when the build metadata doesn't list the kernel.
	ErrKernelNotFound = errors.New("kernel not found in xclbin build metadata")
)

// SectionKind identifies the contents of a section (axlf_section_kind).
type SectionKind uint32

const (
	Bitstream           SectionKind = 0
	ClearingBitstream   SectionKind = 1
	EmbeddedMetadata    SectionKind = 2
	Firmware            SectionKind = 3
	DebugData           SectionKind = 4
	SchedFirmware       SectionKind = 5
	MemTopology         SectionKind = 6
	Connectivity        SectionKind = 7
	IPLayout            SectionKind = 8
	DebugIPLayout       SectionKind = 9
	DesignCheckPoint    SectionKind = 10
	ClockFreqTopology   SectionKind = 11
	MCS                 SectionKind = 12
	BMC                 SectionKind = 13
	BuildMetadata       SectionKind = 14
	KeyValueMetadata    SectionKind = 15
	UserMetadata        SectionKind = 16
	DNACertificate      SectionKind = 17
	PDI                 SectionKind = 18
	BitstreamPartialPDI SectionKind = 19
	PartitionMetadata   SectionKind = 20
	EmulationData       SectionKind = 21
	SystemMetadata      SectionKind = 22
	SoftKernel          SectionKind = 23
)

var sectionKindNames = map[SectionKind]string{
	Bitstream:           "BITSTREAM",
	ClearingBitstream:   "CLEARING_BITSTREAM",
	EmbeddedMetadata:    "EMBEDDED_METADATA",
	Firmware:            "FIRMWARE",
	DebugData:           "DEBUG_DATA",
	SchedFirmware:       "SCHED_FIRMWARE",
	MemTopology:         "MEM_TOPOLOGY",
	Connectivity:        "CONNECTIVITY",
	IPLayout:            "IP_LAYOUT",
	DebugIPLayout:       "DEBUG_IP_LAYOUT",
	DesignCheckPoint:    "DESIGN_CHECK_POINT",
	ClockFreqTopology:   "CLOCK_FREQ_TOPOLOGY",
	MCS:                 "MCS",
	BMC:                 "BMC",
	BuildMetadata:       "BUILD_METADATA",
	KeyValueMetadata:    "KEYVALUE_METADATA",
	UserMetadata:        "USER_METADATA",
	DNACertificate:      "DNA_CERTIFICATE",
	PDI:                 "PDI",
	BitstreamPartialPDI: "BITSTREAM_PARTIAL_PDI",
	PartitionMetadata:   "PARTITION_METADATA",
	EmulationData:       "EMULATION_DATA",
	SystemMetadata:      "SYSTEM_METADATA",
	SoftKernel:          "SOFT_KERNEL",
}

// String implements fmt.Stringer.
func (k SectionKind) String() string {
	if name, found := sectionKindNames[k]; found {
		return name
	}
	return fmt.Sprintf("SectionKind(%d)", uint32(k))
}

// SectionHeader describes one entry of the section table.
type SectionHeader struct {
	Kind   SectionKind
	Name   string
	Offset uint64
	Size   uint64
}

// File is a parsed xclbin.
type File struct {
	data []byte

	// UUID is the identity of the bitstream, the one the runtime reports once it's loaded.
	UUID uuid.UUID

	// Length as declared in the header.
	Length uint64

	// Mode of the xclbin (axlf_header.m_mode).
	Mode uint32

	// Platform is the platform VBNV name the xclbin was built for.
	Platform string

	// Sections table, in file order.
	Sections []SectionHeader
}

// ReadFile reads and parses the xclbin at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading xclbin")
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing xclbin %q", path)
	}
	return f, nil
}

// Parse the xclbin contents in data. The File keeps a reference to data.
func Parse(data []byte) (*File, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		found := data[:min(len(data), len(Magic))]
		return nil, errors.Wrapf(ErrInvalidMagic, "found %q", found)
	}
	if len(data) < headerSize {
		return nil, errors.Wrapf(ErrTruncated, "header needs %d bytes, got only %d", headerSize, len(data))
	}
	f := &File{
		data:     data,
		Length:   binary.LittleEndian.Uint64(data[lengthOffset:]),
		Mode:     binary.LittleEndian.Uint32(data[modeOffset:]),
		Platform: cString(data[platformOffset : platformOffset+platformSize]),
	}
	copy(f.UUID[:], data[uuidOffset:uuidOffset+16])
	numSections := int(binary.LittleEndian.Uint32(data[numSectionsOffset:]))
	if tableEnd := headerSize + numSections*sectionHeaderSize; tableEnd > len(data) {
		return nil, errors.Wrapf(ErrTruncated, "table of %d section headers at bytes [%d, %d) past end of data (%d bytes)",
			numSections, headerSize, tableEnd, len(data))
	}
	f.Sections = make([]SectionHeader, 0, numSections)
	for ii := range numSections {
		start := headerSize + ii*sectionHeaderSize
		raw := data[start : start+sectionHeaderSize]
		header := SectionHeader{
			Kind:   SectionKind(binary.LittleEndian.Uint32(raw)),
			Name:   cString(raw[4 : 4+sectionNameSize]),
			Offset: binary.LittleEndian.Uint64(raw[sectionOffsetField:]),
			Size:   binary.LittleEndian.Uint64(raw[sectionSizeField:]),
		}
		if header.Offset+header.Size > uint64(len(data)) || header.Offset+header.Size < header.Offset {
			return nil, errors.Wrapf(ErrTruncated, "section #%d (%s) at bytes [%d, %d) past end of data (%d bytes)",
				ii, header.Kind, header.Offset, header.Offset+header.Size, len(data))
		}
		f.Sections = append(f.Sections, header)
	}
	return f, nil
}

// Section returns the contents of the first section of the given kind, and whether it was found.
// The returned slice points to the File's data and must not be modified.
func (f *File) Section(kind SectionKind) ([]byte, bool) {
	for _, header := range f.Sections {
		if header.Kind == kind {
			return f.data[header.Offset : header.Offset+header.Size], true
		}
	}
	return nil, false
}

// String implements fmt.Stringer.
func (f *File) String() string {
	return fmt.Sprintf("xclbin(uuid=%s, %d sections)", f.UUID, len(f.Sections))
}

// cString converts a NUL padded fixed size field to a string.
func cString(field []byte) string {
	if idx := bytes.IndexByte(field, 0); idx >= 0 {
		field = field[:idx]
	}
	return string(field)
}

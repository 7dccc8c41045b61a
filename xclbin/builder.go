package xclbin

import (
	"encoding/binary"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// sectionAlignment of the payloads written by Builder.
const sectionAlignment = 8

// Builder writes xclbin containers. It's used to create bitstreams for the emulated accelerator and test fixtures:
// it writes no actual FPGA bitstream.
type Builder struct {
	// UUID written in the header: it's the identity of the bitstream.
	UUID uuid.UUID

	// Platform VBNV name, truncated to 63 bytes.
	Platform string

	sections []builderSection
	err      error
}

type builderSection struct {
	kind SectionKind
	name string
	data []byte
}

// NewBuilder creates a Builder for a bitstream with the given identity.
func NewBuilder(id uuid.UUID) *Builder {
	return &Builder{UUID: id}
}

// AddSection appends a section. The name is truncated to 15 bytes.
func (b *Builder) AddSection(kind SectionKind, name string, data []byte) *Builder {
	b.sections = append(b.sections, builderSection{kind: kind, name: name, data: data})
	return b
}

// AddBuildMetadata appends a BUILD_METADATA section describing the given kernels in one user region.
// Memory groups are only written for arguments with MemoryGroup >= 0.
func (b *Builder) AddBuildMetadata(kernels ...KernelInfo) *Builder {
	if b.err != nil {
		return b
	}
	kernelsList := make([]any, 0, len(kernels))
	for _, kernel := range kernels {
		args := make([]any, 0, len(kernel.Arguments))
		for _, arg := range kernel.Arguments {
			argMap := map[string]any{
				"name":              arg.Name,
				"id":                strconv.Itoa(arg.Index),
				"address_qualifier": strconv.Itoa(int(arg.AddressQualifier)),
				"size":              "0x" + strconv.FormatInt(int64(arg.Size), 16),
				"type":              arg.Type,
			}
			if arg.MemoryGroup >= 0 {
				argMap["memory_group"] = strconv.Itoa(arg.MemoryGroup)
			}
			args = append(args, argMap)
		}
		kernelsList = append(kernelsList, map[string]any{
			"name":      kernel.Name,
			"arguments": args,
		})
	}
	metadata, err := structpb.NewStruct(map[string]any{
		"build_metadata": map[string]any{
			"xclbin": map[string]any{
				"generated_by": map[string]any{"name": "goxrt"},
				"user_regions": []any{
					map[string]any{
						"name":    "OCL_REGION_0",
						"type":    "clc_region",
						"kernels": kernelsList,
					},
				},
			},
		},
	})
	if err != nil {
		b.err = errors.Wrapf(err, "building BUILD_METADATA")
		return b
	}
	raw, err := protojson.MarshalOptions{Indent: "  "}.Marshal(metadata)
	if err != nil {
		b.err = errors.Wrapf(err, "encoding BUILD_METADATA")
		return b
	}
	return b.AddSection(BuildMetadata, "build_metadata", raw)
}

// Bytes returns the encoded xclbin.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	offset := headerSize + len(b.sections)*sectionHeaderSize
	offsets := make([]int, len(b.sections))
	for ii, section := range b.sections {
		offset = alignUp(offset, sectionAlignment)
		offsets[ii] = offset
		offset += len(section.data)
	}
	data := make([]byte, offset)
	copy(data, Magic)
	binary.LittleEndian.PutUint64(data[lengthOffset:], uint64(len(data)))
	copy(data[platformOffset:platformOffset+platformSize-1], b.Platform)
	copy(data[uuidOffset:uuidOffset+16], b.UUID[:])
	binary.LittleEndian.PutUint32(data[numSectionsOffset:], uint32(len(b.sections)))
	for ii, section := range b.sections {
		header := data[headerSize+ii*sectionHeaderSize:]
		binary.LittleEndian.PutUint32(header, uint32(section.kind))
		copy(header[4:4+sectionNameSize-1], section.name)
		binary.LittleEndian.PutUint64(header[sectionOffsetField:], uint64(offsets[ii]))
		binary.LittleEndian.PutUint64(header[sectionSizeField:], uint64(len(section.data)))
		copy(data[offsets[ii]:], section.data)
	}
	return data, nil
}

// WriteFile writes the encoded xclbin to path.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing xclbin to %q", path)
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) / alignment * alignment
}

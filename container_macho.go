package main

import (
	"bytes"
	"encoding/binary"
)

const (
	machMagic64  = 0xfeedfacf
	cpuTypeX8664 = 0x01000007
	cpuTypeArm64 = 0x0100000c

	fatMagic = 0xcafebabe // fat archives are always big-endian on disk
)

// machHeader64 mirrors mach_header_64 from <mach-o/loader.h>.
type machHeader64 struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
	Reserved   uint32
}

// fatHeader mirrors fat_header.
type fatHeader struct {
	Magic    uint32
	NFatArch uint32
}

// fatArch mirrors fat_arch.
type fatArch struct {
	CPUType    uint32
	CPUSubtype uint32
	Offset     uint32
	Size       uint32
	Align      uint32
}

// isFat64 reports whether data begins with a universal (fat) binary header.
func isFat64(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return binary.BigEndian.Uint32(data[0:4]) == fatMagic
}

// isMach64 reports whether data (a single, non-fat slice) begins with a
// well-formed 64-bit Mach-O header.
func isMach64(data []byte) bool {
	if len(data) < binary.Size(machHeader64{}) {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == machMagic64
}

// fatArches parses a universal binary's architecture table.
func fatArches(data []byte) ([]fatArch, error) {
	if len(data) < 8 {
		return nil, &ContainerInvalidError{Reason: "fat archive too small for header"}
	}
	var hdr fatHeader
	if err := binary.Read(bytes.NewReader(data[:8]), binary.BigEndian, &hdr); err != nil {
		return nil, &ContainerInvalidError{Reason: "truncated fat header"}
	}
	if hdr.Magic != fatMagic {
		return nil, &ContainerInvalidError{Reason: "not a fat archive"}
	}

	arches := make([]fatArch, hdr.NFatArch)
	r := bytes.NewReader(data[8:])
	for i := range arches {
		if err := binary.Read(r, binary.BigEndian, &arches[i]); err != nil {
			return nil, &ContainerInvalidError{Reason: "truncated fat_arch entry"}
		}
	}
	return arches, nil
}

// sliceForCPU returns the embedded Mach-O slice in a fat archive matching
// cpuType, plus the slice's offset within the archive.
func sliceForCPU(data []byte, cpuType uint32) ([]byte, int, error) {
	arches, err := fatArches(data)
	if err != nil {
		return nil, 0, err
	}
	for _, a := range arches {
		if a.CPUType == cpuType {
			start, size := int(a.Offset), int(a.Size)
			if start < 0 || size < 0 || start+size > len(data) {
				return nil, 0, &ContainerInvalidError{Reason: "fat_arch slice out of bounds"}
			}
			return data[start : start+size], start, nil
		}
	}
	return nil, 0, &ContainerInvalidError{Reason: "no matching architecture in fat archive"}
}

// machSegmentFor returns the byte region the catalog addresses for the
// requested CPU type, along with its starting offset in data. A top-level
// 64-bit Mach-O skips its header and load commands; a fat archive member
// is returned whole (header included) — catalog addresses for Mac are
// relative to the member's start.
func machSegmentFor(data []byte, cpuType uint32) ([]byte, int, error) {
	if isMach64(data) {
		segment, err := machoSegment(data)
		if err != nil {
			return nil, 0, err
		}
		return segment, len(data) - len(segment), nil
	}
	if isFat64(data) {
		return sliceForCPU(data, cpuType)
	}
	return nil, 0, &ContainerInvalidError{Reason: "not a Mach-O image or fat archive"}
}

// machoSegment returns the bytes of slice following the Mach-O header and
// its load commands: the entire code+data region the synthesis and scan
// engines operate on, without walking the section table.
func machoSegment(slice []byte) ([]byte, error) {
	if len(slice) < binary.Size(machHeader64{}) {
		return nil, &ContainerInvalidError{Reason: "Mach-O slice too small for header"}
	}
	var hdr machHeader64
	if err := binary.Read(bytes.NewReader(slice), binary.LittleEndian, &hdr); err != nil {
		return nil, &ContainerInvalidError{Reason: "truncated mach_header_64"}
	}
	if hdr.Magic != machMagic64 {
		return nil, &ContainerInvalidError{Reason: "missing 64-bit Mach-O magic"}
	}

	off := binary.Size(machHeader64{}) + int(hdr.SizeOfCmds)
	if off > len(slice) {
		return nil, &ContainerInvalidError{Reason: "invalid Mach-O header size"}
	}
	return slice[off:], nil
}

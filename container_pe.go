package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// dosHeader is the DOS stub header at the start of every PE image.
type dosHeader struct {
	Magic    uint16
	PEOffset uint32
}

// coffHeader is the COFF file header that follows the "PE\0\0" signature.
type coffHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// optionalHeader64 is the PE32+ optional header. PE32 (32-bit) images are
// rejected; sigtrace only targets the Windows-x64 platform.
type optionalHeader64 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	ImageBase               uint64
	SectionAlignment        uint32
	FileAlignment           uint32
	MajorOSVersion          uint16
	MinorOSVersion          uint16
	MajorImageVersion       uint16
	MinorImageVersion       uint16
	MajorSubsystemVersion   uint16
	MinorSubsystemVersion   uint16
	Win32VersionValue       uint32
	SizeOfImage             uint32
	SizeOfHeaders           uint32
	CheckSum                uint32
	Subsystem               uint16
	DllCharacteristics      uint16
	SizeOfStackReserve      uint64
	SizeOfStackCommit       uint64
	SizeOfHeapReserve       uint64
	SizeOfHeapCommit        uint64
	LoaderFlags             uint32
	NumberOfRvaAndSizes     uint32
}

// peSectionHeader is a single PE section table entry.
type peSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

func (sh *peSectionHeader) name() string {
	name := string(sh.Name[:])
	if idx := strings.IndexByte(name, 0); idx != -1 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// peImage holds the parsed header chain of an in-memory PE32+ image.
type peImage struct {
	data     []byte
	dos      dosHeader
	coff     coffHeader
	opt      optionalHeader64
	sections []peSectionHeader
}

// isPE64 reports whether data looks like a well-formed PE32+ image and, if
// so, returns the parsed header chain.
func isPE64(data []byte) (*peImage, bool) {
	img, err := parsePE(data)
	if err != nil {
		return nil, false
	}
	return img, true
}

func parsePE(data []byte) (*peImage, error) {
	if len(data) < 0x40 {
		return nil, &ContainerInvalidError{Reason: "file too small for a DOS header"}
	}

	img := &peImage{data: data}
	img.dos.Magic = binary.LittleEndian.Uint16(data[0:2])
	if img.dos.Magic != 0x5A4D { // "MZ"
		return nil, &ContainerInvalidError{Reason: "missing MZ magic"}
	}
	img.dos.PEOffset = binary.LittleEndian.Uint32(data[0x3C:0x40])

	peOff := int(img.dos.PEOffset)
	if peOff < 0 || peOff+4+binary.Size(coffHeader{}) > len(data) {
		return nil, &ContainerInvalidError{Reason: "PE header offset out of range"}
	}

	sig := binary.LittleEndian.Uint32(data[peOff : peOff+4])
	if sig != 0x00004550 { // "PE\0\0"
		return nil, &ContainerInvalidError{Reason: "missing PE signature"}
	}

	r := bytes.NewReader(data[peOff+4:])
	if err := binary.Read(r, binary.LittleEndian, &img.coff); err != nil {
		return nil, &ContainerInvalidError{Reason: "truncated COFF header"}
	}

	if img.coff.SizeOfOptionalHeader == 0 {
		return nil, &ContainerInvalidError{Reason: "no optional header"}
	}

	optStart := peOff + 4 + binary.Size(coffHeader{})
	if optStart+2 > len(data) {
		return nil, &ContainerInvalidError{Reason: "truncated optional header"}
	}
	magic := binary.LittleEndian.Uint16(data[optStart : optStart+2])
	switch magic {
	case 0x020B: // PE32+
		or := bytes.NewReader(data[optStart:])
		if err := binary.Read(or, binary.LittleEndian, &img.opt); err != nil {
			return nil, &ContainerInvalidError{Reason: "truncated PE32+ optional header"}
		}
	case 0x010B:
		return nil, &ContainerInvalidError{Reason: "PE32 (32-bit) images are not supported"}
	default:
		return nil, &ContainerInvalidError{Reason: fmt.Sprintf("unknown optional header magic 0x%04x", magic)}
	}

	secStart := optStart + int(img.coff.SizeOfOptionalHeader)
	img.sections = make([]peSectionHeader, img.coff.NumberOfSections)
	sr := bytes.NewReader(data[secStart:])
	for i := range img.sections {
		if err := binary.Read(sr, binary.LittleEndian, &img.sections[i]); err != nil {
			return nil, &ContainerInvalidError{Reason: fmt.Sprintf("truncated section header %d", i)}
		}
	}

	return img, nil
}

// textSection locates the first section whose name begins with ".text" and
// returns it as a CodeSection. Catalog addresses for Windows-x64 are RVAs, so
// BaseDelta is the section's virtual address: catalogAddr = fileOffsetWithin
// Section + BaseDelta.
func (img *peImage) textSection() (CodeSection, error) {
	for _, sh := range img.sections {
		if strings.HasPrefix(sh.name(), ".text") {
			start := int(sh.PointerToRawData)
			size := int(sh.SizeOfRawData)
			if start < 0 || size < 0 || start+size > len(img.data) {
				return CodeSection{}, &ContainerInvalidError{Reason: ".text section exceeds file bounds"}
			}
			return CodeSection{
				Bytes:     img.data[start : start+size],
				FileStart: uint64(start),
				BaseDelta: int64(sh.VirtualAddress),
			}, nil
		}
	}
	return CodeSection{}, &ContainerInvalidError{Reason: "no .text section found"}
}

package main

// CodeSection is an immutable view over a contiguous byte range of the
// binary file that holds executable code, plus the base correction needed
// to translate between catalog address space and file offsets within this
// range: catalogAddress = offsetWithinBytes + BaseDelta.
type CodeSection struct {
	Bytes     []byte
	FileStart uint64
	BaseDelta int64
}

// ToFileOffset converts a catalog address into an offset within Bytes.
func (cs CodeSection) ToFileOffset(addr uint64) int {
	return int(int64(addr) - cs.BaseDelta)
}

// ToCatalogAddress converts an offset within Bytes back into catalog
// address space.
func (cs CodeSection) ToCatalogAddress(offset int) uint64 {
	return uint64(int64(offset) + cs.BaseDelta)
}

// loadCodeSection parses data as the container format implied by platform
// and returns its code section. platform must already be resolved (auto
// detection happens one level up, in resolvePlatform).
func loadCodeSection(data []byte, platform Platform) (CodeSection, error) {
	switch platform {
	case PlatformWindows:
		img, ok := isPE64(data)
		if !ok {
			return CodeSection{}, &ContainerInvalidError{Reason: "not a PE32+ image"}
		}
		return img.textSection()

	case PlatformM1, PlatformIMac:
		cpuType := uint32(cpuTypeArm64)
		if platform == PlatformIMac {
			cpuType = cpuTypeX8664
		}
		segment, fileStart, err := machSegmentFor(data, cpuType)
		if err != nil {
			return CodeSection{}, err
		}
		// Mac base correction is zero: the catalog already addresses bytes
		// relative to the segment start.
		return CodeSection{Bytes: segment, FileStart: uint64(fileStart), BaseDelta: 0}, nil

	case PlatformIOS:
		segment, fileStart, err := machSegmentFor(data, cpuTypeArm64)
		if err != nil {
			return CodeSection{}, err
		}
		// iOS catalogs address bytes relative to the binary start, so the
		// correction is the segment's own offset into the file.
		return CodeSection{Bytes: segment, FileStart: uint64(fileStart), BaseDelta: int64(fileStart)}, nil

	default:
		return CodeSection{}, &PlatformUnsupportedError{Requested: platform.String()}
	}
}

// resolvePlatform implements C9's platform resolution: an explicit request
// is validated against the binary, "auto" triggers detectPlatform.
func resolvePlatform(data []byte, requested string) (Platform, error) {
	if requested == "" || requested == "auto" {
		return detectPlatform(data)
	}
	return ParsePlatform(requested)
}

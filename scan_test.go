package main

import "testing"

// prologueAt writes a small x86-64 function at offset o and returns the
// section. The call displacement is the churn-prone part.
func prologueAt(size, o int, disp [4]byte, tail byte) []byte {
	section := make([]byte, size)
	code := []byte{
		0x55,             // push rbp
		0x48, 0x89, 0xE5, // mov rbp, rsp
		0xE8, disp[0], disp[1], disp[2], disp[3], // call rel32
		0x5D, // pop rbp
		tail, // ret
	}
	copy(section[o:], code)
	return section
}

// withDecoy adds a near-identical function ending in ret imm16 so that
// synthesis has to grow the pattern through the closing ret.
func withDecoy(section []byte, o int) []byte {
	copy(section[o:], []byte{0x55, 0x48, 0x89, 0xE5, 0xE8, 0xAA, 0xBB, 0xCC, 0xDD, 0x5D, 0xC2})
	return section
}

// TestScanRoundTrip synthesizes a pattern, serializes it through its text
// form, and scans the same binary: the hit must land back on the original
// catalog address, base correction included.
func TestScanRoundTrip(t *testing.T) {
	sectionBytes := withDecoy(prologueAt(0x200, 0x40, [4]byte{0x11, 0x22, 0x33, 0x44}, 0xC3), 0x100)
	section := CodeSection{Bytes: sectionBytes, FileStart: 0x400, BaseDelta: 0x1000}

	const addr = 0x1040
	offset := section.ToFileOffset(addr)
	pattern, err := synthesizePattern(section.Bytes, offset, "Example.method", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}

	reparsed, err := ParsePattern(pattern.String())
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}

	got, err := scanForPattern(section, reparsed, PlatformWindows, "Example.method")
	if err != nil {
		t.Fatalf("scanForPattern: %v", err)
	}
	if got != addr {
		t.Fatalf("scan result = %#x, want %#x", got, addr)
	}
}

// TestScanFindsMovedFunction scans a pattern against a binary where the
// function moved and its call displacement changed: the wildcarded
// displacement still matches, the hit lands at the new offset.
func TestScanFindsMovedFunction(t *testing.T) {
	oldBytes := withDecoy(prologueAt(0x200, 0x40, [4]byte{0x11, 0x22, 0x33, 0x44}, 0xC3), 0x100)
	pattern, err := synthesizePattern(oldBytes, 0x40, "Example.method", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}
	if got := pattern.String(); got != "55 48 89 e5 e8 ?? ?? ?? ?? 5d c3" {
		t.Fatalf("pattern = %q; expected the displacement wildcarded and the rest exact", got)
	}

	newBytes := prologueAt(0x200, 0x80, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, 0xC3)
	newSection := CodeSection{Bytes: newBytes}
	got, err := scanForPattern(newSection, pattern, PlatformWindows, "Example.method")
	if err != nil {
		t.Fatalf("scanForPattern: %v", err)
	}
	if got != 0x80 {
		t.Fatalf("scan result = %#x, want 0x80", got)
	}
}

// TestScanMissesChurnedExactByte checks the converse: when a byte the
// pattern keeps exact changes between builds, the scan reports a miss
// instead of a bogus hit.
func TestScanMissesChurnedExactByte(t *testing.T) {
	oldBytes := withDecoy(prologueAt(0x200, 0x40, [4]byte{0x11, 0x22, 0x33, 0x44}, 0xC3), 0x100)
	pattern, err := synthesizePattern(oldBytes, 0x40, "Example.method", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}

	// ret became ret imm16: an exact byte of the pattern no longer agrees.
	newBytes := prologueAt(0x200, 0x40, [4]byte{0x11, 0x22, 0x33, 0x44}, 0xC2)
	_, err = scanForPattern(CodeSection{Bytes: newBytes}, pattern, PlatformWindows, "Example.method")
	if err == nil {
		t.Fatal("expected a miss after an exact byte churned")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
}

func TestScanClassSkipsMethodsWithoutPatterns(t *testing.T) {
	sectionBytes := prologueAt(0x100, 0x10, [4]byte{1, 2, 3, 4}, 0xC3)
	pattern, err := synthesizePattern(sectionBytes, 0x10, "Example.hit", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}

	class := ClassBinding{
		Name: "Example",
		Methods: []MethodBinding{
			{Method: MethodDecl{Name: "hit"}, Pattern: pattern},
			{Method: MethodDecl{Name: "unpatterned"}},
		},
	}

	cb := scanClass(CodeSection{Bytes: sectionBytes}, PlatformWindows, class)
	if len(cb.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(cb.Methods))
	}
	if !cb.Methods[0].HasHit || cb.Methods[0].Offset != 0x10 {
		t.Fatalf("hit = %v at %#x, want hit at 0x10", cb.Methods[0].HasHit, cb.Methods[0].Offset)
	}
}

// Same-named overloads each carry their own pattern and must resolve to
// their own offsets.
func TestScanClassHandlesOverloadsIndependently(t *testing.T) {
	sectionBytes := make([]byte, 0x100)
	copy(sectionBytes[0x10:], []byte{0x90, 0x90, 0x31, 0xC0, 0xC3})
	copy(sectionBytes[0x40:], []byte{0x90, 0x90, 0x48, 0x31, 0xC9, 0xC3})

	first, err := synthesizePattern(sectionBytes, 0x10, "Example.setup", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern(first overload): %v", err)
	}
	second, err := synthesizePattern(sectionBytes, 0x40, "Example.setup", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern(second overload): %v", err)
	}

	class := ClassBinding{
		Name: "Example",
		Methods: []MethodBinding{
			{Method: MethodDecl{Name: "setup", Args: []Arg{{Name: "a", Type: "int"}}}, Pattern: first},
			{Method: MethodDecl{Name: "setup", Args: []Arg{{Name: "a", Type: "float"}}}, Pattern: second},
		},
	}

	cb := scanClass(CodeSection{Bytes: sectionBytes}, PlatformWindows, class)
	if len(cb.Methods) != 2 {
		t.Fatalf("got %d methods, want 2", len(cb.Methods))
	}
	if !cb.Methods[0].HasHit || cb.Methods[0].Offset != 0x10 {
		t.Fatalf("first overload = %v at %#x, want hit at 0x10", cb.Methods[0].HasHit, cb.Methods[0].Offset)
	}
	if !cb.Methods[1].HasHit || cb.Methods[1].Offset != 0x40 {
		t.Fatalf("second overload = %v at %#x, want hit at 0x40", cb.Methods[1].HasHit, cb.Methods[1].Offset)
	}
}

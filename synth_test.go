package main

import "testing"

// TestSynthesizeX86FunctionPrologue reproduces the canonical scenario of a
// push rbp / mov rbp, rsp / call rel32 / pop rbp / ret prologue: the only
// bytes that should end up wildcarded are the call's 4-byte displacement.
func TestSynthesizeX86FunctionPrologue(t *testing.T) {
	section := make([]byte, 0x1000+16)
	code := []byte{
		0x55,             // push rbp
		0x48, 0x89, 0xE5, // mov rbp, rsp
		0xE8, 0x11, 0x22, 0x33, 0x44, // call rel32
		0x5D, // pop rbp
		0xC3, // ret
	}
	copy(section[0x1000:], code)
	// A near-identical function earlier in the section, differing only in
	// its call displacement and its closing ret form: forces the loop to
	// grow all the way to the final ret before uniqueness holds.
	decoy := []byte{0x55, 0x48, 0x89, 0xE5, 0xE8, 0xAA, 0xBB, 0xCC, 0xDD, 0x5D, 0xC2}
	copy(section[0x100:], decoy)

	pattern, err := synthesizePattern(section, 0x1000, "Example.method", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}

	want := "55 48 89 e5 e8 ?? ?? ?? ?? 5d c3"
	if got := pattern.String(); got != want {
		t.Fatalf("pattern = %q, want %q", got, want)
	}
}

// TestSynthesizePatternIsUniqueAtOffset ensures that whenever a look-alike
// prefix precedes the target offset, synthesis grows the pattern long
// enough to disambiguate from it rather than stopping early.
func TestSynthesizePatternIsUniqueAtOffset(t *testing.T) {
	section := make([]byte, 0x200)
	lookalike := []byte{0x90, 0x90, 0xC3}
	target := []byte{0x90, 0x90, 0x31, 0xC0, 0xC3}
	copy(section[0x10:], lookalike)
	copy(section[0x40:], target)

	pattern, err := synthesizePattern(section, 0x40, "Example.method", ArchX86_64, defaultMaxTokens)
	if err != nil {
		t.Fatalf("synthesizePattern: %v", err)
	}

	if got := find(section, pattern, 1); got != 0x40 {
		t.Fatalf("synthesized pattern matches at %x, want 0x40 (uniquely)", got)
	}
	if second := find(section[0x41:], pattern, 1); second != -1 {
		t.Fatalf("synthesized pattern matches again at relative %x; expected unique", second)
	}
}

// TestSynthesizeDeterministic checks that synthesizing the same offset
// twice always yields byte-identical patterns.
func TestSynthesizeDeterministic(t *testing.T) {
	section := make([]byte, 0x100)
	copy(section[0x20:], []byte{0x90, 0x90, 0x90, 0xC3})

	a, errA := synthesizePattern(section, 0x20, "Example.method", ArchX86_64, defaultMaxTokens)
	b, errB := synthesizePattern(section, 0x20, "Example.method", ArchX86_64, defaultMaxTokens)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v / %v", errA, errB)
	}
	if a.String() != b.String() {
		t.Fatalf("non-deterministic synthesis: %q vs %q", a.String(), b.String())
	}
}

// TestSynthesizeInvalidFirstInstruction checks that a decode failure at the
// method's own starting offset is reported as InvalidInstruction, not
// NotFound — distinct from a later decode failure during growth.
func TestSynthesizeInvalidFirstInstruction(t *testing.T) {
	// A lone REX prefix as the very last byte of the section cannot be
	// decoded into any instruction.
	section := make([]byte, 0x10)
	section[0xF] = 0x48

	_, err := synthesizePattern(section, 0xF, "Example.method", ArchX86_64, defaultMaxTokens)
	if err == nil {
		t.Fatal("expected an error for an undecodable first instruction")
	}
	if _, ok := err.(*InvalidInstructionError); !ok {
		t.Fatalf("error type = %T, want *InvalidInstructionError", err)
	}
}

// TestSynthesizeInt3FirstInstruction checks the padding case: a method
// whose first byte is int3 fails with NotFound, the same way hitting
// padding mid-growth does, and the run carries on.
func TestSynthesizeInt3FirstInstruction(t *testing.T) {
	section := make([]byte, 0x20)
	for i := range section {
		section[i] = 0xCC
	}

	_, err := synthesizePattern(section, 0x8, "Example.method", ArchX86_64, defaultMaxTokens)
	if err == nil {
		t.Fatal("expected an error for an int3 first instruction")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
}

// TestSynthesizePatternTooLarge checks that a method whose pattern never
// becomes unique within the token budget fails with PatternTooLarge rather
// than looping forever or silently truncating.
func TestSynthesizePatternTooLarge(t *testing.T) {
	// A long run of identical nop instructions repeated well past offset 0,
	// so no amount of token growth (bounded by a tiny budget) can prove
	// uniqueness of the copy starting partway through the run.
	section := make([]byte, 64)
	for i := range section {
		section[i] = 0x90
	}

	_, err := synthesizePattern(section, 32, "Example.method", ArchX86_64, 4)
	if err == nil {
		t.Fatal("expected PatternTooLarge for a pattern that cannot become unique in budget")
	}
	if _, ok := err.(*PatternTooLargeError); !ok {
		t.Fatalf("error type = %T, want *PatternTooLargeError", err)
	}
}

func TestSynthesizeClassSkipsNonOffsetBindings(t *testing.T) {
	section := CodeSection{Bytes: make([]byte, 0x100), FileStart: 0, BaseDelta: 0}
	copy(section.Bytes[0x10:], []byte{0x90, 0x90, 0x90, 0xC3})

	class := ClassDecl{
		Name: "Example",
		Methods: []MethodDecl{
			{Name: "offsetMethod", Binding: Binding{PlatformWindows: {Kind: AddressOffset, Value: 0x10}}},
			{Name: "linkedMethod", Binding: Binding{PlatformWindows: {Kind: AddressLink}}},
			{Name: "nullMethod", Binding: Binding{}},
		},
	}

	cb := synthesizeClass(section, PlatformWindows, class)
	if len(cb.Methods) != 1 {
		t.Fatalf("got %d methods, want 1 (only the Offset-kind binding)", len(cb.Methods))
	}
	if cb.Methods[0].Method.Name != "offsetMethod" {
		t.Fatalf("got method %q, want offsetMethod", cb.Methods[0].Method.Name)
	}
}

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Token is a single position in a Pattern: a byte value plus the mask of
// bits that must agree with the haystack. Mask 0xff is an exact byte, mask
// 0x00 a full wildcard; the AArch64 generator also emits partial masks,
// keeping only the opcode/register bits of an instruction byte. Value is
// stored pre-masked (Value == raw & Mask).
type Token struct {
	Value byte
	Mask  byte
}

func byteToken(v byte) Token { return Token{Value: v, Mask: 0xff} }

func wildcardToken() Token { return Token{} }

func (t Token) isWildcard() bool { return t.Mask == 0 }

// Pattern is an ordered sequence of Tokens, the masked byte signature the
// synthesis loop grows and the scanner searches for.
type Pattern []Token

// String renders a Pattern in its canonical hex text form: lowercase,
// two-digit hex per non-wildcard byte, "??" per wildcard, tokens
// space-separated. Partial masks survive only in memory: the text form is
// byte-granular, so a partially-masked token is written as its masked
// value and reads back as an exact byte.
func (p Pattern) String() string {
	var sb strings.Builder
	for i, t := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if t.isWildcard() {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02x", t.Value)
		}
	}
	return sb.String()
}

// ParsePattern parses the canonical hex text form back into a Pattern. Input
// hex digits are accepted case-insensitively; output is always lowercase,
// so parsing and re-rendering a pattern is stable.
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(s)
	p := make(Pattern, 0, len(fields))
	for _, f := range fields {
		if f == "??" {
			p = append(p, wildcardToken())
			continue
		}
		if len(f) != 2 {
			return nil, fmt.Errorf("invalid pattern token %q: expected 2 hex digits or ??", f)
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern token %q: %v", f, err)
		}
		p = append(p, byteToken(byte(v)))
	}
	return p, nil
}

// find returns the smallest index i, with i%step == 0, at which every
// non-wildcard token of pattern matches haystack starting at i. It returns
// -1 if no such index exists.
func find(haystack []byte, pattern Pattern, step int) int {
	if step <= 0 {
		step = 1
	}
	if len(pattern) == 0 || len(haystack) < len(pattern) {
		return -1
	}
	limit := len(haystack) - len(pattern)
	for i := 0; i <= limit; i += step {
		if matchAt(haystack, pattern, i) {
			return i
		}
	}
	return -1
}

func matchAt(haystack []byte, pattern Pattern, i int) bool {
	for j, t := range pattern {
		if haystack[i+j]&t.Mask != t.Value {
			return false
		}
	}
	return true
}

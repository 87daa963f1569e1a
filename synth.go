package main

// defaultMaxTokens is the synthesis budget: a pattern that hasn't become
// unique after this many tokens fails with PatternTooLarge.
const defaultMaxTokens = 256

// synthesizePattern grows the shortest masked token sequence that matches
// section uniquely at offset o: find(section, pattern, iterSize) == o and
// find(section[o+1:], pattern, iterSize) == not found.
//
// The loop mirrors the original incremental uniqueness search: it tracks a
// search window [lastFound, end) and a target distance from lastFound to
// where the pattern is still expected to match. Each new instruction's
// tokens either confirm the pattern still lands only at its own offset (in
// which case uniqueness is checked by re-searching from o+1) or reveal an
// earlier look-alike, in which case the window slides forward to that
// look-alike and growth continues.
func synthesizePattern(section []byte, o int, methodName string, arch Arch, maxTokens int) (Pattern, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	gen := newStepGenerator(arch)
	iterSize := gen.iterSize()

	var tokens Pattern
	lastFound := 0
	target := o

	pos := o
	for {
		next, length, err := gen.next(section, pos)
		if err != nil {
			// A decode failure on the method's very first instruction is
			// worth telling apart from running into padding later on; a
			// pattern always matches at its own start, so any later stop
			// just means "could not grow to uniqueness".
			if len(tokens) == 0 && err != errEndOfStream {
				return nil, &InvalidInstructionError{Method: methodName, Offset: pos, Err: err}
			}
			return nil, &NotFoundError{Method: methodName}
		}
		tokens = append(tokens, next...)
		pos += length

		i := find(section[lastFound:], tokens, iterSize)
		switch {
		case i == target:
			if o+1 > len(section) {
				return tokens, nil
			}
			tail := find(section[o+1:], tokens, iterSize)
			if tail == -1 {
				return tokens, nil
			}
			lastFound += i
			target = 0

		case i != -1:
			target -= i
			lastFound += i

		default:
			return nil, &NotFoundError{Method: methodName}
		}

		if len(tokens) > maxTokens {
			return nil, &PatternTooLargeError{Method: methodName, Budget: maxTokens}
		}
	}
}

// synthesizeClass runs pattern synthesis for every method in class whose
// binding on platform is Offset-kind. Methods with any other kind are
// skipped (not an error) and carry neither a pattern nor an error.
func synthesizeClass(section CodeSection, platform Platform, class ClassDecl) ClassBinding {
	cb := ClassBinding{Name: class.Name}
	for _, method := range class.Methods {
		addr, ok := method.Binding[platform]
		if !ok || addr.Kind != AddressOffset {
			continue
		}

		offset := section.ToFileOffset(addr.Value)
		pattern, err := synthesizePattern(section.Bytes, offset, class.Name+"."+method.Name, platform.Arch(), defaultMaxTokens)
		mb := MethodBinding{Method: method, Pattern: pattern, Err: err}
		cb.Methods = append(cb.Methods, mb)
	}
	return cb
}

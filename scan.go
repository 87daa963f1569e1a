package main

// scanForPattern locates pattern within section using platform's scan step
// and returns the catalog address of the first match, or a NotFoundError.
// Unlike synthesis, the scanner never re-verifies uniqueness: it trusts
// that the pattern was already proven unique at synthesis time.
func scanForPattern(section CodeSection, pattern Pattern, platform Platform, methodName string) (uint64, error) {
	hit := find(section.Bytes, pattern, platform.ScanStep())
	if hit == -1 {
		return 0, &NotFoundError{Method: methodName}
	}
	return section.ToCatalogAddress(hit), nil
}

// scanClass runs pattern scanning over one class from the pattern catalog,
// method by method in catalog order. Each method carries its own pattern,
// so same-named overloads are scanned independently. Methods with no
// pattern recorded (e.g. they were skipped at synthesis time) are skipped
// here too.
func scanClass(section CodeSection, platform Platform, class ClassBinding) ClassBinding {
	cb := ClassBinding{Name: class.Name}
	for _, mb := range class.Methods {
		if len(mb.Pattern) == 0 {
			continue
		}

		addr, err := scanForPattern(section, mb.Pattern, platform, class.Name+"."+mb.Method.Name)
		result := MethodBinding{Method: mb.Method, Err: err}
		if err == nil {
			result.Offset = addr
			result.HasHit = true
		}
		cb.Methods = append(cb.Methods, result)
	}
	return cb
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// catalog_text implements the binding catalog's grammar: the input format
// is out of core scope (the bridge's consumed contract, not part of the
// synthesis/scan engine itself), so this is a minimal, self-consistent
// declarative grammar good enough to round-trip the data model, in the
// spirit of a small hand-written scanner and parser with no
// parser-generator involved:
//
//	ClassName {
//	    ReturnType methodName(ArgType argName, ...) = win: 0x1000, m1: link, ios: null;
//	}
//
// Each platform entry on the right of "=" is one of: a hex/decimal integer
// (Offset), "link", "inlined", or "null" (the default for any platform
// left unmentioned).

var catalogPlatformKeys = map[string]Platform{
	"win":  PlatformWindows,
	"imac": PlatformIMac,
	"m1":   PlatformM1,
	"ios":  PlatformIOS,
}

// Android entries are part of the catalog schema but not targetable by the
// synthesis/scan core: their addresses parse fine and are discarded.
var catalogIgnoredKeys = map[string]bool{
	"android32": true,
	"android64": true,
}

// readBindings parses a binding catalog file into its class declarations.
func readBindings(path string) ([]ClassDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CatalogIOError{Path: path, Err: err}
	}
	classes, err := parseCatalogText(string(data))
	if err != nil {
		return nil, &CatalogParseError{Path: path, Err: err}
	}
	return classes, nil
}

type catalogLexer struct {
	src string
	pos int
}

func (l *catalogLexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		if c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func (l *catalogLexer) peek() byte {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (l *catalogLexer) ident() (string, error) {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return "", fmt.Errorf("expected identifier at position %d", start)
	}
	return l.src[start:l.pos], nil
}

func (l *catalogLexer) expect(c byte) error {
	if l.peek() != c {
		return fmt.Errorf("expected %q at position %d", c, l.pos)
	}
	l.pos++
	return nil
}

func parseCatalogText(src string) ([]ClassDecl, error) {
	l := &catalogLexer{src: src}
	var classes []ClassDecl

	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			break
		}
		class, err := parseClass(l)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, nil
}

func parseClass(l *catalogLexer) (ClassDecl, error) {
	name, err := l.ident()
	if err != nil {
		return ClassDecl{}, err
	}
	if err := l.expect('{'); err != nil {
		return ClassDecl{}, err
	}

	class := ClassDecl{Name: name}
	for l.peek() != '}' {
		method, err := parseMethod(l)
		if err != nil {
			return ClassDecl{}, err
		}
		class.Methods = append(class.Methods, method)
	}
	if err := l.expect('}'); err != nil {
		return ClassDecl{}, err
	}
	return class, nil
}

func parseMethod(l *catalogLexer) (MethodDecl, error) {
	returnType, err := l.ident()
	if err != nil {
		return MethodDecl{}, err
	}
	name, err := l.ident()
	if err != nil {
		return MethodDecl{}, err
	}
	if err := l.expect('('); err != nil {
		return MethodDecl{}, err
	}

	var args []Arg
	for l.peek() != ')' {
		argType, err := l.ident()
		if err != nil {
			return MethodDecl{}, err
		}
		argName, err := l.ident()
		if err != nil {
			return MethodDecl{}, err
		}
		args = append(args, Arg{Name: argName, Type: argType})
		if l.peek() == ',' {
			l.pos++
		}
	}
	if err := l.expect(')'); err != nil {
		return MethodDecl{}, err
	}

	binding := Binding{}
	if l.peek() == '=' {
		l.pos++
		for {
			key, err := l.ident()
			if err != nil {
				return MethodDecl{}, err
			}
			platform, ok := catalogPlatformKeys[strings.ToLower(key)]
			if !ok && !catalogIgnoredKeys[strings.ToLower(key)] {
				return MethodDecl{}, fmt.Errorf("unknown platform key %q", key)
			}
			if err := l.expect(':'); err != nil {
				return MethodDecl{}, err
			}
			addr, err := parseAddress(l)
			if err != nil {
				return MethodDecl{}, err
			}
			if ok {
				binding[platform] = addr
			}
			if l.peek() == ',' {
				l.pos++
				continue
			}
			break
		}
	}
	if err := l.expect(';'); err != nil {
		return MethodDecl{}, err
	}

	return MethodDecl{Name: name, ReturnType: returnType, Args: args, Binding: binding}, nil
}

func parseAddress(l *catalogLexer) (Address, error) {
	l.skipSpace()
	if l.pos < len(l.src) && (l.src[l.pos] == '0' && l.pos+1 < len(l.src) && (l.src[l.pos+1] == 'x' || l.src[l.pos+1] == 'X') || (l.src[l.pos] >= '0' && l.src[l.pos] <= '9')) {
		start := l.pos
		for l.pos < len(l.src) && (isIdentByte(l.src[l.pos])) {
			l.pos++
		}
		text := l.src[start:l.pos]
		v, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address literal %q: %v", text, err)
		}
		return Address{Kind: AddressOffset, Value: v}, nil
	}

	word, err := l.ident()
	if err != nil {
		return Address{}, err
	}
	switch strings.ToLower(word) {
	case "null":
		return Address{Kind: AddressNull}, nil
	case "link":
		return Address{Kind: AddressLink}, nil
	case "inlined":
		return Address{Kind: AddressInlined}, nil
	default:
		return Address{}, fmt.Errorf("unknown address keyword %q", word)
	}
}

// formatCatalogText renders class declarations back to the same grammar,
// used by "catalog format" and as the write-half of "catalog merge".
func formatCatalogText(classes []ClassDecl) string {
	var sb strings.Builder
	for _, c := range classes {
		fmt.Fprintf(&sb, "%s {\n", c.Name)
		for _, m := range c.Methods {
			var args []string
			for _, a := range m.Args {
				args = append(args, fmt.Sprintf("%s %s", a.Type, a.Name))
			}
			fmt.Fprintf(&sb, "    %s %s(%s)", m.ReturnType, m.Name, strings.Join(args, ", "))

			var parts []string
			for _, key := range []string{"win", "imac", "m1", "ios"} {
				p := catalogPlatformKeys[key]
				addr, ok := m.Binding[p]
				if !ok {
					continue
				}
				parts = append(parts, fmt.Sprintf("%s: %s", key, formatAddress(addr)))
			}
			if len(parts) > 0 {
				fmt.Fprintf(&sb, " = %s", strings.Join(parts, ", "))
			}
			sb.WriteString(";\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}

func formatAddress(a Address) string {
	switch a.Kind {
	case AddressOffset:
		return fmt.Sprintf("0x%x", a.Value)
	case AddressLink:
		return "link"
	case AddressInlined:
		return "inlined"
	default:
		return "null"
	}
}

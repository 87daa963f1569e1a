package main

import (
	"encoding/json"
	"os"
)

type jsonArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonFunction struct {
	Name    string    `json:"name"`
	Return  string    `json:"return"`
	Args    []jsonArg `json:"args"`
	Pattern *string   `json:"pattern,omitempty"`
	Offset  *uint64   `json:"offset,omitempty"`
}

type jsonClass struct {
	Name      string         `json:"name"`
	Functions []jsonFunction `json:"functions"`
}

type jsonCatalog struct {
	Platform string      `json:"platform"`
	Classes  []jsonClass `json:"classes"`
}

func toJSONArgs(args []Arg) []jsonArg {
	out := make([]jsonArg, len(args))
	for i, a := range args {
		out[i] = jsonArg{Name: a.Name, Type: a.Type}
	}
	return out
}

// writePatterns writes the pattern catalog (synthesis output). Only
// methods whose synthesis succeeded appear; anything missing is a failure
// by definition. Classes left with no methods are dropped entirely.
func writePatterns(path string, platform Platform, classes []ClassBinding) error {
	cat := jsonCatalog{Platform: platform.String()}
	for _, cb := range classes {
		jc := jsonClass{Name: cb.Name}
		for _, mb := range cb.Methods {
			if mb.Err != nil || mb.Pattern == nil {
				continue
			}
			s := mb.Pattern.String()
			jc.Functions = append(jc.Functions, jsonFunction{
				Name:    mb.Method.Name,
				Return:  mb.Method.ReturnType,
				Args:    toJSONArgs(mb.Method.Args),
				Pattern: &s,
			})
		}
		if len(jc.Functions) > 0 {
			cat.Classes = append(cat.Classes, jc)
		}
	}
	return writeCatalogJSON(path, cat)
}

// writeScanResults writes the scan-result catalog: only methods that were
// successfully located appear, each carrying an "offset" integer and no
// "pattern" field.
func writeScanResults(path string, platform Platform, classes []ClassBinding) error {
	cat := jsonCatalog{Platform: platform.String()}
	for _, cb := range classes {
		jc := jsonClass{Name: cb.Name}
		for _, mb := range cb.Methods {
			if mb.Err != nil || !mb.HasHit {
				continue
			}
			offset := mb.Offset
			jc.Functions = append(jc.Functions, jsonFunction{
				Name:   mb.Method.Name,
				Return: mb.Method.ReturnType,
				Args:   toJSONArgs(mb.Method.Args),
				Offset: &offset,
			})
		}
		if len(jc.Functions) > 0 {
			cat.Classes = append(cat.Classes, jc)
		}
	}
	return writeCatalogJSON(path, cat)
}

func writeCatalogJSON(path string, cat jsonCatalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return &CatalogIOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &CatalogIOError{Path: path, Err: err}
	}
	return nil
}

// readPatternCatalog reads a pattern catalog back (used by "catalog merge"
// and by scan, which consumes exactly this shape as its input).
func readPatternCatalog(path string) (Platform, []ClassBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, &CatalogIOError{Path: path, Err: err}
	}

	var cat jsonCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return 0, nil, &CatalogParseError{Path: path, Err: err}
	}

	platform, err := ParsePlatform(cat.Platform)
	if err != nil {
		return 0, nil, &CatalogParseError{Path: path, Err: err}
	}

	classes := make([]ClassBinding, 0, len(cat.Classes))
	for _, jc := range cat.Classes {
		cb := ClassBinding{Name: jc.Name}
		for _, fn := range jc.Functions {
			method := MethodDecl{Name: fn.Name, ReturnType: fn.Return}
			for _, a := range fn.Args {
				method.Args = append(method.Args, Arg{Name: a.Name, Type: a.Type})
			}
			mb := MethodBinding{Method: method}
			if fn.Pattern != nil {
				p, err := ParsePattern(*fn.Pattern)
				if err != nil {
					return 0, nil, &CatalogParseError{Path: path, Err: err}
				}
				mb.Pattern = p
			}
			if fn.Offset != nil {
				mb.Offset = *fn.Offset
				mb.HasHit = true
			}
			cb.Methods = append(cb.Methods, mb)
		}
		classes = append(classes, cb)
	}
	return platform, classes, nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

const usageText = `sigtrace - cross-platform binary pattern synthesis & scan toolchain

Usage:
  sigtrace synth   [-p PLATFORM] [-v] <binary> <catalog> <output.json>
  sigtrace scan    [-p PLATFORM] [-v] <binary> <patterns.json> <output.json>
  sigtrace catalog merge  <catalog> <scan-results.json> <output>
  sigtrace catalog clear  <catalog> <platform> <output>
  sigtrace catalog format <catalog> <output>
  sigtrace version
  sigtrace help

Platforms: auto, win, imac, m1, ios
`

// RunCLI dispatches to the requested subcommand.
func RunCLI(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("no subcommand given")
	}

	switch args[0] {
	case "synth":
		return cmdSynth(args[1:])
	case "scan":
		return cmdScan(args[1:])
	case "catalog":
		return cmdCatalog(args[1:])
	case "version", "-v", "--version":
		fmt.Println(versionString)
		return nil
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return nil
	default:
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func cmdSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	platform := fs.String("p", "auto", "target platform (auto, win, imac, m1, ios)")
	verbose := fs.Bool("v", false, "verbose progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 3 {
		return fmt.Errorf("synth: expected <binary> <catalog> <output.json>")
	}

	start := time.Now()
	err := runSynth(rest[0], rest[1], rest[2], *platform, *verbose)
	if err == nil {
		fmt.Printf("Synthesis completed in %d ms\n", time.Since(start).Milliseconds())
	}
	return err
}

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	platform := fs.String("p", "auto", "target platform (auto, win, imac, m1, ios)")
	verbose := fs.Bool("v", false, "verbose progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 3 {
		return fmt.Errorf("scan: expected <binary> <patterns.json> <output.json>")
	}

	start := time.Now()
	err := runScan(rest[0], rest[1], rest[2], *platform, *verbose)
	if err == nil {
		fmt.Printf("Scan completed in %d ms\n", time.Since(start).Milliseconds())
	}
	return err
}

func cmdCatalog(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("catalog: expected a subcommand (merge, clear, format)")
	}
	switch args[0] {
	case "merge":
		return cmdCatalogMerge(args[1:])
	case "clear":
		return cmdCatalogClear(args[1:])
	case "format":
		return cmdCatalogFormat(args[1:])
	default:
		return fmt.Errorf("catalog: unknown subcommand: %s", args[0])
	}
}

func cmdCatalogMerge(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("catalog merge: expected <catalog> <scan-results.json> <output>")
	}
	classes, err := readBindings(args[0])
	if err != nil {
		return err
	}
	platform, scanResults, err := readPatternCatalog(args[1])
	if err != nil {
		return err
	}

	offsets := make(map[string]uint64)
	for _, cb := range scanResults {
		for _, mb := range cb.Methods {
			if mb.HasHit {
				offsets[cb.Name+"."+mb.Method.Name] = mb.Offset
			}
		}
	}

	for ci := range classes {
		for mi := range classes[ci].Methods {
			key := classes[ci].Name + "." + classes[ci].Methods[mi].Name
			if offset, ok := offsets[key]; ok {
				if classes[ci].Methods[mi].Binding == nil {
					classes[ci].Methods[mi].Binding = Binding{}
				}
				classes[ci].Methods[mi].Binding[platform] = Address{Kind: AddressOffset, Value: offset}
			}
		}
	}

	return os.WriteFile(args[2], []byte(formatCatalogText(classes)), 0o644)
}

func cmdCatalogClear(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("catalog clear: expected <catalog> <platform> <output>")
	}
	classes, err := readBindings(args[0])
	if err != nil {
		return err
	}
	platform, err := ParsePlatform(args[1])
	if err != nil {
		return err
	}

	for ci := range classes {
		for mi := range classes[ci].Methods {
			delete(classes[ci].Methods[mi].Binding, platform)
		}
	}

	return os.WriteFile(args[2], []byte(formatCatalogText(classes)), 0o644)
}

func cmdCatalogFormat(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("catalog format: expected <catalog> <output>")
	}
	classes, err := readBindings(args[0])
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], []byte(formatCatalogText(classes)), 0o644)
}

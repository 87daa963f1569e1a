package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
)

// numWorkers is the fixed worker pool size; overridable via
// SIGTRACE_WORKERS for local tuning without a recompile.
var numWorkers = env.Int("SIGTRACE_WORKERS", 8)

func classDeclHasWork(c ClassDecl) bool { return len(c.Methods) > 0 }

func classBindingHasWork(cb ClassBinding) bool { return len(cb.Methods) > 0 }

// runSynth implements the synthesis orchestration: resolve platform, load
// the binary's code section, read the binding catalog, fan synthesis out
// over the job driver, write the pattern catalog, print a summary.
func runSynth(binaryPath, catalogPath, outputPath, platformReq string, verbose bool) error {
	data, closeBinary, err := loadBinary(binaryPath)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	defer closeBinary()

	platform, err := resolvePlatform(data, platformReq)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "resolved platform: %s\n", platform)
	}

	section, err := loadCodeSection(data, platform)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "code section: %d bytes (base correction %d)\n", len(section.Bytes), section.BaseDelta)
	}

	classes, err := readBindings(catalogPath)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "read catalog: %d classes\n", len(classes))
	}

	process := func(class ClassDecl) ClassBinding {
		return synthesizeClass(section, platform, class)
	}
	results, total, successful, failed := runJobs(numWorkers, classes, classDeclHasWork, process)

	if err := writePatterns(outputPath, platform, results); err != nil {
		return err
	}

	printSummary("Synthesis", total, successful, failed)
	return nil
}

// runScan implements the scan orchestration: resolve platform, load the
// binary's code section, read the pattern catalog, fan scanning out over
// the job driver, write the scan-result catalog, print a summary.
func runScan(binaryPath, patternsPath, outputPath, platformReq string, verbose bool) error {
	data, closeBinary, err := loadBinary(binaryPath)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	defer closeBinary()

	catalogPlatform, classBindings, err := readPatternCatalog(patternsPath)
	if err != nil {
		return err
	}

	platform := catalogPlatform
	if platformReq != "" && platformReq != "auto" {
		platform, err = ParsePlatform(platformReq)
		if err != nil {
			return err
		}
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "resolved platform: %s\n", platform)
	}

	section, err := loadCodeSection(data, platform)
	if err != nil {
		return err
	}

	process := func(class ClassBinding) ClassBinding {
		return scanClass(section, platform, class)
	}
	results, total, successful, failed := runJobs(numWorkers, classBindings, classBindingHasWork, process)

	if err := writeScanResults(outputPath, platform, results); err != nil {
		return err
	}

	printSummary("Scan", total, successful, failed)
	return nil
}

func printSummary(verb string, total, successful, failed int64) {
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(successful) / float64(total)
	}
	fmt.Printf("%s complete: %d methods found, %d methods not found (%.1f%%)\n", verb, successful, failed, pct)
}

package main

import (
	"fmt"
	"os"
)

const versionString = "sigtrace 1.0.0"

func main() {
	if err := RunCLI(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

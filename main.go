// Package main prints a pointer to the rvcommit command.
//
// For the full CLI, use: go run ./cmd/rvcommit
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvcommit - RISC-V commit trace and cosimulation engine")
	fmt.Println("")
	fmt.Println("Usage: rvcommit <command> [flags] <args> [+plusargs]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run      Run a program and trace every retirement")
	fmt.Println("  record   Run a program and record its commit events")
	fmt.Println("  replay   Format a recorded event stream into a trace")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvcommit --help' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvcommit' instead.")
	}
}

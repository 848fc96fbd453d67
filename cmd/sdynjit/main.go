// cmd/sdynjit is the CLI entry point (SPEC_FULL.md §1: a minimal cmd/
// driver, grounded on cmd/sentra/main.go's command-dispatch style, that
// carries no feature weight).
package main

import (
	"fmt"
	"log"
	"os"

	"sdynjit/internal/driver"
)

const version = "0.1.0"

// commandAliases mirrors cmd/sentra/main.go's alias map, scaled down to
// the handful of commands this CLI actually needs.
var commandAliases = map[string]string{
	"r": "run",
	"v": "version",
	"h": "help",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "run":
		if len(args) < 2 {
			log.Fatal("usage: sdynjit run <file>")
		}
		runFile(args[1])
	case "version", "--version", "-v":
		fmt.Println("sdynjit " + version)
	case "help", "--help", "-h":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

func runFile(path string) {
	source, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("sdynjit: %v", err)
	}
	if err := driver.Run(string(source)); err != nil {
		log.Fatalf("sdynjit: %v", err)
	}
}

func showUsage() {
	fmt.Println(`sdynjit - a baseline-JIT compiler for a tiny dynamically-typed scripting language

Usage:
  sdynjit run <file>     compile and execute a source file
  sdynjit version        print the version
  sdynjit help           show this message

Aliases: r=run, v=version, h=help`)
}

// Command unitd-lint parses a unit file and reports parse errors, or, with
// -print, renders the parsed config back out via unitconfig.Serialize to
// verify round-trip fidelity — mirroring cmd/bulk-delete's role as a small
// standalone operational tool alongside the main binary.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edirooss/unitd/internal/unitconfig"
)

func main() {
	print := flag.Bool("print", false, "print the parsed config back out")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Println("Usage: unitd-lint [-print] unit-file [unit-file ...]")
		os.Exit(1)
	}

	exitCode := 0
	for _, path := range paths {
		cfg, err := unitconfig.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		fmt.Printf("%s: OK (%s)\n", path, cfg.Service.String())
		if *print {
			fmt.Println(unitconfig.Serialize(cfg))
		}
	}
	os.Exit(exitCode)
}

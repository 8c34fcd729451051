// Command txmctl drives the transmission X-ray microscope from the shell:
// energy moves, energy scans, stepped tomography scans and the monitoring
// server. Instrument settings come from a YAML profile plus environment
// overrides loaded from .env.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "txmctl:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// hfo is the CLI for the HFO daemon fleet: the stigmergy event store,
// the coordinator, the supervisors, and the audit tools.
package main

import (
	"os"

	"github.com/hivefleet/hfo/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

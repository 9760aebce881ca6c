// Command coregatectl is the operator CLI for the Grace Coordinator: it
// talks to the configured backing store directly, since this core has no
// network RPC surface of its own.
package main

import (
	"fmt"
	"os"

	"github.com/coregate/coregate/cmd/coregatectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

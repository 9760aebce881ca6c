// Command coregate runs the connection lifecycle and grace coordination
// core: the Transport Registry, Client Directory, Connection Manager,
// Grace Coordinator, and Metrics Surface, wired together for a single
// cluster replica.
package main

import (
	"fmt"
	"os"

	"github.com/coregate/coregate/cmd/coregate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

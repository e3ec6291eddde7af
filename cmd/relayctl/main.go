// relayctl is the command line client for the hookrelay management API.
package main

import (
	"os"

	"github.com/austindbirch/hookrelay/cmd/relayctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command relayclient logs in, opens an authenticated socket and prints
// every connection event until interrupted.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

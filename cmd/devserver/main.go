// Command devserver runs the login and socket endpoints locally for
// exercising relayclient.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command stockctl drives the inventory API from a terminal: sign in once,
// then list, record and export stock data.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

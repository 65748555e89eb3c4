// Command aero-rendezvous-probe exercises a running rendezvous relay from the
// command line. It can play either role, inspect the relay's status, and run
// a full WebRTC handshake through the relay.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// Command knet-chat is a small demo client/server exercising the knet
// transport: listen accepts peers and echoes chat lines between them, dial
// connects to a listener and relays stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/packetflow/knet/cmd/knet-chat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/packetflow/knet"
)

var dialCmd = &cobra.Command{
	Use:   "dial [addr]",
	Short: "Connect to a knet-chat listener and relay stdin/stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runDial,
}

func runDial(_ *cobra.Command, args []string) error {
	log := newLogger()
	c, err := knet.DialWithConfig(args[0], activeConfig, log)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	go printIncomingChat(c, os.Stdout)
	relayStdinToConn(c, os.Stdin)

	c.Disconnect(2 * time.Second)
	return nil
}

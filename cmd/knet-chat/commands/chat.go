package commands

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/packetflow/knet"
)

// msgIDChatText is the application message id this demo uses for chat
// lines; it must stay well clear of knet's well-known internal ids.
const msgIDChatText uint32 = 1

// relayStdinToConn reads lines from r and sends each one as a reliable,
// in-order chat message until r is exhausted or the connection closes.
func relayStdinToConn(c *knet.Connection, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if err := c.SendMessage(msgIDChatText, true, true, 0, 0, []byte(line)); err != nil {
			fmt.Println("send failed:", err)
			return
		}
		if c.State().Terminal() {
			return
		}
	}
}

// printIncomingChat blocks on delivered messages and writes each one to w
// until the connection closes.
func printIncomingChat(c *knet.Connection, w io.Writer) {
	for !c.State().Terminal() {
		payload := c.ReceiveMessage(200 * time.Millisecond)
		if payload == nil {
			continue
		}
		fmt.Fprintf(w, "%s\n", payload)
	}
}

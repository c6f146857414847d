package commands

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/packetflow/knet"
)

// peerSet is a concurrency-safe registry of currently connected peers,
// since the accept loop registers new peers while each peer's relay
// goroutine reads the set concurrently.
type peerSet struct {
	mu    sync.Mutex
	conns []*knet.Connection
}

func (p *peerSet) add(c *knet.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = append(p.conns, c)
}

func (p *peerSet) others(exclude *knet.Connection) []*knet.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*knet.Connection, 0, len(p.conns))
	for _, c := range p.conns {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

var listenCmd = &cobra.Command{
	Use:   "listen [addr]",
	Short: "Accept chat connections and broadcast each line to every other peer",
	Long:  "Accept chat connections and broadcast each line to every other peer.\nWith no [addr], binds to the listen_addr resolved from --config/KNET_LISTEN_ADDR/the built-in default.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runListen,
}

func runListen(_ *cobra.Command, args []string) error {
	addr := activeConfig.ListenAddr
	if len(args) == 1 {
		addr = args[0]
	}

	log := newLogger()
	l, err := knet.ListenWithConfig(addr, activeConfig, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer l.Close()

	fmt.Fprintf(os.Stdout, "listening on %s\n", l.LocalAddr())

	peers := &peerSet{}
	for {
		c, err := l.Accept()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "peer connected: %s\n", c.RemoteAddr())
		peers.add(c)
		go broadcastChat(c, peers)
	}
}

// broadcastChat relays every chat line c delivers to every other currently
// known peer, demonstrating ProcessMessages' batch-drain style alongside
// printIncomingChat's blocking style used by the dial side.
func broadcastChat(c *knet.Connection, peers *peerSet) {
	for !c.State().Terminal() {
		c.ProcessMessages(64, func(msgID uint32, payload []byte) {
			if msgID != msgIDChatText {
				return
			}
			for _, p := range peers.others(c) {
				if p.State().Terminal() {
					continue
				}
				if err := p.SendMessage(msgIDChatText, true, true, 0, 0, payload); err != nil {
					fmt.Fprintf(os.Stderr, "relay to %s failed: %v\n", p.RemoteAddr(), err)
				}
			}
		})
		time.Sleep(20 * time.Millisecond)
	}
	fmt.Fprintf(os.Stdout, "peer disconnected: %s\n", c.RemoteAddr())
}

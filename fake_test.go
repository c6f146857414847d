package knet

import (
	"net"
	"sync"

	"github.com/packetflow/knet/config"
)

// fakeSocket is an in-memory packetSender used to exercise the packer and
// connection logic without opening a real UDP socket.
type fakeSocket struct {
	mu   sync.Mutex
	sent [][]byte
	fail bool
}

func (s *fakeSocket) WriteTo(b []byte, _ net.Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, net.ErrClosed
	}
	s.sent = append(s.sent, append([]byte(nil), b...))
	return len(b), nil
}

func (s *fakeSocket) lastSent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSocket) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var testPeerAddr net.Addr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132}

func newTestConnection() (*Connection, *fakeSocket) {
	sock := &fakeSocket{}
	c := newConnection(sock, testPeerAddr, nil, config.Default())
	return c, sock
}

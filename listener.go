package knet

import (
	"net"
	"sync"

	"github.com/gamevidea/binary/buffer"

	"github.com/packetflow/knet/config"
)

// maxDatagramSize bounds the receive buffer pool's buffer size.
const maxDatagramSize = 1500

// recvBufferPool pools receive buffers, a sync.Pool of scatter buffers:
// acquiring a buffer, reading the next UDP datagram into its
// capacity-sized slice, then resizing it to the number of bytes actually
// read.
var recvBufferPool = sync.Pool{
	New: func() any { return buffer.New(maxDatagramSize) },
}

// Listener accepts inbound connections on a bound UDP socket, demultiplexing
// datagrams to existing Connections or surfacing a new one on first contact
// from an unseen peer: first-byte arrival is connection confirmation, there
// is no separate handshake step.
type Listener struct {
	addr   *net.UDPAddr
	socket *net.UDPConn
	log    Logger
	cfg    config.Config
	worker *Worker

	mu    sync.Mutex
	conns map[string]*Connection

	acceptCh chan *Connection
	closed   chan struct{}
}

// Listen binds a UDP socket at addr and starts accepting connections, using
// config.Default's tuning values. The returned Listener owns and runs its
// own Worker. See ListenWithConfig to override the defaults.
func Listen(addr string, log Logger) (*Listener, error) {
	return ListenWithConfig(addr, config.Default(), log)
}

// ListenWithConfig is Listen with an explicit, possibly overridden Config
// governing every connection this Listener accepts.
func ListenWithConfig(addr string, cfg config.Config, log Logger) (*Listener, error) {
	if log == nil {
		log = defaultLogger
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		addr:     udpAddr,
		socket:   socket,
		log:      log,
		cfg:      cfg,
		worker:   NewWorker(log),
		conns:    make(map[string]*Connection),
		acceptCh: make(chan *Connection, 64),
		closed:   make(chan struct{}),
	}

	go l.worker.Run()
	go l.readLoop()

	return l, nil
}

// LocalAddr returns the address the listener is bound to.
func (l *Listener) LocalAddr() *net.UDPAddr { return l.addr }

// Accept blocks until a new peer connection is established.
func (l *Listener) Accept() (*Connection, error) {
	select {
	case c := <-l.acceptCh:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

// Close stops accepting new connections and halts the worker.
func (l *Listener) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
	}
	close(l.closed)
	l.worker.Stop()
	return l.socket.Close()
}

func (l *Listener) readLoop() {
	for {
		buf := recvBufferPool.Get().(*buffer.Buffer)
		n, addr, err := l.socket.ReadFromUDP(buf.Slice())
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
				l.log.Warnf("socket read: %v", err)
				continue
			}
		}
		buf.Resize(n)
		data := append([]byte(nil), buf.Bytes()...)
		recvBufferPool.Put(buf)

		l.ensureConnection(addr)
		l.worker.Dispatch(addr, data)
	}
}

func (l *Listener) ensureConnection(addr *net.UDPAddr) {
	key := addr.String()
	l.mu.Lock()
	if _, ok := l.conns[key]; ok {
		l.mu.Unlock()
		return
	}
	c := newConnection(l.socket, addr, l.log, l.cfg)
	l.conns[key] = c
	l.mu.Unlock()

	l.worker.Register(c)
	select {
	case l.acceptCh <- c:
	default:
		l.log.Warnf("accept queue full, dropping new connection from %s", key)
	}
}

package knet

import (
	"net"
	"time"

	"github.com/packetflow/knet/internal/clock"
)

// workerTick is the multiplexer's polling period. kNet's NetworkWorkerThread
// bounds its wait at up to 1s; this implementation instead ticks at a fixed
// 10ms, which is the flow-control controller's own evaluation granularity
// and keeps ack/timeout latency well under the default max-ack-delay and
// connection-lost budgets configured in config.Config.
const workerTick = 10 * time.Millisecond

// maxInboundDrainPerTick bounds how many buffered inbound datagrams the
// ticker-triggered drain consumes before the per-connection maintenance pass
// runs, mirroring kNet's cMaxDatagramsToReadInOneFrame guard against a
// backlog on one connection starving the others sharing this worker's
// maintenance loop.
const maxInboundDrainPerTick = 256

// rawDatagram is one inbound UDP payload handed from a Listener's read loop
// to the Worker that owns the matching Connection.
type rawDatagram struct {
	addr net.Addr
	data []byte
}

// Worker is the single background actor that owns all socket I/O and all
// connection mutation for every Connection registered with it. The
// application interacts with connections only through their channel-based
// accept/delivery queues; it never touches worker-owned state directly.
type Worker struct {
	log Logger

	conns map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	inbound    chan rawDatagram
	stop       chan struct{}
	stopped    chan struct{}
}

// NewWorker returns a Worker that is not yet running; call Run in its own
// goroutine to start the multiplexer loop.
func NewWorker(log Logger) *Worker {
	if log == nil {
		log = defaultLogger
	}
	return &Worker{
		log:        log,
		conns:      make(map[string]*Connection),
		register:   make(chan *Connection, 64),
		unregister: make(chan *Connection, 64),
		inbound:    make(chan rawDatagram, 4096),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Register adds c to the set of connections this Worker drives.
func (w *Worker) Register(c *Connection) {
	select {
	case w.register <- c:
	case <-w.stop:
	}
}

// Unregister removes c from the worker. A connection that reaches Closed is
// also dropped by the worker's own tick without a call to Unregister.
func (w *Worker) Unregister(c *Connection) {
	select {
	case w.unregister <- c:
	case <-w.stop:
	}
}

// Dispatch hands one inbound UDP payload to the worker goroutine, which
// processes it as soon as its loop receives it. Called from a Listener's (or a dialed connection's) read
// goroutine; Dispatch itself never touches connection state.
func (w *Worker) Dispatch(addr net.Addr, data []byte) {
	select {
	case w.inbound <- rawDatagram{addr: addr, data: data}:
	case <-w.stop:
	}
}

// Stop halts the multiplexer loop. Run returns once the current tick
// finishes.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.stopped
}

// Run is the multiplexer loop, grounded in kNet's
// NetworkWorkerThread::MainLoop: each iteration it applies pending
// registrations, drains inbound datagrams to their connection, then walks
// every connection performing, in order, the packet-timeout scan, the flow
// control tick, ack generation, and outbound send.
func (w *Worker) Run() {
	defer close(w.stopped)
	ticker := time.NewTicker(workerTick)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case c := <-w.register:
			w.conns[c.addr.String()] = c
		case c := <-w.unregister:
			delete(w.conns, c.addr.String())
		case dgram := <-w.inbound:
			w.handleInboundDatagram(dgram)
		case <-ticker.C:
			w.drainInbound()
			w.tick()
		}
	}
}

// drainInbound consumes any inbound datagrams still buffered beyond the one
// handled per select iteration, up to maxInboundDrainPerTick, so a backlog
// cannot delay this tick's maintenance pass indefinitely.
func (w *Worker) drainInbound() {
	for i := 0; i < maxInboundDrainPerTick; i++ {
		select {
		case dgram := <-w.inbound:
			w.handleInboundDatagram(dgram)
		default:
			return
		}
	}
}

func (w *Worker) handleInboundDatagram(dgram rawDatagram) {
	c, ok := w.conns[dgram.addr.String()]
	if !ok {
		return
	}
	now := clock.Now()
	if c.State() == Pending {
		c.setState(OK)
	}
	if err := c.handleInboundDatagram(dgram.data, now); err != nil {
		c.log.Debugf("dropping malformed datagram: %v", err)
	}
}

func (w *Worker) tick() {
	now := clock.Now()
	for addr, c := range w.conns {
		if clock.Since(c.lastInboundTick) > c.cfg.ConnectionLostTimeout {
			c.log.Warnf("connection lost timeout")
			c.Close()
		}
		if c.State().Terminal() {
			delete(w.conns, addr)
			continue
		}

		c.processOutboundTimeouts(now)
		c.fc.Tick()
		c.maybeEmitAck(now)
		c.maybePing(now)
		c.drainAcceptQueue()

		for c.fc.CanSend() {
			sent, err := c.sendOneDatagram(now)
			if err != nil || !sent {
				break
			}
		}
	}
}

package knet

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/packetflow/knet/config"
	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/flowcontrol"
	"github.com/packetflow/knet/internal/fragment"
	"github.com/packetflow/knet/internal/msgpool"
	"github.com/packetflow/knet/internal/pqueue"
	"github.com/packetflow/knet/internal/rtt"
	"github.com/packetflow/knet/internal/wire"
	"github.com/packetflow/knet/internal/window"
)

// pingInterval is how often the independent ping/RTT sample fires, grounded
// in kNet's MessageConnection::SendPingRequestMessage. It runs regardless
// of reliable traffic, unlike internal/rtt's estimator which only samples
// from first-attempt reliable acks. Unlike the tunables in config.Config,
// this one carries no wire-format implication for the peer, so it stays a
// fixed constant.
const pingInterval = 3500 * time.Millisecond

// acceptQueueCapacity and deliveryQueueCapacity bound the application/worker
// hand-off queues.
const (
	acceptQueueCapacity   = 4096
	deliveryQueueCapacity = 4096
)

// packetSender is the narrow send-side socket contract a Connection needs:
// a bound *net.UDPConn satisfies it directly, and Dial wraps a connected
// *net.UDPConn so WriteTo's address argument can be ignored.
type packetSender interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Connection is one peer-to-peer reliable messaging session. All of its
// mutable state is owned by the Worker goroutine that drives it; the
// application interacts with it only through the channel-based accept/
// delivery queues and the read-only accessors below.
type Connection struct {
	id     uuid.UUID
	socket packetSender
	addr   net.Addr
	log    Logger
	cfg    config.Config

	mu    sync.RWMutex
	state State

	lastInboundTick clock.Tick

	// Outbound side, owned exclusively by the worker.
	nextPacketID    wire.PacketID
	nextReliableNum uint32
	outbound        *pqueue.Queue[*message]
	ackTrack        *window.OutboundQueue[*message]
	skipped         []*message
	outboundSlots   map[contentSlot]*message

	// Inbound side, owned exclusively by the worker.
	seenPacketIDs    *window.IDSet
	seenReliableNums map[uint32]struct{}
	pendingAcks      *window.InboundAckMap
	inboundSlots     map[contentSlot]obsolescenceStamp

	fragSend *fragment.SendManager[*message]
	fragRecv *fragment.ReceiveManager

	fc  *flowcontrol.Controller
	rtt *rtt.Estimator

	pingTimer    clock.PolledTimer
	pingSentTick clock.Tick
	pingAwaiting bool
	pingRTT      atomic.Int64

	pool  *msgpool.Pool[*message]
	stats *statsTracker

	acceptQueue   chan *message
	deliveryQueue chan *message

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(socket packetSender, addr net.Addr, log Logger, cfg config.Config) *Connection {
	if log == nil {
		log = defaultLogger
	}
	now := clock.Now()
	c := &Connection{
		id:               uuid.New(),
		socket:           socket,
		addr:             addr,
		log:              log.WithFields(Fields{"conn": addr.String()}),
		cfg:              cfg,
		state:            Pending,
		lastInboundTick:  now,
		outbound:         pqueue.New[*message](),
		ackTrack:         window.NewOutboundQueue[*message](),
		outboundSlots:    make(map[contentSlot]*message),
		seenPacketIDs:    window.NewWithCapacity(cfg.DuplicateWindowSize),
		seenReliableNums: make(map[uint32]struct{}),
		pendingAcks:      window.NewInboundAckMap(),
		inboundSlots:     make(map[contentSlot]obsolescenceStamp),
		fragSend:         fragment.NewSendManager[*message](),
		fragRecv:         fragment.NewReceiveManager(),
		fc:               flowcontrol.New(cfg.StartingDatagramRate, cfg.NominalCeilingRate),
		rtt:              rtt.New(),
		pool:             msgpool.New(newMessage),
		stats:            newStatsTracker(),
		acceptQueue:      make(chan *message, acceptQueueCapacity),
		deliveryQueue:    make(chan *message, deliveryQueueCapacity),
		closed:           make(chan struct{}),
	}
	return c
}

// ID returns the connection's process-local unique identifier, used to
// correlate log entries across the worker and application.
func (c *Connection) ID() uuid.UUID { return c.id }

// RemoteAddr returns the peer's network address.
func (c *Connection) RemoteAddr() net.Addr { return c.addr }

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.Infof("state transition: %s -> %s", prev, s)
	}
}

// RTT returns the current smoothed round-trip-time estimate.
func (c *Connection) RTT() time.Duration { return c.rtt.SmoothedRTT() }

// RTO returns the current retransmission timeout.
func (c *Connection) RTO() time.Duration { return c.rtt.RTO() }

// PingRTT returns the most recent independent ping/pong round-trip sample,
// which keeps measuring even on a connection carrying no reliable traffic
// (grounded in kNet's MessageConnection::HandlePingReplyMessage).
// Zero until the first PingReply arrives.
func (c *Connection) PingRTT() time.Duration { return time.Duration(c.pingRTT.Load()) }

// maybePing sends a PingRequest once pingInterval has elapsed, independent of
// the RTO-driving reliable-ack RTT estimator. Called once per worker tick.
func (c *Connection) maybePing(now clock.Tick) {
	if c.State() != OK || !c.pingTimer.TriggeredOrNotRunning() {
		return
	}
	c.pingTimer.StartMSecs(float64(pingInterval / time.Millisecond))
	c.pingSentTick = now
	c.pingAwaiting = true

	m := c.pool.Get()
	m.id = MsgIDPingRequest
	c.outbound.Push(m)
}

// onPingRequestReceived replies to an inbound PingRequest with a PingReply.
func (c *Connection) onPingRequestReceived() {
	m := c.pool.Get()
	m.id = MsgIDPingReply
	c.outbound.Push(m)
}

// onPingReplyReceived completes an outstanding ping sample, ignoring a reply
// with no matching outstanding request (e.g. a duplicate or a PingRequest
// that was never sent because the connection was not yet OK).
func (c *Connection) onPingReplyReceived(now clock.Tick) {
	if !c.pingAwaiting {
		return
	}
	c.pingAwaiting = false
	c.pingRTT.Store(int64(now - c.pingSentTick))
}

// Stats returns an immutable snapshot of the connection's traffic and
// reliability counters.
func (c *Connection) Stats() Stats {
	bytesIn, bytesOut, packetsIn, packetsOut, lossRate := c.stats.snapshot()
	return Stats{
		BytesInPerSec:    bytesIn,
		BytesOutPerSec:   bytesOut,
		PacketsInPerSec:  packetsIn,
		PacketsOutPerSec: packetsOut,
		PacketLossRate:   lossRate,
		RTT:              c.rtt.SmoothedRTT(),
		RTO:              c.rtt.RTO(),
		DatagramSendRate: c.fc.Rate(),
		PendingAcks:      c.pendingAcks.Len(),
		InFlightMessages: c.ackTrack.Len(),
	}
}

// SendMessage queues payload for delivery under the given message id,
// reliability and ordering policy, priority, and optional content id. It
// is safe to call from any goroutine.
//
// Any send on a Closed connection fails with ErrConnectionClosed. When the
// accept queue cannot hold another message, reliable sends fail with a
// "queue full" error and unreliable sends are dropped silently, matching
// the at-most-once, best-effort contract for unreliable traffic.
func (c *Connection) SendMessage(msgID uint32, reliable, inOrder bool, priority uint32, contentID uint32, payload []byte) error {
	if c.State().Terminal() {
		return ErrConnectionClosed
	}

	m := c.pool.Get()
	m.id = msgID
	m.contentID = contentID
	m.reliable = reliable
	m.inOrder = inOrder
	m.priority = priority
	m.payload = append(m.payload[:0], payload...)

	select {
	case c.acceptQueue <- m:
		return nil
	default:
		if reliable {
			return fmt.Errorf("knet: accept queue full")
		}
		return nil
	}
}

// ReceiveMessage blocks up to maxWait for the next delivered message and
// returns its payload, or nil if none arrived in time.
func (c *Connection) ReceiveMessage(maxWait time.Duration) []byte {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case m := <-c.deliveryQueue:
		return m.payload
	case <-timer.C:
		return nil
	case <-c.closed:
		return nil
	}
}

// ProcessMessages drains up to maxCount inbound messages, invoking handle
// for each one's (message id, payload).
func (c *Connection) ProcessMessages(maxCount int, handle func(msgID uint32, payload []byte)) int {
	n := 0
	for n < maxCount {
		select {
		case m := <-c.deliveryQueue:
			handle(m.id, m.payload)
			n++
		default:
			return n
		}
	}
	return n
}

// Disconnect cooperatively closes the connection: a reliable Disconnect
// message is queued and the connection moves to Disconnecting. It returns
// once either DisconnectAck has been exchanged or maxWait elapses.
func (c *Connection) Disconnect(maxWait time.Duration) {
	if c.State().Terminal() {
		return
	}
	c.setState(Disconnecting)
	select {
	case c.acceptQueue <- &message{id: MsgIDDisconnect, reliable: true}:
	default:
	}
	select {
	case <-c.closed:
	case <-time.After(maxWait):
	}
}

// Close immediately tears down the connection, dropping all queued
// outbound traffic.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.setState(Closed)
		close(c.closed)
	})
}

// acceptOutboundDrainCap bounds how many freshly accepted messages the
// worker pulls from the accept queue in one tick (kNet's
// AcceptOutboundMessages caps this at 500 per frame).
const acceptOutboundDrainCap = 500

// drainAcceptQueue moves up to acceptOutboundDrainCap freshly accepted
// messages from the accept queue into the outbound priority queue,
// splitting any message too large for one datagram into fragments first.
// Called once per worker tick.
func (c *Connection) drainAcceptQueue() {
	for i := 0; i < acceptOutboundDrainCap; i++ {
		select {
		case m := <-c.acceptQueue:
			c.splitAndQueue(m)
		default:
			return
		}
	}
}

// splitAndQueue pushes m onto the outbound priority queue, first splitting
// it into fragments if message-size + 32 exceeds the socket's maximum send
// size. Non-reliable messages being fragmented are silently
// upgraded to reliable.
func (c *Connection) splitAndQueue(m *message) {
	const headerUpperBound = 32
	if len(m.payload)+headerUpperBound <= c.cfg.MaxSendSize {
		c.stampContentID(m)
		c.outbound.Push(m)
		return
	}

	fragSize := maxFragmentPayloadFor(c.cfg.MaxSendSize)
	total := (len(m.payload) + fragSize - 1) / fragSize
	group := &fragGroup{}
	payload := m.payload

	for i := 0; i < total; i++ {
		start := i * fragSize
		end := start + fragSize
		if end > len(payload) {
			end = len(payload)
		}
		f := c.pool.Get()
		f.id = m.id
		f.contentID = m.contentID
		f.priority = m.priority
		f.reliable = true
		f.inOrder = m.inOrder
		f.hasFragment = true
		f.fragGroup = group
		f.fragmentIndex = i
		f.fragmentCount = total
		f.payload = append(f.payload[:0], payload[start:end]...)
		c.outbound.Push(f)
	}
	c.pool.Put(m)
}

// stampContentID applies outbound content-id obsolescence: if m belongs
// to a non-zero-content-id slot that already has an older message queued,
// that predecessor is marked obsolete so the packer drops it unsent, and m
// takes over the slot.
func (c *Connection) stampContentID(m *message) {
	if m.contentID == 0 {
		return
	}
	slot := contentSlot{messageID: m.id, contentID: m.contentID}
	if prev, ok := c.outboundSlots[slot]; ok {
		prev.obsolete = true
	}
	c.outboundSlots[slot] = m
}

// clearContentSlot drops m's outboundSlots entry once m leaves the outbound
// queue for good (sent or discarded as obsolete). Without this, the slot map
// keeps pointing at a *message the pool may later recycle for an unrelated
// send, and stampContentID would mark that unrelated message obsolete.
func (c *Connection) clearContentSlot(m *message) {
	if m.contentID == 0 {
		return
	}
	slot := contentSlot{messageID: m.id, contentID: m.contentID}
	if c.outboundSlots[slot] == m {
		delete(c.outboundSlots, slot)
	}
}

// onDisconnectReceived handles an inbound reliable Disconnect message: a
// non-reliable DisconnectAck is queued at top priority. The connection only
// moves to Closed once that ack has actually gone out over the socket (see
// sendOneDatagram's closeAfterSend handling), not on receipt, since closing
// immediately here would let the worker delete the connection as terminal
// before its send loop ever ran and drop the ack unsent.
func (c *Connection) onDisconnectReceived() {
	m := c.pool.Get()
	m.id = MsgIDDisconnectAck
	m.priority = 0xFFFFFFFF
	m.closeAfterSend = true
	c.outbound.Push(m)
}

// onDisconnectAckReceived handles an inbound DisconnectAck: the local side
// was Disconnecting and now moves to Closed.
func (c *Connection) onDisconnectAckReceived() {
	if c.State() == Disconnecting {
		c.Close()
	}
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

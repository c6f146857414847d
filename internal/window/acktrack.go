package window

import "github.com/packetflow/knet/internal/clock"

// OutboundTrack ties one reliable datagram to the set of messages it
// carries while the ack is pending.
type OutboundTrack[M any] struct {
	PacketID     uint32
	SentTick     clock.Tick
	TimeoutTick  clock.Tick
	SendCount    int
	RateAtSend   float64
	Messages     []M
}

// OutboundQueue is an insertion-ordered map of ack-tracks keyed by
// outbound packet id. Because the packer assigns packet ids strictly in
// increasing (modular) order from a single thread, insertion order and
// packet-id order coincide, which lets ScanExpired short-circuit at the
// first non-expired entry.
type OutboundQueue[M any] struct {
	order []uint32
	byID  map[uint32]*OutboundTrack[M]
}

// NewOutboundQueue returns an empty OutboundQueue.
func NewOutboundQueue[M any]() *OutboundQueue[M] {
	return &OutboundQueue[M]{byID: make(map[uint32]*OutboundTrack[M])}
}

// Insert adds a new track. Callers must insert packet ids in strictly
// increasing modular order; this is the single-writer invariant the packer
// upholds.
func (q *OutboundQueue[M]) Insert(t *OutboundTrack[M]) {
	q.order = append(q.order, t.PacketID)
	q.byID[t.PacketID] = t
}

// Get returns the track for packetID, if any.
func (q *OutboundQueue[M]) Get(packetID uint32) (*OutboundTrack[M], bool) {
	t, ok := q.byID[packetID]
	return t, ok
}

// Remove removes and returns the track for packetID, if present.
func (q *OutboundQueue[M]) Remove(packetID uint32) (*OutboundTrack[M], bool) {
	t, ok := q.byID[packetID]
	if !ok {
		return nil, false
	}
	delete(q.byID, packetID)
	for i, id := range q.order {
		if id == packetID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return t, true
}

// Len returns the number of tracks currently pending ack.
func (q *OutboundQueue[M]) Len() int { return len(q.order) }

// ScanExpired walks the queue from the head (oldest packet id) and calls fn
// for each track whose TimeoutTick has passed as of now, removing it from
// the queue first. Scanning stops at the first track that has not yet timed
// out, via a head-of-queue short-circuit.
func (q *OutboundQueue[M]) ScanExpired(now clock.Tick, fn func(*OutboundTrack[M])) {
	for len(q.order) > 0 {
		id := q.order[0]
		t := q.byID[id]
		if t.TimeoutTick > now {
			return
		}
		q.order = q.order[1:]
		delete(q.byID, id)
		fn(t)
	}
}

// PendingAck records one inbound packet id awaiting acknowledgment; it
// exists only long enough to be folded into an outgoing ack message.
type PendingAck struct {
	PacketID     uint32
	ReceivedTick clock.Tick
}

// InboundAckMap is the set of packet ids awaiting acknowledgment back to the
// sender. Insertion order is preserved so ack emission can find the oldest
// pending id in O(1).
type InboundAckMap struct {
	order []uint32
	byID  map[uint32]clock.Tick
}

// NewInboundAckMap returns an empty InboundAckMap.
func NewInboundAckMap() *InboundAckMap {
	return &InboundAckMap{byID: make(map[uint32]clock.Tick)}
}

// Record notes that packetID arrived at now and is pending acknowledgment.
// A no-op if packetID is already pending.
func (m *InboundAckMap) Record(packetID uint32, now clock.Tick) {
	if _, ok := m.byID[packetID]; ok {
		return
	}
	m.order = append(m.order, packetID)
	m.byID[packetID] = now
}

// Len returns the number of packet ids currently pending acknowledgment.
func (m *InboundAckMap) Len() int { return len(m.order) }

// Oldest returns the receive tick of the oldest pending ack and true, or the
// zero value and false if nothing is pending.
func (m *InboundAckMap) Oldest() (clock.Tick, bool) {
	if len(m.order) == 0 {
		return 0, false
	}
	return m.byID[m.order[0]], true
}

// Remove discards packetID from the pending set, if present.
func (m *InboundAckMap) Remove(packetID uint32) {
	if _, ok := m.byID[packetID]; !ok {
		return
	}
	delete(m.byID, packetID)
	for i, id := range m.order {
		if id == packetID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Ordered returns the pending packet ids in insertion order. The returned
// slice must not be retained past the next mutating call.
func (m *InboundAckMap) Ordered() []uint32 { return m.order }

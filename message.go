package knet

import "github.com/packetflow/knet/internal/clock"

// Well-known internal message ids. These are dispatched internally by the
// worker and must never collide with application message ids.
const (
	MsgIDPingRequest uint32 = 0xFFFFFFF0 + iota
	MsgIDPingReply
	MsgIDPacketAck
	MsgIDDisconnect
	MsgIDDisconnectAck
	MsgIDFlowControlRequest
)

// message is the outbound/inbound message descriptor that moves between
// the accept queue, priority queue, ack-track and message pool over its
// lifetime.
type message struct {
	id                  uint32
	contentID           uint32
	reliableNum         uint32
	reliableNumAssigned bool
	priority            uint32
	reliable            bool
	inOrder             bool
	obsolete            bool
	closeAfterSend      bool
	hasFragment         bool
	fragGroup           *fragGroup
	fragmentIndex       int
	fragmentCount       int
	payload             []byte
	sendCount           int
}

// SendPriority implements pqueue.Item; priority 0 is lowest.
func (m *message) SendPriority() uint32 { return m.priority }

// ResetForPool implements msgpool.Resettable.
func (m *message) ResetForPool() {
	*m = message{payload: m.payload[:0]}
}

func newMessage() *message { return &message{} }

// fragGroup is shared by every fragment message of one outbound fragmented
// transfer so the packer can allocate a transfer id once (on whichever
// fragment it packs first) and have every other fragment see it.
type fragGroup struct {
	id       uint8
	assigned bool
}

// contentSlot identifies the logical (message id, content id) slot used for
// content-id obsolescence.
type contentSlot struct {
	messageID uint32
	contentID uint32
}

// obsolescenceStamp records, for one inbound content slot, the packet id and
// receive time of the last message delivered into it.
type obsolescenceStamp struct {
	packetID uint32
	tick     clock.Tick
}

package knet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/wire"
)

func encodeSingleMessageDatagram(t *testing.T, dh wire.DatagramHeader, mh wire.MessageHeader, payload []byte) []byte {
	t.Helper()
	mh.ContentLen = uint16(len(payload))
	buf := wire.EncodeDatagramHeader(nil, dh)
	if dh.InOrderPresent {
		buf = wire.EncodeVLE8_16(buf, 0)
	}
	buf = wire.EncodeMessageHeader(buf, mh)
	buf = append(buf, payload...)
	return buf
}

func TestHandleInboundDatagramDeliversUnreliableMessage(t *testing.T) {
	c, _ := newTestConnection()
	buf := encodeSingleMessageDatagram(t,
		wire.DatagramHeader{PacketID: 1},
		wire.MessageHeader{MessageID: 42},
		[]byte("hi"))

	err := c.handleInboundDatagram(buf, clock.Now())
	require.NoError(t, err)

	select {
	case m := <-c.deliveryQueue:
		assert.EqualValues(t, 42, m.id)
		assert.Equal(t, "hi", string(m.payload))
	default:
		t.Fatal("expected a delivered message")
	}
}

func TestHandleInboundDatagramDropsDuplicatePacketID(t *testing.T) {
	c, _ := newTestConnection()
	buf := encodeSingleMessageDatagram(t,
		wire.DatagramHeader{PacketID: 5},
		wire.MessageHeader{MessageID: 1},
		[]byte("a"))

	require.NoError(t, c.handleInboundDatagram(buf, clock.Now()))
	<-c.deliveryQueue

	require.NoError(t, c.handleInboundDatagram(buf, clock.Now()))
	select {
	case <-c.deliveryQueue:
		t.Fatal("duplicate packet id must not be delivered twice")
	default:
	}
}

func TestHandleInboundDatagramDropsDuplicateReliableMessageNumber(t *testing.T) {
	c, _ := newTestConnection()
	dh := wire.DatagramHeader{Reliable: true, PacketID: 1, BaseReliableMsgNum: 9}
	mh := wire.MessageHeader{Reliable: true, MessageID: 1, ReliableDelta: 0}
	buf := encodeSingleMessageDatagram(t, dh, mh, []byte("a"))
	require.NoError(t, c.handleInboundDatagram(buf, clock.Now()))
	<-c.deliveryQueue

	dh2 := wire.DatagramHeader{Reliable: true, PacketID: 2, BaseReliableMsgNum: 9}
	buf2 := encodeSingleMessageDatagram(t, dh2, mh, []byte("a"))
	require.NoError(t, c.handleInboundDatagram(buf2, clock.Now()))
	select {
	case <-c.deliveryQueue:
		t.Fatal("a retransmit carrying the same reliable-message-number must not be delivered twice")
	default:
	}
}

func TestHandleInboundDatagramReassemblesFragmentsWithOriginalMessageID(t *testing.T) {
	c, _ := newTestConnection()

	first := encodeSingleMessageDatagram(t,
		wire.DatagramHeader{PacketID: 1},
		wire.MessageHeader{FirstFragment: true, Fragmented: true, TransferID: 3, FragmentTotal: 2, MessageID: 77},
		[]byte("AB"))
	require.NoError(t, c.handleInboundDatagram(first, clock.Now()))

	select {
	case <-c.deliveryQueue:
		t.Fatal("should not deliver before every fragment has arrived")
	default:
	}

	second := encodeSingleMessageDatagram(t,
		wire.DatagramHeader{PacketID: 2},
		wire.MessageHeader{Fragmented: true, TransferID: 3, FragmentIndex: 1},
		[]byte("CD"))
	require.NoError(t, c.handleInboundDatagram(second, clock.Now()))

	select {
	case m := <-c.deliveryQueue:
		assert.EqualValues(t, 77, m.id, "reassembled message must carry the id from its first fragment")
		assert.Equal(t, "ABCD", string(m.payload))
	default:
		t.Fatal("expected the reassembled message to be delivered")
	}
}

func TestHandleInternalMessagePacketAckIsNotDelivered(t *testing.T) {
	c, _ := newTestConnection()
	ackBody := wire.EncodeAckMessage(nil, wire.AckMessage{Base: 1})
	buf := encodeSingleMessageDatagram(t,
		wire.DatagramHeader{PacketID: 1},
		wire.MessageHeader{MessageID: MsgIDPacketAck},
		ackBody)

	require.NoError(t, c.handleInboundDatagram(buf, clock.Now()))
	select {
	case <-c.deliveryQueue:
		t.Fatal("internal control messages must not reach the application delivery queue")
	default:
	}
}

func TestDeliverPayloadSuppressesStaleContentIDDuplicate(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()

	c.deliverPayload(1, 9, []byte("new"), wire.PacketID(10), now)
	<-c.deliveryQueue

	c.deliverPayload(1, 9, []byte("stale"), wire.PacketID(5), now)
	select {
	case <-c.deliveryQueue:
		t.Fatal("an older packet id for the same content slot must be suppressed")
	default:
	}
}

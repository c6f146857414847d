package knet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetflow/knet/internal/clock"
)

func TestSendMessageQueuesToAcceptQueue(t *testing.T) {
	c, _ := newTestConnection()
	err := c.SendMessage(7, true, false, 0, 0, []byte("hello"))
	require.NoError(t, err)

	select {
	case m := <-c.acceptQueue:
		assert.EqualValues(t, 7, m.id)
		assert.Equal(t, "hello", string(m.payload))
	default:
		t.Fatal("expected message on accept queue")
	}
}

func TestSendMessageRejectedWhenClosed(t *testing.T) {
	c, _ := newTestConnection()
	c.Close()
	err := c.SendMessage(1, true, false, 0, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReceiveMessageTimesOutWithNoMessage(t *testing.T) {
	c, _ := newTestConnection()
	payload := c.ReceiveMessage(10 * time.Millisecond)
	assert.Nil(t, payload)
}

func TestReceiveMessageReturnsDeliveredPayload(t *testing.T) {
	c, _ := newTestConnection()
	c.deliveryQueue <- &message{id: 1, payload: []byte("world")}
	payload := c.ReceiveMessage(time.Second)
	assert.Equal(t, "world", string(payload))
}

func TestProcessMessagesDrainsUpToMaxCount(t *testing.T) {
	c, _ := newTestConnection()
	for i := 0; i < 5; i++ {
		c.deliveryQueue <- &message{id: uint32(i), payload: []byte{byte(i)}}
	}

	var seen []uint32
	n := c.ProcessMessages(3, func(msgID uint32, payload []byte) {
		seen = append(seen, msgID)
	})

	assert.Equal(t, 3, n)
	assert.Equal(t, []uint32{0, 1, 2}, seen)
	assert.Len(t, c.deliveryQueue, 2)
}

func TestSplitAndQueueFragmentsLargePayload(t *testing.T) {
	c, _ := newTestConnection()
	payload := make([]byte, c.cfg.MaxSendSize*2)
	for i := range payload {
		payload[i] = byte(i)
	}

	m := c.pool.Get()
	m.id = 9
	m.inOrder = true
	m.payload = payload
	c.splitAndQueue(m)

	var fragments []*message
	for c.outbound.Len() > 0 {
		f, _ := c.outbound.Pop()
		fragments = append(fragments, f)
	}

	require.True(t, len(fragments) > 1, "large payload should split into multiple fragments")
	for i, f := range fragments {
		assert.True(t, f.hasFragment)
		assert.True(t, f.reliable, "fragmented messages are upgraded to reliable")
		assert.True(t, f.inOrder)
		assert.Equal(t, i, f.fragmentIndex)
		assert.Equal(t, len(fragments), f.fragmentCount)
		assert.Same(t, fragments[0].fragGroup, f.fragGroup)
	}

	var reassembled []byte
	for _, f := range fragments {
		reassembled = append(reassembled, f.payload...)
	}
	assert.Equal(t, payload, reassembled)
}

func TestSplitAndQueueKeepsSmallPayloadWhole(t *testing.T) {
	c, _ := newTestConnection()
	m := c.pool.Get()
	m.id = 3
	m.payload = []byte("small")
	c.splitAndQueue(m)

	require.Equal(t, 1, c.outbound.Len())
	got, _ := c.outbound.Pop()
	assert.False(t, got.hasFragment)
	assert.Equal(t, "small", string(got.payload))
}

func TestStampContentIDMarksPreviousObsolete(t *testing.T) {
	c, _ := newTestConnection()

	first := c.pool.Get()
	first.id = 5
	first.contentID = 1
	c.stampContentID(first)

	second := c.pool.Get()
	second.id = 5
	second.contentID = 1
	c.stampContentID(second)

	assert.True(t, first.obsolete)
	assert.False(t, second.obsolete)
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	c, _ := newTestConnection()
	c.Close()
	c.Close()
	assert.True(t, c.State().Terminal())
	assert.True(t, c.isClosed())
}

func TestOnDisconnectReceivedQueuesAckAndClosesOnSendCompletion(t *testing.T) {
	c, sock := newTestConnection()
	c.onDisconnectReceived()

	require.Equal(t, 1, c.outbound.Len())
	assert.False(t, c.State().Terminal(), "must not close before the DisconnectAck has actually been sent")

	sent, err := c.sendOneDatagram(clock.Now())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 1, sock.count(), "the DisconnectAck datagram should have gone out over the socket")
	assert.True(t, c.State().Terminal(), "closes once the DisconnectAck datagram is written")
}

func TestOnDisconnectAckReceivedOnlyClosesWhenDisconnecting(t *testing.T) {
	c, _ := newTestConnection()
	c.setState(OK)
	c.onDisconnectAckReceived()
	assert.Equal(t, OK, c.State())

	c.setState(Disconnecting)
	c.onDisconnectAckReceived()
	assert.True(t, c.State().Terminal())
}

package knet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/wire"
	"github.com/packetflow/knet/internal/window"
)

func TestMaybeEmitAckWaitsForDelayOrCount(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()
	c.recordInboundReliableArrival(wire.PacketID(1), now)

	c.maybeEmitAck(now)
	assert.Equal(t, 0, c.outbound.Len(), "a single fresh pending ack should not yet trigger emission")

	c.maybeEmitAck(now + clock.Tick(c.cfg.MaxAckDelay) + 1)
	require.Equal(t, 1, c.outbound.Len())
	m, _ := c.outbound.Pop()
	assert.Equal(t, MsgIDPacketAck, m.id)
}

func TestMaybeEmitAckEncodesBitmaskForGap(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()
	c.recordInboundReliableArrival(wire.PacketID(10), now)
	c.recordInboundReliableArrival(wire.PacketID(12), now)

	c.maybeEmitAck(now + clock.Tick(c.cfg.MaxAckDelay) + 1)

	require.Equal(t, 1, c.outbound.Len())
	m, _ := c.outbound.Pop()
	ack, _, err := wire.DecodeAckMessage(m.payload)
	require.NoError(t, err)
	assert.EqualValues(t, 10, ack.Base)
	assert.Equal(t, uint32(1<<1), ack.Bitmask, "packet 12 is base+2, so bit index 1 should be set")
}

func TestMaybeEmitAckTriggersOnPendingCountThreshold(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()
	for i := uint32(0); i < uint32(c.cfg.MaxPendingAcks); i++ {
		c.recordInboundReliableArrival(wire.PacketID(i), now)
	}
	c.maybeEmitAck(now)
	assert.Equal(t, 1, c.outbound.Len(), "reaching MaxPendingAcks should trigger emission even before MaxAckDelay")
}

func TestProcessInboundAckFreesBaseAndBitmaskEntries(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()

	c.ackTrack.Insert(&window.OutboundTrack[*message]{PacketID: 5, SentTick: now, SendCount: 1})
	c.ackTrack.Insert(&window.OutboundTrack[*message]{PacketID: 7, SentTick: now, SendCount: 1})

	ack := wire.AckMessage{Base: 5, Bitmask: 1 << 1} // base+2 = 7
	c.processInboundAck(ack, now+clock.Tick(1000))

	assert.Equal(t, 0, c.ackTrack.Len())
}

func TestInsertAckTrackUsesHighestMessageSendCount(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()

	fresh := c.pool.Get()
	fresh.reliable = true
	fresh.sendCount = 1
	retransmit := c.pool.Get()
	retransmit.reliable = true
	retransmit.sendCount = 3

	c.insertAckTrack(wire.PacketID(1), now, []*message{fresh, retransmit})

	track, ok := c.ackTrack.Get(1)
	require.True(t, ok)
	assert.Equal(t, 3, track.SendCount, "a datagram bundling a retransmit must not read as a first attempt")
}

func TestFreeAckedTrackUpdatesRTTOnlyOnFirstSend(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()
	before := c.rtt.SmoothedRTT()

	c.ackTrack.Insert(&window.OutboundTrack[*message]{
		PacketID:  1,
		SentTick:  now - clock.Tick(1),
		SendCount: 2,
	})
	c.freeAckedTrack(wire.PacketID(1), now)
	assert.Equal(t, before, c.rtt.SmoothedRTT(), "a retransmitted packet's ack must not feed the RTT estimator")
}

func TestProcessOutboundTimeoutsRecordsLossAndBacksOffRTO(t *testing.T) {
	c, _ := newTestConnection()
	now := clock.Now()
	beforeRTO := c.rtt.RTO()

	m := c.pool.Get()
	m.id = 1
	m.reliable = true
	c.ackTrack.Insert(&window.OutboundTrack[*message]{
		PacketID:    3,
		SentTick:    now,
		TimeoutTick: now - 1,
		Messages:    []*message{m},
	})

	c.processOutboundTimeouts(now)

	assert.GreaterOrEqual(t, c.rtt.RTO(), beforeRTO, "RTO must back off, never decrease, on loss")
	require.Equal(t, 1, c.outbound.Len())
	requeued, _ := c.outbound.Pop()
	assert.Same(t, m, requeued)
	assert.Equal(t, 1, requeued.sendCount)
}

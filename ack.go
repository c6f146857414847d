package knet

import (
	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/wire"
	"github.com/packetflow/knet/internal/window"
)

// insertAckTrack inserts a new outbound ack-track for packetID, moving
// ownership of messages into it. The track's SendCount is the highest
// per-message attempt count among the messages it carries, so a datagram
// bundling even one retransmitted message is never mistaken for a
// first-attempt send by freeAckedTrack's RTT guard.
func (c *Connection) insertAckTrack(packetID wire.PacketID, now clock.Tick, messages []*message) {
	if len(messages) == 0 {
		return
	}
	sendCount := 0
	for _, m := range messages {
		if m.sendCount > sendCount {
			sendCount = m.sendCount
		}
	}
	c.ackTrack.Insert(&window.OutboundTrack[*message]{
		PacketID:    uint32(packetID),
		SentTick:    now,
		TimeoutTick: now + clock.Tick(c.rtt.RTO()),
		SendCount:   sendCount,
		RateAtSend:  c.fc.Rate(),
		Messages:    messages,
	})
}

// processOutboundTimeouts scans the ack-track queue from the head and
// re-queues the reliable messages of every entry whose timeout has passed,
// stopping at the first non-expired entry.
func (c *Connection) processOutboundTimeouts(now clock.Tick) {
	c.ackTrack.ScanExpired(now, func(t *window.OutboundTrack[*message]) {
		c.fc.RecordLoss(t.RateAtSend)
		c.rtt.OnPacketLoss()
		c.stats.recordPacketLost()
		for _, m := range t.Messages {
			m.sendCount++
			c.outbound.Push(m)
		}
	})
}

// recordInboundReliableArrival notes that a reliable datagram with packetID
// arrived, for later folding into an outgoing ack message.
func (c *Connection) recordInboundReliableArrival(packetID wire.PacketID, now clock.Tick) {
	c.pendingAcks.Record(uint32(packetID), now)
}

// maybeEmitAck queues ack messages covering every pending ack if ack
// emission's triggering conditions are met as of now: the oldest pending ack
// is older than the connection's configured max ack delay, or at least its
// max pending acks are buffered. Each ack message covers one base id and the
// pending ids in the 32 ids after it.
func (c *Connection) maybeEmitAck(now clock.Tick) {
	if c.pendingAcks.Len() == 0 {
		return
	}
	oldest, _ := c.pendingAcks.Oldest()
	if now-oldest < clock.Tick(c.cfg.MaxAckDelay) && c.pendingAcks.Len() < c.cfg.MaxPendingAcks {
		return
	}

	for c.pendingAcks.Len() > 0 {
		ordered := c.pendingAcks.Ordered()
		base := wire.PacketID(ordered[0])
		var bitmask uint32
		for _, id := range ordered[1:] {
			d := wire.Sub(wire.PacketID(id), base)
			if d >= 1 && d <= wire.AckWindowWidth {
				bitmask |= 1 << (d - 1)
			}
		}

		c.pendingAcks.Remove(uint32(base))
		for k := uint32(0); k < wire.AckWindowWidth; k++ {
			if bitmask&(1<<k) != 0 {
				c.pendingAcks.Remove(uint32(wire.Add(base, k+1)))
			}
		}

		ackBody := wire.EncodeAckMessage(nil, wire.AckMessage{Base: base, Bitmask: bitmask})
		c.sendControlMessage(ackBody)
	}
}

// sendControlMessage wraps a pre-encoded internal control payload (such as
// an ack message) as a reliability-free message id and queues it for
// immediate packing; PacketAck is sent unreliable per kNet convention.
func (c *Connection) sendControlMessage(payload []byte) {
	m := c.pool.Get()
	m.id = MsgIDPacketAck
	m.priority = 0xFFFFFFFF
	m.payload = append(m.payload[:0], payload...)
	c.outbound.Push(m)
}

// processInboundAck frees the ack-tracks named by an inbound ack message:
// the base packet id and, for each set bit k, packet id base+k+1.
func (c *Connection) processInboundAck(ack wire.AckMessage, now clock.Tick) {
	c.freeAckedTrack(wire.PacketID(ack.Base), now)
	for k := uint32(0); k < wire.AckWindowWidth; k++ {
		if ack.Bitmask&(1<<k) != 0 {
			c.freeAckedTrack(wire.Add(wire.PacketID(ack.Base), k+1), now)
		}
	}
}

func (c *Connection) freeAckedTrack(packetID wire.PacketID, now clock.Tick) {
	t, ok := c.ackTrack.Remove(uint32(packetID))
	if !ok {
		return
	}
	c.fc.RecordAck()
	if t.SendCount == 1 {
		c.rtt.OnPacketAck(clock.Since(t.SentTick))
	}
	for _, m := range t.Messages {
		c.freeMessage(m)
	}
}

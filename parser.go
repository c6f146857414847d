package knet

import (
	"time"

	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/wire"
)

// maxMessagesPerDatagram bounds how many per-message headers the parser is
// willing to walk in one datagram, guarding against a malformed length
// field looping forever.
const maxMessagesPerDatagram = 4096

// handleInboundDatagram parses one inbound UDP payload into its
// constituent messages and dispatches each one. Parse errors drop the
// whole datagram; the connection stays open.
func (c *Connection) handleInboundDatagram(data []byte, now clock.Tick) error {
	c.lastInboundTick = now
	c.stats.recordIn(len(data))
	c.stats.recordPacketReceived()

	header, n, err := wire.DecodeDatagramHeader(data)
	if err != nil {
		return err
	}
	data = data[n:]

	if header.Reliable {
		c.recordInboundReliableArrival(header.PacketID, now)
	}

	if c.seenPacketIDs.Contains(uint32(header.PacketID)) {
		return nil
	}
	c.seenPacketIDs.Insert(uint32(header.PacketID))

	// The in-order delta field must still be consumed to keep the cursor
	// aligned with the rest of the datagram, but two peers have no way to
	// negotiate a shared in-order sequencing scheme over the wire, so the
	// value itself is decoded and discarded rather than acted on.
	if header.InOrderPresent {
		_, consumed, derr := wire.DecodeVLE8_16(data)
		if derr != nil {
			return derr
		}
		data = data[consumed:]
	}

	// Every message is parsed before any is dispatched, so a malformed
	// message anywhere in the datagram drops all of it.
	type parsedMessage struct {
		header  wire.MessageHeader
		payload []byte
	}
	var parsed []parsedMessage
	for i := 0; len(data) > 0; i++ {
		if i >= maxMessagesPerDatagram {
			return ErrTooManyMessages
		}
		mh, n, err := wire.DecodeMessageHeader(data)
		if err != nil {
			return err
		}
		data = data[n:]
		if len(data) < int(mh.ContentLen) {
			return ErrTruncated
		}
		parsed = append(parsed, parsedMessage{header: mh, payload: data[:mh.ContentLen]})
		data = data[mh.ContentLen:]
	}

	for _, pm := range parsed {
		if pm.header.Reliable {
			num := header.BaseReliableMsgNum + pm.header.ReliableDelta
			if _, dup := c.seenReliableNums[num]; dup {
				continue
			}
			c.seenReliableNums[num] = struct{}{}
		}

		c.dispatchInboundMessage(pm.header, pm.payload, header.PacketID, now)
	}
	return nil
}

// dispatchInboundMessage reassembles fragments and delivers the finished
// message to the application or to internal handling. The message header
// carries no content id, so every message is passed on with content id 0 and
// deliverPayload's content-id obsolescence check does not apply to it.
func (c *Connection) dispatchInboundMessage(mh wire.MessageHeader, payload []byte, packetID wire.PacketID, now clock.Tick) {
	if mh.Fragmented {
		if mh.FirstFragment {
			c.fragRecv.Begin(mh.TransferID, int(mh.FragmentTotal), mh.MessageID)
			assembled, msgID, done := c.fragRecv.AddFragment(mh.TransferID, 0, append([]byte(nil), payload...))
			if done {
				c.deliverPayload(msgID, 0, assembled, packetID, now)
			}
			return
		}
		assembled, msgID, done := c.fragRecv.AddFragment(mh.TransferID, int(mh.FragmentIndex), append([]byte(nil), payload...))
		if done {
			c.deliverPayload(msgID, 0, assembled, packetID, now)
		}
		return
	}

	c.deliverPayload(mh.MessageID, 0, payload, packetID, now)
}

// deliverPayload applies content-id obsolescence (when contentID != 0) and
// either dispatches an internal control message or enqueues the message for
// the application's delivery queue.
func (c *Connection) deliverPayload(msgID uint32, contentID uint32, payload []byte, packetID wire.PacketID, now clock.Tick) {
	if contentID != 0 {
		slot := contentSlot{messageID: msgID, contentID: contentID}
		stamp, ok := c.inboundSlots[slot]
		if ok && !wire.IsNewerThan(packetID, wire.PacketID(stamp.packetID)) && clock.Since(stamp.tick) < contentStaleWindow {
			return
		}
		c.inboundSlots[slot] = obsolescenceStamp{packetID: uint32(packetID), tick: now}
	}

	if c.handleInternalMessage(msgID, payload, now) {
		return
	}

	m := &message{id: msgID, contentID: contentID, payload: append([]byte(nil), payload...)}
	select {
	case c.deliveryQueue <- m:
	default:
		c.log.Warnf("delivery queue full, dropping message id=%d", msgID)
	}
}

// contentStaleWindow is the 5s staleness window: a content-id stamp older
// than this no longer suppresses later arrivals, even if their packet id is
// not newer.
const contentStaleWindow = clock.Tick(5 * time.Second)

// handleInternalMessage dispatches well-known internal message ids and
// reports whether msgID was one of them.
func (c *Connection) handleInternalMessage(msgID uint32, payload []byte, now clock.Tick) bool {
	switch msgID {
	case MsgIDPacketAck:
		ack, _, err := wire.DecodeAckMessage(payload)
		if err == nil {
			c.processInboundAck(ack, now)
		}
		return true
	case MsgIDDisconnect:
		c.onDisconnectReceived()
		return true
	case MsgIDDisconnectAck:
		c.onDisconnectAckReceived()
		return true
	case MsgIDPingRequest:
		c.onPingRequestReceived()
		return true
	case MsgIDPingReply:
		c.onPingReplyReceived(now)
		return true
	case MsgIDFlowControlRequest:
		return true
	default:
		return false
	}
}

package knet

import (
	"github.com/packetflow/knet/internal/clock"
	"github.com/packetflow/knet/internal/wire"
)

// maxFragmentPayloadFor returns the largest payload one fragment may carry
// for a socket with the given maximum send size: sendSize/4 - 32, capped at
// the wire format's own 470-byte policy default.
func maxFragmentPayloadFor(sendSize int) int {
	n := sendSize/4 - 32
	if n > wire.MaxFragmentPayload {
		n = wire.MaxFragmentPayload
	}
	return n
}

// sendOneDatagram drains the outbound priority queue, greedily packing
// messages into one datagram while staying under the connection's
// configured max send size, and submits the sealed datagram to the socket.
// ok is false if there was nothing ready to send.
func (c *Connection) sendOneDatagram(now clock.Tick) (ok bool, err error) {
	if c.outbound.Len() == 0 && len(c.skipped) == 0 {
		return false, nil
	}

	// Re-enqueue anything skipped on a previous pass (e.g. for lack of a
	// free fragment transfer id) before considering new messages.
	for _, m := range c.skipped {
		c.outbound.Push(m)
	}
	c.skipped = c.skipped[:0]

	const headerUpperBound = 32
	budget := c.cfg.MaxSendSize - wire.DatagramHeaderMinBytes

	var selected []*message
	anyReliable := false
	anyInOrder := false

	for c.outbound.Len() > 0 {
		m, _ := c.outbound.Peek()

		if m.obsolete {
			c.outbound.Pop()
			c.freeMessage(m)
			continue
		}

		if m.hasFragment && !m.fragGroup.assigned {
			tr, aerr := c.fragSend.Allocate(m.fragmentCount)
			if aerr != nil {
				c.outbound.Pop()
				c.skipped = append(c.skipped, m)
				continue
			}
			m.fragGroup.id = tr.ID
			m.fragGroup.assigned = true
		}
		if m.hasFragment {
			tr, _ := c.fragSend.Get(m.fragGroup.id)
			alreadyTracked := false
			for _, f := range tr.Fragments {
				if f == m {
					alreadyTracked = true
					break
				}
			}
			if !alreadyTracked {
				tr.Fragments = append(tr.Fragments, m)
			}
		}

		// The reliable-message-number delta isn't known until the whole
		// datagram's base is chosen below, so budget against a worst-case
		// encoded length rather than the real one.
		estimated := estimatedMessageBodyLen(m)

		reserve := 0
		if m.inOrder && !anyInOrder {
			reserve = wire.InOrderDeltaFieldBytes
		}

		if len(selected) > 0 && budget-headerUpperBound-reserve < estimated {
			break
		}
		budget -= estimated

		c.outbound.Pop()
		selected = append(selected, m)
		if m.reliable {
			anyReliable = true
		}
		if m.inOrder {
			anyInOrder = true
		}
	}

	if len(selected) == 0 {
		return false, nil
	}

	pid := c.nextPacketID

	// Reliable-message-numbers are assigned once and preserved across
	// retransmits; the datagram's base is the smallest
	// number among this batch's reliable messages, so freshly assigned
	// numbers (always >= c.nextReliableNum) never lower it below a
	// retransmit's already-assigned, possibly much older number.
	baseReliable := c.nextReliableNum
	if anyReliable {
		for _, m := range selected {
			if !m.reliable {
				continue
			}
			if !m.reliableNumAssigned {
				m.reliableNum = c.nextReliableNum
				m.reliableNumAssigned = true
				c.nextReliableNum++
			}
			if m.reliableNum < baseReliable {
				baseReliable = m.reliableNum
			}
		}
	}

	header := wire.DatagramHeader{
		InOrderPresent:     anyInOrder,
		Reliable:           anyReliable,
		PacketID:           pid,
		BaseReliableMsgNum: baseReliable,
	}
	buf := wire.EncodeDatagramHeader(nil, header)
	if anyInOrder {
		buf = wire.EncodeVLE8_16(buf, 0)
	}
	for _, m := range selected {
		buf = append(buf, c.encodeMessageBody(m, baseReliable)...)
	}

	n, werr := c.socket.WriteTo(buf, c.addr)
	if werr != nil || n != len(buf) {
		for _, m := range selected {
			c.outbound.Push(m)
		}
		return false, ErrSocketFull
	}

	c.nextPacketID = wire.Add(c.nextPacketID, 1)
	c.fc.OnDatagramSent()
	c.stats.recordOut(len(buf))

	closeAfterSend := false
	for _, m := range selected {
		m.sendCount++
		if m.closeAfterSend {
			closeAfterSend = true
		}
	}

	if anyReliable {
		var reliableMessages []*message
		for _, m := range selected {
			if m.reliable {
				reliableMessages = append(reliableMessages, m)
			} else {
				c.freeMessage(m)
			}
		}
		c.insertAckTrack(pid, now, reliableMessages)
	} else {
		for _, m := range selected {
			c.freeMessage(m)
		}
	}

	if closeAfterSend {
		c.Close()
	}

	return true, nil
}

// estimatedMessageBodyLen bounds encodeMessageBody's output length from
// above, using each variable field's worst-case VLE width, so the packer can
// budget a datagram before reliable-message-numbers (and hence exact delta
// widths) are finalized.
func estimatedMessageBodyLen(m *message) int {
	n := wire.MessageHeaderBytes
	if m.reliable {
		n += 2
	}
	if m.hasFragment {
		n++    // transfer id
		n += 5 // fragment count (first fragment) or fragment index
		if m.fragmentIndex == 0 {
			n += 5 // message id, carried only by the first fragment
		}
	} else {
		n += 5 // message id
	}
	return n + len(m.payload)
}

// encodeMessageBody encodes one message's header, variable fields and
// payload, excluding the packet-level header. base is the enclosing
// datagram's reliable-message-number base, used to compute this message's
// delta.
func (c *Connection) encodeMessageBody(m *message, base uint32) []byte {
	h := wire.MessageHeader{
		Fragmented: m.hasFragment,
		InOrder:    m.inOrder,
		Reliable:   m.reliable,
		ContentLen: uint16(len(m.payload)),
		MessageID:  m.id,
	}
	if m.reliable {
		h.ReliableDelta = m.reliableNum - base
	}
	if m.hasFragment {
		h.TransferID = m.fragGroup.id
		if m.fragmentIndex == 0 {
			h.FirstFragment = true
			h.FragmentTotal = uint32(m.fragmentCount)
		} else {
			h.FragmentIndex = uint32(m.fragmentIndex)
		}
	}

	body := wire.EncodeMessageHeader(nil, h)
	body = append(body, m.payload...)
	return body
}

// freeMessage returns m to the message pool, first detaching it from its
// fragment transfer (if any) and releasing the transfer id once every
// fragment has been freed.
func (c *Connection) freeMessage(m *message) {
	c.clearContentSlot(m)
	if m.hasFragment {
		id := m.fragGroup.id
		complete := c.fragSend.RemoveFragment(id, func(o *message) bool { return o == m })
		if complete {
			c.fragSend.Release(id)
		}
	}
	c.pool.Put(m)
}

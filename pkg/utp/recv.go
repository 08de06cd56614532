package utp

import (
	"context"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
)

// Recv blocks for the next logical message and copies it into buffer,
// returning the number of bytes delivered. A pure ACK or keepalive yields 0.
// When the peer closes the connection, the passive teardown runs and Recv
// returns io.EOF.
//
// Corrupt datagrams are dropped silently. An out-of-order datagram is
// discarded and answered with a duplicate ACK so that the sender fast
// retransmits; a datagram below the expected sequence is a leftover from a
// sender timeout and is re-acknowledged without being delivered again.
func (c *Conn) Recv(ctx context.Context, buffer []byte) (int, error) {
	if c == nil {
		return 0, errcat.BadArgument.New("nil connection")
	}
	if c.state == stateInvalid || c.state >= stateClosingByPeer {
		return 0, errcat.BadState.Newf("recv in state %s", c.state)
	}

	total := 0
	for {
		h, payload, err := c.recvSegment(ctx)
		if err != nil {
			if err == errCorrupt {
				c.stats.CountLost(0)
				dlog.Debugf(ctx, "   CON %s dropped corrupt datagram", c.id)
				continue
			}
			return 0, err
		}

		switch {
		case h.Seq > c.ack:
			// A gap: something before this datagram went missing. Discard
			// it and re-ACK the old frontier; the duplicate tells the
			// sender where to resume.
			c.stats.CountLost(int(h.DataLen))
			dlog.Debugf(ctx, "   CON %s reordered datagram sq %d, expected %d", c.id, h.Seq, c.ack)
			if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
				return 0, err
			}
			continue

		case h.Control&header.FIN != 0:
			dlog.Debugf(ctx, "   CON %s peer closing", c.id)
			if err := c.Shutdown(ctx, Responder); err != nil {
				return 0, err
			}
			return 0, io.EOF

		case h.Seq < c.ack:
			// Duplicate from a sender timeout. Re-ACK so the sender can
			// move past it, but never deliver it again.
			dlog.Debugf(ctx, "   CON %s duplicate datagram sq %d, expected %d", c.id, h.Seq, c.ack)
			if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
				return 0, err
			}
			continue
		}

		if h.DataLen == 0 {
			if total > 0 {
				// An empty segment inside a fragment train carries nothing
				// to deliver or acknowledge.
				continue
			}
			return 0, nil
		}

		if total+len(payload) > len(buffer) {
			return 0, errcat.BadArgument.Newf("message exceeds buffer capacity %d", len(buffer))
		}
		c.bufFill = len(payload)
		copy(buffer[total:], payload)
		total += len(payload)
		c.ack += h.DataLen
		c.bufFill = 0
		c.stats.CountReceived(len(payload))

		if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
			return 0, err
		}

		if h.Control&header.Fragment == 0 {
			return total, nil
		}
		// More fragments of this message follow.
	}
}

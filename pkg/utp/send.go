package utp

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
	"github.com/utpio/utp/pkg/transport"
)

// Send transmits the whole buffer as one logical message and blocks until
// every byte has been acknowledged. Delivery is ordered within the call.
// Sending is windowed by min(cwnd, peer window); loss is recovered by ACK
// timeout (go-back-N over the burst) or by three duplicate ACKs (fast
// retransmit). A burst abandoned after too many consecutive timeouts
// surfaces a transport error.
func (c *Conn) Send(ctx context.Context, buffer []byte) error {
	if c == nil {
		return errcat.BadArgument.New("nil connection")
	}
	if c.state == stateInvalid || c.state >= stateClosingByPeer {
		return errcat.BadState.Newf("send in state %s", c.state)
	}
	if c.peerWindow == 0 {
		return errcat.BadState.New("peer window not negotiated")
	}
	if len(buffer) == 0 {
		return nil
	}

	// ACKs are clocked by the receiver; bound each wait.
	c.pipe.SetRecvTimeout(AckTimeout)
	defer c.pipe.SetRecvTimeout(0)

	total := uint32(len(buffer))
	offset := uint32(0) // bytes of buffer acknowledged so far
	dacks := 0
	timeouts := 0

	for offset < total {
		burstStart := offset
		baseSeq := c.seq

		window := c.cwnd
		if pw := uint32(c.peerWindow); pw < window {
			window = pw
		}
		if window == 0 {
			window = 1 // zero window probe
		}
		burst := total - offset
		if burst > window {
			burst = window
		}

		// Split the burst into MSS chunks, sent back to back. Every chunk
		// except the final one of the whole message carries the fragment
		// flag; its absence tells the receiver the message is complete.
		nchunks := (burst + MSS - 1) / MSS
		for i := uint32(0); i < nchunks; i++ {
			off := offset + i*MSS
			sz := uint32(MSS)
			if i == nchunks-1 {
				sz = burst - i*MSS
			}
			ctrl := header.ControlBits(0)
			if off+sz < total {
				ctrl = header.Fragment
			}
			if err := c.sendSegment(ctx, baseSeq+i*MSS, ctrl, buffer[off:off+sz]); err != nil {
				return err
			}
		}
		dlog.Debugf(ctx, "   CON %s sent %d chunks, %d bytes, cwnd %d, peer window %d", c.id, nchunks, burst, c.cwnd, c.peerWindow)

		// Collect one ACK per chunk.
		acked := uint32(0)
	collect:
		for acked < nchunks {
			h, _, err := c.recvSegment(ctx)
			switch {
			case err == nil:
			case err == errCorrupt:
				// A garbled datagram is a lost one; keep waiting.
				continue collect
			case transport.IsTimeout(err):
				timeouts++
				if timeouts >= maxTimeouts {
					return errcat.Transport.Newf("burst abandoned after %d ACK timeouts", timeouts)
				}
				c.countBurstLost(burst-(offset-burstStart), nchunks-acked)
				c.ssthresh = c.cwnd / 2
				if c.ssthresh < MSS {
					c.ssthresh = MSS
				}
				c.cwnd = MSS
				c.state = stateSlowStart
				// Go-back-N: rewind to the start of the burst.
				c.seq = baseSeq
				offset = burstStart
				dlog.Debugf(ctx, "   CON %s ACK timeout, cwnd %d, ssthresh %d, retransmitting burst", c.id, c.cwnd, c.ssthresh)
				break collect
			default:
				return err
			}

			c.peerWindow = h.Window
			if h.Ack > baseSeq+burst {
				h.Ack = baseSeq + burst
			}

			if h.Ack <= c.seq {
				// Duplicate ACK.
				dacks++
				switch {
				case dacks == dupAckThreshold:
					c.ssthresh = c.cwnd / 2
					if c.ssthresh < MSS {
						c.ssthresh = MSS
					}
					c.cwnd = c.ssthresh + dupAckThreshold*MSS
					rewindTo := h.Ack
					if rewindTo < baseSeq {
						rewindTo = baseSeq
					}
					c.stats.CountLost(int(c.seq - rewindTo))
					c.seq = rewindTo
					offset = burstStart + (rewindTo - baseSeq)
					dlog.Debugf(ctx, "   CON %s fast retransmit from sq %d, cwnd %d, ssthresh %d", c.id, rewindTo, c.cwnd, c.ssthresh)
					break collect
				case dacks > dupAckThreshold:
					// The peer keeps duplicating; inflate the window.
					c.cwnd += MSS
				}
				continue collect
			}

			// Progress. A cumulative ACK may cover several chunks.
			advanced := h.Ack - c.seq
			c.seq = h.Ack
			offset += advanced
			acked += (advanced + MSS - 1) / MSS
			dacks = 0
			timeouts = 0
			if c.state == stateSlowStart {
				c.cwnd *= 2
				if c.cwnd >= c.ssthresh {
					c.state = stateCongAvoid
					dlog.Debugf(ctx, "   CON %s entering congestion avoidance, cwnd %d", c.id, c.cwnd)
				}
			} else {
				c.cwnd += MSS
			}
		}
	}
	return nil
}

// countBurstLost books the unacknowledged tail of a burst as lost.
func (c *Conn) countBurstLost(bytes, chunks uint32) {
	for i := uint32(0); i < chunks; i++ {
		sz := uint32(MSS)
		if sz > bytes {
			sz = bytes
		}
		c.stats.CountLost(int(sz))
		bytes -= sz
	}
}

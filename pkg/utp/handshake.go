package utp

import (
	"context"
	"net"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
)

// Connect performs the active side of the three-way handshake. On return the
// connection is in slow start and ready for Send/Recv. Any failure leaves the
// record unusable.
func (c *Conn) Connect(ctx context.Context, raddr *net.UDPAddr) error {
	if c == nil {
		return errcat.BadArgument.New("nil connection")
	}
	if c.state != stateInvalid {
		return errcat.BadState.Newf("connect in state %s", c.state)
	}
	if err := c.pipe.Connect(raddr); err != nil {
		return errcat.Transport.New(err)
	}
	c.id = raddr.String()

	if err := c.sendSegment(ctx, c.seq, header.SYN, nil); err != nil {
		return err
	}
	h, _, err := c.recvSegment(ctx)
	if err != nil {
		c.state = stateInvalid
		return errcat.Aborted.Newf("handshake receive: %v", err)
	}
	dlog.Debugf(ctx, "   CON %s <- %s", c.id, h)
	if h.Control != header.SYN|header.ACK {
		c.state = stateInvalid
		return errcat.Aborted.Newf("expected SYN|ACK, got %s", h.Control)
	}

	// The SYN consumed one ghost byte on our side; the peer's SYN|ACK
	// consumed one on theirs.
	c.seq++
	c.ack = h.Seq + 1
	c.peerWindow = h.Window

	if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
		return err
	}
	c.state = stateSlowStart
	dlog.Debugf(ctx, "   CON %s established, cwnd %d, ssthresh %d", c.id, c.cwnd, c.ssthresh)
	return nil
}

// Accept performs the passive side of the handshake. It blocks until a peer
// sends a SYN, completes the exchange, and returns the peer's address. The
// record must be freshly created (and normally bound).
func (c *Conn) Accept(ctx context.Context) (*net.UDPAddr, error) {
	if c == nil {
		return nil, errcat.BadArgument.New("nil connection")
	}
	if c.state != stateInvalid {
		return nil, errcat.BadState.Newf("accept in state %s", c.state)
	}
	c.state = stateListen

	n, from, err := c.pipe.RecvFrom(ctx, c.recvbuf)
	if err != nil {
		c.state = stateInvalid
		return nil, errcat.Transport.New(err)
	}
	if err := c.pipe.Connect(from); err != nil {
		c.state = stateInvalid
		return nil, errcat.Transport.New(err)
	}
	c.id = from.String()

	h, err := header.Parse(c.recvbuf[:n])
	if err != nil {
		c.state = stateInvalid
		return nil, errcat.Aborted.New(err)
	}
	dlog.Debugf(ctx, "   CON %s <- %s", c.id, h)
	if h.Control != header.SYN {
		c.state = stateInvalid
		return nil, errcat.Aborted.Newf("expected SYN, got %s", h.Control)
	}
	c.peerWindow = h.Window
	c.ack = h.Seq + 1
	c.stats.CountReceived(1) // the SYN's ghost byte

	if err := c.sendSegment(ctx, c.seq, header.SYN|header.ACK, nil); err != nil {
		c.state = stateInvalid
		return nil, err
	}

	h, _, err = c.recvSegment(ctx)
	if err != nil {
		c.state = stateInvalid
		return nil, errcat.Aborted.Newf("handshake receive: %v", err)
	}
	dlog.Debugf(ctx, "   CON %s <- %s", c.id, h)
	if h.Control != header.ACK {
		c.state = stateInvalid
		return nil, errcat.Aborted.Newf("expected ACK, got %s", h.Control)
	}

	c.seq++ // ghost byte consumed by our SYN|ACK
	c.state = stateEstablished
	dlog.Debugf(ctx, "   CON %s established", c.id)
	return from, nil
}

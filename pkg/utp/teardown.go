package utp

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
)

// Role selects which side of the four-way close Shutdown drives.
type Role int

const (
	// Initiator actively closes an established connection.
	Initiator = Role(iota)
	// Responder answers a FIN the receive path has already consumed.
	Responder
)

// Shutdown runs the four-way close. The initiator sends FIN|ACK, awaits the
// plain ACK and then the peer's FIN|ACK, and answers with the final ACK. The
// responder role is normally entered from Recv when a FIN arrives. Either way
// the record ends in the closed state and allows no further transfers.
func (c *Conn) Shutdown(ctx context.Context, role Role) error {
	if c == nil {
		return errcat.BadArgument.New("nil connection")
	}
	switch role {
	case Initiator:
		return c.closeInitiator(ctx)
	case Responder:
		return c.closeResponder(ctx)
	default:
		return errcat.BadArgument.Newf("unknown shutdown role %d", role)
	}
}

func (c *Conn) closeInitiator(ctx context.Context) error {
	if !c.canTransfer() {
		return errcat.BadState.Newf("shutdown in state %s", c.state)
	}
	dlog.Debugf(ctx, "   CON %s active close", c.id)
	if err := c.sendSegment(ctx, c.seq, header.FIN|header.ACK, nil); err != nil {
		return err
	}

	h, _, err := c.recvSegment(ctx)
	if err != nil {
		return errcat.Aborted.Newf("close receive: %v", err)
	}
	if h.Control&header.ACK == 0 {
		return errcat.Aborted.Newf("expected ACK of FIN, got %s", h.Control)
	}
	c.state = stateClosingByHost

	h, _, err = c.recvSegment(ctx)
	if err != nil {
		return errcat.Aborted.Newf("close receive: %v", err)
	}
	if h.Control&(header.FIN|header.ACK) != header.FIN|header.ACK {
		return errcat.Aborted.Newf("expected FIN|ACK, got %s", h.Control)
	}

	if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
		return err
	}
	c.state = stateClosed
	dlog.Debugf(ctx, "   CON %s closed, %s", c.id, c.stats.Snapshot())
	return nil
}

func (c *Conn) closeResponder(ctx context.Context) error {
	c.state = stateClosingByPeer
	if err := c.sendSegment(ctx, c.seq, header.ACK, nil); err != nil {
		return err
	}
	if err := c.sendSegment(ctx, c.seq, header.FIN|header.ACK, nil); err != nil {
		return err
	}

	h, _, err := c.recvSegment(ctx)
	if err != nil {
		return errcat.Aborted.Newf("close receive: %v", err)
	}
	if h.Control&header.ACK == 0 {
		return errcat.Aborted.Newf("expected final ACK, got %s", h.Control)
	}
	c.state = stateClosed
	dlog.Debugf(ctx, "   CON %s closed by peer, %s", c.id, c.stats.Snapshot())
	return nil
}

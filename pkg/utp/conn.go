// Package utp implements a lightweight reliable transport over an unreliable
// datagram substrate: three-way handshake, ordered delivery, sliding-window
// flow control, TCP-style congestion control with fast retransmit, CRC-32
// payload integrity, and a four-way teardown.
package utp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
	"github.com/utpio/utp/pkg/stats"
	"github.com/utpio/utp/pkg/transport"
)

// Protocol constants. These are fixed by the wire protocol; both peers must
// agree on MSS and the receive buffer size.
const (
	// MSS is the largest payload carried by one datagram.
	MSS = 1400

	// ReceiveBufferSize is the receive-side staging buffer, and thereby the
	// largest window a receiver ever advertises.
	ReceiveBufferSize = 8192

	// InitialWindow is the congestion window of a fresh connection.
	InitialWindow = 3 * MSS

	// InitialSSThresh is the slow-start threshold of a fresh connection.
	InitialSSThresh = ReceiveBufferSize

	// AckTimeout bounds the wait for each ACK during a send burst.
	AckTimeout = 200 * time.Millisecond

	dupAckThreshold = 3

	// maxTimeouts bounds consecutive ACK timeouts before a send gives up.
	maxTimeouts = 7
)

type state int

const (
	stateInvalid = state(iota)
	stateListen
	stateEstablished
	stateSlowStart
	stateCongAvoid
	stateClosingByPeer
	stateClosingByHost
	stateClosed
)

func (s state) String() (txt string) {
	switch s {
	case stateInvalid:
		txt = "INVALID"
	case stateListen:
		txt = "LISTEN"
	case stateEstablished:
		txt = "ESTABLISHED"
	case stateSlowStart:
		txt = "SLOW-START"
	case stateCongAvoid:
		txt = "CONG-AVOID"
	case stateClosingByPeer:
		txt = "CLOSING-BY-PEER"
	case stateClosingByHost:
		txt = "CLOSING-BY-HOST"
	case stateClosed:
		txt = "CLOSED"
	default:
		panic("unknown state")
	}
	return txt
}

// errCorrupt marks a datagram whose checksum (or framing) doesn't hold up.
// It never escapes this package; such datagrams are treated as lost.
var errCorrupt = errors.New("corrupt segment")

// Conn is one µTP connection record.
//
// A Conn is owned by exactly one goroutine. Concurrent calls on the same Conn
// are undefined; there is no locking here. Independent Conns are fully
// isolated from each other.
type Conn struct {
	pipe transport.Pipe

	// id tags log lines. It is the peer address after the handshake.
	id string

	state state

	// seq is the byte index of the next outgoing byte; ack the next inbound
	// byte expected from the peer.
	seq uint32
	ack uint32

	// cwnd and ssthresh drive the congestion control; peerWindow is the most
	// recently advertised window of the peer and caps bytes in flight.
	cwnd       uint32
	ssthresh   uint32
	peerWindow uint16

	// recvbuf stages one inbound datagram; bufFill is subtracted from the
	// advertised window while payload sits there undelivered.
	recvbuf []byte
	bufFill int

	sendbuf [header.Len + MSS]byte

	rnd   *rand.Rand
	stats stats.Stats
}

// NewConn creates a connection record over the given pipe. The random source
// seeds the initial sequence number.
func NewConn(pipe transport.Pipe, rndSource rand.Source) *Conn {
	rnd := rand.New(rndSource)
	return &Conn{
		pipe:     pipe,
		id:       "-",
		state:    stateInvalid,
		seq:      rnd.Uint32(),
		cwnd:     InitialWindow,
		ssthresh: InitialSSThresh,
		recvbuf:  make([]byte, ReceiveBufferSize),
		rnd:      rnd,
	}
}

// Bind attaches the record to a local address. Servers bind before Accept;
// clients may skip it and get an ephemeral port on Connect.
func (c *Conn) Bind(laddr *net.UDPAddr) error {
	if err := c.pipe.Bind(laddr); err != nil {
		return errcat.Transport.New(err)
	}
	return nil
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() stats.Stats {
	return c.stats.Snapshot()
}

// canTransfer reports whether Send and Recv are allowed in the current state.
func (c *Conn) canTransfer() bool {
	return c.state != stateInvalid && c.state < stateClosingByPeer
}

// window is what an outgoing header advertises: the free part of recvbuf.
func (c *Conn) window() uint16 {
	return uint16(ReceiveBufferSize - c.bufFill)
}

// sendSegment writes one datagram carrying ctrl and payload, stamped with
// the given sequence number and the record's current ack.
func (c *Conn) sendSegment(ctx context.Context, seq uint32, ctrl header.ControlBits, payload []byte) error {
	h := header.Header{
		Seq:      seq,
		Ack:      c.ack,
		Control:  ctrl,
		Window:   c.window(),
		DataLen:  uint32(len(payload)),
		Checksum: header.Checksum(payload),
	}
	if err := h.Marshal(c.sendbuf[:]); err != nil {
		return err
	}
	copy(c.sendbuf[header.Len:], payload)
	if _, err := c.pipe.Send(ctx, c.sendbuf[:header.Len+len(payload)]); err != nil {
		return errcat.Transport.New(err)
	}
	c.stats.CountSent(len(payload))
	return nil
}

// recvSegment reads one datagram into recvbuf and decodes it. The returned
// payload aliases recvbuf and is only valid until the next receive. A failed
// checksum or broken framing yields errCorrupt; timeouts pass through so the
// send engine can tell them from hard transport failures.
func (c *Conn) recvSegment(ctx context.Context) (header.Header, []byte, error) {
	n, err := c.pipe.Recv(ctx, c.recvbuf)
	if err != nil {
		if transport.IsTimeout(err) {
			return header.Header{}, nil, err
		}
		return header.Header{}, nil, errcat.Transport.New(err)
	}
	h, err := header.Parse(c.recvbuf[:n])
	if err != nil {
		return header.Header{}, nil, errCorrupt
	}
	if int(h.DataLen) > n-header.Len {
		return header.Header{}, nil, errCorrupt
	}
	payload := c.recvbuf[header.Len : header.Len+int(h.DataLen)]
	if !h.VerifyChecksum(payload) {
		return header.Header{}, nil, errCorrupt
	}
	return h, payload, nil
}

// Close tears the connection down. When the connection is still in a data
// state, the four-way close runs first in the initiator role; the transport
// is released regardless.
func (c *Conn) Close(ctx context.Context) error {
	var result error
	if c.canTransfer() {
		if err := c.Shutdown(ctx, Initiator); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := c.pipe.Close(); err != nil {
		result = multierror.Append(result, errcat.Transport.New(err))
	}
	c.state = stateClosed
	c.recvbuf = nil
	return result
}

func (c *Conn) String() string {
	return fmt.Sprintf("CON %s %s", c.id, c.state)
}

// Package transport abstracts the unreliable datagram substrate that the
// protocol runs on. A Pipe delivers whole datagrams, possibly dropping,
// duplicating, or reordering them; reliability is the caller's problem.
package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrTimeout is returned (possibly wrapped) by Recv when a receive timeout
// set with SetRecvTimeout expires before a datagram arrives. Callers detect
// it with IsTimeout rather than comparing directly.
var ErrTimeout = errors.New("receive timeout")

// IsTimeout reports whether err is a receive timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Pipe is a connected datagram endpoint. A zero receive timeout blocks
// indefinitely; a non-zero timeout bounds every subsequent Recv.
//
// RecvFrom receives from any source and reports the sender, for the listen
// side of a connection setup where the peer isn't known yet. Once Connect has
// set a default peer, Recv discards datagrams from other sources.
type Pipe interface {
	Bind(laddr *net.UDPAddr) error
	Connect(raddr *net.UDPAddr) error
	Send(ctx context.Context, b []byte) (int, error)
	Recv(ctx context.Context, b []byte) (int, error)
	RecvFrom(ctx context.Context, b []byte) (int, *net.UDPAddr, error)
	SetRecvTimeout(d time.Duration)
	Close() error
}

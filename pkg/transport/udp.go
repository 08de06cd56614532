package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// UDP is the Pipe used in production. The socket stays unconnected so that
// the listen side can learn its peer from the first datagram; after Connect,
// sends go to the peer and receives from anyone else are dropped.
type UDP struct {
	conn    *net.UDPConn
	peer    *net.UDPAddr
	timeout time.Duration
}

func NewUDP() *UDP {
	return &UDP{}
}

// ensureSocket opens the socket lazily so that a client that never calls
// Bind still gets an ephemeral local port on Connect.
func (u *UDP) ensureSocket(laddr *net.UDPAddr) error {
	if u.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errors.Wrap(err, "udp listen")
	}
	u.conn = conn
	return nil
}

func (u *UDP) Bind(laddr *net.UDPAddr) error {
	if u.conn != nil {
		return errors.New("udp socket already bound")
	}
	return u.ensureSocket(laddr)
}

func (u *UDP) Connect(raddr *net.UDPAddr) error {
	if err := u.ensureSocket(nil); err != nil {
		return err
	}
	u.peer = raddr
	return nil
}

func (u *UDP) LocalAddr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDP) RemoteAddr() net.Addr {
	if u.peer == nil {
		return nil
	}
	return u.peer
}

func (u *UDP) SetRecvTimeout(d time.Duration) {
	u.timeout = d
}

func (u *UDP) Send(ctx context.Context, b []byte) (int, error) {
	if u.conn == nil || u.peer == nil {
		return 0, errors.New("udp send without peer")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := u.conn.WriteToUDP(b, u.peer)
	if err != nil {
		return n, errors.Wrap(err, "udp send")
	}
	return n, nil
}

// deadline applies the receive timeout and the context deadline, whichever
// comes first. A zero timeout with no context deadline blocks indefinitely.
func (u *UDP) deadline(ctx context.Context) error {
	var dl time.Time
	if u.timeout > 0 {
		dl = time.Now().Add(u.timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (dl.IsZero() || cd.Before(dl)) {
		dl = cd
	}
	return u.conn.SetReadDeadline(dl)
}

func (u *UDP) Recv(ctx context.Context, b []byte) (int, error) {
	if u.conn == nil {
		return 0, errors.New("udp recv on unbound socket")
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := u.deadline(ctx); err != nil {
			return 0, errors.Wrap(err, "udp deadline")
		}
		n, from, err := u.conn.ReadFromUDP(b)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return 0, errors.Wrap(ErrTimeout, "udp recv")
			}
			return 0, errors.Wrap(err, "udp recv")
		}
		if u.peer != nil && !sameAddr(from, u.peer) {
			// Stray datagram from some other sender.
			continue
		}
		return n, nil
	}
}

func (u *UDP) RecvFrom(ctx context.Context, b []byte) (int, *net.UDPAddr, error) {
	if u.conn == nil {
		return 0, nil, errors.New("udp recv on unbound socket")
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := u.deadline(ctx); err != nil {
		return 0, nil, errors.Wrap(err, "udp deadline")
	}
	n, from, err := u.conn.ReadFromUDP(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, errors.Wrap(ErrTimeout, "udp recv")
		}
		return 0, nil, errors.Wrap(err, "udp recv")
	}
	return n, from, nil
}

func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

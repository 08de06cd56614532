package utp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utpio/utp/pkg/header"
	"github.com/utpio/utp/pkg/transport"
)

// memPipe is an in-memory transport.Pipe. A pair shares two buffered
// channels, so a single-threaded test can preload datagrams or script a peer
// from another goroutine. The onSend hook can drop or record datagrams.
type memPipe struct {
	in      chan []byte
	out     chan []byte
	timeout time.Duration
	onSend  func(b []byte) bool // return false to drop
}

func newPipePair() (*memPipe, *memPipe) {
	ab := make(chan []byte, 128)
	ba := make(chan []byte, 128)
	return &memPipe{in: ba, out: ab}, &memPipe{in: ab, out: ba}
}

func (p *memPipe) Bind(*net.UDPAddr) error    { return nil }
func (p *memPipe) Connect(*net.UDPAddr) error { return nil }
func (p *memPipe) Close() error               { return nil }

func (p *memPipe) SetRecvTimeout(d time.Duration) {
	p.timeout = d
}

func (p *memPipe) Send(ctx context.Context, b []byte) (int, error) {
	if p.onSend != nil && !p.onSend(b) {
		return len(b), nil // dropped by the network
	}
	cp := append([]byte(nil), b...)
	select {
	case p.out <- cp:
		return len(b), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *memPipe) Recv(ctx context.Context, b []byte) (int, error) {
	var timeoutCh <-chan time.Time
	if p.timeout > 0 {
		t := time.NewTimer(p.timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case m := <-p.in:
		return copy(b, m), nil
	case <-timeoutCh:
		return 0, transport.ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *memPipe) RecvFrom(ctx context.Context, b []byte) (int, *net.UDPAddr, error) {
	n, err := p.Recv(ctx, b)
	return n, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}, err
}

// frame builds one on-wire datagram. DataLen and Checksum are derived from
// the payload so scripted peers can't get them wrong by accident.
func frame(t testing.TB, h header.Header, payload []byte) []byte {
	t.Helper()
	h.DataLen = uint32(len(payload))
	h.Checksum = header.Checksum(payload)
	b := make([]byte, header.Len+len(payload))
	require.NoError(t, h.Marshal(b))
	copy(b[header.Len:], payload)
	return b
}

// readFrame pops the next datagram a connection under test has sent.
func readFrame(t testing.TB, ch <-chan []byte) (header.Header, []byte) {
	t.Helper()
	select {
	case b := <-ch:
		h, err := header.Parse(b)
		require.NoError(t, err)
		return h, b[header.Len:]
	case <-time.After(3 * time.Second):
		t.Fatal("no datagram within 3s")
		return header.Header{}, nil
	}
}

// tap records data-bearing datagrams passing through onSend.
type tap struct {
	mu     sync.Mutex
	frames []header.Header
	sizes  []int
}

func (c *tap) hook() func(b []byte) bool {
	return func(b []byte) bool {
		if h, err := header.Parse(b); err == nil && h.DataLen > 0 {
			c.mu.Lock()
			c.frames = append(c.frames, h)
			c.sizes = append(c.sizes, int(h.DataLen))
			c.mu.Unlock()
		}
		return true
	}
}

func (c *tap) recorded() ([]header.Header, []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]header.Header(nil), c.frames...), append([]int(nil), c.sizes...)
}

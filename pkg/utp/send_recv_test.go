package utp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utpio/utp/pkg/errcat"
	"github.com/utpio/utp/pkg/header"
)

func TestSendRecvShortMessage(t *testing.T) {
	ctx := testContext(t)
	client, server := connectedPair(ctx, t)

	payload := []byte{0x36, 0x39, 0x00} // "69\0"
	got := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 1500)
		n, err := server.Recv(ctx, buf)
		errs <- err
		got <- buf[:n]
	}()

	require.NoError(t, client.Send(ctx, payload))
	require.NoError(t, <-errs)
	assert.Equal(t, payload, <-got)

	assert.Equal(t, uint64(3), server.Stats().BytesReceived-1) // handshake ghost byte included
}

func TestSendFragments(t *testing.T) {
	ctx := testContext(t)
	a, b := newPipePair()
	capture := &tap{}
	a.onSend = capture.hook()
	client := NewConn(a, rand.NewSource(1))
	server := NewConn(b, rand.NewSource(2))

	accepted := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx)
		accepted <- err
	}()
	require.NoError(t, client.Connect(ctx, peerAddr))
	require.NoError(t, <-accepted)

	payload := make([]byte, 2805)
	rnd := rand.New(rand.NewSource(42))
	rnd.Read(payload)

	got := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 3000)
		n, err := server.Recv(ctx, buf)
		errs <- err
		got <- buf[:n]
	}()

	require.NoError(t, client.Send(ctx, payload))
	require.NoError(t, <-errs)
	assert.Equal(t, payload, <-got)

	// 2805 bytes fit in the initial window of 4200, so exactly three
	// datagrams go out: 1400+1400 with the fragment flag, then the 5-byte
	// tail without it.
	frames, sizes := capture.recorded()
	require.Len(t, frames, 3)
	assert.Equal(t, []int{1400, 1400, 5}, sizes)
	assert.NotZero(t, frames[0].Control&header.Fragment)
	assert.NotZero(t, frames[1].Control&header.Fragment)
	assert.Zero(t, frames[2].Control&header.Fragment)

	// Chunks are stamped with consecutive byte indexes.
	assert.Equal(t, frames[0].Seq+1400, frames[1].Seq)
	assert.Equal(t, frames[1].Seq+1400, frames[2].Seq)
}

func TestRecvDuplicateSuppressed(t *testing.T) {
	ctx := testContext(t)
	_, b := newPipePair()
	server := NewConn(b, rand.NewSource(2))

	accepted := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx)
		accepted <- err
	}()

	// Scripted active handshake.
	b.in <- frame(t, header.Header{Seq: 1000, Control: header.SYN, Window: ReceiveBufferSize}, nil)
	synAck, _ := readFrame(t, b.out)
	require.Equal(t, header.SYN|header.ACK, synAck.Control)
	seq := uint32(1001)
	ack := synAck.Seq + 1
	b.in <- frame(t, header.Header{Seq: seq, Ack: ack, Control: header.ACK, Window: ReceiveBufferSize}, nil)
	require.NoError(t, <-accepted)

	data := frame(t, header.Header{Seq: seq, Ack: ack, Window: ReceiveBufferSize}, []byte("hello"))
	b.in <- data
	buf := make([]byte, 64)
	n, err := server.Recv(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))

	ackFrame, _ := readFrame(t, b.out)
	assert.Equal(t, seq+5, ackFrame.Ack)

	// Replay the very same datagram, then send the real successor. The
	// replay must be re-ACKed at the unchanged frontier and not delivered.
	b.in <- data
	b.in <- frame(t, header.Header{Seq: seq + 5, Ack: ack, Window: ReceiveBufferSize}, []byte("world"))

	n, err = server.Recv(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	dupAck, _ := readFrame(t, b.out)
	assert.Equal(t, seq+5, dupAck.Ack) // frontier unmoved by the replay
	nextAck, _ := readFrame(t, b.out)
	assert.Equal(t, seq+10, nextAck.Ack)
}

func TestRecvReorderedTriggersDupAck(t *testing.T) {
	ctx := testContext(t)
	_, b := newPipePair()
	server := NewConn(b, rand.NewSource(2))

	accepted := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx)
		accepted <- err
	}()
	b.in <- frame(t, header.Header{Seq: 1000, Control: header.SYN, Window: ReceiveBufferSize}, nil)
	synAck, _ := readFrame(t, b.out)
	seq := uint32(1001)
	ack := synAck.Seq + 1
	b.in <- frame(t, header.Header{Seq: seq, Ack: ack, Control: header.ACK, Window: ReceiveBufferSize}, nil)
	require.NoError(t, <-accepted)

	// A datagram from beyond the frontier: dropped, and answered with an
	// ACK that still names the old frontier.
	b.in <- frame(t, header.Header{Seq: seq + 1400, Ack: ack, Window: ReceiveBufferSize}, []byte("late"))
	b.in <- frame(t, header.Header{Seq: seq, Ack: ack, Window: ReceiveBufferSize}, []byte("ontime"))

	buf := make([]byte, 64)
	n, err := server.Recv(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "ontime", string(buf[:n]))

	dupAck, _ := readFrame(t, b.out)
	assert.Equal(t, seq, dupAck.Ack) // the duplicate ACK for the gap
	goodAck, _ := readFrame(t, b.out)
	assert.Equal(t, seq+6, goodAck.Ack)

	assert.Equal(t, uint64(1), server.Stats().PacketsLost)
}

func TestRecvCorruptDroppedSilently(t *testing.T) {
	ctx := testContext(t)
	_, b := newPipePair()
	server := NewConn(b, rand.NewSource(2))

	accepted := make(chan error, 1)
	go func() {
		_, err := server.Accept(ctx)
		accepted <- err
	}()
	b.in <- frame(t, header.Header{Seq: 1000, Control: header.SYN, Window: ReceiveBufferSize}, nil)
	synAck, _ := readFrame(t, b.out)
	seq := uint32(1001)
	ack := synAck.Seq + 1
	b.in <- frame(t, header.Header{Seq: seq, Ack: ack, Control: header.ACK, Window: ReceiveBufferSize}, nil)
	require.NoError(t, <-accepted)

	// Flip payload bits after the checksum was computed.
	bad := frame(t, header.Header{Seq: seq, Ack: ack, Window: ReceiveBufferSize}, []byte("garbl"))
	bad[header.Len] ^= 0xff
	b.in <- bad
	b.in <- frame(t, header.Header{Seq: seq, Ack: ack, Window: ReceiveBufferSize}, []byte("clean"))

	buf := make([]byte, 64)
	n, err := server.Recv(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "clean", string(buf[:n]))

	// Exactly one ACK went out; the corrupt datagram produced none.
	ackFrame, _ := readFrame(t, b.out)
	assert.Equal(t, seq+5, ackFrame.Ack)
	assert.Len(t, b.out, 0)
}

func TestRecvPureAckYieldsZero(t *testing.T) {
	ctx := testContext(t)
	client, server := connectedPair(ctx, t)

	// A header-only segment at the frontier is a keepalive.
	go func() {
		_ = client.sendSegment(ctx, client.seq, header.ACK, nil)
	}()
	n, err := server.Recv(ctx, make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendRefusedBeforeHandshake(t *testing.T) {
	ctx := testContext(t)
	a, _ := newPipePair()
	c := NewConn(a, rand.NewSource(1))

	err := c.Send(ctx, []byte("nope"))
	require.Error(t, err)
	assert.Equal(t, errcat.BadState, errcat.GetCategory(err))
}

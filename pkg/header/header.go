// Package header implements the fixed 32-byte µTP segment header and its
// on-wire form. All multi-byte fields are encoded in network byte order. The
// checksum field is the CRC-32 (IEEE) of the payload bytes only, and zero for
// segments that carry no payload.
package header

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/utpio/utp/pkg/errcat"
)

// Len is the encoded size of a header.
const Len = 32

// ControlBits holds the control field flags.
type ControlBits uint16

const (
	FIN = ControlBits(1 << 0)
	SYN = ControlBits(1 << 1)
	RST = ControlBits(1 << 2)
	ACK = ControlBits(1 << 3)

	// Fragment marks a segment that is followed by more segments of the
	// same logical message. The final segment of a message clears it.
	Fragment = ControlBits(1 << 5)
)

func (c ControlBits) String() string {
	bits := make([]string, 0, 5)
	if c&FIN != 0 {
		bits = append(bits, "FIN")
	}
	if c&SYN != 0 {
		bits = append(bits, "SYN")
	}
	if c&RST != 0 {
		bits = append(bits, "RST")
	}
	if c&ACK != 0 {
		bits = append(bits, "ACK")
	}
	if c&Fragment != 0 {
		bits = append(bits, "FRAG")
	}
	if len(bits) == 0 {
		return "none"
	}
	return strings.Join(bits, "|")
}

// Header is the decoded form of a µTP segment header. The three reserved
// words are zero on send and ignored on receive, so they have no field here.
type Header struct {
	Seq      uint32      // byte-index of the first payload byte
	Ack      uint32      // next byte expected from the peer
	Control  ControlBits // control bit flags
	Window   uint16      // advertised free bytes in the receiver buffer
	DataLen  uint32      // payload length, header excluded
	Checksum uint32      // CRC-32 of the payload, 0 when DataLen == 0
}

func (h Header) String() string {
	return fmt.Sprintf("sq %d, an %d, wz %d, len %d, flags %s", h.Seq, h.Ack, h.Window, h.DataLen, h.Control)
}

// Checksum computes the CRC-32 of a payload the way the wire format wants it:
// zero for an empty payload.
func Checksum(payload []byte) uint32 {
	if len(payload) == 0 {
		return 0
	}
	return crc32.ChecksumIEEE(payload)
}

// Marshal encodes the header into b, which must hold at least Len bytes.
// SYN and FIN set together is an illegal combination and is rejected here
// so that no such segment can ever reach the wire.
func (h Header) Marshal(b []byte) error {
	if h.Control&(SYN|FIN) == SYN|FIN {
		return errcat.BadArgument.Newf("illegal control bits %s", h.Control)
	}
	if len(b) < Len {
		return errcat.BadArgument.Newf("header buffer too small: %d < %d", len(b), Len)
	}
	binary.BigEndian.PutUint32(b[0:], h.Seq)
	binary.BigEndian.PutUint32(b[4:], h.Ack)
	binary.BigEndian.PutUint16(b[8:], uint16(h.Control))
	binary.BigEndian.PutUint16(b[10:], h.Window)
	binary.BigEndian.PutUint32(b[12:], h.DataLen)
	binary.BigEndian.PutUint32(b[16:], 0)
	binary.BigEndian.PutUint32(b[20:], 0)
	binary.BigEndian.PutUint32(b[24:], 0)
	binary.BigEndian.PutUint32(b[28:], h.Checksum)
	return nil
}

// Parse decodes a header from the first Len bytes of b.
func Parse(b []byte) (Header, error) {
	if len(b) < Len {
		return Header{}, errcat.BadArgument.Newf("short datagram: %d < %d", len(b), Len)
	}
	return Header{
		Seq:      binary.BigEndian.Uint32(b[0:]),
		Ack:      binary.BigEndian.Uint32(b[4:]),
		Control:  ControlBits(binary.BigEndian.Uint16(b[8:])),
		Window:   binary.BigEndian.Uint16(b[10:]),
		DataLen:  binary.BigEndian.Uint32(b[12:]),
		Checksum: binary.BigEndian.Uint32(b[28:]),
	}, nil
}

// VerifyChecksum reports whether the header's checksum matches the payload.
func (h Header) VerifyChecksum(payload []byte) bool {
	return h.Checksum == Checksum(payload)
}

// Package stats keeps per-connection packet and byte counters and exposes
// them as prometheus metrics. The counters are diagnostics; nothing in the
// protocol reads them back.
package stats

import (
	"fmt"
	"sync/atomic"
)

// Stats is the counter set of one connection. The connection updates it
// through the atomic Count* methods so that a metrics scrape may snapshot it
// from another goroutine even though the connection itself is single-owner.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
	BytesSent       uint64
	BytesReceived   uint64
	BytesLost       uint64
}

func (s *Stats) CountSent(payloadBytes int) {
	atomic.AddUint64(&s.PacketsSent, 1)
	atomic.AddUint64(&s.BytesSent, uint64(payloadBytes))
}

func (s *Stats) CountReceived(payloadBytes int) {
	atomic.AddUint64(&s.PacketsReceived, 1)
	atomic.AddUint64(&s.BytesReceived, uint64(payloadBytes))
}

func (s *Stats) CountLost(payloadBytes int) {
	atomic.AddUint64(&s.PacketsLost, 1)
	atomic.AddUint64(&s.BytesLost, uint64(payloadBytes))
}

// Snapshot returns a consistent-enough copy for logging and scraping.
func (s *Stats) Snapshot() Stats {
	return Stats{
		PacketsSent:     atomic.LoadUint64(&s.PacketsSent),
		PacketsReceived: atomic.LoadUint64(&s.PacketsReceived),
		PacketsLost:     atomic.LoadUint64(&s.PacketsLost),
		BytesSent:       atomic.LoadUint64(&s.BytesSent),
		BytesReceived:   atomic.LoadUint64(&s.BytesReceived),
		BytesLost:       atomic.LoadUint64(&s.BytesLost),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("packets %d sent, %d received, %d lost; bytes %d sent, %d received, %d lost",
		s.PacketsSent, s.PacketsReceived, s.PacketsLost, s.BytesSent, s.BytesReceived, s.BytesLost)
}

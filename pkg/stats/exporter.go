package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type info struct {
	description *prometheus.Desc
	supplier    func(s Stats, labelValues []string) prometheus.Metric
}

type source struct {
	get    func() Stats
	labels []string
}

// Collector exports connection counters to prometheus. Connections register
// a getter so that the collector never touches a single-owner record from the
// scrape goroutine directly; the getter must return a snapshot copy.
type Collector struct {
	mu      sync.Mutex
	sources map[string]source
	infos   []info
}

func counterInfo(prefix, name, help string, labelNames []string, get func(Stats) uint64) info {
	desc := prometheus.NewDesc(prefix+"_"+name, help, labelNames, nil)
	return info{
		description: desc,
		supplier: func(s Stats, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(get(s)), labelValues...)
		},
	}
}

// NewCollector returns a Collector whose metric names carry the given prefix
// and whose metrics carry the given label names.
func NewCollector(prefix string, labelNames []string) *Collector {
	return &Collector{
		sources: make(map[string]source),
		infos: []info{
			counterInfo(prefix, "packets_sent_total", "Datagrams sent, retransmissions included.", labelNames,
				func(s Stats) uint64 { return s.PacketsSent }),
			counterInfo(prefix, "packets_received_total", "Datagrams received and accepted.", labelNames,
				func(s Stats) uint64 { return s.PacketsReceived }),
			counterInfo(prefix, "packets_lost_total", "Datagrams considered lost (timeout, corruption, reordering).", labelNames,
				func(s Stats) uint64 { return s.PacketsLost }),
			counterInfo(prefix, "bytes_sent_total", "Payload bytes sent, retransmissions included.", labelNames,
				func(s Stats) uint64 { return s.BytesSent }),
			counterInfo(prefix, "bytes_received_total", "Payload bytes received and delivered.", labelNames,
				func(s Stats) uint64 { return s.BytesReceived }),
			counterInfo(prefix, "bytes_lost_total", "Payload bytes considered lost.", labelNames,
				func(s Stats) uint64 { return s.BytesLost }),
		},
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range c.sources {
		s := src.get()
		for _, info := range c.infos {
			metrics <- info.supplier(s, src.labels)
		}
	}
}

// Add registers a connection under a unique id. The labels must match the
// label names given to NewCollector.
func (c *Collector) Add(id string, labels []string, get func() Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[id] = source{get: get, labels: labels}
}

// Remove drops a connection. The final counter values disappear from the
// next scrape, so callers that want them should log them before removing.
func (c *Collector) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, id)
}

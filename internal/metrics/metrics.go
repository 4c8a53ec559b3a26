// Package metrics exposes the channel module's counters to Prometheus,
// wiring in the prometheus/client_golang dependency the teacher declares in
// go.mod but never imports in the retrieved slice.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Channel holds the per-channel-instance Prometheus collectors. Construct
// one per channel.Channel with NewChannel and register it with a registry
// (or prometheus.DefaultRegisterer) before the channel starts processing.
type Channel struct {
	Reloads       prometheus.Counter
	CRCMismatches *prometheus.CounterVec
	PacketsByPID  *prometheus.CounterVec
}

// NewChannel constructs collectors labeled by the channel's configured name.
func NewChannel(name string) *Channel {
	return &Channel{
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "iptv",
			Subsystem:   "channel",
			Name:        "reloads_total",
			Help:        "Number of stream_reload events (PSI structural changes detected).",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		CRCMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "iptv",
			Subsystem:   "channel",
			Name:        "psi_crc_mismatches_total",
			Help:        "Number of PSI sections dropped due to a CRC32 mismatch, by table.",
			ConstLabels: prometheus.Labels{"channel": name},
		}, []string{"table"}),
		PacketsByPID: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "iptv",
			Subsystem:   "channel",
			Name:        "packets_total",
			Help:        "TS packets forwarded or dropped, by outcome.",
			ConstLabels: prometheus.Labels{"channel": name},
		}, []string{"outcome"}),
	}
}

// MustRegister registers all collectors with reg.
func (c *Channel) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Reloads, c.CRCMismatches, c.PacketsByPID)
}

// Package channel implements the PSI-aware demultiplexer module: a suite of
// small PAT/CAT/PMT/SDT/EIT state machines with checksum-driven change
// detection, PID selection, and bounded rewriting of the tables it forwards.
//
// Grounded on the teacher's internal/tuner/ts_inspector.go (PAT/PMT parsing,
// CC/PCR tracking) and internal/tuner/psi_keepalive.go (mpegTSCRC32,
// buildPATPacket/buildPMTPacket single-packet table construction, here
// generalized to the internal/psi package's multi-packet Emit), enriched
// with the descriptor-rewrite shape from the ausocean-av and potterxu-gots
// PSI parsers in the example pack.
package channel

import (
	"fmt"
	"log"

	"github.com/plextuner/plex-tuner/internal/metrics"
	"github.com/plextuner/plex-tuner/internal/psi"
	"github.com/plextuner/plex-tuner/internal/runtime"
	"github.com/plextuner/plex-tuner/internal/streamtree"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// Channel is one instance of the channel module: a streamtree.Node that sits
// between an upstream multi-program producer and whatever downstream sinks
// or further modules are attached below it.
type Channel struct {
	cfg Config
	rt  *runtime.Runtime
	m   *metrics.Channel

	node *streamtree.Node

	streamType [tspacket.MaxPID]StreamType
	pidMap     [tspacket.MaxPID]uint16

	tsid    uint16
	tsidSet bool

	patAsm     *psi.Assembler
	catAsm     *psi.Assembler
	pmtAsm     *psi.Assembler
	sdtAsm     *psi.Assembler
	eitAsm     *psi.Assembler
	pmtPID     uint16
	pmtPIDSet  bool

	patCRC    uint32
	patCRCSet bool
	catCRC    uint32
	catCRCSet bool
	pmtCRC    uint32
	pmtCRCSet bool

	patVersion byte
	eitCC      byte
	patCC      byte
	catCC      byte
	pmtCC      byte
	sdtCC      byte

	customPAT []byte
	customCAT []byte
	customPMT []byte
	customSDT []byte

	pnr uint16 // the resolved program number, once adopted from PAT

	sdtChecksums          []uint32
	sdtOriginalSectionID  int
	sdtLastSectionNumber  byte

	mapRules []MapRule

	siStop chan struct{}
}

// New constructs a Channel. cfg is validated immediately; an invalid
// configuration is a programmer error and panics, per spec §7.
func New(rt *runtime.Runtime, m *metrics.Channel, cfg Config) *Channel {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("channel: %v", err))
	}
	c := &Channel{
		cfg:                  cfg,
		rt:                   rt,
		m:                    m,
		sdtOriginalSectionID: -1,
	}
	c.node = streamtree.NewNode(cfg.Name, c.OnTS)
	// The channel decides upstream interest itself from PSI content, not
	// from whatever a downstream child happens to ask for: its own node's
	// join/leave hooks are no-ops that consume the request rather than
	// forward it (spec §9 Design Notes).
	c.node.SetHooks(func(uint16) {}, func(uint16) {})

	c.mapRules = make([]MapRule, len(cfg.Map))
	copy(c.mapRules, cfg.Map)

	c.applyStaticFilters()
	c.armMandatorySubscriptions()

	if cfg.NoReload {
		c.startSITimer()
	}
	return c
}

// Node returns the streamtree position this channel occupies, for attaching
// to an upstream producer or attaching downstream children.
func (c *Channel) Node() *streamtree.Node { return c.node }

// Bindings returns a snapshot of every consumed map rule's resolved
// (selector, custom_pid) pair, for a caller that wants to persist current
// pid_map bindings across a process restart (see internal/chanstate). The
// core type has no knowledge of persistence itself — this is just a read of
// already-public state, a Non-goal boundary kept deliberately thin.
func (c *Channel) Bindings() []MapRule {
	out := make([]MapRule, 0, len(c.mapRules))
	for _, r := range c.mapRules {
		if r.Consumed {
			out = append(out, r)
		}
	}
	return out
}

// Close stops the SI timer, if running, and prunes any jobs this channel may
// still have queued on the shared runtime.
func (c *Channel) Close() {
	if c.siStop != nil {
		close(c.siStop)
		c.siStop = nil
	}
	if c.rt != nil {
		c.rt.Jobs.Prune(c.cfg.Name)
	}
}

// subscribe joins pid on the channel's own node (for demux_check) and, on a
// 0->1 transition, forwards the join to the real upstream parent directly —
// bypassing the no-op hooks installed above, since this is the channel's own
// internally decided interest, not a downstream request being relayed.
func (c *Channel) subscribe(pid uint16) {
	wasZero := !c.node.Check(pid)
	c.node.Join(pid)
	if wasZero {
		if parent := c.node.Parent(); parent != nil {
			parent.Join(pid)
		}
	}
}

func (c *Channel) unsubscribe(pid uint16) {
	c.node.Leave(pid)
	if !c.node.Check(pid) {
		if parent := c.node.Parent(); parent != nil {
			parent.Leave(pid)
		}
	}
}

func (c *Channel) applyStaticFilters() {
	for pid := uint16(0); pid < tspacket.MaxPID; pid++ {
		if c.cfg.pidFilteredStatic(pid) {
			c.pidMap[pid] = pidFiltered
		}
	}
}

// armMandatorySubscriptions subscribes the PIDs every channel needs
// regardless of PSI content: PAT always, CAT/SDT/EIT depending on flags, and
// the plain pass-filter PID list when the channel has no pnr configured.
func (c *Channel) armMandatorySubscriptions() {
	c.streamType[0x00] = StreamPAT
	c.patAsm = psi.NewAssembler(0x00)
	c.subscribe(0x00)

	if c.cfg.CAS {
		c.streamType[0x01] = StreamCAT
		c.catAsm = psi.NewAssembler(0x01)
		c.subscribe(0x01)
	}
	if !c.cfg.NoSDT {
		c.streamType[0x11] = StreamSDT
		c.sdtAsm = psi.NewAssembler(0x11)
		c.subscribe(0x11)
	}
	if !c.cfg.NoEIT {
		c.streamType[0x12] = StreamEIT
		c.eitAsm = psi.NewAssembler(0x12)
		c.subscribe(0x12)
		c.streamType[0x14] = StreamTDT
		c.subscribe(0x14)
	}

	if !c.cfg.PNRSet {
		for _, pid := range c.cfg.PIDs {
			if c.streamType[pid] == StreamUnknown {
				c.streamType[pid] = StreamPES
			}
			c.subscribe(pid)
		}
	}
}

// OnTS is the per-packet dispatch, spec §4.F.1.
func (c *Channel) OnTS(pkt []byte) {
	p := tspacket.PID(pkt)
	if p == tspacket.NullPID || !c.node.Check(p) {
		return
	}

	switch c.streamType[p] {
	case StreamPAT:
		if sec, ok := c.patAsm.Feed(pkt); ok {
			c.onPAT(sec)
		}
		return
	case StreamCAT:
		if sec, ok := c.catAsm.Feed(pkt); ok {
			c.onCAT(sec)
		}
		return
	case StreamPMT:
		if sec, ok := c.pmtAsm.Feed(pkt); ok {
			c.onPMT(sec)
		}
		return
	case StreamSDT:
		if !c.cfg.PassSDT {
			if sec, ok := c.sdtAsm.Feed(pkt); ok {
				c.onSDT(sec)
			}
			return
		}
	case StreamEIT:
		if !c.cfg.PassEIT {
			if sec, ok := c.eitAsm.Feed(pkt); ok {
				c.onEIT(sec)
			}
			return
		}
	case StreamUnknown:
		c.countOutcome("dropped_unknown")
		return
	}

	out := c.pidMap[p]
	if out == pidFiltered {
		c.countOutcome("filtered")
		return
	}
	if out != pidPassthrough {
		var scratch [tspacket.PacketSize]byte
		copy(scratch[:], pkt)
		tspacket.SetPID(scratch[:], out)
		c.node.Send(scratch[:])
		c.countOutcome("remapped")
		return
	}
	c.node.Send(pkt)
	c.countOutcome("passthrough")
}

func (c *Channel) countOutcome(outcome string) {
	if c.m != nil {
		c.m.PacketsByPID.WithLabelValues(outcome).Inc()
	}
}

func (c *Channel) countReload() {
	if c.m != nil {
		c.m.Reloads.Inc()
	}
}

func (c *Channel) countCRCMismatch(table string) {
	if c.m != nil {
		c.m.CRCMismatches.WithLabelValues(table).Inc()
	}
}

func (c *Channel) logf(format string, args ...any) {
	log.Printf("channel[%s]: "+format, append([]any{c.cfg.Name}, args...)...)
}

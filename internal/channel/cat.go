package channel

import (
	"github.com/plextuner/plex-tuner/internal/psi"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// onCAT implements spec §4.F.3, including the decided Open Question #2
// behavior: a CAT change triggers stream_reload and discards the new
// payload rather than continuing to process it (see DESIGN.md).
func (c *Channel) onCAT(sec []byte) {
	total, headerCRC, ok := sectionHeaderCRC(sec)
	if !ok {
		return
	}
	if c.catCRCSet && c.catCRC == headerCRC {
		c.emitCAT()
		return
	}
	if computed := psi.CRC32(sec[:total-4]); computed != headerCRC {
		c.logf("CAT CRC mismatch, dropping section")
		c.countCRCMismatch("cat")
		return
	}
	if c.catCRCSet {
		c.logf("CAT changed. Reload stream info")
		c.reload()
		return
	}

	cat, err := psi.ParseCAT(sec)
	if err != nil {
		return
	}
	c.catCRC = headerCRC
	c.catCRCSet = true

	for _, d := range cat.Descriptors {
		if d.Tag != psi.DescriptorTagCA {
			continue
		}
		capid, ok := psi.CAPID(d.Data)
		if !ok || capid == tspacket.NullPID {
			continue
		}
		if c.streamType[capid] == StreamUnknown {
			c.streamType[capid] = StreamCA
			if c.pidMap[capid] == pidFiltered {
				c.pidMap[capid] = pidPassthrough
			}
			c.subscribe(capid)
		}
	}

	c.customCAT = append([]byte(nil), sec...)
	c.catCC = 0
	c.emitCAT()

	if c.cfg.NoReload {
		c.streamType[0x01] = StreamUnknown
	}
}

func (c *Channel) emitCAT() {
	if c.customCAT == nil {
		return
	}
	c.catCC = psi.Emit(0x01, c.customCAT, c.catCC, c.node.Send)
}

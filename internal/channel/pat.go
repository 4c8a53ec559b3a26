package channel

import (
	"github.com/plextuner/plex-tuner/internal/psi"
)

func sectionHeaderCRC(sec []byte) (total int, crc uint32, ok bool) {
	total = psi.SectionTotalLen(sec)
	if total < 4 || total > len(sec) {
		return 0, 0, false
	}
	crc = uint32(sec[total-4])<<24 | uint32(sec[total-3])<<16 | uint32(sec[total-2])<<8 | uint32(sec[total-1])
	return total, crc, true
}

// onPAT implements spec §4.F.2.
func (c *Channel) onPAT(sec []byte) {
	total, headerCRC, ok := sectionHeaderCRC(sec)
	if !ok {
		return
	}
	if c.patCRCSet && c.patCRC == headerCRC {
		c.emitPAT()
		return
	}
	if computed := psi.CRC32(sec[:total-4]); computed != headerCRC {
		c.logf("PAT CRC mismatch, dropping section")
		c.countCRCMismatch("pat")
		return
	}

	changed := c.patCRCSet
	if changed {
		c.logf("PAT changed. Reload stream info")
		c.reload()
	}

	pat, err := psi.ParsePAT(sec)
	if err != nil {
		return
	}
	c.patCRC = headerCRC
	c.patCRCSet = true
	c.tsid = pat.TransportStreamID
	c.tsidSet = true

	if !c.cfg.PNRSet {
		// Plain PID-pass mode: the channel has no program to select, so PAT
		// processing only ever latches the transport_stream_id.
		return
	}

	target := c.cfg.PNR
	autoSelect := target == 0
	var match *psi.PATEntry
	for i := range pat.Entries {
		e := &pat.Entries[i]
		if e.ProgramNumber == 0 {
			continue
		}
		if autoSelect {
			match = e
			break
		}
		if e.ProgramNumber == target {
			match = e
			break
		}
	}
	if match == nil {
		c.customPAT = nil
		c.logf("stream with id %d not found", target)
		return
	}

	c.pnr = match.ProgramNumber
	c.streamType[match.PID] = StreamPMT
	c.subscribe(match.PID)
	c.pmtPID = match.PID
	c.pmtPIDSet = true
	c.pmtCRCSet = false
	c.pmtAsm = psi.NewAssembler(match.PID)

	c.patVersion = (c.patVersion + 1) & 0x0F
	outPNR := c.pnr
	if c.cfg.HasSetPNR {
		outPNR = c.cfg.SetPNR
	}
	outPMTPID := match.PID
	if cp := c.mapCustomPID(match.PID, "pmt"); cp != 0 {
		outPMTPID = cp
	}
	c.customPAT = psi.BuildPAT(c.tsid, c.patVersion, psi.PATEntry{ProgramNumber: outPNR, PID: outPMTPID})
	c.emitPAT()

	if c.cfg.NoReload {
		c.streamType[0x00] = StreamUnknown
	}
}

func (c *Channel) emitPAT() {
	if c.customPAT == nil {
		return
	}
	c.patCC = psi.Emit(0x00, c.customPAT, c.patCC, c.node.Send)
}

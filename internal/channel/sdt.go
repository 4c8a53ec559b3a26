package channel

import "github.com/plextuner/plex-tuner/internal/psi"

// onSDT implements spec §4.F.5. Unlike PAT/CAT/PMT, change detection here is
// per-section: an SDT carrying many services can span several sections, and
// each is tracked against its own checksum slot.
func (c *Channel) onSDT(sec []byte) {
	if psi.TableID(sec) != psi.TableIDSDTActual {
		return
	}
	tsid, sectionNumber, lastSectionNumber, entries, err := psi.ParseSDT(sec)
	if err != nil {
		return
	}
	if !c.tsidSet || tsid != c.tsid {
		return
	}

	total, headerCRC, ok := sectionHeaderCRC(sec)
	if !ok {
		return
	}
	if computed := psi.CRC32(sec[:total-4]); computed != headerCRC {
		c.logf("SDT CRC mismatch, dropping section")
		c.countCRCMismatch("sdt")
		return
	}

	if c.sdtChecksums == nil {
		c.sdtChecksums = make([]uint32, int(lastSectionNumber)+1)
		c.sdtLastSectionNumber = lastSectionNumber
	}
	if int(sectionNumber) >= len(c.sdtChecksums) {
		c.logf("SDT section_number %d exceeds last_section_number %d", sectionNumber, c.sdtLastSectionNumber)
		return
	}

	n := int(sectionNumber)
	switch existing := c.sdtChecksums[n]; {
	case existing == headerCRC:
		if c.sdtOriginalSectionID == n {
			c.emitSDT()
		}
		return
	case existing != 0:
		c.logf("SDT section %d changed. Reload stream info", n)
		c.reload()
		return
	default:
		c.sdtChecksums[n] = headerCRC
	}

	var matched *psi.SDTServiceEntry
	for i := range entries {
		if entries[i].ServiceID == c.pnr {
			matched = &entries[i]
			break
		}
	}
	if matched == nil {
		return
	}
	c.sdtOriginalSectionID = n

	onid := uint16(sec[8])<<8 | uint16(sec[9])
	version := (sec[5] >> 1) & 0x1F
	outServiceID := uint16(0)
	if c.cfg.HasSetPNR {
		outServiceID = c.cfg.SetPNR
	}
	c.customSDT = psi.BuildSDT(tsid, onid, version, matched.Raw, outServiceID)
	c.emitSDT()

	if c.cfg.NoReload {
		c.streamType[0x11] = StreamUnknown
	}
}

func (c *Channel) emitSDT() {
	if c.customSDT == nil {
		return
	}
	c.sdtCC = psi.Emit(0x11, c.customSDT, c.sdtCC, c.node.Send)
}

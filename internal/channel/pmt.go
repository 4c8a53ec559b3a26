package channel

import (
	"github.com/plextuner/plex-tuner/internal/psi"
	"github.com/plextuner/plex-tuner/internal/tspacket"
)

// onPMT implements spec §4.F.4: the variable-length binary rewriter. It
// writes into a growable scratch buffer with a running offset, backpatching
// the program_info_length and each ES_info_length field once the region
// they describe has closed, following the teacher's buildPATPacket/
// buildPMTPacket single-packet assembly generalized to a multi-entry section
// buffer (spec §9 Design Notes). The buffer is not size-checked as it grows.
func (c *Channel) onPMT(sec []byte) {
	hdr, _, err := psi.ParsePMTHeader(sec)
	if err != nil {
		return
	}
	if hdr.ProgramNumber != c.pnr {
		return
	}

	total, headerCRC, ok := sectionHeaderCRC(sec)
	if !ok {
		return
	}
	if c.pmtCRCSet && c.pmtCRC == headerCRC {
		c.emitPMT()
		return
	}
	if computed := psi.CRC32(sec[:total-4]); computed != headerCRC {
		c.logf("PMT CRC mismatch, dropping section")
		c.countCRCMismatch("pmt")
		return
	}
	if c.pmtCRCSet {
		c.logf("PMT changed. Reload stream info")
		c.reload()
	}
	c.pmtCRC = headerCRC
	c.pmtCRCSet = true
	// A PMT-driven reload above resets pmtPIDSet along with everything else
	// that gets mandatory-reacquired from scratch; this call is itself the
	// continuation describing that same already-known PMT pid, so restore it.
	c.pmtPIDSet = true

	buf := make([]byte, 0, 1024)
	buf = append(buf, sec[0:10]...)
	buf = append(buf, 0x00, 0x00) // program_info_length placeholder, backpatched below

	pos, end := hdr.DescStart, hdr.DescEnd
	for pos < end {
		tag, data, next, ok := psi.NextDescriptor(sec, pos, end)
		if !ok {
			break
		}
		if tag == psi.DescriptorTagCA && c.cfg.CAS {
			c.joinCADescriptor(data)
		}
		buf = append(buf, sec[pos:next]...)
		pos = next
	}
	progInfoLen := len(buf) - 12
	buf[10] = (sec[10] & 0xF0) | byte((progInfoLen>>8)&0x0F)
	buf[11] = byte(progInfoLen)

	joinPCR := hdr.PCRPID != tspacket.NullPID

	pos, end = hdr.ESStart, total-4
	for pos < end {
		es, next, ok := psi.NextESEntry(sec, pos, end)
		if !ok {
			break
		}
		if c.pidMap[es.PID] == pidFiltered {
			pos = next
			continue
		}

		tsType := esKindOfStreamType(es.StreamType)
		headerStart := len(buf)
		buf = append(buf, sec[es.HeaderStart:es.HeaderStart+5]...)

		c.streamType[es.PID] = StreamPES
		c.subscribe(es.PID)
		if es.PID == hdr.PCRPID {
			joinPCR = false
		}

		var languageDesc string
		dpos, dend := es.DescStart, es.DescEnd
		for dpos < dend {
			tag, data, next2, ok2 := psi.NextDescriptor(sec, dpos, dend)
			if !ok2 {
				break
			}
			if tag == psi.DescriptorTagCA && c.cfg.CAS {
				c.joinCADescriptor(data)
			}
			if tag == psi.DescriptorTagLanguage {
				if lang, ok3 := psi.ISO639Language(data); ok3 {
					languageDesc = lang
				}
			}
			if es.StreamType == 0x06 && tsType == esUnknown {
				if refined := esKindOfPrivateDescriptor(tag); refined != esUnknown {
					tsType = refined
				}
			}
			buf = append(buf, sec[dpos:next2]...)
			dpos = next2
		}
		esInfoLen := len(buf) - (headerStart + 5)
		buf[headerStart+3] = (sec[es.HeaderStart+3] & 0xF0) | byte((esInfoLen>>8)&0x0F)
		buf[headerStart+4] = byte(esInfoLen)

		if len(c.mapRules) > 0 {
			var cp uint16
			if tsType == esAudio && languageDesc != "" {
				cp = c.mapCustomPID(es.PID, languageDesc)
			}
			if cp == 0 {
				cp = c.mapCustomPID(es.PID, tsType.selector())
			}
			if cp != 0 {
				buf[headerStart+1] = (buf[headerStart+1] & 0xE0) | byte((cp>>8)&0x1F)
				buf[headerStart+2] = byte(cp)
			}
		}
		pos = next
	}

	if joinPCR && hdr.PCRPID != tspacket.NullPID {
		c.streamType[hdr.PCRPID] = StreamPES
		if c.pidMap[hdr.PCRPID] == pidFiltered {
			c.pidMap[hdr.PCRPID] = pidPassthrough
		}
		c.subscribe(hdr.PCRPID)
	}
	pcrPIDOut := hdr.PCRPID
	if m := c.pidMap[hdr.PCRPID]; len(c.mapRules) > 0 && m != pidPassthrough && m != pidFiltered {
		pcrPIDOut = m
	}
	buf[8] = (sec[8] & 0xE0) | byte((pcrPIDOut>>8)&0x1F)
	buf[9] = byte(pcrPIDOut)

	if c.cfg.HasSetPNR {
		buf[3] = byte(c.cfg.SetPNR >> 8)
		buf[4] = byte(c.cfg.SetPNR)
	}

	psi.SetSectionLen(buf, len(buf)-3+4)
	c.customPMT = psi.AppendCRC(buf)
	c.emitPMT()

	if c.cfg.NoReload {
		c.streamType[c.pmtPID] = StreamUnknown
	}
}

func (c *Channel) joinCADescriptor(data []byte) {
	capid, ok := psi.CAPID(data)
	if !ok || capid == tspacket.NullPID {
		return
	}
	if c.streamType[capid] == StreamUnknown {
		c.streamType[capid] = StreamCA
		if c.pidMap[capid] == pidFiltered {
			c.pidMap[capid] = pidPassthrough
		}
		c.subscribe(capid)
	}
}

func (c *Channel) emitPMT() {
	if c.customPMT == nil || !c.pmtPIDSet {
		return
	}
	outPID := c.pmtPID
	if m := c.pidMap[c.pmtPID]; m != pidPassthrough && m != pidFiltered {
		outPID = m
	}
	c.pmtCC = psi.Emit(outPID, c.customPMT, c.pmtCC, c.node.Send)
}

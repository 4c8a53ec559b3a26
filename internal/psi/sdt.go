package psi

import "fmt"

const (
	TableIDSDTActual = 0x42
	TableIDSDTOther  = 0x46
)

// SDTServiceEntry is one service_id entry from an SDT's service loop,
// together with its raw bytes (service_id through the end of its descriptor
// loop) so the channel rewriter can copy it verbatim into a custom SDT.
type SDTServiceEntry struct {
	ServiceID           uint16
	EITSchedule         bool
	EITPresentFollowing bool
	Raw                 []byte
}

// ParseSDT parses an SDT section's fixed header fields and returns the
// transport_stream_id, section_number, last_section_number, and the service
// loop entries.
func ParseSDT(sec []byte) (tsid uint16, sectionNumber, lastSectionNumber byte, entries []SDTServiceEntry, err error) {
	if len(sec) < 15 || (sec[0] != TableIDSDTActual && sec[0] != TableIDSDTOther) {
		return 0, 0, 0, nil, fmt.Errorf("psi: not an SDT section")
	}
	total := SectionTotalLen(sec)
	if total > len(sec) || total < 15 {
		return 0, 0, 0, nil, fmt.Errorf("psi: SDT section length out of range")
	}
	tsid = uint16(sec[3])<<8 | uint16(sec[4])
	sectionNumber = sec[6]
	lastSectionNumber = sec[7]
	i := 11
	for i+5 <= total-4 {
		sid := uint16(sec[i])<<8 | uint16(sec[i+1])
		eitSched := sec[i+2]&0x02 != 0
		eitPF := sec[i+2]&0x01 != 0
		descLoopLen := (int(sec[i+3]&0x0F) << 8) | int(sec[i+4])
		end := i + 5 + descLoopLen
		if end > total-4 {
			break
		}
		entries = append(entries, SDTServiceEntry{
			ServiceID:           sid,
			EITSchedule:         eitSched,
			EITPresentFollowing: eitPF,
			Raw:                 sec[i:end],
		})
		i = end
	}
	return tsid, sectionNumber, lastSectionNumber, entries, nil
}

// BuildSDT serializes a single-service SDT section (table_id 0x42) carrying
// entry verbatim, with section_number and last_section_number both reset to
// 0 per spec §4.F.5, and appends CRC32. If setServiceID is nonzero, the
// entry's first two bytes (service_id) are overwritten in the copy.
func BuildSDT(tsid, originalNetworkID uint16, version byte, entry []byte, setServiceID uint16) []byte {
	sec := make([]byte, 11, 11+len(entry)+4)
	sec[0] = TableIDSDTActual
	sec[1] = 0xB0
	sec[3] = byte(tsid >> 8)
	sec[4] = byte(tsid)
	sec[5] = 0xC0 | ((version & 0x1F) << 1) | 0x01
	sec[6] = 0x00 // section_number
	sec[7] = 0x00 // last_section_number
	sec[8] = byte(originalNetworkID >> 8)
	sec[9] = byte(originalNetworkID)
	sec[10] = 0xFF // reserved_future_use
	entryCopy := make([]byte, len(entry))
	copy(entryCopy, entry)
	if setServiceID != 0 {
		entryCopy[0] = byte(setServiceID >> 8)
		entryCopy[1] = byte(setServiceID)
	}
	sec = append(sec, entryCopy...)
	SetSectionLen(sec, len(sec)-3+4)
	return AppendCRC(sec)
}

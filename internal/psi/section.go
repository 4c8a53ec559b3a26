package psi

import "github.com/plextuner/plex-tuner/internal/tspacket"

// Assembler accumulates TS packet payloads on one PID into complete PSI
// sections. It tolerates a section spanning several packets the way the
// potterxu-gots PmtAccumulatorDoneFunc and the teacher's ts_inspector single-
// packet parsers both expect bounded, well-formed input: only the
// section_length field is trusted to know when a section is complete.
type Assembler struct {
	pid     uint16
	buf     []byte
	started bool
}

// NewAssembler returns an Assembler for the given PID.
func NewAssembler(pid uint16) *Assembler {
	return &Assembler{pid: pid}
}

// Reset discards any partially accumulated section.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.started = false
}

// Feed hands pkt (a packet already known to carry this assembler's PID) to
// the assembler. It returns a complete section's bytes (table_id through the
// trailing CRC32, inclusive) whenever one finishes in this call, and true.
// A single packet may complete one section and start another (when the
// pointer_field is nonzero); Feed only ever returns the first section
// completed by a call — callers that must not miss a second completion in
// the same packet should re-Feed the packet's tail, which in practice never
// happens for PAT/PMT/SDT/EIT single-program sections sized well under one
// packet's payload.
func (a *Assembler) Feed(pkt []byte) ([]byte, bool) {
	payload := tspacket.Payload(pkt)
	if payload == nil {
		return nil, false
	}
	if tspacket.PUSI(pkt) {
		ptr, rest, ok := tspacket.PointerField(payload)
		if !ok {
			a.Reset()
			return nil, false
		}
		if a.started && ptr > 0 {
			a.buf = append(a.buf, payload[1:1+ptr]...)
			if sec, done := a.tryComplete(); done {
				a.Reset()
				return sec, true
			}
		}
		a.buf = a.buf[:0]
		a.started = true
		a.buf = append(a.buf, rest...)
	} else {
		if !a.started {
			return nil, false
		}
		a.buf = append(a.buf, payload...)
	}
	if sec, done := a.tryComplete(); done {
		a.started = false
		a.buf = a.buf[:0]
		return sec, true
	}
	return nil, false
}

// tryComplete returns the section and true once a.buf holds at least
// section_length+3 bytes.
func (a *Assembler) tryComplete() ([]byte, bool) {
	if len(a.buf) < 3 {
		return nil, false
	}
	if a.buf[0] == 0xFF {
		return nil, false
	}
	want := SectionTotalLen(a.buf)
	if len(a.buf) < want {
		return nil, false
	}
	out := make([]byte, want)
	copy(out, a.buf[:want])
	return out, true
}

// SectionTotalLen returns 3+section_length (the full section size including
// the 3-byte header and trailing CRC) as encoded in a section's first three
// bytes.
func SectionTotalLen(sec []byte) int {
	if len(sec) < 3 {
		return 0
	}
	secLen := (int(sec[1]&0x0F) << 8) | int(sec[2])
	return 3 + secLen
}

// SetSectionLen rewrites the 12-bit section_length field in place, preserving
// the high reserved/syntax-indicator bits of sec[1].
func SetSectionLen(sec []byte, l int) {
	sec[1] = (sec[1] &^ 0x0F) | byte(l>>8)&0x0F
	sec[2] = byte(l)
}

// TableID returns the first byte of a section.
func TableID(sec []byte) byte {
	if len(sec) < 1 {
		return 0xFF
	}
	return sec[0]
}

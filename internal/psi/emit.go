package psi

import "github.com/plextuner/plex-tuner/internal/tspacket"

// Emit packetizes a complete PSI section (table_id through the trailing
// CRC32) onto pid, starting from continuity counter cc, and calls send once
// per resulting 188-byte packet in order. It returns the continuity counter
// value after the last packet, so callers (notably the EIT handler, per
// spec §4.F.6) can carry a monotonic per-PID CC across repeated emissions.
//
// Packetization follows the same layout the teacher's buildPATPacket and
// buildPMTPacket hand-assemble for a single packet, generalized to sections
// that span more than one TS packet: pointer_field=0 precedes the section on
// the first packet only; continuation packets carry raw section bytes with
// no pointer field and PUSI=0; the final packet is padded with 0xFF.
func Emit(pid uint16, section []byte, cc byte, send func([]byte)) byte {
	const firstPayloadCap = tspacket.PacketSize - 4 - 1 // header + pointer_field
	const contPayloadCap = tspacket.PacketSize - 4

	remaining := section
	first := true
	for len(remaining) > 0 || first {
		var pkt [tspacket.PacketSize]byte
		pkt[0] = tspacket.SyncByte
		payloadCap := contPayloadCap
		payloadStart := 4
		if first {
			pkt[1] = 0x40 // PUSI=1
			pkt[4] = 0x00 // pointer_field
			payloadCap = firstPayloadCap
			payloadStart = 5
		}
		tspacket.SetPID(pkt[:], pid)
		pkt[3] = 0x10 | (cc & 0x0F) // payload only, adaptation_field_control=01
		n := len(remaining)
		if n > payloadCap {
			n = payloadCap
		}
		copy(pkt[payloadStart:payloadStart+n], remaining[:n])
		for i := payloadStart + n; i < tspacket.PacketSize; i++ {
			pkt[i] = 0xFF
		}
		remaining = remaining[n:]
		send(pkt[:])
		cc = (cc + 1) & 0x0F
		first = false
	}
	return cc
}

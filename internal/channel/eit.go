package channel

import "github.com/plextuner/plex-tuner/internal/psi"

// onEIT implements spec §4.F.6. EIT has no cached custom table and no
// change detection at all: every matching section the channel sees is
// rewritten and re-emitted, carrying the channel's own running continuity
// counter so the remuxed SI stream on PID 0x12 stays contiguous regardless
// of the inbound packets' continuity counters.
func (c *Channel) onEIT(sec []byte) {
	tableID := psi.TableID(sec)
	if tableID != psi.TableIDEITPresentFollowingActual && !psi.IsEITScheduleActual(tableID) {
		return
	}
	hdr, err := psi.ParseEITHeader(sec)
	if err != nil {
		return
	}
	if !c.tsidSet || hdr.TransportStreamID != c.tsid || hdr.ServiceID != c.pnr {
		return
	}

	if c.cfg.HasSetPNR {
		psi.SetEITServiceID(sec, c.cfg.SetPNR)
	}
	c.eitCC = psi.Emit(0x12, sec, c.eitCC, c.node.Send)
}

package channel

// reload implements stream_reload (spec §4.F.7): every joined PID is left,
// stream_type[] is cleared, PAT/PMT/CAT change-detection state resets, and
// the mandatory PIDs are re-marked and re-joined. pid_map and continuity
// counters are deliberately left untouched — a PID not re-acquired by a
// fresh PAT/PMT walk stays unreachable (stream_type[p] == UNKNOWN) until it
// is, and any stale pid_map entry it carried is harmless until then. This is
// the decided behavior for the Open Question on map-rule rebinding across a
// reload (see DESIGN.md): rules are re-armed below, but a pid_map entry set
// by a rule in a prior PMT round is not cleared.
func (c *Channel) reload() {
	var joined []uint16
	c.node.ForEachSubscribed(func(pid uint16) { joined = append(joined, pid) })
	for _, pid := range joined {
		c.unsubscribe(pid)
	}
	for i := range c.streamType {
		c.streamType[i] = StreamUnknown
	}

	c.patCRCSet = false
	c.catCRCSet = false
	c.pmtCRCSet = false
	c.pmtPIDSet = false
	c.sdtChecksums = nil
	c.sdtOriginalSectionID = -1

	c.armMandatorySubscriptions()

	for i := range c.mapRules {
		c.mapRules[i].Consumed = false
	}

	c.countReload()
}

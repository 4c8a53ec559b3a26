package channel

import "strconv"

// mapCustomPID implements map_custom_pid (spec §4.F.4): the first unconsumed
// rule matching pid (by literal PID, when the selector parses as an
// integer) or selector (by exact string equality) wins, is marked consumed,
// and its custom_pid is recorded into pid_map[pid]. Returns 0 on no match.
func (c *Channel) mapCustomPID(pid uint16, selector string) uint16 {
	for i := range c.mapRules {
		r := &c.mapRules[i]
		if r.Consumed {
			continue
		}
		if n, err := strconv.ParseUint(r.Selector, 10, 16); err == nil {
			if uint16(n) != pid {
				continue
			}
		} else if r.Selector != selector {
			continue
		}
		r.Consumed = true
		c.pidMap[pid] = r.CustomPID
		return r.CustomPID
	}
	return 0
}

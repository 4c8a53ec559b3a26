package channel

import "time"

const siTimerInterval = 500 * time.Millisecond

// startSITimer implements spec §4.F.8. The timer fires on its own goroutine
// but never touches channel state directly — per the single-threaded
// cooperative model (spec §5), it hands the re-emission off as a job on the
// shared runtime's queue, to be run from the main loop between I/O cycles.
func (c *Channel) startSITimer() {
	c.siStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(siTimerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if c.rt != nil {
					c.rt.Jobs.Queue(c.cfg.Name, func(any) { c.emitCachedTables() }, nil)
				} else {
					c.emitCachedTables()
				}
			case <-c.siStop:
				return
			}
		}
	}()
}

// emitCachedTables re-emits whichever custom PSI structures have been built
// so far, replacing the real-time forwarding that no_reload mode suppresses
// once a PID's stream_type has been set to UNKNOWN after first capture.
func (c *Channel) emitCachedTables() {
	c.emitPAT()
	c.emitCAT()
	c.emitPMT()
	c.emitSDT()
}

package delay

import "sync/atomic"

// Stats is a snapshot of the counters of a channel.
type Stats struct {
	Sent       uint64 // values accepted by Send
	Immediate  uint64 // values accepted by SendImmediate
	Superseded uint64 // pending values overwritten or cleared before promotion
	Promoted   uint64 // pending values moved to the ready queue
	Delivered  uint64 // values returned to receivers
	Dropped    uint64 // pending values discarded when the channel closed
}

type counters struct {
	sent, immediate, superseded, promoted, delivered, dropped atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:       c.sent.Load(),
		Immediate:  c.immediate.Load(),
		Superseded: c.superseded.Load(),
		Promoted:   c.promoted.Load(),
		Delivered:  c.delivered.Load(),
		Dropped:    c.dropped.Load(),
	}
}

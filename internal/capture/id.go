package capture

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator mints capture ids: local timestamp to the second plus a
// process-wide counter, e.g. "20250301142501_007". Ids sort by time and stay
// unique when several ticks land in the same second.
type IDGenerator struct {
	n atomic.Uint64
}

func (g *IDGenerator) Next(now time.Time) string {
	seq := g.n.Add(1) - 1
	return fmt.Sprintf("%s_%03d", now.Format("20060102150405"), seq)
}

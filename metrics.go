package srng

import (
	"fmt"

	"github.com/rcrowley/go-metrics"
)

type ringStats struct {
	committed    metrics.Counter
	reclaimed    metrics.Counter
	backpressure metrics.Counter
	consumed     metrics.Counter
	notReady     metrics.Counter
}

// Counters are registered as srng.<ring id>.<name> and survive cleanup, so a
// ring set up again keeps counting.
func newRingStats(reg metrics.Registry, id int) ringStats {
	c := func(name string) metrics.Counter {
		return metrics.GetOrRegisterCounter(fmt.Sprintf("srng.%d.%s", id, name), reg)
	}
	return ringStats{
		committed:    c("committed"),
		reclaimed:    c("reclaimed"),
		backpressure: c("backpressure"),
		consumed:     c("consumed"),
		notReady:     c("not_ready"),
	}
}

// RingStats is a snapshot of a ring's counters.
type RingStats struct {
	Committed    int64
	Reclaimed    int64
	Backpressure int64
	Consumed     int64
	NotReady     int64
}

func (s *ringStats) snapshot() RingStats {
	return RingStats{
		Committed:    s.committed.Count(),
		Reclaimed:    s.reclaimed.Count(),
		Backpressure: s.backpressure.Count(),
		Consumed:     s.consumed.Count(),
		NotReady:     s.notReady.Count(),
	}
}

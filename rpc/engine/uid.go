package engine

import "sync/atomic"

// uidGenerator hands out correlation ids. Ids increase monotonically, wrap
// around after 2^32-1 and are never 0, the value the firmware treats as unset.
type uidGenerator struct {
	last atomic.Uint32
}

// next returns the next id. Safe for concurrent use.
func (g *uidGenerator) next() uint32 {
	for {
		old := g.last.Load()
		n := old + 1
		if n == 0 {
			n = 1
		}
		if g.last.CompareAndSwap(old, n) {
			return n
		}
	}
}

package debug

import (
	"go/token"
	"maps"

	"github.com/mpyw/stmbarrier/internal/barrier"
)

// Collector encapsulates debug information collection.
// This keeps debug logic isolated from the main analysis code.
type Collector struct {
	routines []*Info
	byPos    map[token.Pos][]BarrierInfo
}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{
		byPos: make(map[token.Pos][]BarrierInfo),
	}
}

// Record stores debug info for a transformed routine and returns it.
// Results carrying an error are not recorded.
func (c *Collector) Record(res *barrier.Result, pos token.Pos) *Info {
	info := Collect(res, pos)
	if info == nil {
		return nil
	}
	c.routines = append(c.routines, info)
	for _, b := range info.Barriers {
		c.byPos[b.Pos] = append(c.byPos[b.Pos], b)
	}
	return info
}

// BarriersAt returns every barrier recorded at pos.
func (c *Collector) BarriersAt(pos token.Pos) []BarrierInfo {
	return c.byPos[pos]
}

// Routines returns the recorded routines in recording order.
func (c *Collector) Routines() []*Info {
	return c.routines
}

// Collect builds Info for a single result. pos is the source position of the
// routine.
func Collect(res *barrier.Result, pos token.Pos) *Info {
	if res == nil || res.Err != nil {
		return nil
	}
	info := &Info{
		Routine: res.Routine.Name,
		Pos:     pos,
		Counts:  make(map[string]int, len(res.Counts)),
		PtrEqs:  res.PtrEqs,
		Listing: res.Routine.String(),
	}
	for t, n := range res.Counts {
		info.Counts[t.String()] = n
	}
	for _, ins := range res.Inserted {
		info.Barriers = append(info.Barriers, NewBarrierInfo(ins))
	}
	reachable := res.Routine.Reachable()
	for _, b := range res.Routine.Blocks {
		if !reachable[b] {
			info.Unreachable = append(info.Unreachable, b.Index)
		}
	}
	return info
}

// Total returns the number of barriers in info, identity compares excluded.
func (info *Info) Total() int {
	n := 0
	for v := range maps.Values(info.Counts) {
		n += v
	}
	return n
}

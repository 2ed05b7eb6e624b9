// Package effect maps the declared properties of an external call to the
// invalidation it causes on proven barriers.
//
//	ReleasesLock ──────────────────────────▶ ReleasesTransaction
//	RandomEffects or CanCollect (no release) ▶ RandomGCNoRelease
//	none of the above ─────────────────────▶ Safest
//
// The same call site is therefore rewritten differently depending on how the
// callee was declared.
package effect

import (
	"fmt"

	"github.com/mpyw/stmbarrier/internal/ir"
)

// Level is the invalidation strength of a call.
type Level int

const (
	// Safest calls cannot release the execution lock and cannot make other
	// code touch GC objects. Nothing is invalidated.
	Safest Level = iota
	// RandomGCNoRelease calls may collect or touch arbitrary objects but never
	// yield the transaction. Write barriers must be repeated and read
	// barriers revalidated.
	RandomGCNoRelease
	// ReleasesTransaction calls may suspend the transaction and let others
	// run. Only identity validity survives.
	ReleasesTransaction
)

func (l Level) String() string {
	switch l {
	case Safest:
		return "SAFEST"
	case RandomGCNoRelease:
		return "RANDOM_GC_EFFECT_NO_RELEASE"
	case ReleasesTransaction:
		return "RELEASES_TRANSACTION"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Effect is the classified behaviour of a call.
type Effect struct {
	Level Level
	// Writes is the precise set of object types the call may write. It is
	// only meaningful for Safest calls; stronger levels invalidate all reads.
	Writes []ir.Type
}

// Collects reports whether proven write barriers must be repeated after the
// call, because the collector may have run.
func (e Effect) Collects() bool {
	return e.Level >= RandomGCNoRelease
}

// WritesAnything reports whether the call may write arbitrary objects.
func (e Effect) WritesAnything() bool {
	return e.Level >= RandomGCNoRelease
}

// Breaks reports whether the call may break the current transaction.
func (e Effect) Breaks() bool {
	return e.Level == ReleasesTransaction
}

// Classify maps declared call properties to an Effect.
func Classify(info ir.CallInfo) Effect {
	switch {
	case info.ReleasesLock:
		return Effect{Level: ReleasesTransaction}
	case info.RandomEffects || info.CanCollect:
		return Effect{Level: RandomGCNoRelease}
	default:
		return Effect{Level: Safest, Writes: info.Writes}
	}
}

// Info returns the declared properties corresponding to a level. It is the
// inverse of Classify for calls without a precise write set.
func Info(level Level) ir.CallInfo {
	switch level {
	case ReleasesTransaction:
		return ir.CallInfo{ReleasesLock: true, RandomEffects: true, CanCollect: true}
	case RandomGCNoRelease:
		return ir.CallInfo{RandomEffects: true, CanCollect: true}
	default:
		return ir.CallInfo{}
	}
}

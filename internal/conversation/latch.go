package conversation

import "sync/atomic"

// Latch is a one-shot gate: Fire returns true for exactly one caller until
// the latch is re-armed.
type Latch struct {
	fired atomic.Bool
}

func (l *Latch) Fire() bool {
	return l.fired.CompareAndSwap(false, true)
}

func (l *Latch) Fired() bool {
	return l.fired.Load()
}

func (l *Latch) Rearm() {
	l.fired.Store(false)
}

func (l *Latch) set(v bool) {
	l.fired.Store(v)
}

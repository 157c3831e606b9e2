package alert

import (
	"sync"
	"time"
)

// Ledger deduplicates alerts within a cool-off window and keeps accepted
// alerts queryable for the retention window. Pruning only affects the
// Ledger's own memory; anything already dispatched stays dispatched.
type Ledger struct {
	cooloff   time.Duration
	retention time.Duration

	mu           sync.Mutex
	alerts       []Alert
	lastAccepted map[string]time.Time
	accepted     uint64

	now func() time.Time
}

// NewLedger creates a Ledger with the given cool-off and retention windows.
func NewLedger(cooloff, retention time.Duration) *Ledger {
	return &Ledger{
		cooloff:      cooloff,
		retention:    retention,
		lastAccepted: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Offer submits an alert. It returns false if an alert with the same dedup
// key was accepted within the cool-off window; otherwise the alert is
// stored and true is returned. Every accept also prunes alerts older than
// the retention window.
func (l *Ledger) Offer(a Alert) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastAccepted[a.DedupKey()]; ok && now.Sub(last) < l.cooloff {
		return false
	}

	l.lastAccepted[a.DedupKey()] = now
	l.alerts = append(l.alerts, a)
	l.accepted++
	l.prune(now)
	return true
}

// prune drops stored alerts older than the retention window. Caller holds mu.
func (l *Ledger) prune(now time.Time) {
	cutoff := now.Add(-l.retention)
	kept := l.alerts[:0]
	for _, a := range l.alerts {
		if a.CreatedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	l.alerts = kept
}

// Recent returns up to n of the most recent accepted alerts, oldest first.
func (l *Ledger) Recent(n int) []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if len(l.alerts) > n {
		start = len(l.alerts) - n
	}
	out := make([]Alert, len(l.alerts)-start)
	copy(out, l.alerts[start:])
	return out
}

// All returns a copy of every retained alert in acceptance order.
func (l *Ledger) All() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// TotalAccepted returns the running count of accepted alerts since process
// start. Pruning does not decrease it.
func (l *Ledger) TotalAccepted() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepted
}

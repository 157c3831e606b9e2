package alert

import (
	"testing"
	"time"
)

func makeAlert(kind Kind, service string, createdAt time.Time) Alert {
	return Alert{
		Kind:        kind,
		ServiceName: service,
		Severity:    SeverityWarning,
		CreatedAt:   createdAt,
	}
}

// fixedClock lets tests advance ledger time deterministically.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger(cooloff, retention time.Duration) (*Ledger, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLedger(cooloff, retention)
	l.now = clock.now
	return l, clock
}

func TestLedger_AcceptsFirstAlert(t *testing.T) {
	l, clock := newTestLedger(5*time.Minute, time.Hour)

	if !l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t)) {
		t.Error("expected first alert to be accepted")
	}
	if got := l.TotalAccepted(); got != 1 {
		t.Errorf("expected 1 accepted, got %d", got)
	}
}

func TestLedger_RejectsDuplicateWithinCooloff(t *testing.T) {
	l, clock := newTestLedger(5*time.Minute, time.Hour)

	l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t))

	clock.advance(time.Minute)
	if l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t)) {
		t.Error("expected duplicate within cool-off to be rejected")
	}
	if got := l.TotalAccepted(); got != 1 {
		t.Errorf("expected 1 accepted, got %d", got)
	}
}

func TestLedger_AcceptsAgainAfterCooloff(t *testing.T) {
	l, clock := newTestLedger(5*time.Minute, time.Hour)

	l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t))

	clock.advance(5*time.Minute + time.Second)
	if !l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t)) {
		t.Error("expected alert after cool-off to be accepted")
	}
	if got := l.TotalAccepted(); got != 2 {
		t.Errorf("expected 2 accepted, got %d", got)
	}
}

func TestLedger_DedupIsPerKindAndService(t *testing.T) {
	l, clock := newTestLedger(5*time.Minute, time.Hour)

	if !l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t)) {
		t.Error("expected first alert accepted")
	}
	if !l.Offer(makeAlert(KindHighErrorRate, "api", clock.t)) {
		t.Error("expected different kind for same service to be accepted")
	}
	if !l.Offer(makeAlert(KindConsecutiveFailures, "db", clock.t)) {
		t.Error("expected same kind for different service to be accepted")
	}
}

func TestLedger_PrunesOldAlertsOnAccept(t *testing.T) {
	l, clock := newTestLedger(time.Minute, time.Hour)

	l.Offer(makeAlert(KindConsecutiveFailures, "api", clock.t))

	clock.advance(2 * time.Hour)
	l.Offer(makeAlert(KindHighErrorRate, "api", clock.t))

	all := l.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 retained alert after pruning, got %d", len(all))
	}
	if all[0].Kind != KindHighErrorRate {
		t.Errorf("expected the fresh alert to survive, got %q", all[0].Kind)
	}

	// Pruning must not undo acceptance.
	if got := l.TotalAccepted(); got != 2 {
		t.Errorf("expected running total to stay 2, got %d", got)
	}
}

func TestLedger_RecentReturnsMostRecentLast(t *testing.T) {
	l, clock := newTestLedger(time.Millisecond, time.Hour)

	l.Offer(makeAlert(KindConsecutiveFailures, "a", clock.t))
	clock.advance(time.Second)
	l.Offer(makeAlert(KindConsecutiveFailures, "b", clock.t))
	clock.advance(time.Second)
	l.Offer(makeAlert(KindConsecutiveFailures, "c", clock.t))

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(recent))
	}
	if recent[0].ServiceName != "b" || recent[1].ServiceName != "c" {
		t.Errorf("expected [b c], got [%s %s]", recent[0].ServiceName, recent[1].ServiceName)
	}
}

func TestLedger_RecentIsACopy(t *testing.T) {
	l, clock := newTestLedger(time.Millisecond, time.Hour)
	l.Offer(makeAlert(KindConsecutiveFailures, "a", clock.t))

	recent := l.Recent(10)
	recent[0].ServiceName = "mutated"

	if l.All()[0].ServiceName != "a" {
		t.Error("mutating the Recent slice changed the ledger")
	}
}

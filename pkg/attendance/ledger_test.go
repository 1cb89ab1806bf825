package attendance

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.March, day, hour, min, 0, 0, time.UTC)
}

func TestRecord_AlternatesWithinDay(t *testing.T) {
	l := NewLedger(time.UTC, 0)

	want := []EventType{CheckIn, CheckOut, CheckIn, CheckOut, CheckIn}
	for i, w := range want {
		res := l.Record("Alice", at(1, 9, i))
		if res.Type != w {
			t.Errorf("call %d: expected %s, got %s", i, w, res.Type)
		}
		if res.FirstOfDay != (i == 0) {
			t.Errorf("call %d: FirstOfDay = %v", i, res.FirstOfDay)
		}
		if res.Suppressed {
			t.Errorf("call %d: unexpected suppression", i)
		}
	}

	if got := len(l.History("Alice")); got != len(want) {
		t.Errorf("expected %d events, got %d", len(want), got)
	}
}

func TestRecord_DayBoundary(t *testing.T) {
	l := NewLedger(time.UTC, 0)

	steps := []struct {
		now        time.Time
		want       EventType
		firstOfDay bool
	}{
		{at(1, 9, 0), CheckIn, true},
		{at(1, 9, 5), CheckOut, false},
		{at(2, 9, 0), CheckIn, true},
	}

	for _, s := range steps {
		res := l.Record("Alice", s.now)
		if res.Type != s.want || res.FirstOfDay != s.firstOfDay {
			t.Errorf("%s: got %s first=%v, want %s first=%v",
				s.now.Format(time.RFC3339), res.Type, res.FirstOfDay, s.want, s.firstOfDay)
		}
	}

	h := l.History("Alice")
	if len(h) != 3 {
		t.Fatalf("expected 3 events, got %d", len(h))
	}
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp.Before(h[i-1].Timestamp) {
			t.Error("history not in chronological order")
		}
	}
}

func TestRecord_DayFollowsLedgerTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	l := NewLedger(loc, 0)

	// 21:30 and 22:30 UTC fall on different days at UTC+2.
	l.Record("Alice", at(1, 21, 30))
	res := l.Record("Alice", at(1, 22, 30))
	if res.Type != CheckIn || !res.FirstOfDay {
		t.Errorf("expected new-day check-in, got %s first=%v", res.Type, res.FirstOfDay)
	}
}

func TestRecord_MissingCheckOutDoesNotCarryOver(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	l.Record("Alice", at(1, 9, 0))

	res := l.Record("Alice", at(2, 9, 0))
	if res.Type != CheckIn {
		t.Errorf("expected check-in on a new day, got %s", res.Type)
	}
}

func TestRecord_Cooldown(t *testing.T) {
	l := NewLedger(time.UTC, time.Minute)

	first := l.Record("Alice", at(1, 9, 0))
	if first.Type != CheckIn || first.Suppressed {
		t.Fatalf("unexpected first result: %+v", first)
	}

	repeat := l.Record("Alice", at(1, 9, 0).Add(30*time.Second))
	if !repeat.Suppressed || repeat.Type != CheckIn || repeat.FirstOfDay {
		t.Errorf("expected suppressed check-in, got %+v", repeat)
	}
	if repeat.Event.ID != first.Event.ID {
		t.Error("suppressed result should carry the previous event")
	}

	after := l.Record("Alice", at(1, 9, 1))
	if after.Suppressed || after.Type != CheckOut {
		t.Errorf("expected check-out after cooldown, got %+v", after)
	}

	if got := len(l.History("Alice")); got != 2 {
		t.Errorf("expected 2 events, got %d", got)
	}
}

func TestRecord_CooldownDoesNotSpanMidnight(t *testing.T) {
	l := NewLedger(time.UTC, time.Hour)
	l.Record("Alice", time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC))

	res := l.Record("Alice", time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC))
	if res.Suppressed || res.Type != CheckIn || !res.FirstOfDay {
		t.Errorf("expected first check-in of the new day, got %+v", res)
	}
}

func TestRecord_IdentitiesAreIndependent(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	l.Record("Alice", at(1, 9, 0))

	res := l.Record("Bob", at(1, 9, 1))
	if res.Type != CheckIn || !res.FirstOfDay {
		t.Errorf("expected Bob's first check-in, got %+v", res)
	}
	if l.Today("Alice", at(1, 10, 0)) != CheckedIn {
		t.Error("Alice should still be checked in")
	}
}

func TestToday(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	if got := l.Today("Alice", at(1, 8, 0)); got != NoEntryToday {
		t.Errorf("expected %s, got %s", NoEntryToday, got)
	}
	l.Record("Alice", at(1, 9, 0))
	l.Record("Alice", at(1, 17, 0))
	if got := l.Today("Alice", at(1, 18, 0)); got != CheckedOut {
		t.Errorf("expected %s, got %s", CheckedOut, got)
	}
	if got := l.Today("Alice", at(2, 8, 0)); got != NoEntryToday {
		t.Errorf("expected %s on the next day, got %s", NoEntryToday, got)
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	l.Record("Alice", at(1, 9, 0))

	h := l.History("Alice")
	h[0].Type = CheckOut

	if l.History("Alice")[0].Type != CheckIn {
		t.Error("History exposed internal state")
	}
	if h := l.History("Nobody"); h == nil || len(h) != 0 {
		t.Errorf("expected empty non-nil history, got %v", h)
	}
}

func TestAllAndNames(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	l.Record("Bob", at(1, 9, 0))
	l.Record("Alice", at(1, 9, 0))
	l.Record("Alice", at(1, 10, 0))

	all := l.All()
	if len(all) != 2 || len(all["Alice"]) != 2 || len(all["Bob"]) != 1 {
		t.Errorf("unexpected All(): %v", all)
	}
}

func TestForget(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	l.Record("Alice", at(1, 9, 0))
	l.Forget("Alice")
	l.Forget("Alice")

	if len(l.History("Alice")) != 0 {
		t.Error("history not purged")
	}
	if res := l.Record("Alice", at(1, 10, 0)); !res.FirstOfDay {
		t.Error("forgotten identity should start a fresh day")
	}
}

func TestClearAll(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	for _, name := range []string{"Alice", "Bob", "Removed"} {
		l.Record(name, at(1, 9, 0))
	}

	l.ClearAll()

	for _, name := range []string{"Alice", "Bob", "Removed"} {
		if h := l.History(name); len(h) != 0 {
			t.Errorf("%s: expected empty history, got %d events", name, len(h))
		}
	}
	if len(l.All()) != 0 {
		t.Error("expected All() to be empty")
	}
}

func TestRecord_ConcurrentSameIdentity(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	now := at(1, 12, 0)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("Alice", now)
		}()
	}
	wg.Wait()

	h := l.History("Alice")
	if len(h) != n {
		t.Fatalf("expected %d events, got %d", n, len(h))
	}
	for i, ev := range h {
		want := CheckIn
		if i%2 == 1 {
			want = CheckOut
		}
		if ev.Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, ev.Type)
		}
	}
}

func TestRecord_ConcurrentWithClear(t *testing.T) {
	l := NewLedger(time.UTC, 0)
	now := at(1, 12, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			l.Record(fmt.Sprintf("person-%d", i%4), now)
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = l.All()
			if i%5 == 0 {
				l.ClearAll()
			}
		}(i)
	}
	wg.Wait()

	for name, events := range l.All() {
		if events[0].Type != CheckIn {
			t.Errorf("%s: history must start with a check-in", name)
		}
	}
}

func TestEventTypeNext(t *testing.T) {
	if CheckIn.Next() != CheckOut || CheckOut.Next() != CheckIn {
		t.Error("Next should alternate")
	}
}

// Package attendance implements the check-in/check-out state machine.
//
// Each identity has an append-only history of events. Within one calendar
// day (in the ledger's time zone) the events of an identity alternate,
// starting with a check-in. The day's state is computed from that day's
// events only, so a new day always starts with a check-in.
package attendance

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of an attendance event.
type EventType string

const (
	CheckIn  EventType = "check-in"
	CheckOut EventType = "check-out"
)

// Next returns the type that follows t within a day.
func (t EventType) Next() EventType {
	if t == CheckIn {
		return CheckOut
	}
	return CheckIn
}

// State is an identity's position in the daily state machine.
type State int

const (
	NoEntryToday State = iota
	CheckedIn
	CheckedOut
)

func (s State) String() string {
	switch s {
	case CheckedIn:
		return "checked-in"
	case CheckedOut:
		return "checked-out"
	default:
		return "no-entry"
	}
}

// Event is one recorded attendance event. Events are never modified.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// Result describes the outcome of Record.
type Result struct {
	Event      Event
	Type       EventType
	FirstOfDay bool
	// Suppressed is set when the call fell inside the cooldown window and
	// nothing was appended. Type then repeats the previous action.
	Suppressed bool
}

type entry struct {
	mu     sync.Mutex
	events []Event
}

// Ledger holds the attendance history of every identity.
type Ledger struct {
	loc      *time.Location
	cooldown time.Duration
	newID    func() uuid.UUID

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewLedger creates an empty ledger. Days are computed in loc (time.Local
// when nil). A positive cooldown turns calls made within that duration of
// an identity's last event into no-ops.
func NewLedger(loc *time.Location, cooldown time.Duration) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		loc:      loc,
		cooldown: cooldown,
		newID:    uuid.New,
		entries:  make(map[string]*entry),
	}
}

// Location returns the time zone used for day boundaries.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

func (l *Ledger) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(l.loc).Date()
	by, bm, bd := b.In(l.loc).Date()
	return ay == by && am == bm && ad == bd
}

// Record appends the next event for name at now and returns it.
// The read-decide-append sequence is atomic per identity.
func (l *Ledger) Record(name string, now time.Time) Result {
	for {
		l.mu.RLock()
		if e, ok := l.entries[name]; ok {
			res := l.record(e, now)
			l.mu.RUnlock()
			return res
		}
		l.mu.RUnlock()

		l.mu.Lock()
		if _, ok := l.entries[name]; !ok {
			l.entries[name] = &entry{}
		}
		l.mu.Unlock()
	}
}

func (l *Ledger) record(e *entry, now time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.events); n > 0 && l.cooldown > 0 {
		last := e.events[n-1]
		if now.Sub(last.Timestamp) < l.cooldown && l.sameDay(last.Timestamp, now) {
			return Result{Event: last, Type: last.Type, Suppressed: true}
		}
	}

	state := l.stateLocked(e, now)
	var typ EventType
	switch state {
	case CheckedIn:
		typ = CheckOut
	default:
		typ = CheckIn
	}

	ev := Event{ID: l.newID(), Timestamp: now, Type: typ}
	e.events = append(e.events, ev)
	return Result{Event: ev, Type: typ, FirstOfDay: state == NoEntryToday}
}

// stateLocked derives today's state from the last event dated today.
func (l *Ledger) stateLocked(e *entry, now time.Time) State {
	for i := len(e.events) - 1; i >= 0; i-- {
		ev := e.events[i]
		if !l.sameDay(ev.Timestamp, now) {
			continue
		}
		if ev.Type == CheckIn {
			return CheckedIn
		}
		return CheckedOut
	}
	return NoEntryToday
}

// Today returns name's state for the day containing now.
func (l *Ledger) Today(name string, now time.Time) State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[name]
	if !ok {
		return NoEntryToday
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.stateLocked(e, now)
}

// History returns a copy of name's events in chronological order.
func (l *Ledger) History(name string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[name]
	if !ok {
		return []Event{}
	}
	return e.snapshot()
}

func (e *entry) snapshot() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// All returns a copy of every identity's history. Identities without
// events are omitted.
func (l *Ledger) All() map[string][]Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string][]Event, len(l.entries))
	for name, e := range l.entries {
		if events := e.snapshot(); len(events) > 0 {
			out[name] = events
		}
	}
	return out
}

// Forget drops name's history.
func (l *Ledger) Forget(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, name)
}

// ClearAll drops every identity's history.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
}

package show

import (
	"sort"
	"time"
)

// Handle identifies a scheduled entry so it can be cancelled.
type Handle int64

// Scheduler is a polled "run this no earlier than T" list. Nothing
// fires on its own; the control loop calls RunDue once per tick and
// due entries execute there, in time order. No OS timers are involved,
// which keeps playback deterministic under a fake clock.
//
// Not safe for concurrent use; the controller owns it on the
// control-loop goroutine.
type Scheduler struct {
	nextHandle Handle
	entries    []scheduledEntry
}

type scheduledEntry struct {
	handle Handle
	at     time.Time
	fn     func(now time.Time)
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{nextHandle: 1}
}

// ScheduleAt registers fn to run at the first RunDue whose now is at
// or past t.
func (s *Scheduler) ScheduleAt(t time.Time, fn func(now time.Time)) Handle {
	h := s.nextHandle
	s.nextHandle++
	s.entries = append(s.entries, scheduledEntry{handle: h, at: t, fn: fn})
	return h
}

// Cancel removes a pending entry. Returns false if the handle already
// fired or was cancelled.
func (s *Scheduler) Cancel(h Handle) bool {
	for i, e := range s.entries {
		if e.handle == h {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RunDue executes every entry due at now, in (time, handle) order.
// Entries are removed before invocation, so a callback can safely
// schedule or cancel others. Callbacks that schedule new entries
// already due at now run in the same call.
//
// Returns the number of entries executed.
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for {
		var due []scheduledEntry
		remaining := s.entries[:0]
		for _, e := range s.entries {
			if !e.at.After(now) {
				due = append(due, e)
			} else {
				remaining = append(remaining, e)
			}
		}
		if len(due) == 0 {
			break
		}
		s.entries = remaining

		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].handle < due[j].handle
			}
			return due[i].at.Before(due[j].at)
		})
		for _, e := range due {
			e.fn(now)
			ran++
		}
	}
	return ran
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

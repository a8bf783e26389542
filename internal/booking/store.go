// Package booking implements the weekly facility calendar: the availability
// index, overlap checking, and the mutating operations (book, change,
// extend, cancel) the server dispatcher drives.
package booking

import (
	"sort"
	"sync"

	"github.com/Iyzyman/facilitybook/internal/protocol"
)

// DefaultFacilities seeds the server's fixed, runtime-immutable facility
// list (§3: "no runtime facility creation").
var DefaultFacilities = []string{
	"Meeting Room A",
	"Lecture Theatre 1",
	"Conference Hall",
	"Seminar Room B",
}

// Booking is a single reservation record. Cancelled bookings are retained
// forever for history (§3) and excluded from overlap tests and free-interval
// computation.
type Booking struct {
	ConfirmationID string
	Facility       string
	Start          int // minutes since Monday 00:00
	End            int // exclusive
	OriginalEnd    int // end at creation time; EXTEND always computes from this
	Cancelled      bool
}

type facility struct {
	name     string
	bookings []*Booking
}

// IDGenerator mints confirmation-ids. Implementations must be safe to call
// without external synchronization (the store already serializes callers).
type IDGenerator func() string

// Store holds every facility's bookings in memory. One mutex protects the
// whole structure: per §5 the booking store, history cache and monitor
// registry form a single consistency domain, and within this type there is
// exactly one resource to lock.
type Store struct {
	mu         sync.Mutex
	facilities map[string]*facility
	genID      IDGenerator
}

// NewStore seeds the given facility names with empty calendars.
func NewStore(facilities []string, genID IDGenerator) *Store {
	s := &Store{
		facilities: make(map[string]*facility, len(facilities)),
		genID:      genID,
	}
	for _, name := range facilities {
		s.facilities[name] = &facility{name: name}
	}
	return s
}

func toMinutes(t protocol.TimeTriple) int { return t.Minutes() }

func overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// Query returns the free intervals of facility across the requested days,
// merged into maximal contiguous runs and sorted by start ascending.
func (s *Store) Query(name string, days []uint8) ([]protocol.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fac, ok := s.facilities[name]
	if !ok {
		return nil, errNotFound("facility %q not found", name)
	}

	windows := dayWindows(days)
	var free []protocol.Interval
	for _, w := range windows {
		var booked []interval
		for _, bk := range fac.bookings {
			if bk.Cancelled {
				continue
			}
			start, end := clip(bk.Start, bk.End, w.start, w.end)
			if start < end {
				booked = append(booked, interval{start, end})
			}
		}
		for _, gap := range complement(booked, w.start, w.end) {
			free = append(free, protocol.Interval{
				Start: protocol.TimeTripleFromMinutes(gap.start),
				End:   protocol.TimeTripleFromMinutes(gap.end),
			})
		}
	}
	return free, nil
}

// Book creates a new booking if it doesn't overlap any active booking.
func (s *Store) Book(name string, start, end protocol.TimeTriple) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fac, ok := s.facilities[name]
	if !ok {
		return "", errNotFound("facility %q not found", name)
	}
	if !start.Valid() || !end.Valid() {
		return "", errInvalidTime("time field out of range")
	}
	startMin, endMin := toMinutes(start), toMinutes(end)
	if startMin >= endMin {
		return "", errInvalidTime("start must precede end")
	}
	if bk := firstOverlap(fac.bookings, startMin, endMin, ""); bk != nil {
		return "", errConflict("overlaps existing booking %s", bk.ConfirmationID)
	}

	id := s.genID()
	fac.bookings = append(fac.bookings, &Booking{
		ConfirmationID: id,
		Facility:       name,
		Start:          startMin,
		End:            endMin,
		OriginalEnd:    endMin,
	})
	return id, nil
}

// Change shifts an existing booking's start and end by offsetMinutes.
// Non-idempotent: applying the same offset twice shifts twice more.
func (s *Store) Change(confirmationID string, offsetMinutes int32) (facilityName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, fac, err := s.find(confirmationID)
	if err != nil {
		return "", err
	}
	if bk.Cancelled {
		return "", errCancelled("booking %s is cancelled", confirmationID)
	}

	newStart := bk.Start + int(offsetMinutes)
	newEnd := bk.End + int(offsetMinutes)
	if newStart < 0 || newEnd > protocol.MinutesPerWeek || newStart >= newEnd {
		return "", errInvalidTime("offset %d produces an invalid window", offsetMinutes)
	}
	if other := firstOverlap(fac.bookings, newStart, newEnd, confirmationID); other != nil {
		return "", errConflict("overlaps existing booking %s", other.ConfirmationID)
	}

	bk.Start, bk.End = newStart, newEnd
	return fac.name, nil
}

// Extend pushes a booking's end to OriginalEnd+extraMinutes. Idempotent: the
// new end is a deterministic function of the original end, so re-executing
// the same EXTEND leaves the booking exactly where the first execution did.
func (s *Store) Extend(confirmationID string, extraMinutes uint32) (facilityName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, fac, err := s.find(confirmationID)
	if err != nil {
		return "", err
	}
	if bk.Cancelled {
		return "", errCancelled("booking %s is cancelled", confirmationID)
	}

	targetEnd := bk.OriginalEnd + int(extraMinutes)
	if targetEnd == bk.End {
		return fac.name, nil // already applied; no-op per the idempotent contract
	}
	if targetEnd > protocol.MinutesPerWeek || bk.Start >= targetEnd {
		return "", errInvalidTime("extension produces an invalid window")
	}
	if other := firstOverlap(fac.bookings, bk.Start, targetEnd, confirmationID); other != nil {
		return "", errConflict("overlaps existing booking %s", other.ConfirmationID)
	}

	bk.End = targetEnd
	return fac.name, nil
}

// Cancel marks a booking cancelled. Non-idempotent: cancelling an
// already-cancelled booking fails CANCELLED.
func (s *Store) Cancel(confirmationID string) (facilityName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, fac, err := s.find(confirmationID)
	if err != nil {
		return "", err
	}
	if bk.Cancelled {
		return "", errCancelled("booking %s is already cancelled", confirmationID)
	}
	bk.Cancelled = true
	return fac.name, nil
}

func (s *Store) find(confirmationID string) (*Booking, *facility, error) {
	for _, fac := range s.facilities {
		for _, bk := range fac.bookings {
			if bk.ConfirmationID == confirmationID {
				return bk, fac, nil
			}
		}
	}
	return nil, nil, errNotFound("booking %s not found", confirmationID)
}

// FacilityExists reports whether name is one of the seeded facilities.
func (s *Store) FacilityExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.facilities[name]
	return ok
}

func firstOverlap(bookings []*Booking, start, end int, excludeID string) *Booking {
	for _, bk := range bookings {
		if bk.Cancelled || bk.ConfirmationID == excludeID {
			continue
		}
		if overlaps(start, end, bk.Start, bk.End) {
			return bk
		}
	}
	return nil
}

type interval struct{ start, end int }

type window struct{ start, end int }

// dayWindows groups the requested days into contiguous runs, each becoming
// one [start, end) minute window; free intervals are computed and merged
// independently per run so non-adjacent requested days never bleed together.
func dayWindows(days []uint8) []window {
	if len(days) == 0 {
		return nil
	}
	sorted := append([]uint8(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var windows []window
	runStart := sorted[0]
	prev := sorted[0]
	for _, d := range sorted[1:] {
		if d == prev {
			continue // duplicate day index
		}
		if d != prev+1 {
			windows = append(windows, window{int(runStart) * 1440, (int(prev) + 1) * 1440})
			runStart = d
		}
		prev = d
	}
	windows = append(windows, window{int(runStart) * 1440, (int(prev) + 1) * 1440})
	return windows
}

func clip(start, end, lo, hi int) (int, int) {
	if start < lo {
		start = lo
	}
	if end > hi {
		end = hi
	}
	return start, end
}

// complement returns the gaps in [lo, hi) not covered by any interval in
// busy. busy need not be sorted or merged; complement sorts internally.
func complement(busy []interval, lo, hi int) []interval {
	sort.Slice(busy, func(i, j int) bool { return busy[i].start < busy[j].start })

	var gaps []interval
	cur := lo
	for _, b := range busy {
		if b.start > cur {
			gaps = append(gaps, interval{cur, b.start})
		}
		if b.end > cur {
			cur = b.end
		}
	}
	if cur < hi {
		gaps = append(gaps, interval{cur, hi})
	}
	return gaps
}

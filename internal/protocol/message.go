package protocol

import "fmt"

// TimeTriple is a (day, hour, minute) point within the weekly calendar.
// Day 0 is Monday. Normalizes to minutes-since-Monday-00:00 via Minutes().
type TimeTriple struct {
	Day    uint8
	Hour   uint8
	Minute uint8
}

// MinutesPerWeek bounds the normalized minute-of-week range [0, MinutesPerWeek).
const MinutesPerWeek = 7 * 24 * 60

// Minutes returns the offset from Monday 00:00, in minutes.
func (t TimeTriple) Minutes() int {
	return int(t.Day)*1440 + int(t.Hour)*60 + int(t.Minute)
}

// Valid reports whether the triple's fields are within their ranges.
func (t TimeTriple) Valid() bool {
	return t.Day <= 6 && t.Hour <= 23 && t.Minute <= 59
}

// TimeTripleFromMinutes is the inverse of Minutes, for values in [0, MinutesPerWeek).
func TimeTripleFromMinutes(total int) TimeTriple {
	total = total % MinutesPerWeek
	if total < 0 {
		total += MinutesPerWeek
	}
	return TimeTriple{
		Day:    uint8(total / 1440),
		Hour:   uint8((total % 1440) / 60),
		Minute: uint8(total % 60),
	}
}

// Interval is a half-open [Start, End) free or booked window.
type Interval struct {
	Start TimeTriple
	End   TimeTriple
}

// Request is implemented by every request payload type (one per op code).
type Request interface {
	OpCode() uint8
	encode(w *writer)
}

// Reply is implemented by every reply and callback payload type.
type Reply interface {
	OpCode() uint8
	encode(w *writer)
}

// QueryRequest asks for free intervals on a facility across the given days.
type QueryRequest struct {
	Facility string
	Days     []uint8
}

func (QueryRequest) OpCode() uint8 { return OpQuery }
func (r QueryRequest) encode(w *writer) {
	w.writeString(r.Facility)
	w.writeU8List(r.Days)
}

// QueryReply carries the free intervals that satisfy a QueryRequest.
type QueryReply struct {
	Free []Interval
}

func (QueryReply) OpCode() uint8 { return OpQuery }
func (r QueryReply) encode(w *writer) {
	w.writeU32(uint32(len(r.Free)))
	for _, iv := range r.Free {
		w.writeTimeTriple(iv.Start)
		w.writeTimeTriple(iv.End)
	}
}

// BookRequest asks for a new booking on a facility.
type BookRequest struct {
	Facility string
	Start    TimeTriple
	End      TimeTriple
}

func (BookRequest) OpCode() uint8 { return OpBook }
func (r BookRequest) encode(w *writer) {
	w.writeString(r.Facility)
	w.writeTimeTriple(r.Start)
	w.writeTimeTriple(r.End)
}

// BookReply carries the confirmation-id of a newly created booking.
type BookReply struct {
	ConfirmationID string
}

func (BookReply) OpCode() uint8 { return OpBook }
func (r BookReply) encode(w *writer) { w.writeString(r.ConfirmationID) }

// ChangeRequest shifts an existing booking's start and end by OffsetMinutes.
type ChangeRequest struct {
	ConfirmationID string
	OffsetMinutes  int32
}

func (ChangeRequest) OpCode() uint8 { return OpChange }
func (r ChangeRequest) encode(w *writer) {
	w.writeString(r.ConfirmationID)
	w.writeI32(r.OffsetMinutes)
}

// ChangeReply is the empty acknowledgement of a successful CHANGE.
type ChangeReply struct{}

func (ChangeReply) OpCode() uint8     { return OpChange }
func (ChangeReply) encode(w *writer) {}

// ExtendRequest pushes a booking's end out by ExtraMinutes, measured from
// the booking's original end (idempotent under re-delivery).
type ExtendRequest struct {
	ConfirmationID string
	ExtraMinutes   uint32
}

func (ExtendRequest) OpCode() uint8 { return OpExtend }
func (r ExtendRequest) encode(w *writer) {
	w.writeString(r.ConfirmationID)
	w.writeU32(r.ExtraMinutes)
}

// ExtendReply is the empty acknowledgement of a successful EXTEND.
type ExtendReply struct{}

func (ExtendReply) OpCode() uint8     { return OpExtend }
func (ExtendReply) encode(w *writer) {}

// CancelRequest marks a booking cancelled. Non-idempotent: a second
// delivery against the same booking fails CANCELLED.
type CancelRequest struct {
	ConfirmationID string
}

func (CancelRequest) OpCode() uint8 { return OpCancel }
func (r CancelRequest) encode(w *writer) { w.writeString(r.ConfirmationID) }

// CancelReply is the empty acknowledgement of a successful CANCEL.
type CancelReply struct{}

func (CancelReply) OpCode() uint8     { return OpCancel }
func (CancelReply) encode(w *writer) {}

// MonitorRegisterRequest subscribes the caller to a facility's availability
// changes for DurationSeconds.
type MonitorRegisterRequest struct {
	Facility        string
	DurationSeconds uint32
}

func (MonitorRegisterRequest) OpCode() uint8 { return OpMonitorRegister }
func (r MonitorRegisterRequest) encode(w *writer) {
	w.writeString(r.Facility)
	w.writeU32(r.DurationSeconds)
}

// MonitorRegisterReply is the empty acknowledgement of a successful
// MONITOR-REGISTER. A MonitorUpdate snapshot follows separately.
type MonitorRegisterReply struct{}

func (MonitorRegisterReply) OpCode() uint8     { return OpMonitorRegister }
func (MonitorRegisterReply) encode(w *writer) {}

// MonitorUpdate is the unsolicited callback pushed to active subscribers
// whenever a facility's free-interval view changes.
type MonitorUpdate struct {
	Facility string
	Free     []Interval
}

func (MonitorUpdate) OpCode() uint8 { return OpMonitorUpdate }
func (r MonitorUpdate) encode(w *writer) {
	w.writeString(r.Facility)
	w.writeU32(uint32(len(r.Free)))
	for _, iv := range r.Free {
		w.writeTimeTriple(iv.Start)
		w.writeTimeTriple(iv.End)
	}
}

// ErrorReply reports a domain, protocol or internal failure in place of the
// normal reply for the operation that failed.
type ErrorReply struct {
	Code   ErrorCode
	Detail string
}

func (ErrorReply) OpCode() uint8 { return OpError }
func (r ErrorReply) encode(w *writer) {
	w.writeU8(uint8(r.Code))
	w.writeString(r.Detail)
}

func (r ErrorReply) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

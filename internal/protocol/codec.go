package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// MaxMessageBytes guards against a single logical message ever needing to
// span more than one UDP datagram (the protocol never fragments, §6).
const MaxMessageBytes = 60000

// writer accumulates the big-endian wire encoding of one message.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 128)} }

func (w *writer) writeU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) writeU32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}
func (w *writer) writeI32(v int32) { w.writeU32(uint32(v)) }

func (w *writer) writeString(s string) {
	w.writeU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) writeTimeTriple(t TimeTriple) {
	w.buf = append(w.buf, t.Day, t.Hour, t.Minute)
}

func (w *writer) writeU8List(vs []uint8) {
	w.writeU32(uint32(len(vs)))
	w.buf = append(w.buf, vs...)
}

// reader consumes a big-endian wire encoding, tracking its own offset and
// the first error encountered so callers can chain reads without checking
// after every field.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) readU8() uint8 {
	if r.err != nil {
		return 0
	}
	if r.off+1 > len(r.data) {
		r.fail("truncated u8 at offset %d", r.off)
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) readU32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.off+4 > len(r.data) {
		r.fail("truncated u32 at offset %d", r.off)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off : r.off+4])
	r.off += 4
	return v
}

func (r *reader) readI32() int32 { return int32(r.readU32()) }

func (r *reader) readString() string {
	if r.err != nil {
		return ""
	}
	n := r.readU32()
	if r.err != nil {
		return ""
	}
	if n > MaxMessageBytes || r.off+int(n) > len(r.data) {
		r.fail("string length %d overruns datagram at offset %d", n, r.off)
		return ""
	}
	s := string(r.data[r.off : r.off+int(n)])
	if !utf8.ValidString(s) {
		r.fail("string at offset %d is not valid UTF-8", r.off)
		return ""
	}
	r.off += int(n)
	return s
}

func (r *reader) readTimeTriple() TimeTriple {
	if r.err != nil {
		return TimeTriple{}
	}
	if r.off+3 > len(r.data) {
		r.fail("truncated time-triple at offset %d", r.off)
		return TimeTriple{}
	}
	t := TimeTriple{Day: r.data[r.off], Hour: r.data[r.off+1], Minute: r.data[r.off+2]}
	r.off += 3
	if !t.Valid() {
		r.fail("time-triple out of range: %+v", t)
		return TimeTriple{}
	}
	return t
}

func (r *reader) readU8List() []uint8 {
	if r.err != nil {
		return nil
	}
	n := r.readU32()
	if r.err != nil {
		return nil
	}
	if n > MaxMessageBytes || r.off+int(n) > len(r.data) {
		r.fail("u8 list length %d overruns datagram at offset %d", n, r.off)
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]uint8, n)
	copy(out, r.data[r.off:r.off+int(n)])
	r.off += int(n)
	return out
}

func (r *reader) readIntervalList() []Interval {
	if r.err != nil {
		return nil
	}
	n := r.readU32()
	if r.err != nil {
		return nil
	}
	if n > MaxMessageBytes/6 {
		r.fail("interval list length %d overruns datagram", n)
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]Interval, 0, n)
	for i := uint32(0); i < n; i++ {
		start := r.readTimeTriple()
		end := r.readTimeTriple()
		if r.err != nil {
			return nil
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

func (r *reader) remaining() bool { return r.err == nil && r.off != len(r.data) }

// EncodeRequest marshals a request with its envelope: op code, then
// request-id, then the op-specific payload.
func EncodeRequest(requestID uint32, req Request) []byte {
	w := newWriter()
	w.writeU8(req.OpCode())
	w.writeU32(requestID)
	req.encode(w)
	return w.buf
}

// DecodeRequest unmarshals a request envelope, returning the request-id and
// the concrete payload. Fails MALFORMED on any overrun, invalid UTF-8 in a
// string field, out-of-range time field or trailing bytes.
func DecodeRequest(data []byte) (uint32, Request, error) {
	r := newReader(data)
	op := r.readU8()
	requestID := r.readU32()
	if r.err != nil {
		return 0, nil, ErrorReply{Code: ErrMalformed, Detail: r.err.Error()}
	}

	var req Request
	switch op {
	case OpQuery:
		req = QueryRequest{Facility: r.readString(), Days: r.readU8List()}
	case OpBook:
		req = BookRequest{Facility: r.readString(), Start: r.readTimeTriple(), End: r.readTimeTriple()}
	case OpChange:
		req = ChangeRequest{ConfirmationID: r.readString(), OffsetMinutes: r.readI32()}
	case OpMonitorRegister:
		req = MonitorRegisterRequest{Facility: r.readString(), DurationSeconds: r.readU32()}
	case OpExtend:
		req = ExtendRequest{ConfirmationID: r.readString(), ExtraMinutes: r.readU32()}
	case OpCancel:
		req = CancelRequest{ConfirmationID: r.readString()}
	default:
		return requestID, nil, ErrorReply{Code: ErrUnknownOp, Detail: fmt.Sprintf("unknown op code %d", op)}
	}
	if r.err != nil {
		return requestID, nil, ErrorReply{Code: ErrMalformed, Detail: r.err.Error()}
	}
	if r.remaining() {
		return requestID, nil, ErrorReply{Code: ErrMalformed, Detail: "trailing bytes after request payload"}
	}
	return requestID, req, nil
}

// EncodeReply marshals a reply or callback: op code, then payload. Replies
// and callbacks carry no request-id (§4.1); the client correlates by
// transport order and op code instead.
func EncodeReply(rep Reply) []byte {
	w := newWriter()
	w.writeU8(rep.OpCode())
	rep.encode(w)
	return w.buf
}

// DecodeReply unmarshals a reply or callback envelope.
func DecodeReply(data []byte) (Reply, error) {
	r := newReader(data)
	op := r.readU8()
	if r.err != nil {
		return nil, fmt.Errorf("malformed reply: %w", r.err)
	}

	var rep Reply
	switch op {
	case OpQuery:
		rep = QueryReply{Free: r.readIntervalList()}
	case OpBook:
		rep = BookReply{ConfirmationID: r.readString()}
	case OpChange:
		rep = ChangeReply{}
	case OpExtend:
		rep = ExtendReply{}
	case OpCancel:
		rep = CancelReply{}
	case OpMonitorRegister:
		rep = MonitorRegisterReply{}
	case OpMonitorUpdate:
		rep = MonitorUpdate{Facility: r.readString(), Free: r.readIntervalList()}
	case OpError:
		rep = ErrorReply{Code: ErrorCode(r.readU8()), Detail: r.readString()}
	default:
		return nil, fmt.Errorf("malformed reply: unknown op code %d", op)
	}
	if r.err != nil {
		return nil, fmt.Errorf("malformed reply: %w", r.err)
	}
	if r.remaining() {
		return nil, fmt.Errorf("malformed reply: trailing bytes after payload")
	}
	return rep, nil
}

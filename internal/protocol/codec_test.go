package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"query", QueryRequest{Facility: "Meeting Room A", Days: []uint8{0, 6}}},
		{"query-no-days", QueryRequest{Facility: "x", Days: nil}},
		{"book", BookRequest{
			Facility: "Conference Hall",
			Start:    TimeTriple{Day: 0, Hour: 9, Minute: 0},
			End:      TimeTriple{Day: 0, Hour: 23, Minute: 59},
		}},
		{"change", ChangeRequest{ConfirmationID: "BKG-1", OffsetMinutes: -120}},
		{"monitor-register", MonitorRegisterRequest{Facility: "Lab1", DurationSeconds: 60}},
		{"extend", ExtendRequest{ConfirmationID: "BKG-2", ExtraMinutes: 30}},
		{"cancel", CancelRequest{ConfirmationID: "BKG-3"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeRequest(42, tc.req)
			id, decoded, err := DecodeRequest(encoded)
			require.NoError(t, err)
			assert.EqualValues(t, 42, id)
			assert.Equal(t, tc.req, decoded)
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rep  Reply
	}{
		{"query", QueryReply{Free: []Interval{
			{Start: TimeTriple{0, 0, 0}, End: TimeTriple{0, 9, 0}},
			{Start: TimeTriple{0, 11, 0}, End: TimeTriple{6, 23, 59}},
		}}},
		{"query-empty", QueryReply{Free: nil}},
		{"book", BookReply{ConfirmationID: "BKG-abc"}},
		{"change", ChangeReply{}},
		{"extend", ExtendReply{}},
		{"cancel", CancelReply{}},
		{"monitor-register", MonitorRegisterReply{}},
		{"monitor-update", MonitorUpdate{Facility: "RoomA", Free: []Interval{
			{Start: TimeTriple{1, 0, 0}, End: TimeTriple{1, 23, 59}},
		}}},
		{"error", ErrorReply{Code: ErrConflict, Detail: "overlaps BKG-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeReply(tc.rep)
			decoded, err := DecodeReply(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.rep, decoded)
		})
	}
}

func TestTimeTripleBoundaries(t *testing.T) {
	for _, tt := range []TimeTriple{
		{Day: 0, Hour: 0, Minute: 0},
		{Day: 6, Hour: 23, Minute: 59},
	} {
		assert.True(t, tt.Valid())
	}
	for _, tt := range []TimeTriple{
		{Day: 7, Hour: 0, Minute: 0},
		{Day: 0, Hour: 24, Minute: 0},
		{Day: 0, Hour: 0, Minute: 60},
	} {
		assert.False(t, tt.Valid())
	}
}

func TestTimeTripleMinutesRoundTrip(t *testing.T) {
	for total := 0; total < MinutesPerWeek; total += 37 {
		tt := TimeTripleFromMinutes(total)
		assert.Equal(t, total, tt.Minutes())
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, _, err := DecodeRequest(nil)
		requireErrorReplyCode(t, err, ErrMalformed)
	})
	t.Run("string length overruns", func(t *testing.T) {
		data := EncodeRequest(1, BookRequest{Facility: "A"})
		// Truncate so the facility-name length prefix claims more bytes than exist.
		_, _, err := DecodeRequest(data[:9])
		requireErrorReplyCode(t, err, ErrMalformed)
	})
	t.Run("unknown op", func(t *testing.T) {
		data := []byte{0x42, 0, 0, 0, 1}
		_, _, err := DecodeRequest(data)
		requireErrorReplyCode(t, err, ErrUnknownOp)
	})
	t.Run("trailing bytes", func(t *testing.T) {
		data := append(EncodeRequest(1, CancelRequest{ConfirmationID: "x"}), 0xFF)
		_, _, err := DecodeRequest(data)
		requireErrorReplyCode(t, err, ErrMalformed)
	})
}

func requireErrorReplyCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	er, ok := err.(ErrorReply)
	require.True(t, ok, "expected ErrorReply, got %T", err)
	assert.Equal(t, code, er.Code)
}

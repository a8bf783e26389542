package rpcclient

import (
	"net"
	"testing"
	"time"

	"github.com/Iyzyman/facilitybook/internal/protocol"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCallReturnsMatchingReply(t *testing.T) {
	server := listenUDP(t)
	go func() {
		buf := make([]byte, 2048)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _, decodeErr := protocol.DecodeRequest(buf[:n])
		require.NoError(t, decodeErr)
		reply := protocol.EncodeReply(protocol.BookReply{ConfirmationID: "BKG-1"})
		server.WriteToUDP(reply, addr)
	}()

	c, err := Dial(server.LocalAddr().String(), DefaultOptions(), nil)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call(protocol.BookRequest{Facility: "RoomA"})
	require.NoError(t, err)
	book, ok := reply.(protocol.BookReply)
	require.True(t, ok)
	require.Equal(t, "BKG-1", book.ConfirmationID)
}

func TestCallRetransmitsOnTimeoutWithSameRequestID(t *testing.T) {
	server := listenUDP(t)
	var seenIDs []uint32
	go func() {
		buf := make([]byte, 2048)
		for i := 0; i < 3; i++ {
			n, addr, err := server.ReadFromUDP(buf)
			if err != nil {
				return
			}
			id, _, _ := protocol.DecodeRequest(buf[:n])
			seenIDs = append(seenIDs, id)
			if i < 2 {
				continue // simulate dropped replies for the first two attempts
			}
			server.WriteToUDP(protocol.EncodeReply(protocol.CancelReply{}), addr)
		}
	}()

	c, err := Dial(server.LocalAddr().String(), Options{Timeout: 200 * time.Millisecond, MaxAttempts: 3}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(protocol.CancelRequest{ConfirmationID: "x"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Len(t, seenIDs, 3)
	require.Equal(t, seenIDs[0], seenIDs[1])
	require.Equal(t, seenIDs[0], seenIDs[2])
}

func TestCallFailsWithTimeoutAfterMaxAttempts(t *testing.T) {
	server := listenUDP(t) // never replies

	c, err := Dial(server.LocalAddr().String(), Options{Timeout: 50 * time.Millisecond, MaxAttempts: 2}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(protocol.CancelRequest{ConfirmationID: "x"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestCallSurfacesErrorReplyAsError(t *testing.T) {
	server := listenUDP(t)
	go func() {
		buf := make([]byte, 2048)
		_, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		reply := protocol.EncodeReply(protocol.ErrorReply{Code: protocol.ErrConflict, Detail: "nope"})
		server.WriteToUDP(reply, addr)
	}()

	c, err := Dial(server.LocalAddr().String(), DefaultOptions(), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(protocol.BookRequest{Facility: "RoomA"})
	require.Error(t, err)
	errReply, ok := err.(protocol.ErrorReply)
	require.True(t, ok)
	require.Equal(t, protocol.ErrConflict, errReply.Code)
}

func TestAwaitReplyDiscardsMonitorUpdateDuringRequestLoop(t *testing.T) {
	server := listenUDP(t)
	go func() {
		buf := make([]byte, 2048)
		_, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		stray := protocol.EncodeReply(protocol.MonitorUpdate{Facility: "RoomA"})
		server.WriteToUDP(stray, addr)
		time.Sleep(20 * time.Millisecond)
		server.WriteToUDP(protocol.EncodeReply(protocol.QueryReply{}), addr)
	}()

	c, err := Dial(server.LocalAddr().String(), Options{Timeout: time.Second, MaxAttempts: 1}, nil)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call(protocol.QueryRequest{Facility: "RoomA"})
	require.NoError(t, err)
	_, ok := reply.(protocol.QueryReply)
	require.True(t, ok)
}

func TestMonitorSurfacesUpdatesForRegisteredFacilityOnly(t *testing.T) {
	server := listenUDP(t)
	go func() {
		buf := make([]byte, 2048)
		_, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		server.WriteToUDP(protocol.EncodeReply(protocol.MonitorRegisterReply{}), addr)
		server.WriteToUDP(protocol.EncodeReply(protocol.MonitorUpdate{Facility: "Other"}), addr)
		server.WriteToUDP(protocol.EncodeReply(protocol.MonitorUpdate{Facility: "RoomA"}), addr)
	}()

	c, err := Dial(server.LocalAddr().String(), DefaultOptions(), nil)
	require.NoError(t, err)
	defer c.Close()

	var got []protocol.MonitorUpdate
	err = c.Monitor(protocol.MonitorRegisterRequest{Facility: "RoomA", DurationSeconds: 1}, func(u protocol.MonitorUpdate) {
		got = append(got, u)
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "RoomA", got[0].Facility)
}

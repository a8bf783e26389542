// Package rpcclient implements the client's reliability engine: send,
// timeout, bounded retry with request-id reuse, reply demultiplexing, and
// the separate monitor receive loop (§4.6).
package rpcclient

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/Iyzyman/facilitybook/internal/protocol"
)

// ErrTimeout is returned when a call exhausts MaxAttempts without a
// matching reply. The caller cannot distinguish "never executed" from
// "executed but the reply was lost" — that ambiguity is inherent to
// at-least-once, and even under at-most-once only a fresh retry within the
// history TTL could resolve it (§4.6, §7).
var ErrTimeout = errors.New("timeout waiting for server reply")

// Options configures the reliability engine.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
}

// DefaultOptions matches §4.6's stated defaults.
func DefaultOptions() Options {
	return Options{Timeout: 5 * time.Second, MaxAttempts: 3}
}

// Client issues calls against one server over a connected UDP socket.
type Client struct {
	conn      *net.UDPConn
	opts      Options
	log       *slog.Logger
	nextReqID uint32
}

// Dial connects to serverAddr (host:port).
func Dial(serverAddr string, opts Options, log *slog.Logger) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial server: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Client{
		conn: conn,
		opts: opts,
		log:  log,
		// Random start avoids colliding with a previous process's ids
		// within the server's history TTL window (§4.6).
		nextReqID: rand.Uint32(),
	}, nil
}

// Close releases the underlying socket.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) allocateRequestID() uint32 {
	id := c.nextReqID
	c.nextReqID++
	return id
}

// Call sends req and returns the matching reply, retransmitting on timeout
// with the same request-id, up to Options.MaxAttempts transmissions in
// total (§4.6's
// IDLE -> SENT -> DONE|FAILED state machine). An ErrorReply from the server
// is returned as a Go error.
func (c *Client) Call(req protocol.Request) (protocol.Reply, error) {
	requestID := c.allocateRequestID()
	data := protocol.EncodeRequest(requestID, req)

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if _, err := c.conn.Write(data); err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		reply, err := c.awaitReply(req.OpCode(), c.opts.Timeout)
		switch {
		case err == nil:
			if errReply, ok := reply.(protocol.ErrorReply); ok {
				return nil, errReply
			}
			return reply, nil
		case errors.Is(err, ErrTimeout):
			lastErr = err
			c.log.Debug("timeout waiting for reply, retrying", "attempt", attempt, "request_id", requestID)
			continue
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

// awaitReply blocks up to timeout for a reply whose op code matches
// expectedOp (or is ERROR). Datagrams with any other op code — including
// MONITOR-UPDATE, which only belongs to the monitor receive loop — are
// discarded and waiting continues (§4.6 point 6).
func (c *Client) awaitReply(expectedOp uint8, timeout time.Duration) (protocol.Reply, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, protocol.MaxMessageBytes)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("read reply: %w", err)
		}
		reply, decodeErr := protocol.DecodeReply(buf[:n])
		if decodeErr != nil {
			c.log.Debug("discarding malformed datagram while awaiting reply", "error", decodeErr)
			continue
		}
		if reply.OpCode() != expectedOp && reply.OpCode() != protocol.OpError {
			c.log.Debug("discarding mismatched reply while awaiting reply", "got_op", protocol.OpName(reply.OpCode()), "want_op", protocol.OpName(expectedOp))
			continue
		}
		return reply, nil
	}
}

// Monitor sends MONITOR-REGISTER, then blocks for the full registration
// duration surfacing every MONITOR-UPDATE for the registered facility to
// onUpdate. No retransmission occurs in this mode (§4.6). Returns once the
// duration elapses or the socket errors.
func (c *Client) Monitor(req protocol.MonitorRegisterRequest, onUpdate func(protocol.MonitorUpdate)) error {
	if _, err := c.Call(req); err != nil {
		return fmt.Errorf("monitor register: %w", err)
	}

	deadline := time.Now().Add(time.Duration(req.DurationSeconds) * time.Second)
	buf := make([]byte, protocol.MaxMessageBytes)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return fmt.Errorf("read callback: %w", err)
		}
		reply, decodeErr := protocol.DecodeReply(buf[:n])
		if decodeErr != nil {
			continue
		}
		update, ok := reply.(protocol.MonitorUpdate)
		if !ok || update.Facility != req.Facility {
			continue
		}
		onUpdate(update)
	}
}

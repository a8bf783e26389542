// Package server implements the single-threaded receive loop that ties the
// wire codec, booking store, history cache and monitor registry together:
// loss simulation, semantics policy, and callback fan-out (§4.4).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/Iyzyman/facilitybook/internal/booking"
	"github.com/Iyzyman/facilitybook/internal/history"
	"github.com/Iyzyman/facilitybook/internal/monitor"
	"github.com/Iyzyman/facilitybook/internal/protocol"
	"github.com/google/uuid"
)

// udpConn is the subset of *net.UDPConn the dispatcher needs; satisfied by
// the real socket and by fakes in tests.
type udpConn interface {
	SetReadDeadline(t time.Time) error
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Dispatcher owns the UDP socket and every piece of server-side state. It
// is not safe for concurrent use: the whole design rests on a single
// goroutine driving Run (§5).
type Dispatcher struct {
	cfg      Config
	conn     udpConn
	store    *booking.Store
	history  *history.Cache
	monitors *monitor.Registry
	rng      *rand.Rand
	log      *slog.Logger
	metrics  *Metrics
	// addrByEndpoint recovers a *net.UDPAddr from the normalized string key
	// the monitor registry stores, since net.UDPConn sends need the typed
	// address rather than a string.
	addrByEndpoint map[string]*net.UDPAddr
}

// NewDispatcher builds a dispatcher from a validated config and an already
// bound UDP socket.
func NewDispatcher(cfg Config, conn udpConn, log *slog.Logger, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	return &Dispatcher{
		cfg:            cfg,
		conn:           conn,
		store:          booking.NewStore(cfg.Facilities, genConfirmationID),
		history:        history.New(),
		monitors:       monitor.New(),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		log:            log,
		metrics:        metrics,
		addrByEndpoint: make(map[string]*net.UDPAddr),
	}
}

func genConfirmationID() string {
	return "BKG-" + uuid.New().String()
}

func normalizeEndpoint(addr *net.UDPAddr) string {
	return fmt.Sprintf("%s|%d", addr.IP.String(), addr.Port)
}

// Run drives the receive loop until ctx is cancelled. It polls with a short
// read deadline so cancellation is observed promptly without a second
// goroutine (§5: "the server suspends only on datagram receive").
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, protocol.MaxMessageBytes)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		d.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("udp read: %w", err)
		}
		data := append([]byte(nil), buf[:n]...)
		d.handlePacket(data, addr)
	}
}

func (d *Dispatcher) handlePacket(data []byte, addr *net.UDPAddr) {
	endpoint := normalizeEndpoint(addr)
	d.addrByEndpoint[endpoint] = addr

	if d.rollLoss(d.cfg.RequestLoss) {
		d.metrics.RequestDropped()
		d.log.Info("dropped request (simulated loss)", "endpoint", endpoint)
		return
	}

	requestID, req, decodeErr := protocol.DecodeRequest(data)
	if decodeErr != nil {
		d.log.Warn("malformed request", "endpoint", endpoint, "error", decodeErr)
		d.sendUncached(addr, decodeErr.(protocol.ErrorReply))
		return
	}
	d.log.Info("received request", "endpoint", endpoint, "op", protocol.OpName(req.OpCode()), "request_id", requestID)

	if mr, ok := req.(protocol.MonitorRegisterRequest); ok {
		d.handleMonitorRegister(endpoint, addr, requestID, mr)
		return
	}

	key := history.Key{Endpoint: endpoint, RequestID: requestID}
	if d.cfg.Semantics == AtMostOnce {
		if cached, hit := d.history.Lookup(key); hit {
			d.metrics.CacheHit()
			d.log.Info("duplicate request, replaying cached reply", "endpoint", endpoint, "request_id", requestID)
			d.sendRaw(addr, cached, true)
			return
		}
	}

	reply, changed := d.execute(req)
	replyBytes := protocol.EncodeReply(reply)

	if d.cfg.Semantics == AtMostOnce {
		d.history.Store(key, replyBytes)
	}

	d.metrics.RequestServed(protocol.OpName(req.OpCode()))
	d.sendRaw(addr, replyBytes, true)

	for _, facility := range changed {
		d.fanOut(facility)
	}
}

// execute runs req against the booking store and returns the reply to send
// plus the set of facilities whose free-interval view changed (§4.2's
// "notification set").
func (d *Dispatcher) execute(req protocol.Request) (protocol.Reply, []string) {
	switch r := req.(type) {
	case protocol.QueryRequest:
		free, err := d.store.Query(r.Facility, r.Days)
		if err != nil {
			return errorReply(err), nil
		}
		return protocol.QueryReply{Free: free}, nil

	case protocol.BookRequest:
		id, err := d.store.Book(r.Facility, r.Start, r.End)
		if err != nil {
			return errorReply(err), nil
		}
		return protocol.BookReply{ConfirmationID: id}, []string{r.Facility}

	case protocol.ChangeRequest:
		facility, err := d.store.Change(r.ConfirmationID, r.OffsetMinutes)
		if err != nil {
			return errorReply(err), nil
		}
		return protocol.ChangeReply{}, []string{facility}

	case protocol.ExtendRequest:
		facility, err := d.store.Extend(r.ConfirmationID, r.ExtraMinutes)
		if err != nil {
			return errorReply(err), nil
		}
		return protocol.ExtendReply{}, []string{facility}

	case protocol.CancelRequest:
		facility, err := d.store.Cancel(r.ConfirmationID)
		if err != nil {
			return errorReply(err), nil
		}
		return protocol.CancelReply{}, []string{facility}

	default:
		return protocol.ErrorReply{Code: protocol.ErrUnknownOp, Detail: "unsupported operation"}, nil
	}
}

func (d *Dispatcher) handleMonitorRegister(endpoint string, addr *net.UDPAddr, requestID uint32, req protocol.MonitorRegisterRequest) {
	if !d.store.FacilityExists(req.Facility) {
		reply := protocol.ErrorReply{Code: protocol.ErrNotFound, Detail: fmt.Sprintf("facility %q not found", req.Facility)}
		d.sendRaw(addr, protocol.EncodeReply(reply), true)
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	d.monitors.Register(endpoint, req.Facility, duration)
	d.metrics.RequestServed(protocol.OpName(req.OpCode()))

	ack := protocol.EncodeReply(protocol.MonitorRegisterReply{})
	d.sendRaw(addr, ack, true)

	// Immediate snapshot so the subscriber doesn't wait for the next
	// unrelated mutation to learn the facility's current state (§4.5).
	free, err := d.store.Query(req.Facility, allDays())
	if err != nil {
		return
	}
	snapshot := protocol.EncodeReply(protocol.MonitorUpdate{Facility: req.Facility, Free: free})
	d.sendRaw(addr, snapshot, true)
}

func (d *Dispatcher) fanOut(facility string) {
	d.monitors.FanOut(facility, d.sendToEndpoint, func() []byte {
		free, err := d.store.Query(facility, allDays())
		if err != nil {
			free = nil
		}
		d.metrics.CallbackSent()
		return protocol.EncodeReply(protocol.MonitorUpdate{Facility: facility, Free: free})
	})
}

// sendToEndpoint adapts the registry's string-keyed Sender to the typed
// UDP address the socket actually needs, and applies reply-loss simulation
// (callbacks count as server-originated datagrams, §4.5).
func (d *Dispatcher) sendToEndpoint(endpoint string, payload []byte) error {
	addr, ok := d.addrByEndpoint[endpoint]
	if !ok {
		return fmt.Errorf("no known address for endpoint %s", endpoint)
	}
	return d.sendRaw(addr, payload, true)
}

// sendRaw transmits payload to addr. If applyLoss is true the reply-loss
// gate may silently drop it; every caller, uncached protocol errors
// included, passes true.
func (d *Dispatcher) sendRaw(addr *net.UDPAddr, payload []byte, applyLoss bool) error {
	if applyLoss && d.rollLoss(d.cfg.ReplyLoss) {
		d.metrics.ReplyDropped()
		d.log.Info("dropped outgoing datagram (simulated loss)", "endpoint", normalizeEndpoint(addr))
		return nil
	}
	_, err := d.conn.WriteToUDP(payload, addr)
	if err != nil {
		d.log.Warn("send failed", "endpoint", normalizeEndpoint(addr), "error", err)
		return err
	}
	return nil
}

func (d *Dispatcher) sendUncached(addr *net.UDPAddr, reply protocol.ErrorReply) {
	d.sendRaw(addr, protocol.EncodeReply(reply), true)
}

func (d *Dispatcher) rollLoss(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return d.rng.Float64() < p
}

func errorReply(err error) protocol.ErrorReply {
	var bErr *booking.Error
	if errors.As(err, &bErr) {
		return protocol.ErrorReply{Code: bErr.Code, Detail: bErr.Detail}
	}
	return protocol.ErrorReply{Code: protocol.ErrInternal, Detail: err.Error()}
}

func allDays() []uint8 {
	return []uint8{0, 1, 2, 3, 4, 5, 6}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
	"github.com/gridx-network/gridx-coordinator/pkg/wire"
)

const (
	// writeWait bounds every write to the connection, pings and close
	// frames included.
	writeWait = 10 * time.Second

	// outBufferSize is the write pump's frame backlog. A worker holds at
	// most one assignment at a time, so a saturated buffer means the peer
	// stopped reading and the send is reported as failed.
	outBufferSize = 16

	maxIPLength = 255
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("session send buffer full")
)

// closeFrame asks the write pump to emit a close control frame and stop.
type closeFrame struct {
	code   int
	reason string
}

// session is one live worker connection. The read loop runs on the HTTP
// handler goroutine and the write pump owns every write to the conn, so no
// two goroutines ever write concurrently. Send only touches the pump's
// channel, which is what lets the dispatcher call it under its own mutex.
type session struct {
	hub  *Hub
	conn *websocket.Conn

	// workerID and ownerID are set once by the hello handshake and only
	// read by the read loop afterwards.
	workerID string
	ownerID  string

	out       chan any
	closed    chan struct{}
	closeOnce sync.Once
	pumpDone  chan struct{}
}

var _ registry.Session = (*session)(nil)

func newSession(hub *Hub, conn *websocket.Conn) *session {
	return &session{
		hub:      hub,
		conn:     conn,
		out:      make(chan any, outBufferSize),
		closed:   make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Send queues v for the write pump without ever blocking on the network.
// When the session is closed or the pump is saturated it returns an error
// and the caller treats the frame as undeliverable.
func (s *session) Send(v any) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}

	select {
	case s.out <- v:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// run reads frames until the connection dies, walking the session through
// its states: await-hello, then authenticated until the read fails, then
// teardown.
func (s *session) run(ctx context.Context) {
	s.conn.SetReadLimit(wire.MaxFrameSize)
	s.conn.SetPongHandler(func(string) error {
		// the deadline armed by the last ping is met; disarm until the next
		return s.conn.SetReadDeadline(time.Time{})
	})

	go s.writePump()
	defer s.teardown(ctx)

	peerIP := remoteIP(s.conn)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Ctx(ctx).Debugf("worker channel read: %v", err)
			}
			return
		}

		var envelope wire.Envelope
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr != nil {
			continue
		}
		if !envelope.Type.FromWorker() {
			continue
		}

		if s.workerID == "" {
			// pre-hello frames other than hello are ignored
			if envelope.Type != wire.MessageTypeHello {
				continue
			}
			if !s.handleHello(ctx, raw, peerIP) {
				return
			}
			continue
		}

		if envelope.Type == wire.MessageTypeHello {
			log.Ctx(ctx).Debugf("ignoring duplicate hello from worker %s", s.workerID)
			continue
		}

		s.touchLiveness(ctx)

		switch envelope.Type {
		case wire.MessageTypeHeartbeat:
			// the liveness refresh above is the whole point of hb

		case wire.MessageTypeJobStarted:
			var msg wire.JobStarted
			if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil || msg.JobID == "" {
				continue
			}
			s.hub.dispatcher.OnStarted(ctx, msg.JobID)

		case wire.MessageTypeJobLog:
			var msg wire.JobLog
			if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil {
				continue
			}
			log.Ctx(ctx).Debugf("job %s %s: %d bytes of live output", msg.JobID, msg.Stream, len(msg.Chunk))

		case wire.MessageTypeJobResult:
			var msg wire.JobResult
			if jsonErr := json.Unmarshal(raw, &msg); jsonErr != nil || msg.JobID == "" {
				continue
			}
			// the session's own worker id is authoritative; the payload
			// carries none and would not be trusted if it did
			s.hub.dispatcher.OnResult(ctx, msg.JobID, s.workerID, int64(msg.ExitCode), msg.Stdout, msg.Stderr, msg.DurationSeconds)
		}
	}
}

// handleHello authenticates the first hello and registers the worker. A
// false return ends the session; any reject frames are already queued for
// the pump.
func (s *session) handleHello(ctx context.Context, raw []byte, peerIP string) bool {
	var hello wire.Hello
	if err := json.Unmarshal(raw, &hello); err != nil {
		log.Ctx(ctx).Debugf("ignoring malformed hello: %v", err)
		return true
	}

	workerID, rejectReason := s.hub.resolveHello(ctx, hello)
	if rejectReason != "" {
		s.hub.countSession(ctx, monitor.SessionEventAuthFailed)
		_ = s.Send(wire.NewAuthError(rejectReason))
		_ = s.Send(closeFrame{code: wire.CloseAuthFailure, reason: "Authentication failed"})
		return false
	}

	caps := data.JSONMap(hello.Caps)
	if caps == nil {
		caps = data.JSONMap{"cpu_cores": 0, "gpu": false}
	}
	s.workerID = workerID
	s.ownerID = strings.TrimSpace(hello.OwnerID)

	s.hub.registry.Register(workerID, s, caps, s.ownerID)

	if _, err := s.hub.models.Workers.Upsert(ctx, data.Worker{
		ID:        workerID,
		OwnerID:   s.ownerID,
		IP:        peerIP,
		Caps:      caps,
		Status:    data.IdleWorkerStatus,
		AuthToken: strings.TrimSpace(hello.AuthToken),
	}); err != nil {
		log.Ctx(ctx).Errorf("persisting worker %s on hello: %v", workerID, err)
		return false
	}

	if err := s.Send(wire.NewHelloAck(workerID)); err != nil {
		log.Ctx(ctx).Warnf("worker %s went away during handshake: %v", workerID, err)
		return false
	}

	log.Ctx(ctx).Infof("🔌 worker %s connected (owner: %s)", workerID, s.ownerID)
	s.hub.countSession(ctx, monitor.SessionEventConnected)
	s.hub.dispatcher.Kick()
	return true
}

// touchLiveness refreshes the in-memory last-seen and mirrors the session's
// current status to the store, which doubles as the heartbeat the watchdog
// checks.
func (s *session) touchLiveness(ctx context.Context) {
	s.hub.registry.Touch(s.workerID)

	status := data.IdleWorkerStatus
	if entry, ok := s.hub.registry.Get(s.workerID); ok {
		status = entry.Status
	}
	if err := s.hub.models.Workers.SetStatus(ctx, s.workerID, status); err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		log.Ctx(ctx).Errorf("mirroring status of worker %s: %v", s.workerID, err)
	}
}

// teardown runs exactly once when the read loop exits: flush and stop the
// write pump, then pull the worker out of rotation and rescue its running
// jobs. The detached context keeps the store writes alive after the peer's
// request context is canceled.
func (s *session) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.close()
	<-s.pumpDone
	_ = s.conn.Close()

	if s.workerID == "" {
		return
	}

	s.hub.registry.Unregister(s.workerID)
	if err := s.hub.models.Workers.SetOffline(ctx, s.workerID); err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		log.Ctx(ctx).Errorf("marking worker %s offline: %v", s.workerID, err)
	}
	s.hub.dispatcher.OnWorkerGone(ctx, s.workerID, monitor.RequeueReasonDisconnect)
	s.hub.countSession(ctx, monitor.SessionEventClosed)
	log.Ctx(ctx).Infof("✗ worker %s disconnected", s.workerID)
}

// writePump owns all writes to the connection: queued frames, the periodic
// ping and the final close frame. The ping timer resets whenever a frame
// goes out, so only quiet connections get pinged; after a ping the read
// deadline is armed and the pong handler clears it again.
func (s *session) writePump() {
	defer close(s.pumpDone)

	pingTimer := time.NewTimer(wire.PingInterval)
	defer pingTimer.Stop()

	for {
		select {
		case v := <-s.out:
			if !s.writeFrame(v) {
				return
			}
			resetTimer(pingTimer, wire.PingInterval)

		case <-pingTimer.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(wire.PongWait))
			pingTimer.Reset(wire.PingInterval)

		case <-s.closed:
			// flush frames queued before the close, then stop
			for {
				select {
				case v := <-s.out:
					if !s.writeFrame(v) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// writeFrame writes one queued item. Returns false when the pump must stop:
// after a close frame or a failed write.
func (s *session) writeFrame(v any) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if frame, ok := v.(closeFrame); ok {
		msg := websocket.FormatCloseMessage(frame.code, frame.reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return false
	}

	if err := s.conn.WriteJSON(v); err != nil {
		log.Debugf("worker channel write: %v", err)
		return false
	}
	return true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// remoteIP extracts the peer address without the port.
func remoteIP(conn *websocket.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return utils.SanitizeString(addr, maxIPLength)
}

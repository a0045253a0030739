package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// State is the session lifecycle. A connection that fails identity or
// membership checks goes straight to Closed without reaching Active.
type State int

const (
	Connecting State = iota
	Active
	Closed
)

// Session binds one authenticated identity to its subscribed broadcast
// channels. The context fields are populated once at connect time and
// never mutated afterwards; only the state transitions.
type Session struct {
	conn *websocket.Conn
	bus  *bus.Bus
	sub  *bus.Subscription

	user *models.User

	// Channels this session is subscribed to.
	channels []string

	// dispatch handles one inbound envelope; nil for receive-only routes.
	dispatch func(env Envelope)

	// onClose runs exactly once on every termination path.
	onClose func()

	mu    sync.Mutex
	state State
	once  sync.Once
	done  chan struct{}
}

func newSession(conn *websocket.Conn, b *bus.Bus, user *models.User) *Session {
	return &Session{
		conn:  conn,
		bus:   b,
		sub:   bus.NewSubscription(sendBuffer),
		user:  user,
		state: Connecting,
		done:  make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// activate subscribes the session to its channels and transitions to
// Active. Subscription only ever happens here, after all checks passed.
func (s *Session) activate(channels ...string) {
	s.channels = channels
	for _, ch := range channels {
		s.bus.Subscribe(ch, s.sub)
	}
	s.mu.Lock()
	s.state = Active
	s.mu.Unlock()
}

// close runs the cleanup exactly once: unsubscribe everything, run the
// route-specific teardown, drop the connection.
func (s *Session) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()

		for _, ch := range s.channels {
			s.bus.Unsubscribe(ch, s.sub)
		}
		if s.onClose != nil {
			s.onClose()
		}
		close(s.done)
		_ = s.conn.Close()
	})
}

// run starts both pumps and blocks until the connection dies.
func (s *Session) run() {
	go s.writePump()
	s.readPump()
}

// readPump consumes inbound frames and dispatches valid envelopes.
// Malformed payloads are dropped, logged, and never close the
// connection; the cleanup in the deferred close covers every exit path.
func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read from user %d: %v", s.user.ID, err)
			}
			return
		}
		if s.State() != Active || s.dispatch == nil {
			continue
		}
		env, ok := parseEnvelope(raw)
		if !ok {
			log.Printf("ws: dropping malformed frame from user %d", s.user.ID)
			continue
		}
		s.dispatch(env)
	}
}

// writePump forwards bus events to the socket and keeps it alive with
// pings. Event payloads are already fully shaped outbound frames.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case evt := <-s.sub.Events():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, evt.Payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// sendDirect writes a frame to this session only, bypassing the bus.
// Used for the initial notification snapshot on connect.
func (s *Session) sendDirect(evt bus.Event) {
	s.sub.Deliver(evt)
}

package network

import (
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/davedevils/KartNChibi-sub000/protocol"
)

// HandshakeState tracks where a connection is in the login flow. Most
// commands are only dispatched once the session has passed AwaitingAuth.
type HandshakeState int

const (
	StateInitial HandshakeState = iota
	StateAwaitingAuth
	StateAwaitingCharacterCreation
	StateChannelListSent
	StateRedirected
)

const (
	readBufferSize = 4096
	sendQueueSize  = 256
)

// Session is the server-side object for one live TCP connection. Ids are
// handed out by the server from a process-lifetime counter and never
// reused; a reconnect is a brand-new Session. Terminal once stopped.
type Session struct {
	id   uint32
	conn net.Conn
	log  zerolog.Logger

	onPacket func(*Session, *protocol.Packet) // set by the server before Run
	onClose  func(*Session)

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// receive accumulator, touched only by the read loop
	recvBuf []byte

	mu          sync.Mutex
	connected   bool
	state       HandshakeState
	accountID   uint32
	characterID uint32
	roomID      uint32
}

func NewSession(id uint32, conn net.Conn, log zerolog.Logger) *Session {
	return &Session{
		id:        id,
		conn:      conn,
		log:       log.With().Str("category", "network").Uint32("session", id).Logger(),
		sendCh:    make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		connected: true,
		state:     StateInitial,
	}
}

func (s *Session) ID() uint32 {
	return s.id
}

func (s *Session) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) State() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st HandshakeState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) AccountID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

func (s *Session) SetAccountID(id uint32) {
	s.mu.Lock()
	s.accountID = id
	s.mu.Unlock()
}

func (s *Session) CharacterID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.characterID
}

func (s *Session) SetCharacterID(id uint32) {
	s.mu.Lock()
	s.characterID = id
	s.mu.Unlock()
}

// RoomID is 0 while the session is not in a room.
func (s *Session) RoomID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) SetRoomID(id uint32) {
	s.mu.Lock()
	s.roomID = id
	s.mu.Unlock()
}

// Run drives the session: a write pump goroutine drains the send queue one
// buffer at a time, and the calling goroutine reads until the connection
// dies or a protocol violation kills it.
func (s *Session) Run() {
	go s.writePump()
	s.readLoop()
	s.Stop()
}

// Send enqueues an already-serialized frame. Wire order matches enqueue
// order; the write pump has at most one write in flight. A full queue drops
// the frame rather than blocking a handler.
func (s *Session) Send(data []byte) {
	select {
	case <-s.done:
	case s.sendCh <- data:
	default:
		s.log.Warn().Msg("send queue full, dropping frame")
	}
}

// SendPacket serializes and enqueues.
func (s *Session) SendPacket(pkt *protocol.Packet) {
	s.Send(pkt.Serialize())
}

// Stop is idempotent. It closes the socket, abandons queued writes and
// invokes the disconnect callback inline; the callback cascades into room
// removal and anti-cheat cleanup.
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()

		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
		if s.onClose != nil {
			s.onClose(s)
		}
		s.log.Debug().Msg("session stopped")
	})
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.sendCh:
			if _, err := s.conn.Write(data); err != nil {
				s.Stop()
				return
			}
		}
	}
}

func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if !s.feed(buf[:n]) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// feed appends freshly read bytes to the accumulator and drains every
// complete frame from its front, dispatching each in wire order. A declared
// payload size of zero or beyond the frame cap is a fatal protocol
// violation: the session stops immediately and the rest of the buffer is
// never looked at. Returns false when the stream is dead.
func (s *Session) feed(data []byte) bool {
	s.recvBuf = append(s.recvBuf, data...)

	for {
		total, ok := protocol.PeekSize(s.recvBuf)
		if !ok {
			return true
		}
		if total == protocol.HeaderSize || total > protocol.MaxFrameSize {
			s.log.Warn().Int("declared", total).Msg("malformed frame size, killing session")
			s.Stop()
			return false
		}
		pkt, valid := protocol.Parse(s.recvBuf)
		if !valid {
			s.Stop()
			return false
		}
		if pkt == nil {
			return true
		}
		s.recvBuf = s.recvBuf[total:]
		if s.onPacket != nil {
			s.onPacket(s, pkt)
		}
	}
}

package network

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davedevils/KartNChibi-sub000/anticheat"
	"github.com/davedevils/KartNChibi-sub000/crypto"
	"github.com/davedevils/KartNChibi-sub000/game"
	"github.com/davedevils/KartNChibi-sub000/protocol"
	"github.com/davedevils/KartNChibi-sub000/storage"
)

// Store is what the server core needs from persistence. Everything is
// fallible: a failed call degrades to "no data", it never crashes the
// server or corrupts in-memory state.
type Store interface {
	anticheat.ViolationStore

	GetAccountByUsername(ctx context.Context, username string) (storage.Account, error)
	GetCharacterByAccount(ctx context.Context, accountID uint32) (storage.Character, error)
	CreateCharacter(ctx context.Context, accountID uint32, name string) (storage.Character, error)
	GetVehicles(ctx context.Context, accountID uint32) ([]storage.Vehicle, error)
	GetItems(ctx context.Context, accountID uint32) ([]storage.Item, error)
	EquipVehicle(ctx context.Context, accountID, vehicleID uint32) error
	EquipItem(ctx context.Context, accountID, itemID uint32, slot uint8) error
	PurchaseItem(ctx context.Context, accountID, templateID uint32, price int64) error
	IsAccountBanned(ctx context.Context, accountID uint32) (bool, error)
	IsIPBanned(ctx context.Context, ip string) (bool, error)
	InsertBan(ctx context.Context, id string, accountID uint32, ip, reason string, until time.Time) error
	SaveGhost(ctx context.Context, accountID, mapID uint32, lapTimeMs int64, data []byte) error
	BestGhost(ctx context.Context, mapID uint32) (storage.Ghost, error)
	LicenseLevel(ctx context.Context, accountID uint32) (uint8, error)
	AdvanceLicense(ctx context.Context, accountID uint32, level uint8) error
	CompleteMission(ctx context.Context, accountID, missionID uint32) error
}

type handlerFunc func(*Server, *Session, *protocol.Packet)

type handlerEntry struct {
	fn handlerFunc

	// alwaysAllowed commands (heartbeat, disconnect) skip every gate
	alwaysAllowed bool
	// minimum handshake state the session must have reached
	minState HandshakeState
	// requireRoom additionally demands room membership
	requireRoom bool
}

// Server accepts connections, owns the session and room registries and
// routes parsed packets to handlers by extended opcode.
type Server struct {
	addr      string
	log       zerolog.Logger
	store     Store
	validator *anticheat.Validator
	tokens    *crypto.JWTManager
	hasher    *crypto.Argon2idHasher
	channels  []ChannelInfo
	tickers   game.TickerFactory

	nextSessionID atomic.Uint32
	nextRoomID    atomic.Uint32

	// guards both registries and the temp-ban set; never held while a
	// race context lock is taken
	mu       sync.Mutex
	sessions map[uint32]*Session
	rooms    map[uint32]*game.Room
	tempBans map[string]time.Time // ip -> expiry

	handlers map[uint16]handlerEntry

	ln     net.Listener
	closed atomic.Bool
}

// ChannelInfo is one entry of the channel list sent after login.
type ChannelInfo struct {
	ID   uint8
	Name string
	Load uint8
}

func NewServer(addr string, store Store, tokens *crypto.JWTManager, hasher *crypto.Argon2idHasher, acCfg anticheat.Config, log zerolog.Logger) *Server {
	s := &Server{
		addr:     addr,
		log:      log.With().Str("category", "network").Logger(),
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		tickers:  game.NewTickerGen(),
		sessions: map[uint32]*Session{},
		rooms:    map[uint32]*game.Room{},
		tempBans: map[string]time.Time{},
		channels: []ChannelInfo{
			{ID: 1, Name: "Chibi-1", Load: 0},
			{ID: 2, Name: "Chibi-2", Load: 0},
		},
	}
	s.validator = anticheat.NewValidator(acCfg, store, s, log)
	s.registerHandlers()
	return s
}

// Validator exposes the anti-cheat state, e.g. for violation lookups.
func (s *Server) Validator() *anticheat.Validator {
	return s.validator
}

// ListenAndServe blocks on the accept loop until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info().Str("addr", s.addr).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}
		s.acceptConn(conn)
	}
}

// acceptConn applies the ban gate before a Session is even constructed.
func (s *Server) acceptConn(conn net.Conn) {
	ip := hostOnly(conn.RemoteAddr().String())
	if s.ipBanned(ip) {
		s.log.Info().Str("ip", ip).Msg("rejected banned address")
		conn.Close()
		return
	}

	sess := NewSession(s.nextSessionID.Add(1), conn, s.log)
	sess.onPacket = s.dispatch
	sess.onClose = s.handleDisconnect

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	sess.SetState(StateAwaitingAuth)
	go sess.Run()
}

func (s *Server) ipBanned(ip string) bool {
	s.mu.Lock()
	until, tempBanned := s.tempBans[ip]
	if tempBanned && time.Now().After(until) {
		delete(s.tempBans, ip)
		tempBanned = false
	}
	s.mu.Unlock()
	if tempBanned {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	banned, err := s.store.IsIPBanned(ctx, ip)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", ip).Msg("ban lookup failed, letting connection through")
		return false
	}
	return banned
}

// Close stops the listener and every live session.
func (s *Server) Close() {
	s.closed.Store(true)
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Stop()
	}
}

// Session resolves a session id through the registry. Handlers pass ids
// around, never long-lived pointers across goroutines.
func (s *Server) Session(id uint32) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Room resolves a room id through the registry.
func (s *Server) Room(id uint32) (*game.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *Server) createRoom(settings game.RoomSettings) *game.Room {
	r := game.NewRoom(s.nextRoomID.Add(1), settings, s.log)
	s.mu.Lock()
	s.rooms[r.ID()] = r
	s.mu.Unlock()
	return r
}

func (s *Server) removeRoom(id uint32) {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
}

// dispatch routes one parsed packet. Unknown commands are logged and
// ignored; a command arriving in the wrong session state is rejected
// without being acted on. Both leave the connection alive.
func (s *Server) dispatch(sess *Session, pkt *protocol.Packet) {
	if !s.validator.ValidatePacketRate(sess.ID()) {
		return
	}

	entry, known := s.handlers[pkt.Opcode()]
	if !known {
		s.log.Debug().
			Uint32("session", sess.ID()).
			Uint16("opcode", pkt.Opcode()).
			Msg("unknown command, ignoring")
		return
	}

	if !entry.alwaysAllowed {
		if sess.State() < entry.minState {
			s.log.Debug().
				Uint32("session", sess.ID()).
				Uint16("opcode", pkt.Opcode()).
				Msg("command rejected in current handshake state")
			return
		}
		if entry.requireRoom && sess.RoomID() == 0 {
			return
		}
	}

	entry.fn(s, sess, pkt)
}

// handleDisconnect runs inline from Session.Stop and cascades the teardown:
// room membership, race state, registry entry, anti-cheat state.
func (s *Server) handleDisconnect(sess *Session) {
	if roomID := sess.RoomID(); roomID != 0 {
		s.leaveRoom(sess, roomID)
	}

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	s.validator.ClearViolations(sess.ID())
}

// --- anticheat.Enforcer ---

func (s *Server) Warn(sessionID uint32, message string) {
	if sess, ok := s.Session(sessionID); ok {
		pkt := protocol.NewExtPacket(protocol.CmdRaceWarning)
		pkt.WriteWString(message)
		sess.SendPacket(pkt)
	}
}

func (s *Server) Kick(sessionID uint32, message string) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return
	}
	pkt := protocol.NewExtPacket(protocol.CmdKickNotice)
	pkt.WriteWString(message)
	sess.SendPacket(pkt)
	sess.Stop()
}

// TempBan records the ban for the address and account, then drops the
// connection. The in-memory set backs the accept-time gate between the
// database write and its visibility.
func (s *Server) TempBan(sessionID uint32, message string) {
	sess, ok := s.Session(sessionID)
	if !ok {
		return
	}

	ip := hostOnly(sess.RemoteAddr())
	until := time.Now().Add(24 * time.Hour)
	s.mu.Lock()
	s.tempBans[ip] = until
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.InsertBan(ctx, newBanID(), sess.AccountID(), ip, message, until); err != nil {
		s.log.Error().Err(err).Uint32("session", sessionID).Msg("failed to persist ban")
	}

	pkt := protocol.NewExtPacket(protocol.CmdKickNotice)
	pkt.WriteWString(message)
	sess.SendPacket(pkt)
	sess.Stop()
}

func newBanID() string {
	return uuid.NewString()
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

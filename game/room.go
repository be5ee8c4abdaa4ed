package game

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/davedevils/KartNChibi-sub000/protocol"
)

type RoomState int

const (
	RoomWaiting RoomState = iota
	RoomStarting
	RoomLoading
	RoomRacing
	RoomResults
)

type Mode uint8

const (
	ModeItem Mode = iota
	ModeSpeed
	ModeTeam
	ModeTutorial
)

const maxSlots = 8

// Sender is the slice of a session a room is allowed to touch. Rooms never
// hold the connection itself, only the id and the send queue.
type Sender interface {
	ID() uint32
	Send(data []byte)
}

type RoomSettings struct {
	Name       string
	Password   string
	Mode       Mode
	MaxPlayers int
	MapID      uint32
	Laps       int
	Private    bool
	TeamPlay   bool
}

// RoomPlayer is the per-member lobby state, keyed by session id.
type RoomPlayer struct {
	Slot              int
	Team              uint8
	Ready             bool
	IsHost            bool
	Name              string
	CharacterID       uint32
	VehicleTemplateID uint32
}

// Room owns membership and the lobby-side lifecycle. members keeps join
// order (host handoff is front-of-list); players carries per-member state.
type Room struct {
	id       uint32
	settings RoomSettings
	log      zerolog.Logger

	mu      sync.Mutex
	state   RoomState
	members []Sender
	players map[uint32]*RoomPlayer
	race    *Race
}

func NewRoom(id uint32, settings RoomSettings, log zerolog.Logger) *Room {
	if settings.MaxPlayers <= 0 || settings.MaxPlayers > maxSlots {
		settings.MaxPlayers = maxSlots
	}
	return &Room{
		id:       id,
		settings: settings,
		log:      log.With().Str("category", "room").Uint32("room", id).Logger(),
		state:    RoomWaiting,
		players:  map[uint32]*RoomPlayer{},
	}
}

func (r *Room) ID() uint32 {
	return r.id
}

func (r *Room) Settings() RoomSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings replaces the room settings. Only valid while waiting.
func (r *Room) UpdateSettings(s RoomSettings) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomWaiting {
		return false
	}
	if s.MaxPlayers <= 0 || s.MaxPlayers > maxSlots {
		s.MaxPlayers = maxSlots
	}
	if s.MaxPlayers < len(r.members) {
		return false
	}
	r.settings = s
	return true
}

func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) SetState(s RoomState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Player returns a copy of the member's lobby state.
func (r *Room) Player(sessionID uint32) (RoomPlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[sessionID]
	if !ok {
		return RoomPlayer{}, false
	}
	return *p, true
}

// AddPlayer admits a session, assigning the lowest free slot. The first
// member becomes host. Fails when the room is full.
func (r *Room) AddPlayer(s Sender, characterID uint32, name string, vehicleTemplateID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= r.settings.MaxPlayers {
		return false
	}
	if _, dup := r.players[s.ID()]; dup {
		return false
	}

	r.members = append(r.members, s)
	r.players[s.ID()] = &RoomPlayer{
		Slot:              r.lowestFreeSlot(),
		IsHost:            len(r.members) == 1,
		Name:              name,
		CharacterID:       characterID,
		VehicleTemplateID: vehicleTemplateID,
	}
	return true
}

// lowestFreeSlot scans occupied slots and returns the first free index.
// Caller holds the lock. Slot 0 is the last-resort fallback for an already
// inconsistent room.
func (r *Room) lowestFreeSlot() int {
	var used [maxSlots]bool
	for _, p := range r.players {
		if p.Slot >= 0 && p.Slot < maxSlots {
			used[p.Slot] = true
		}
	}
	for i := 0; i < maxSlots; i++ {
		if !used[i] {
			return i
		}
	}
	return 0
}

// RemovePlayer drops a member. If the host left and the room is non-empty,
// the now-first member inherits the host flag. Returns the new host's
// session id (0 if unchanged) and whether the room is now empty.
func (r *Room) RemovePlayer(sessionID uint32) (newHost uint32, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[sessionID]
	if !ok {
		return 0, len(r.members) == 0
	}
	wasHost := p.IsHost
	delete(r.players, sessionID)

	for i, m := range r.members {
		if m.ID() == sessionID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}

	if len(r.members) == 0 {
		return 0, true
	}
	if wasHost {
		front := r.members[0].ID()
		if fp, ok := r.players[front]; ok {
			fp.IsHost = true
		}
		return front, false
	}
	return 0, false
}

func (r *Room) SetPlayerReady(sessionID uint32, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.Ready = ready
	}
}

func (r *Room) SetPlayerTeam(sessionID uint32, team uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.Team = team
	}
}

func (r *Room) IsHost(sessionID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[sessionID]
	return ok && p.IsHost
}

// CanStart reports whether the race may begin: the room must be waiting,
// tutorial mode needs one player, every other mode needs at least two
// members with all non-host members ready. The host is exempt from the
// ready requirement.
func (r *Room) CanStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomWaiting {
		return false
	}
	if r.settings.Mode == ModeTutorial {
		return len(r.members) >= 1
	}
	if len(r.members) < 2 {
		return false
	}
	for _, p := range r.players {
		if !p.IsHost && !p.Ready {
			return false
		}
	}
	return true
}

// Broadcast serializes once and fans the frame out to every member present
// at call time, in member order.
func (r *Room) Broadcast(pkt *protocol.Packet) {
	r.BroadcastExcept(pkt, 0)
}

// BroadcastExcept skips the named session. Session ids start at 1, so 0
// excludes nobody.
func (r *Room) BroadcastExcept(pkt *protocol.Packet, exceptID uint32) {
	data := pkt.Serialize()
	r.mu.Lock()
	members := make([]Sender, len(r.members))
	copy(members, r.members)
	r.mu.Unlock()

	for _, m := range members {
		if m.ID() == exceptID {
			continue
		}
		m.Send(data)
	}
}

// Members returns a snapshot of the member list in join order.
func (r *Room) Members() []Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sender, len(r.members))
	copy(out, r.members)
	return out
}

// Race returns the active race context, if any.
func (r *Room) Race() *Race {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.race
}

func (r *Room) setRace(race *Race) {
	r.mu.Lock()
	r.race = race
	r.mu.Unlock()
}

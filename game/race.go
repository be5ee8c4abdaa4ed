package game

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davedevils/KartNChibi-sub000/protocol"
)

type RaceState int

const (
	RaceNone RaceState = iota
	RaceCountdown
	RaceRacing
	RaceResults
)

// RaceValidator is the anti-cheat slice the race consults before trusting
// any race-relevant input.
type RaceValidator interface {
	ValidatePosition(sessionID uint32, x, y, z float64) bool
	ValidateLapTime(sessionID uint32, mapID uint32, lapTimeMs int64) bool
}

// TickerFactory lets tests drive the countdown by hand. The returned stop
// function releases the ticker once the countdown is over.
type TickerFactory interface {
	Create(d time.Duration) (<-chan time.Time, func())
}

type ticker struct{}

func (t ticker) Create(d time.Duration) (<-chan time.Time, func()) {
	tk := time.NewTicker(d)
	return tk.C, tk.Stop
}

func NewTickerGen() TickerFactory {
	return ticker{}
}

// RacePlayer is the per-race, per-player state. It exists only between race
// start and results; persistent character/vehicle data lives in storage.
type RacePlayer struct {
	SessionID uint32
	Rank      int
	Lap       int
	LastLapMs int64
	TotalMs   int64
	Finished  bool

	X, Y, Z   float32
	Rotation  float32
	UpdatedAt time.Time

	LapTimes []int64

	// mini-turbo sub-state: level only climbs while drifting, a boost
	// consumes it back to zero, and boosting excludes active drifting
	BoostLevel int
	Drifting   bool
	Boosting   bool
	BoostStart time.Time
	BoostCount int

	finishOrder int
}

// Race is the per-room race context. It has its own lock, held across every
// read-modify-write on the RacePlayer set, so concurrent packets from
// different players in one room cannot lose updates. Never taken together
// with the server registry lock.
type Race struct {
	room      *Room
	validator RaceValidator
	tickers   TickerFactory
	log       zerolog.Logger

	mu        sync.Mutex
	state     RaceState
	mapID     uint32
	laps      int
	players   map[uint32]*RacePlayer
	loaded    map[uint32]bool
	startedAt time.Time
	finishers int
	onEnd     func()
}

func NewRace(room *Room, validator RaceValidator, tickers TickerFactory, log zerolog.Logger) *Race {
	settings := room.Settings()
	laps := settings.Laps
	if laps <= 0 {
		laps = 3
	}
	race := &Race{
		room:      room,
		validator: validator,
		tickers:   tickers,
		log:       log.With().Str("category", "race").Uint32("room", room.ID()).Logger(),
		state:     RaceNone,
		mapID:     settings.MapID,
		laps:      laps,
		players:   map[uint32]*RacePlayer{},
		loaded:    map[uint32]bool{},
	}
	room.setRace(race)
	return race
}

func (rc *Race) State() RaceState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// OnEnd registers a callback invoked once after results are broadcast.
func (rc *Race) OnEnd(fn func()) {
	rc.mu.Lock()
	rc.onEnd = fn
	rc.mu.Unlock()
}

// Begin moves the room into loading and waits for every member to report
// LoadComplete before the countdown starts.
func (rc *Race) Begin() {
	rc.mu.Lock()
	for _, m := range rc.room.Members() {
		rc.loaded[m.ID()] = false
	}
	rc.mu.Unlock()

	rc.room.SetState(RoomLoading)
	pkt := protocol.NewExtPacket(protocol.CmdGameStart)
	pkt.WriteUint32(rc.mapID)
	pkt.WriteUint8(uint8(rc.laps))
	rc.room.Broadcast(pkt)
}

// MarkLoaded records one member's load completion. When the last member
// reports in, the countdown begins.
func (rc *Race) MarkLoaded(sessionID uint32) {
	rc.mu.Lock()
	if _, ok := rc.loaded[sessionID]; !ok {
		rc.mu.Unlock()
		return
	}
	rc.loaded[sessionID] = true
	for _, done := range rc.loaded {
		if !done {
			rc.mu.Unlock()
			return
		}
	}
	rc.mu.Unlock()
	rc.StartCountdown(3)
}

// StartCountdown creates one RacePlayer per member with lap, time and boost
// state reset, then ticks the countdown to the whole room.
func (rc *Race) StartCountdown(seconds int) {
	rc.mu.Lock()
	if rc.state != RaceNone {
		rc.mu.Unlock()
		return
	}
	rc.state = RaceCountdown
	rc.players = map[uint32]*RacePlayer{}
	for _, m := range rc.room.Members() {
		rc.players[m.ID()] = &RacePlayer{SessionID: m.ID(), Lap: 1}
	}
	rc.mu.Unlock()

	rc.room.SetState(RoomRacing)

	go func() {
		tick, stop := rc.tickers.Create(time.Second)
		defer stop()
		for i := seconds; i > 0; i-- {
			pkt := protocol.NewExtPacket(protocol.CmdCountdown)
			pkt.WriteUint8(uint8(i))
			rc.room.Broadcast(pkt)
			<-tick
		}
		rc.StartRace()
	}()
}

// StartRace flips the context into racing and stamps the shared start time.
func (rc *Race) StartRace() {
	rc.mu.Lock()
	if rc.state != RaceCountdown && rc.state != RaceNone {
		rc.mu.Unlock()
		return
	}
	if len(rc.players) == 0 {
		for _, m := range rc.room.Members() {
			rc.players[m.ID()] = &RacePlayer{SessionID: m.ID(), Lap: 1}
		}
	}
	rc.state = RaceRacing
	rc.startedAt = time.Now()
	rc.mu.Unlock()

	rc.room.Broadcast(protocol.NewExtPacket(protocol.CmdRaceStart))
}

// HandlePosition runs the update past the anti-cheat validator first; a
// rejected sample is dropped entirely, neither applied nor rebroadcast.
func (rc *Race) HandlePosition(sessionID uint32, x, y, z, rotation float32) bool {
	if !rc.validator.ValidatePosition(sessionID, float64(x), float64(y), float64(z)) {
		return false
	}

	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return false
	}
	p, ok := rc.players[sessionID]
	if !ok {
		rc.mu.Unlock()
		return false
	}
	p.X, p.Y, p.Z, p.Rotation = x, y, z, rotation
	p.UpdatedAt = time.Now()
	rc.mu.Unlock()

	pkt := protocol.NewExtPacket(protocol.CmdPosition)
	pkt.WriteUint32(sessionID)
	pkt.WriteFloat32(x)
	pkt.WriteFloat32(y)
	pkt.WriteFloat32(z)
	pkt.WriteFloat32(rotation)
	rc.room.BroadcastExcept(pkt, sessionID)
	return true
}

// HandleLapComplete validates the lap time against the map floor, records
// it and advances the lap counter. Completing the final lap marks the
// player finished; when everyone is done the race ends.
func (rc *Race) HandleLapComplete(sessionID uint32, lapTimeMs int64) bool {
	if !rc.validator.ValidateLapTime(sessionID, rc.mapID, lapTimeMs) {
		return false
	}

	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return false
	}
	p, ok := rc.players[sessionID]
	if !ok || p.Finished {
		rc.mu.Unlock()
		return false
	}

	p.LapTimes = append(p.LapTimes, lapTimeMs)
	p.LastLapMs = lapTimeMs
	p.TotalMs += lapTimeMs

	allDone := false
	if len(p.LapTimes) >= rc.laps {
		p.Finished = true
		rc.finishers++
		p.finishOrder = rc.finishers

		allDone = true
		for _, other := range rc.players {
			if !other.Finished {
				allDone = false
				break
			}
		}
	} else {
		p.Lap++
	}
	lap := p.Lap
	rc.mu.Unlock()

	pkt := protocol.NewExtPacket(protocol.CmdLapComplete)
	pkt.WriteUint32(sessionID)
	pkt.WriteUint8(uint8(lap))
	pkt.WriteUint64(uint64(lapTimeMs))
	rc.room.Broadcast(pkt)

	if allDone {
		rc.EndRace()
	}
	return true
}

// HandleItemPickup relays an item box pickup to the room.
func (rc *Race) HandleItemPickup(sessionID uint32, itemID uint32) {
	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return
	}
	_, ok := rc.players[sessionID]
	rc.mu.Unlock()
	if !ok {
		return
	}

	pkt := protocol.NewExtPacket(protocol.CmdItemPickup)
	pkt.WriteUint32(sessionID)
	pkt.WriteUint32(itemID)
	rc.room.BroadcastExcept(pkt, sessionID)
}

// HandleItemUse relays an item activation targeted at another racer.
func (rc *Race) HandleItemUse(sessionID uint32, itemID, targetID uint32) {
	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return
	}
	_, ok := rc.players[sessionID]
	rc.mu.Unlock()
	if !ok {
		return
	}

	pkt := protocol.NewExtPacket(protocol.CmdItemUse)
	pkt.WriteUint32(sessionID)
	pkt.WriteUint32(itemID)
	pkt.WriteUint32(targetID)
	rc.room.BroadcastExcept(pkt, sessionID)
}

// HandleItemHit relays an item impact on the reporting racer.
func (rc *Race) HandleItemHit(sessionID uint32, itemID uint32) {
	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return
	}
	_, ok := rc.players[sessionID]
	rc.mu.Unlock()
	if !ok {
		return
	}

	pkt := protocol.NewExtPacket(protocol.CmdItemHit)
	pkt.WriteUint32(sessionID)
	pkt.WriteUint32(itemID)
	rc.room.BroadcastExcept(pkt, sessionID)
}

// HandleDriftStart opens the mini-turbo charge window.
func (rc *Race) HandleDriftStart(sessionID uint32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p, ok := rc.players[sessionID]
	if !ok || rc.state != RaceRacing || p.Boosting {
		return
	}
	p.Drifting = true
}

// ChargeBoost bumps the mini-turbo level. Only climbs while drifting,
// capped at level 3.
func (rc *Race) ChargeBoost(sessionID uint32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p, ok := rc.players[sessionID]
	if !ok || rc.state != RaceRacing || !p.Drifting {
		return
	}
	if p.BoostLevel < 3 {
		p.BoostLevel++
	}
}

// HandleDriftEnd closes the drift. The accumulated level stays charged
// until a boost consumes it.
func (rc *Race) HandleDriftEnd(sessionID uint32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p, ok := rc.players[sessionID]
	if !ok {
		return
	}
	p.Drifting = false
}

// HandleBoostStart consumes the charged mini-turbo. No charge, no boost.
func (rc *Race) HandleBoostStart(sessionID uint32) bool {
	rc.mu.Lock()
	p, ok := rc.players[sessionID]
	if !ok || rc.state != RaceRacing || p.BoostLevel == 0 || p.Boosting {
		rc.mu.Unlock()
		return false
	}
	p.Drifting = false
	p.Boosting = true
	p.BoostStart = time.Now()
	p.BoostCount++
	level := p.BoostLevel
	rc.mu.Unlock()

	pkt := protocol.NewExtPacket(protocol.CmdBoostStart)
	pkt.WriteUint32(sessionID)
	pkt.WriteUint8(uint8(level))
	rc.room.BroadcastExcept(pkt, sessionID)
	return true
}

// HandleBoostEnd ends the boost and resets the charge to zero.
func (rc *Race) HandleBoostEnd(sessionID uint32) {
	rc.mu.Lock()
	p, ok := rc.players[sessionID]
	if !ok || !p.Boosting {
		rc.mu.Unlock()
		return
	}
	p.Boosting = false
	p.BoostLevel = 0
	rc.mu.Unlock()

	pkt := protocol.NewExtPacket(protocol.CmdBoostEnd)
	pkt.WriteUint32(sessionID)
	rc.room.BroadcastExcept(pkt, sessionID)
}

// Standing is one row of the final results.
type Standing struct {
	SessionID uint32
	Rank      int
	Finished  bool
	TotalMs   int64
}

// EndRace computes final standings, broadcasts them and clears the
// RacePlayer set. Finishers rank by finish order; everyone else ranks below
// all finishers, ordered by total time, lower time first.
func (rc *Race) EndRace() []Standing {
	rc.mu.Lock()
	if rc.state != RaceRacing {
		rc.mu.Unlock()
		return nil
	}
	rc.state = RaceResults

	players := make([]*RacePlayer, 0, len(rc.players))
	for _, p := range rc.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if a.Finished {
			return a.finishOrder < b.finishOrder
		}
		if a.TotalMs != b.TotalMs {
			return a.TotalMs < b.TotalMs
		}
		return a.SessionID < b.SessionID
	})

	standings := make([]Standing, len(players))
	for i, p := range players {
		p.Rank = i + 1
		standings[i] = Standing{
			SessionID: p.SessionID,
			Rank:      p.Rank,
			Finished:  p.Finished,
			TotalMs:   p.TotalMs,
		}
	}
	rc.players = map[uint32]*RacePlayer{}
	onEnd := rc.onEnd
	rc.mu.Unlock()

	pkt := protocol.NewExtPacket(protocol.CmdRaceResults)
	pkt.WriteUint8(uint8(len(standings)))
	for _, st := range standings {
		pkt.WriteUint32(st.SessionID)
		pkt.WriteUint8(uint8(st.Rank))
		pkt.WriteUint64(uint64(st.TotalMs))
		if st.Finished {
			pkt.WriteUint8(1)
		} else {
			pkt.WriteUint8(0)
		}
	}
	rc.room.Broadcast(pkt)
	rc.room.SetState(RoomResults)

	if onEnd != nil {
		onEnd()
	}
	rc.log.Info().Int("players", len(standings)).Msg("race finished")
	return standings
}

// Player returns a copy of a racer's state, for tests and standings checks.
func (rc *Race) Player(sessionID uint32) (RacePlayer, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p, ok := rc.players[sessionID]
	if !ok {
		return RacePlayer{}, false
	}
	return *p, true
}

// Abort tears the race down without results, e.g. on room teardown.
func (rc *Race) Abort() {
	rc.mu.Lock()
	rc.state = RaceNone
	rc.players = map[uint32]*RacePlayer{}
	rc.mu.Unlock()
}

// RemovePlayer drops a racer on leave or disconnect. A leaver in the load
// phase takes their pending loaded entry with them, so the remaining members
// can still trigger the countdown; if the leaver was the last holdout it
// starts right away. Mid-race, the race ends if everyone left has finished.
func (rc *Race) RemovePlayer(sessionID uint32) {
	rc.mu.Lock()
	delete(rc.players, sessionID)
	delete(rc.loaded, sessionID)

	if rc.state == RaceNone && len(rc.loaded) > 0 {
		for _, done := range rc.loaded {
			if !done {
				rc.mu.Unlock()
				return
			}
		}
		rc.mu.Unlock()
		rc.StartCountdown(3)
		return
	}

	if rc.state != RaceRacing || len(rc.players) == 0 {
		rc.mu.Unlock()
		return
	}
	allDone := true
	for _, p := range rc.players {
		if !p.Finished {
			allDone = false
			break
		}
	}
	rc.mu.Unlock()
	if allDone {
		rc.EndRace()
	}
}

package network

import (
	"github.com/davedevils/KartNChibi-sub000/game"
	"github.com/davedevils/KartNChibi-sub000/protocol"
)

// handleGameStart is host-only. It moves the room into starting, builds the
// race context and kicks off the load phase.
func handleGameStart(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok {
		return
	}
	if !room.IsHost(sess.ID()) {
		s.log.Debug().Uint32("session", sess.ID()).Msg("game start from non-host ignored")
		return
	}
	if !room.CanStart() {
		return
	}
	room.SetState(game.RoomStarting)

	race := game.NewRace(room, s.validator, s.tickers, s.log)
	race.OnEnd(func() {
		for _, m := range room.Members() {
			room.SetPlayerReady(m.ID(), false)
		}
		room.SetState(game.RoomWaiting)
	})
	race.Begin()
}

func handleLoadComplete(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	race.MarkLoaded(sess.ID())
}

// handlePosition feeds the reported sample through the anti-cheat checks.
// The reported speed is validated separately from the positional delta; a
// sample that fails either check is dropped, never applied or rebroadcast.
func handlePosition(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	x := pkt.ReadFloat32()
	y := pkt.ReadFloat32()
	z := pkt.ReadFloat32()
	rotation := pkt.ReadFloat32()
	speed := pkt.ReadFloat32()

	room, ok := s.Room(sess.RoomID())
	if !ok {
		return
	}
	if !s.validator.ValidateSpeed(sess.ID(), float64(speed), room.Settings().MapID) {
		return
	}
	race.HandlePosition(sess.ID(), x, y, z, rotation)
}

func handleLapComplete(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	lapTimeMs := int64(pkt.ReadUint64())
	race.HandleLapComplete(sess.ID(), lapTimeMs)
}

func handleItemPickup(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	itemID := pkt.ReadUint32()
	race.HandleItemPickup(sess.ID(), itemID)
}

func handleItemUse(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	itemID := pkt.ReadUint32()
	targetID := pkt.ReadUint32()
	race.HandleItemUse(sess.ID(), itemID, targetID)
}

func handleItemHit(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	itemID := pkt.ReadUint32()
	race.HandleItemHit(sess.ID(), itemID)
}

// handleDriftStart opens the drift on the first packet; repeats while the
// drift is held charge the mini-turbo one level per packet.
func handleDriftStart(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	if p, ok := race.Player(sess.ID()); ok && p.Drifting {
		race.ChargeBoost(sess.ID())
		return
	}
	race.HandleDriftStart(sess.ID())
}

func handleDriftEnd(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	race.HandleDriftEnd(sess.ID())
}

func handleBoostStart(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	race.HandleBoostStart(sess.ID())
}

func handleBoostEnd(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	race.HandleBoostEnd(sess.ID())
}

// handlePlayerFinish relays the finish-line ceremony. Lap accounting is
// authoritative server-side, so this only echoes for players the race
// already marked finished.
func handlePlayerFinish(s *Server, sess *Session, pkt *protocol.Packet) {
	race := s.raceFor(sess)
	if race == nil {
		return
	}
	p, ok := race.Player(sess.ID())
	if !ok || !p.Finished {
		return
	}
	room, roomOK := s.Room(sess.RoomID())
	if !roomOK {
		return
	}

	relay := protocol.NewExtPacket(protocol.CmdPlayerFinish)
	relay.WriteUint32(sess.ID())
	relay.WriteUint64(uint64(p.TotalMs))
	room.BroadcastExcept(relay, sess.ID())
}

// raceFor resolves the active race for the session's room, nil when the
// room has none.
func (s *Server) raceFor(sess *Session) *game.Race {
	room, ok := s.Room(sess.RoomID())
	if !ok {
		return nil
	}
	return room.Race()
}

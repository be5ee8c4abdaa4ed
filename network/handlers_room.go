package network

import (
	"github.com/davedevils/KartNChibi-sub000/game"
	"github.com/davedevils/KartNChibi-sub000/protocol"
)

// Room join result codes, part of the wire contract.
const (
	joinOK            = 0
	joinRoomNotFound  = 1
	joinRoomFull      = 2
	joinWrongPassword = 3
	joinBadState      = 4
)

func handleRoomList(s *Server, sess *Session, pkt *protocol.Packet) {
	_ = pkt.ReadUint8() // page, single page for now

	s.mu.Lock()
	rooms := make([]*game.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	reply := protocol.NewExtPacket(protocol.CmdRoomList)
	count := 0
	body := protocol.NewExtPacket(protocol.CmdRoomList)
	for _, r := range rooms {
		settings := r.Settings()
		if settings.Private {
			continue
		}
		body.WriteUint32(r.ID())
		body.WriteWString(settings.Name)
		body.WriteUint8(uint8(r.State()))
		body.WriteUint8(uint8(r.PlayerCount()))
		body.WriteUint8(uint8(settings.MaxPlayers))
		body.WriteUint32(settings.MapID)
		if settings.Password != "" {
			body.WriteUint8(1)
		} else {
			body.WriteUint8(0)
		}
		count++
	}
	reply.WriteUint8(uint8(count))
	reply.WriteBytes(body.Payload())
	sess.SendPacket(reply)
}

func handleRoomCreate(s *Server, sess *Session, pkt *protocol.Packet) {
	if sess.RoomID() != 0 {
		sendJoinResult(sess, joinBadState, 0)
		return
	}

	settings := readRoomSettings(pkt)
	room := s.createRoom(settings)

	name := s.playerName(sess)
	if !room.AddPlayer(sess, sess.CharacterID(), name, s.playerVehicle(sess)) {
		s.removeRoom(room.ID())
		sendJoinResult(sess, joinRoomFull, 0)
		return
	}
	sess.SetRoomID(room.ID())

	s.log.Info().Uint32("session", sess.ID()).Uint32("room", room.ID()).Msg("room created")
	s.sendRoomInfo(sess, room)
}

func handleRoomJoin(s *Server, sess *Session, pkt *protocol.Packet) {
	roomID := pkt.ReadUint32()
	password := pkt.ReadWString()

	if sess.RoomID() != 0 {
		sendJoinResult(sess, joinBadState, 0)
		return
	}
	room, ok := s.Room(roomID)
	if !ok {
		sendJoinResult(sess, joinRoomNotFound, 0)
		return
	}
	settings := room.Settings()
	if settings.Password != "" && settings.Password != password {
		sendJoinResult(sess, joinWrongPassword, 0)
		return
	}
	if room.State() != game.RoomWaiting {
		sendJoinResult(sess, joinBadState, 0)
		return
	}

	s.joinRoom(sess, room)
}

func handleQuickJoin(s *Server, sess *Session, pkt *protocol.Packet) {
	if sess.RoomID() != 0 {
		sendJoinResult(sess, joinBadState, 0)
		return
	}

	s.mu.Lock()
	var candidate *game.Room
	for _, r := range s.rooms {
		settings := r.Settings()
		if settings.Private || settings.Password != "" {
			continue
		}
		if r.State() != game.RoomWaiting || r.PlayerCount() >= settings.MaxPlayers {
			continue
		}
		candidate = r
		break
	}
	s.mu.Unlock()

	if candidate == nil {
		sendJoinResult(sess, joinRoomNotFound, 0)
		return
	}
	s.joinRoom(sess, candidate)
}

// joinRoom admits the session and announces it to the other members.
func (s *Server) joinRoom(sess *Session, room *game.Room) {
	name := s.playerName(sess)
	if !room.AddPlayer(sess, sess.CharacterID(), name, s.playerVehicle(sess)) {
		sendJoinResult(sess, joinRoomFull, 0)
		return
	}
	sess.SetRoomID(room.ID())

	joined := protocol.NewExtPacket(protocol.CmdPlayerJoined)
	joined.WriteUint32(sess.ID())
	joined.WriteWString(name)
	if p, ok := room.Player(sess.ID()); ok {
		joined.WriteUint8(uint8(p.Slot))
	} else {
		joined.WriteUint8(0)
	}
	room.BroadcastExcept(joined, sess.ID())

	s.sendRoomInfo(sess, room)
}

func handleRoomLeave(s *Server, sess *Session, pkt *protocol.Packet) {
	s.leaveRoom(sess, sess.RoomID())
}

// leaveRoom removes the session from its room, reassigns the host when
// needed and tears the room down when it empties. Also called from the
// disconnect cascade.
func (s *Server) leaveRoom(sess *Session, roomID uint32) {
	room, ok := s.Room(roomID)
	if !ok {
		sess.SetRoomID(0)
		return
	}

	newHost, empty := room.RemovePlayer(sess.ID())
	sess.SetRoomID(0)

	if empty {
		if race := room.Race(); race != nil {
			race.Abort()
		}
		s.removeRoom(roomID)
		s.log.Info().Uint32("room", roomID).Msg("room destroyed")
		return
	}

	// Drop from the race after the roster change: a load-phase leaver must
	// not reappear when the countdown snapshots the remaining members.
	if race := room.Race(); race != nil {
		race.RemovePlayer(sess.ID())
	}

	left := protocol.NewExtPacket(protocol.CmdPlayerLeft)
	left.WriteUint32(sess.ID())
	room.Broadcast(left)

	if newHost != 0 {
		hostPkt := protocol.NewExtPacket(protocol.CmdHostChanged)
		hostPkt.WriteUint32(newHost)
		room.Broadcast(hostPkt)
	}
}

func handlePlayerReady(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok {
		return
	}
	ready := pkt.ReadUint8() == 1
	room.SetPlayerReady(sess.ID(), ready)

	update := protocol.NewExtPacket(protocol.CmdRoomUpdated)
	update.WriteUint32(sess.ID())
	update.WriteUint8(boolByte(ready))
	room.Broadcast(update)
}

func handlePlayerTeam(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok {
		return
	}
	team := pkt.ReadUint8()
	room.SetPlayerTeam(sess.ID(), team)

	update := protocol.NewExtPacket(protocol.CmdPlayerTeam)
	update.WriteUint32(sess.ID())
	update.WriteUint8(team)
	room.Broadcast(update)
}

// handlePlayerKick lets the host remove a member from the room. The target
// stays connected, it just lands back in the lobby.
func handlePlayerKick(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok || !room.IsHost(sess.ID()) {
		return
	}
	targetID := pkt.ReadUint32()
	if targetID == sess.ID() {
		return
	}
	target, ok := s.Session(targetID)
	if !ok || target.RoomID() != room.ID() {
		return
	}
	s.leaveRoom(target, room.ID())
}

func handleRoomSettings(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok || !room.IsHost(sess.ID()) {
		return
	}
	settings := readRoomSettings(pkt)
	if !room.UpdateSettings(settings) {
		return
	}

	update := protocol.NewExtPacket(protocol.CmdRoomUpdated)
	update.WriteUint32(0) // settings change, not a ready flag
	update.WriteWString(settings.Name)
	update.WriteUint32(settings.MapID)
	update.WriteUint8(uint8(settings.Laps))
	room.Broadcast(update)
}

func handleChatRoom(s *Server, sess *Session, pkt *protocol.Packet) {
	room, ok := s.Room(sess.RoomID())
	if !ok {
		return
	}
	msg := pkt.ReadWString()
	if msg == "" {
		return
	}

	relay := protocol.NewExtPacket(protocol.CmdChatRoom)
	relay.WriteUint32(sess.ID())
	relay.WriteWString(msg)
	room.BroadcastExcept(relay, sess.ID())
}

func handleChatLobby(s *Server, sess *Session, pkt *protocol.Packet) {
	msg := pkt.ReadWString()
	if msg == "" {
		return
	}

	relay := protocol.NewExtPacket(protocol.CmdChatLobby)
	relay.WriteUint32(sess.ID())
	relay.WriteWString(msg)
	data := relay.Serialize()

	s.mu.Lock()
	targets := make([]*Session, 0, len(s.sessions))
	for _, other := range s.sessions {
		targets = append(targets, other)
	}
	s.mu.Unlock()

	for _, other := range targets {
		if other.ID() == sess.ID() || other.State() != StateRedirected || other.RoomID() != 0 {
			continue
		}
		other.Send(data)
	}
}

func handleChatWhisper(s *Server, sess *Session, pkt *protocol.Packet) {
	targetID := pkt.ReadUint32()
	msg := pkt.ReadWString()
	if msg == "" {
		return
	}
	target, ok := s.Session(targetID)
	if !ok {
		return
	}

	relay := protocol.NewExtPacket(protocol.CmdChatWhisper)
	relay.WriteUint32(sess.ID())
	relay.WriteWString(msg)
	target.SendPacket(relay)
}

func readRoomSettings(pkt *protocol.Packet) game.RoomSettings {
	return game.RoomSettings{
		Name:       pkt.ReadWString(),
		Password:   pkt.ReadWString(),
		Mode:       game.Mode(pkt.ReadUint8()),
		MaxPlayers: int(pkt.ReadUint8()),
		MapID:      pkt.ReadUint32(),
		Laps:       int(pkt.ReadUint8()),
		TeamPlay:   pkt.ReadUint8() == 1,
		Private:    pkt.ReadUint8() == 1,
	}
}

// sendRoomInfo replies with the join result and a full member snapshot.
func (s *Server) sendRoomInfo(sess *Session, room *game.Room) {
	settings := room.Settings()

	reply := protocol.NewExtPacket(protocol.CmdRoomInfo)
	reply.WriteUint8(joinOK)
	reply.WriteUint32(room.ID())
	reply.WriteWString(settings.Name)
	reply.WriteUint8(uint8(settings.Mode))
	reply.WriteUint32(settings.MapID)
	reply.WriteUint8(uint8(settings.Laps))
	reply.WriteUint8(boolByte(settings.TeamPlay))

	members := room.Members()
	reply.WriteUint8(uint8(len(members)))
	for _, m := range members {
		p, ok := room.Player(m.ID())
		if !ok {
			continue
		}
		reply.WriteUint32(m.ID())
		reply.WriteWString(p.Name)
		reply.WriteUint8(uint8(p.Slot))
		reply.WriteUint8(p.Team)
		reply.WriteUint8(boolByte(p.Ready))
		reply.WriteUint8(boolByte(p.IsHost))
	}
	sess.SendPacket(reply)
}

func sendJoinResult(sess *Session, code uint8, roomID uint32) {
	reply := protocol.NewExtPacket(protocol.CmdRoomInfo)
	reply.WriteUint8(code)
	reply.WriteUint32(roomID)
	sess.SendPacket(reply)
}

// playerName resolves the session's character name, falling back to the
// account id when storage is unavailable.
func (s *Server) playerName(sess *Session) string {
	ctx, cancel := newStoreContext()
	defer cancel()
	char, err := s.store.GetCharacterByAccount(ctx, sess.AccountID())
	if err != nil {
		s.log.Warn().Err(err).Uint32("session", sess.ID()).Msg("name lookup failed")
		return "Racer"
	}
	return char.Name
}

// playerVehicle resolves the template of the kart the account has equipped,
// so the roster shows what the player will actually drive.
func (s *Server) playerVehicle(sess *Session) uint32 {
	ctx, cancel := newStoreContext()
	defer cancel()
	vehicles, err := s.store.GetVehicles(ctx, sess.AccountID())
	if err != nil {
		s.log.Warn().Err(err).Uint32("session", sess.ID()).Msg("vehicle lookup failed")
		return 0
	}
	for _, v := range vehicles {
		if v.Equipped {
			return v.TemplateID
		}
	}
	return 0
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

package network

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/davedevils/KartNChibi-sub000/protocol"
	"github.com/davedevils/KartNChibi-sub000/storage"
)

// Login result codes, part of the wire contract.
const (
	loginOK            = 0
	loginBadCredential = 1
	loginBanned        = 2
	loginNeedCharacter = 3
	loginError         = 4
)

const (
	authByPassword = 0
	authByToken    = 1
)

const storeTimeout = 2 * time.Second

// newStoreContext bounds a storage call made from a packet handler. Handlers
// run on the session's read loop, so a stalled database must not hold the
// connection hostage.
func newStoreContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func handleHeartbeat(s *Server, sess *Session, pkt *protocol.Packet) {
	tick := pkt.ReadUint32()
	reply := protocol.NewExtPacket(protocol.CmdHeartbeat)
	reply.WriteUint32(tick)
	sess.SendPacket(reply)
}

func handleClientDisconnect(s *Server, sess *Session, pkt *protocol.Packet) {
	sess.Stop()
}

// handleLogin authenticates by username/password (first hop, from the
// launcher) or by redirect token (second hop, after channel select).
func handleLogin(s *Server, sess *Session, pkt *protocol.Packet) {
	if sess.State() != StateAwaitingAuth {
		return
	}

	switch pkt.ReadUint8() {
	case authByPassword:
		username := pkt.ReadWString()
		password := pkt.ReadWString()
		s.loginWithPassword(sess, username, password)
	case authByToken:
		token := pkt.ReadString()
		s.loginWithToken(sess, token)
	default:
		sendLoginResult(sess, loginBadCredential, 0)
	}
}

func (s *Server) loginWithPassword(sess *Session, username, password string) {
	ctx, cancel := newStoreContext()
	defer cancel()

	acc, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			sendLoginResult(sess, loginBadCredential, 0)
			return
		}
		s.log.Error().Err(err).Msg("account lookup failed")
		sendLoginResult(sess, loginError, 0)
		return
	}

	match, err := s.hasher.Compare(acc.PasswordHash, password)
	if err != nil || !match {
		sendLoginResult(sess, loginBadCredential, 0)
		return
	}

	s.finishLogin(sess, acc.ID, false)
}

func (s *Server) loginWithToken(sess *Session, token string) {
	accountID, _, err := s.tokens.Verify(token)
	if err != nil {
		sendLoginResult(sess, loginBadCredential, 0)
		return
	}
	s.finishLogin(sess, accountID, true)
}

// finishLogin runs the shared tail: ban check, character lookup, state
// advance. A token login skips the channel list and lands straight in the
// lobby-capable state.
func (s *Server) finishLogin(sess *Session, accountID uint32, viaToken bool) {
	ctx, cancel := newStoreContext()
	defer cancel()

	banned, err := s.store.IsAccountBanned(ctx, accountID)
	if err != nil {
		s.log.Warn().Err(err).Uint32("account", accountID).Msg("ban lookup failed, letting login through")
	} else if banned {
		sendLoginResult(sess, loginBanned, 0)
		sess.Stop()
		return
	}

	sess.SetAccountID(accountID)
	s.validator.BindAccount(sess.ID(), accountID)

	char, err := s.store.GetCharacterByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrCharacterNotFound) {
			sess.SetState(StateAwaitingCharacterCreation)
			sendLoginResult(sess, loginNeedCharacter, accountID)
			return
		}
		s.log.Error().Err(err).Uint32("account", accountID).Msg("character lookup failed")
		sendLoginResult(sess, loginError, 0)
		return
	}

	sess.SetCharacterID(char.ID)
	sendLoginResult(sess, loginOK, accountID)
	sendCharacterInfo(sess, char)

	if viaToken {
		sess.SetState(StateRedirected)
		return
	}
	s.sendChannelList(sess)
	sess.SetState(StateChannelListSent)
}

func handleCharacterCreate(s *Server, sess *Session, pkt *protocol.Packet) {
	if sess.State() != StateAwaitingCharacterCreation {
		return
	}
	name := pkt.ReadWString()
	if name == "" {
		sendLoginResult(sess, loginError, sess.AccountID())
		return
	}

	ctx, cancel := newStoreContext()
	defer cancel()

	char, err := s.store.CreateCharacter(ctx, sess.AccountID(), name)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			sendLoginResult(sess, loginError, sess.AccountID())
			return
		}
		s.log.Error().Err(err).Uint32("account", sess.AccountID()).Msg("character create failed")
		sendLoginResult(sess, loginError, sess.AccountID())
		return
	}

	sess.SetCharacterID(char.ID)
	sendCharacterInfo(sess, char)
	s.sendChannelList(sess)
	sess.SetState(StateChannelListSent)
}

func handleChannelSelect(s *Server, sess *Session, pkt *protocol.Packet) {
	if sess.State() != StateChannelListSent {
		return
	}
	channel := pkt.ReadUint8()

	token, err := s.tokens.Generate(sess.AccountID(), channel, time.Now())
	if err != nil {
		s.log.Error().Err(err).Uint32("session", sess.ID()).Msg("redirect token generation failed")
		return
	}

	host, port := splitRedirectAddr(s.addr)
	reply := protocol.NewExtPacket(protocol.CmdRedirect)
	reply.WriteString(host)
	reply.WriteUint16(port)
	reply.WriteString(token)
	sess.SendPacket(reply)
	sess.SetState(StateRedirected)
}

func splitRedirectAddr(addr string) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return host, 0
	}
	return host, uint16(port)
}

func sendLoginResult(sess *Session, code uint8, accountID uint32) {
	reply := protocol.NewExtPacket(protocol.CmdLoginResult)
	reply.WriteUint8(code)
	reply.WriteUint32(accountID)
	sess.SendPacket(reply)
}

func sendCharacterInfo(sess *Session, char storage.Character) {
	reply := protocol.NewExtPacket(protocol.CmdCharacterInfo)
	reply.WriteUint32(char.ID)
	reply.WriteWString(char.Name)
	reply.WriteUint8(char.Level)
	sess.SendPacket(reply)
}

func (s *Server) sendChannelList(sess *Session) {
	reply := protocol.NewExtPacket(protocol.CmdChannelList)
	reply.WriteUint8(uint8(len(s.channels)))
	for _, ch := range s.channels {
		reply.WriteUint8(ch.ID)
		reply.WriteWString(ch.Name)
		reply.WriteUint8(ch.Load)
	}
	sess.SendPacket(reply)
}

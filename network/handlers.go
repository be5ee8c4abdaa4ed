package network

import "github.com/davedevils/KartNChibi-sub000/protocol"

// registerHandlers builds the flat command→handler table. Gating rules:
// heartbeat and disconnect are always accepted; handshake commands unlock
// progressively; everything gameplay-related needs a fully redirected
// (authenticated) session, and in-room commands additionally need room
// membership.
func (s *Server) registerHandlers() {
	s.handlers = map[uint16]handlerEntry{
		protocol.CmdHeartbeat:  {fn: handleHeartbeat, alwaysAllowed: true},
		protocol.CmdDisconnect: {fn: handleClientDisconnect, alwaysAllowed: true},

		protocol.CmdLogin:           {fn: handleLogin, minState: StateAwaitingAuth},
		protocol.CmdCharacterCreate: {fn: handleCharacterCreate, minState: StateAwaitingCharacterCreation},
		protocol.CmdChannelSelect:   {fn: handleChannelSelect, minState: StateChannelListSent},

		protocol.CmdRoomList:   {fn: handleRoomList, minState: StateRedirected},
		protocol.CmdRoomCreate: {fn: handleRoomCreate, minState: StateRedirected},
		protocol.CmdRoomJoin:   {fn: handleRoomJoin, minState: StateRedirected},
		protocol.CmdQuickJoin:  {fn: handleQuickJoin, minState: StateRedirected},
		protocol.CmdRoomLeave:  {fn: handleRoomLeave, minState: StateRedirected, requireRoom: true},

		protocol.CmdPlayerReady:  {fn: handlePlayerReady, minState: StateRedirected, requireRoom: true},
		protocol.CmdPlayerTeam:   {fn: handlePlayerTeam, minState: StateRedirected, requireRoom: true},
		protocol.CmdPlayerKick:   {fn: handlePlayerKick, minState: StateRedirected, requireRoom: true},
		protocol.CmdRoomSettings: {fn: handleRoomSettings, minState: StateRedirected, requireRoom: true},

		protocol.CmdChatRoom:    {fn: handleChatRoom, minState: StateRedirected, requireRoom: true},
		protocol.CmdChatLobby:   {fn: handleChatLobby, minState: StateRedirected},
		protocol.CmdChatWhisper: {fn: handleChatWhisper, minState: StateRedirected},

		protocol.CmdGameStart:    {fn: handleGameStart, minState: StateRedirected, requireRoom: true},
		protocol.CmdLoadComplete: {fn: handleLoadComplete, minState: StateRedirected, requireRoom: true},
		protocol.CmdPosition:     {fn: handlePosition, minState: StateRedirected, requireRoom: true},
		protocol.CmdLapComplete:  {fn: handleLapComplete, minState: StateRedirected, requireRoom: true},
		protocol.CmdItemPickup:   {fn: handleItemPickup, minState: StateRedirected, requireRoom: true},
		protocol.CmdItemUse:      {fn: handleItemUse, minState: StateRedirected, requireRoom: true},
		protocol.CmdItemHit:      {fn: handleItemHit, minState: StateRedirected, requireRoom: true},
		protocol.CmdDriftStart:   {fn: handleDriftStart, minState: StateRedirected, requireRoom: true},
		protocol.CmdDriftEnd:     {fn: handleDriftEnd, minState: StateRedirected, requireRoom: true},
		protocol.CmdBoostStart:   {fn: handleBoostStart, minState: StateRedirected, requireRoom: true},
		protocol.CmdBoostEnd:     {fn: handleBoostEnd, minState: StateRedirected, requireRoom: true},
		protocol.CmdPlayerFinish: {fn: handlePlayerFinish, minState: StateRedirected, requireRoom: true},

		protocol.CmdShopList: {fn: handleShopList, minState: StateRedirected},
		protocol.CmdShopBuy:  {fn: handleShopBuy, minState: StateRedirected},

		protocol.CmdInventoryList: {fn: handleInventoryList, minState: StateRedirected},
		protocol.CmdItemEquip:     {fn: handleItemEquip, minState: StateRedirected},
		protocol.CmdGarageList:    {fn: handleGarageList, minState: StateRedirected},
		protocol.CmdVehicleEquip:  {fn: handleVehicleEquip, minState: StateRedirected},

		protocol.CmdTutorialDone:   {fn: handleTutorialDone, minState: StateRedirected},
		protocol.CmdLicenseStatus:  {fn: handleLicenseStatus, minState: StateRedirected},
		protocol.CmdLicenseAdvance: {fn: handleLicenseAdvance, minState: StateRedirected},

		protocol.CmdMissionList:     {fn: handleMissionList, minState: StateRedirected},
		protocol.CmdMissionComplete: {fn: handleMissionComplete, minState: StateRedirected},

		protocol.CmdGhostSave: {fn: handleGhostSave, minState: StateRedirected},
		protocol.CmdGhostLoad: {fn: handleGhostLoad, minState: StateRedirected},

		protocol.CmdScenarioStart:  {fn: handleScenarioStart, minState: StateRedirected},
		protocol.CmdScenarioResult: {fn: handleScenarioResult, minState: StateRedirected},
	}
}

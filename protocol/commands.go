package protocol

// Command values are the reverse-engineered opcodes of the original client.
// They are an externally fixed enumeration: the numbers below are a wire
// contract and must never be renumbered.
type Command = uint16

// Always-accepted commands (no authentication required).
const (
	CmdHeartbeat  Command = 0x0001
	CmdDisconnect Command = 0x0002
)

// Auth / handshake.
const (
	CmdLogin           Command = 0x0010
	CmdLoginResult     Command = 0x0011
	CmdCharacterCreate Command = 0x0012
	CmdCharacterInfo   Command = 0x0013
	CmdChannelList     Command = 0x0014
	CmdChannelSelect   Command = 0x0015
	CmdRedirect        Command = 0x0016
)

// Lobby.
const (
	CmdRoomList    Command = 0x0020
	CmdRoomCreate  Command = 0x0021
	CmdRoomJoin    Command = 0x0022
	CmdRoomLeave   Command = 0x0023
	CmdQuickJoin   Command = 0x0024
	CmdRoomInfo    Command = 0x0025
	CmdRoomUpdated Command = 0x0026
)

// In-room.
const (
	CmdPlayerReady  Command = 0x0030
	CmdPlayerTeam   Command = 0x0031
	CmdPlayerKick   Command = 0x0032
	CmdRoomSettings Command = 0x0033
	CmdPlayerJoined Command = 0x0034
	CmdPlayerLeft   Command = 0x0035
	CmdHostChanged  Command = 0x0036
)

// Chat.
const (
	CmdChatRoom    Command = 0x0040
	CmdChatLobby   Command = 0x0041
	CmdChatWhisper Command = 0x0042
)

// Race / game.
const (
	CmdGameStart    Command = 0x0050
	CmdLoadComplete Command = 0x0051
	CmdCountdown    Command = 0x0052
	CmdRaceStart    Command = 0x0053
	CmdPosition     Command = 0x0054
	CmdLapComplete  Command = 0x0055
	CmdItemPickup   Command = 0x0056
	CmdItemUse      Command = 0x0057
	CmdItemHit      Command = 0x0058
	CmdDriftStart   Command = 0x0059
	CmdDriftEnd     Command = 0x005a
	CmdBoostStart   Command = 0x005b
	CmdBoostEnd     Command = 0x005c
	CmdPlayerFinish Command = 0x005d
	CmdRaceResults  Command = 0x005e
	CmdRaceWarning  Command = 0x005f
)

// Shop.
const (
	CmdShopList Command = 0x0060
	CmdShopBuy  Command = 0x0061
)

// Inventory / garage.
const (
	CmdInventoryList Command = 0x0070
	CmdItemEquip     Command = 0x0071
	CmdGarageList    Command = 0x0072
	CmdVehicleEquip  Command = 0x0073
)

// Tutorial / license.
const (
	CmdTutorialDone   Command = 0x0080
	CmdLicenseStatus  Command = 0x0081
	CmdLicenseAdvance Command = 0x0082
)

// Mission.
const (
	CmdMissionList     Command = 0x0090
	CmdMissionComplete Command = 0x0091
)

// Ghost replay.
const (
	CmdGhostSave Command = 0x00a0
	CmdGhostLoad Command = 0x00a1
)

// Scenario. The flag byte carries the high opcode bits, so scenario
// commands live above the one-byte space.
const (
	CmdScenarioStart  Command = 0x0150
	CmdScenarioResult Command = 0x0151
)

// Kick/ban notice sent just before the server drops the connection.
const CmdKickNotice Command = 0x00f0

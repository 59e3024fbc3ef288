package wire

// WarRock Protocol Constants
//
// Values shared between the auth server, the game servers and the 2008-era
// client. Both channels speak the same framed string-block format and differ
// only in XOR keys and the permitted packet set.

// TCP ports.
const (
	// PortAuthClient is the launcher/login endpoint players connect to.
	PortAuthClient = 10101

	// PortInternal is the endpoint game-server nodes connect to.
	PortInternal = 5013
)

// XOR scramble keys, one per direction per channel.
const (
	// ClientXorSend scrambles auth→client traffic.
	ClientXorSend byte = 0x96

	// ClientXorRecv unscrambles client→auth traffic.
	ClientXorRecv byte = 0xC3

	// InternalXorAuthSend scrambles auth→node traffic.
	InternalXorAuthSend byte = 0x2E

	// InternalXorGameSend unscrambles node→auth traffic.
	InternalXorGameSend byte = 0x5A
)

// Packet IDs.
const (
	// IDConnection is the hello packet sent right after accept.
	IDConnection uint16 = 0x1111

	IDLauncher   uint16 = 0x1010
	IDServerList uint16 = 0x1100
	IDNickName   uint16 = 0x1101

	IDGameServerAuthentication uint16 = 0x1012
	IDGameServerStatus         uint16 = 0x1013
	IDClientAuthentication     uint16 = 0x1014
)

// Result codes carried in the error block of internal-channel packets.
const (
	Success             = 1
	EndConnection       = -1
	AlreadyAuthorized   = -2
	InvalidKeySession   = -3
	InvalidSessionMatch = -4
	ServerLimitReached  = -5
	ServerErrorOther    = -6
	InvalidServerType   = -7
)

// Game server types a node may report.
const (
	ServerTypeNone        = -1
	ServerTypeEntire      = 0
	ServerTypeAdult       = 1
	ServerTypeClan        = 2
	ServerTypeTest        = 3
	ServerTypeDevelopment = 4
	ServerTypeTrainee     = 5
)

// MaxNodeSessions is the hard cap on simultaneously authorized game servers.
// The 2008 client renders at most 31 entries in the server list.
const MaxNodeSessions = 31

// MaxUserSessionID bounds the rotating user session-id space. The client
// protocol encodes the field in a signed 16-bit numeric block.
const MaxUserSessionID = 32767

// ReadBufSize is how much one pipeline read pulls off the socket.
const ReadBufSize = 1024

package login

import (
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

// ServerList reply error codes. A distinct numeric domain from the internal
// channel's result codes; the 2008 client maps these to launcher messages.
const (
	ErrIllegalException   = 70101
	ErrClientVerNotMatch  = 70301
	ErrNewNickname        = 72000
	ErrWrongUser          = 72010
	ErrWrongPW            = 72020
	ErrAlreadyLoggedIn    = 72030
	ErrBannedTime         = 73020
	ErrNotActive          = 73040
	ErrBanned             = 73050
	ErrEnterIDError       = 74010
	ErrEnterPasswordError = 74020
	ErrErrorNickname      = 74030
	ErrNicknameTaken      = 74070
	ErrNicknameTooLong    = 74100
	ErrIllegalNickname    = 74110
)

// launcherReply — фиксированный ответ лаунчеру: семь нулевых блоков.
func launcherReply() []byte {
	return wire.NewOut(wire.IDLauncher).
		Fill(0, 7).
		Build(wire.ClientXorSend)
}

// serverListError builds a ServerList reply carrying only an error code.
func serverListError(code int) []byte {
	return wire.NewOut(wire.IDServerList).
		Append(code).
		Build(wire.ClientXorSend)
}

// serverListSuccess builds the full login success reply: account fields,
// the session id, and the current authorized-server snapshot. Block layout
// is fixed by the client; the "NULL" placeholder and the -1 trailer are
// echoed back verbatim on relogin.
func serverListSuccess(c *Client, servers []registry.NodeSession) []byte {
	out := wire.NewOut(wire.IDServerList).
		Append(1).
		Append(1).
		Append(0).
		Append(c.Username()).
		Append("NULL").
		Append(c.Displayname()).
		Append(c.SessionID()).
		Append(0).
		Append(0).
		Append(c.Rights()).
		Append(1).
		Append(len(servers))

	for _, s := range servers {
		out.Append(s.Node.NodeID()).
			Append(s.Node.Name()).
			Append(s.Node.Address()).
			Append(s.Node.Port()).
			Append(s.Node.CurrentPlayers()).
			Append(s.Node.ServerType())
	}

	return out.
		Fill(-1, 4).
		Append(0).
		Append(0).
		Build(wire.ClientXorSend)
}

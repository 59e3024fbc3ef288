package gslistener

import "github.com/udisondev/wrauth/internal/wire"

// gameServerAuthError builds a GameServerAuthentication reply carrying only
// a result code.
func gameServerAuthError(code int) []byte {
	return wire.NewOut(wire.IDGameServerAuthentication).
		Append(code).
		Build(wire.InternalXorAuthSend)
}

// gameServerAuthSuccess tells the node its assigned session id.
func gameServerAuthSuccess(sessionID string) []byte {
	return wire.NewOut(wire.IDGameServerAuthentication).
		Append(wire.Success).
		Append(sessionID).
		Build(wire.InternalXorAuthSend)
}

// clientAuthReply echoes the adjudication verdict back to the node.
func clientAuthReply(code int, username string, sessionID, rights int) []byte {
	return wire.NewOut(wire.IDClientAuthentication).
		Append(code).
		Append(username).
		Append(sessionID).
		Append(rights).
		Build(wire.InternalXorAuthSend)
}

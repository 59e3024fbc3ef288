package gslistener

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/udisondev/wrauth/internal/metrics"
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

// HandlerFunc обрабатывает один входящий пакет игрового сервера.
type HandlerFunc func(ctx context.Context, n *Node, p wire.Packet)

// Handler maps internal packet ids to their handlers.
type Handler struct {
	servers  ServerCatalog
	reg      *registry.Registry
	handlers map[uint16]HandlerFunc
}

// NewHandler builds the handler table for the internal channel.
func NewHandler(servers ServerCatalog, reg *registry.Registry) *Handler {
	h := &Handler{servers: servers, reg: reg}
	h.handlers = map[uint16]HandlerFunc{
		wire.IDGameServerAuthentication: h.handleGameServerAuth,
		wire.IDGameServerStatus:         h.handleGameServerStatus,
		wire.IDClientAuthentication:     h.handleClientAuth,
	}
	return h
}

// Lookup returns the handler for the packet id.
func (h *Handler) Lookup(id uint16) (HandlerFunc, bool) {
	fn, ok := h.handlers[id]
	return fn, ok
}

// validServerTypes — типы, которые нода может о себе заявить.
var validServerTypes = map[int]struct{}{
	wire.ServerTypeEntire:      {},
	wire.ServerTypeAdult:       {},
	wire.ServerTypeClan:        {},
	wire.ServerTypeTest:        {},
	wire.ServerTypeDevelopment: {},
	wire.ServerTypeTrainee:     {},
}

// handleGameServerAuth admits a node into the cluster after verifying its
// identity against the server catalog.
//
// Blocks: [0]=result code, [1]=id, [2]=name, [3]=address, [4]=port,
// [5]=type, [6]=current players, [7]=max players.
func (h *Handler) handleGameServerAuth(ctx context.Context, n *Node, p wire.Packet) {
	code, err := strconv.Atoi(p.Block(0))
	if err != nil || code != wire.Success {
		return
	}

	// Capacity first: the reply leaves the connection open so a
	// differently-identified node can retry.
	if h.reg.AuthorizedServerCount() >= wire.MaxNodeSessions {
		metrics.NodeAuthResults.WithLabelValues("limit_reached").Inc()
		slog.Error("maximum number of servers reached, rejecting", "remote", n.IP())
		n.Send(gameServerAuthError(wire.ServerLimitReached))
		return
	}

	nodeID := p.Block(1)
	name := p.Block(2)
	address := p.Block(3)
	portStr := p.Block(4)
	typeStr := p.Block(5)
	currentStr := p.Block(6)
	maxStr := p.Block(7)

	if len(name) < 3 || !isAlnum(name) {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid server name", "id", nodeID, "remote", n.IP())
		n.Send(gameServerAuthError(wire.ServerErrorOther))
		n.Disconnect()
		return
	}
	if nodeID == "" || !isAlnum(nodeID) {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid server id", "id", nodeID, "remote", n.IP())
		n.Send(gameServerAuthError(wire.ServerErrorOther))
		n.Disconnect()
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid server port", "id", nodeID, "port", portStr, "remote", n.IP())
		n.Send(gameServerAuthError(wire.ServerErrorOther))
		n.Disconnect()
		return
	}

	current, errCur := strconv.Atoi(currentStr)
	max, errMax := strconv.Atoi(maxStr)
	if errCur != nil || errMax != nil || current < 0 || max < 0 {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid player counts reported", "current", currentStr, "max", maxStr, "remote", n.IP())
		n.Send(gameServerAuthError(wire.ServerErrorOther))
		n.Disconnect()
		return
	}

	serverType, err := strconv.Atoi(typeStr)
	if err != nil {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid server type", "type", typeStr, "remote", n.IP())
		n.Send(gameServerAuthError(wire.InvalidServerType))
		n.Disconnect()
		return
	}
	if _, ok := validServerTypes[serverType]; !ok {
		metrics.NodeAuthResults.WithLabelValues("invalid").Inc()
		slog.Error("invalid server type", "type", typeStr, "remote", n.IP())
		n.Send(gameServerAuthError(wire.InvalidServerType))
		n.Disconnect()
		return
	}

	active, err := h.servers.ListActiveServers(ctx)
	if err != nil {
		slog.Error("catalog error during node auth", "id", nodeID, "err", err)
		n.Disconnect()
		return
	}

	registered := false
	for _, s := range active {
		if s.ID == nodeID && s.Address == address && s.Port == port {
			registered = true
			break
		}
	}
	if !registered {
		metrics.NodeAuthResults.WithLabelValues("unregistered").Inc()
		slog.Error("unregistered server", "id", nodeID, "address", address, "port", port)
		n.Send(gameServerAuthError(wire.InvalidSessionMatch))
		n.Disconnect()
		return
	}

	if h.reg.IsServerAuthorized(nodeID) {
		metrics.NodeAuthResults.WithLabelValues("already_authorized").Inc()
		slog.Info("server already registered", "id", nodeID, "remote", n.IP())
		n.Send(gameServerAuthError(wire.AlreadyAuthorized))
		n.Disconnect()
		return
	}

	n.SetEndpoint(address, port)
	n.Authorize(name, nodeID, serverType, current, max)

	metrics.NodeAuthResults.WithLabelValues("success").Inc()
	slog.Info("server authenticated",
		"id", nodeID,
		"address", address,
		"port", port,
		"session_id", n.SessionID())
	n.Send(gameServerAuthSuccess(n.SessionID()))
}

// handleGameServerStatus is the heartbeat: only the reported player count is
// kept, the rest of the blocks (server time, id, room count) are ignored.
//
// Blocks: [1]=server time, [2]=server id, [3]=current players, [4]=rooms.
func (h *Handler) handleGameServerStatus(_ context.Context, n *Node, p wire.Packet) {
	if !n.Authorized() {
		slog.Info("ping from unauthorized server ignored", "remote", n.IP())
		n.Disconnect()
		return
	}

	players, err := strconv.Atoi(p.Block(3))
	if err != nil {
		slog.Warn("invalid player count in status", "value", p.Block(3), "id", n.NodeID())
		return
	}
	n.SetCurrentPlayers(players)
}

// handleClientAuth adjudicates a join: the node reports the session a player
// presented, and the registry decides fresh / already active / expired.
//
// Blocks: [0]=result code, [1]=claimed session id, [2]=username, [3]=rights.
func (h *Handler) handleClientAuth(_ context.Context, n *Node, p wire.Packet) {
	if !n.Authorized() {
		slog.Info("client auth request from unauthorized server", "remote", n.IP())
		n.Disconnect()
		return
	}

	code, errCode := strconv.Atoi(p.Block(0))
	claimedSID, errSID := strconv.Atoi(p.Block(1))
	username := p.Block(2)
	rights, errRights := strconv.Atoi(p.Block(3))
	if errCode != nil || errSID != nil || errRights != nil {
		slog.Error("malformed client auth request", "remote", n.IP(), "blocks", p.Blocks)
		n.Disconnect()
		return
	}

	verdict := wire.InvalidKeySession

	if h.reg.IsUserAuthorized(username) {
		storedSID, _ := h.reg.UserSessionID(username)
		active := h.reg.IsUserSessionActivated(storedSID)

		switch {
		case claimedSID != int(storedSID):
			verdict = wire.InvalidSessionMatch

		case active:
			if code == wire.EndConnection {
				// The node is handing the player back; no reply.
				h.reg.UnauthorizeUser(username)
				slog.Info("session ended by server", "username", username, "node", n.NodeID())
				return
			}
			verdict = wire.AlreadyAuthorized

		default:
			h.reg.ActivateUserSession(storedSID, n.SessionID())
			verdict = wire.Success
			slog.Info("session activated", "username", username, "session_id", storedSID, "node", n.NodeID())
		}
	}

	n.Send(clientAuthReply(verdict, username, claimedSID, rights))
}

// isAlnum reports whether s is non-empty ASCII letters and digits only.
func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

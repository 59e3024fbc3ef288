package login

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/udisondev/wrauth/internal/catalog"
	"github.com/udisondev/wrauth/internal/metrics"
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

// HandlerFunc обрабатывает один входящий пакет клиента.
type HandlerFunc func(ctx context.Context, c *Client, p wire.Packet)

// Handler maps client packet ids to their handlers. Handlers are the only
// mutators of a connection's authorization state.
type Handler struct {
	users    UserCatalog
	reg      *registry.Registry
	handlers map[uint16]HandlerFunc
}

// NewHandler builds the handler table for the client channel.
func NewHandler(users UserCatalog, reg *registry.Registry) *Handler {
	h := &Handler{users: users, reg: reg}
	h.handlers = map[uint16]HandlerFunc{
		wire.IDLauncher:   h.handleLauncher,
		wire.IDServerList: h.handleServerList,
		wire.IDNickName:   h.handleSetNickname,
	}
	return h
}

// Lookup returns the handler for the packet id.
func (h *Handler) Lookup(id uint16) (HandlerFunc, bool) {
	fn, ok := h.handlers[id]
	return fn, ok
}

// handleLauncher answers a freshly connected launcher. No state change.
func (h *Handler) handleLauncher(_ context.Context, c *Client, _ wire.Packet) {
	c.Send(launcherReply())
}

// handleServerList is the login exchange: credential check, session
// reconciliation, and the server-list reply.
//
// Blocks: [2]=username, [3]=plain password (hashed here with the per-user salt).
func (h *Handler) handleServerList(ctx context.Context, c *Client, p wire.Packet) {
	username := p.Block(2)
	password := p.Block(3)

	if len(username) < 3 || !isAlnum(username) {
		metrics.LoginResults.WithLabelValues("invalid_input").Inc()
		c.Send(serverListError(ErrEnterIDError))
		c.Disconnect()
		return
	}
	if len(password) < 3 {
		metrics.LoginResults.WithLabelValues("invalid_input").Inc()
		c.Send(serverListError(ErrEnterPasswordError))
		c.Disconnect()
		return
	}

	rec, err := h.users.LookupUser(ctx, username)
	if err != nil {
		slog.Error("catalog error during login", "username", username, "remote", c.IP(), "err", err)
		c.Disconnect()
		return
	}
	if rec == nil {
		metrics.LoginResults.WithLabelValues("wrong_user").Inc()
		c.Send(serverListError(ErrWrongUser))
		c.Disconnect()
		return
	}

	hashed := catalog.HashPassword(password, rec.Salt)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(rec.PasswordHash)) != 1 {
		metrics.LoginResults.WithLabelValues("wrong_pw").Inc()
		slog.Warn("wrong password", "username", username, "remote", c.IP())
		c.Send(serverListError(ErrWrongPW))
		c.Disconnect()
		return
	}

	if rec.Rights == 0 {
		metrics.LoginResults.WithLabelValues("banned").Inc()
		slog.Warn("banned account rejected", "username", username, "remote", c.IP())
		c.Send(serverListError(ErrBanned))
		c.Disconnect()
		return
	}

	// Session reconciliation. An inactive leftover session means the player
	// backed out of the server-selection screen or was rejected by a game
	// server; it is replaced silently. An active one means the account is
	// playing right now.
	existing := h.reg.IsUserAuthorized(rec.Username)
	sid, _ := h.reg.UserSessionID(rec.Username)
	active := h.reg.IsUserSessionActivated(sid)

	if existing && active {
		metrics.LoginResults.WithLabelValues("already_logged_in").Inc()
		c.Send(serverListError(ErrAlreadyLoggedIn))
		c.Disconnect()
		return
	}

	if existing {
		h.reg.UnauthorizeUser(rec.Username)
	}

	if err := c.Authorize(rec.Username, rec.Displayname, rec.Rights); err != nil {
		// Only reachable on session-id exhaustion; fail fast.
		slog.Error("failed to authorize user", "username", rec.Username, "err", err)
		c.Disconnect()
		return
	}

	if rec.Displayname == "" {
		// First login: prompt the nickname dialog and keep the connection
		// for the SetNickname packet.
		metrics.LoginResults.WithLabelValues("new_nickname").Inc()
		c.Send(serverListError(ErrNewNickname))
		return
	}

	metrics.LoginResults.WithLabelValues("success").Inc()
	slog.Info("login ok", "username", rec.Username, "session_id", c.SessionID(), "remote", c.IP())
	c.Send(serverListSuccess(c, h.reg.SnapshotAuthorizedServers()))
	c.Disconnect()
}

// handleSetNickname sets a first-time nickname.
//
// Blocks: [0]=new nickname. Requires an authorized client; the validation
// errors reuse the ServerList envelope.
func (h *Handler) handleSetNickname(ctx context.Context, c *Client, p wire.Packet) {
	if !c.Authorized() {
		slog.Info("SetNickname from unauthorized client ignored", "remote", c.IP())
		return
	}

	nickname := p.Block(0)

	if !isAlnum(nickname) || len(nickname) <= 3 {
		c.Send(serverListError(ErrIllegalNickname))
		return
	}
	if len(nickname) > 16 {
		c.Send(serverListError(ErrNicknameTooLong))
		return
	}

	taken, err := h.users.DisplaynameTaken(ctx, nickname)
	if err != nil {
		slog.Error("catalog error during nickname check", "username", c.Username(), "err", err)
		c.Disconnect()
		return
	}
	if taken {
		c.Send(serverListError(ErrNicknameTaken))
		return
	}

	c.UpdateDisplayname(nickname)
	if err := h.users.UpdateDisplayname(ctx, c.Username(), nickname); err != nil {
		slog.Error("failed to persist displayname", "username", c.Username(), "err", err)
		c.Disconnect()
		return
	}

	slog.Info("nickname set", "username", c.Username(), "displayname", nickname)
	c.Send(serverListSuccess(c, h.reg.SnapshotAuthorizedServers()))
	c.Disconnect()
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

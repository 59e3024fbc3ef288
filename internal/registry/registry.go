package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/udisondev/wrauth/internal/metrics"
	"github.com/udisondev/wrauth/internal/wire"
)

// ErrNoSessionIDAvailable is returned when all 32768 user session-id slots
// are live. Should be unreachable in practice.
var ErrNoSessionIDAvailable = errors.New("no user session id available")

// Client is the capability set the registry needs from a player connection.
type Client interface {
	Username() string
	Displayname() string
	Rights() int
}

// Node is the capability set the registry needs from a game-server
// connection. SnapshotAuthorizedServers feeds these fields straight into
// server-list replies.
type Node interface {
	NodeID() string
	Name() string
	Address() string
	Port() int
	CurrentPlayers() int
	ServerType() int
}

// UserSession — запись о логине игрока. Создаётся неактивной; активация
// происходит когда выбранный игровой сервер подтверждает вход.
type UserSession struct {
	Client    Client
	SessionID int16
	Activated bool
	BoundNode string // node session id, set on activation
}

// NodeSession is a live authorized game server.
type NodeSession struct {
	Node      Node
	SessionID string
}

// Registry is the single source of truth for who is authorized, with which
// session identifier, and in what phase. One mutex guards all state;
// operations are short map work plus a bounded counter walk, so coarse
// locking holds up. Callers must not hold unrelated locks while calling in.
type Registry struct {
	mu sync.Mutex

	users      map[string]*UserSession // keyed by username
	usersBySID map[int16]*UserSession
	nodes      map[string]*NodeSession // keyed by node id

	nextSID int16
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		users:      make(map[string]*UserSession),
		usersBySID: make(map[int16]*UserSession),
		nodes:      make(map[string]*NodeSession),
	}
}

// AuthorizeUser inserts a session for the client's username and returns its
// session id. Idempotent: an existing session keeps its id. The allocator is
// a rotating counter over [0, 32767] — ids stay small and reusable within
// the fixed-width wire field.
func (r *Registry) AuthorizeUser(c Client) (int16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.users[c.Username()]; ok {
		return s.SessionID, nil
	}

	sid, ok := r.allocateSID()
	if !ok {
		return 0, ErrNoSessionIDAvailable
	}

	s := &UserSession{Client: c, SessionID: sid}
	r.users[c.Username()] = s
	r.usersBySID[sid] = s
	metrics.AuthorizedUsers.Set(float64(len(r.users)))
	return sid, nil
}

// allocateSID advances the rotating counter until a free slot turns up.
// Caller holds r.mu.
func (r *Registry) allocateSID() (int16, bool) {
	for i := 0; i < wire.MaxUserSessionID+1; i++ {
		sid := r.nextSID
		if r.nextSID == wire.MaxUserSessionID {
			r.nextSID = 0
		} else {
			r.nextSID++
		}
		if _, taken := r.usersBySID[sid]; !taken {
			return sid, true
		}
	}
	return 0, false
}

// AuthorizeServer inserts a session for the node and returns its session id.
// Idempotent per node id. Ids are random UUIDs; collision probability is
// negligible so there is no retry logic.
func (r *Registry) AuthorizeServer(n Node) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.nodes[n.NodeID()]; ok {
		return s.SessionID
	}

	s := &NodeSession{Node: n, SessionID: uuid.NewString()}
	r.nodes[n.NodeID()] = s
	metrics.AuthorizedServers.Set(float64(len(r.nodes)))
	return s.SessionID
}

// UnauthorizeUser removes the user's session. Silent when absent.
func (r *Registry) UnauthorizeUser(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeUserLocked(username)
}

func (r *Registry) removeUserLocked(username string) {
	s, ok := r.users[username]
	if !ok {
		return
	}
	delete(r.users, username)
	delete(r.usersBySID, s.SessionID)
	metrics.AuthorizedUsers.Set(float64(len(r.users)))
}

// UnauthorizeServer removes the node's session AND every user session bound
// to it, in one critical section. When a game server disappears all players
// it claimed become reauthorizable elsewhere immediately.
func (r *Registry) UnauthorizeServer(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.nodes[nodeID]
	if !ok {
		return
	}
	delete(r.nodes, nodeID)
	metrics.AuthorizedServers.Set(float64(len(r.nodes)))

	for username, us := range r.users {
		if us.Activated && us.BoundNode == s.SessionID {
			r.removeUserLocked(username)
		}
	}
}

// IsUserAuthorized reports whether a session exists for the username.
func (r *Registry) IsUserAuthorized(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[username]
	return ok
}

// IsServerAuthorized reports whether a session exists for the node id.
func (r *Registry) IsServerAuthorized(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[nodeID]
	return ok
}

// UserSessionID returns the username's session id. ok=false when absent.
func (r *Registry) UserSessionID(username string) (int16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.users[username]
	if !ok {
		return 0, false
	}
	return s.SessionID, true
}

// ServerSessionID returns the node's session id. ok=false when absent.
func (r *Registry) ServerSessionID(nodeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.nodes[nodeID]
	if !ok {
		return "", false
	}
	return s.SessionID, true
}

// UserBySessionID returns the client that owns the session id, or nil.
func (r *Registry) UserBySessionID(sid int16) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.usersBySID[sid]
	if !ok {
		return nil
	}
	return s.Client
}

// ActivateUserSession promotes the session from "login issued" to "joined a
// game server" and records which node claimed it. Returns false when no such
// session exists.
func (r *Registry) ActivateUserSession(sid int16, boundNodeSessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.usersBySID[sid]
	if !ok {
		return false
	}
	s.Activated = true
	s.BoundNode = boundNodeSessionID
	return true
}

// IsUserSessionActivated reports the activation flag for the session id.
func (r *Registry) IsUserSessionActivated(sid int16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.usersBySID[sid]
	return ok && s.Activated
}

// AuthorizedUserCount returns the number of live user sessions.
func (r *Registry) AuthorizedUserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// AuthorizedServerCount returns the number of live node sessions.
func (r *Registry) AuthorizedServerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// SnapshotAuthorizedServers returns the current node sessions in a stable
// order (node id ascending) for inclusion in server-list replies.
func (r *Registry) SnapshotAuthorizedServers() []NodeSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]NodeSession, 0, len(r.nodes))
	for _, s := range r.nodes {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Node.NodeID() < out[j].Node.NodeID()
	})
	return out
}

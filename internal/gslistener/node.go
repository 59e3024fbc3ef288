package gslistener

import (
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/wrauth/internal/registry"
)

// maxPlayersCap is the largest load a node may report; the client assumes
// populations out of x/3600.
const maxPlayersCap = 3600

// Node represents one game-server connection on the internal port.
type Node struct {
	conn net.Conn
	ip   string
	reg  *registry.Registry

	writeMu sync.Mutex
	once    sync.Once

	mu             sync.Mutex
	nodeID         string
	name           string
	address        string
	port           int
	serverType     int
	currentPlayers int
	maxPlayers     int
	sessionID      string
	authorized     bool
}

// NewNode creates the node state for an accepted internal connection.
func NewNode(conn net.Conn, reg *registry.Registry) *Node {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &Node{conn: conn, ip: host, reg: reg, maxPlayers: maxPlayersCap}
}

// IP returns the node's remote IP address.
func (n *Node) IP() string {
	return n.ip
}

// NodeID returns the node's catalog identifier.
func (n *Node) NodeID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodeID
}

// Name returns the display name shown in server lists.
func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// Address returns the address clients use to reach the node.
func (n *Node) Address() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.address
}

// Port returns the node's client port.
func (n *Node) Port() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.port
}

// CurrentPlayers returns the last reported player count.
func (n *Node) CurrentPlayers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentPlayers
}

// ServerType returns the node's reported type.
func (n *Node) ServerType() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.serverType
}

// SessionID returns the session id assigned at authorization.
func (n *Node) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

// Authorized reports whether the node passed GameServerAuth.
func (n *Node) Authorized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authorized
}

// SetEndpoint records the address and port verified against the catalog.
func (n *Node) SetEndpoint(address string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.address = address
	n.port = port
}

// SetCurrentPlayers updates the cached heartbeat load, clamped to
// [0, maxPlayers].
func (n *Node) SetCurrentPlayers(players int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.currentPlayers = clamp(players, 0, n.maxPlayers)
}

// Authorize sets the node fields and obtains a session id from the registry.
// Capacity is clamped to the client's 3600 ceiling, load to capacity.
func (n *Node) Authorize(name, nodeID string, serverType, currentPlayers, maxPlayers int) {
	n.mu.Lock()
	n.name = name
	n.nodeID = nodeID
	n.serverType = serverType
	n.maxPlayers = clamp(maxPlayers, 0, maxPlayersCap)
	n.currentPlayers = clamp(currentPlayers, 0, n.maxPlayers)
	n.mu.Unlock()

	sid := n.reg.AuthorizeServer(n)

	n.mu.Lock()
	n.sessionID = sid
	n.authorized = true
	n.mu.Unlock()
}

// Send writes one encoded packet to the transport. A write failure is
// logged and drops the connection; it is never surfaced to the handler.
func (n *Node) Send(buf []byte) {
	n.writeMu.Lock()
	_, err := n.conn.Write(buf)
	n.writeMu.Unlock()
	if err != nil {
		slog.Error("failed to send packet", "remote", n.ip, "err", err)
		n.Disconnect()
	}
}

// Disconnect closes the transport. Idempotent. An authorized node is
// unauthorized in the registry first — the cascade over bound user sessions
// needs the registry to still see the node — and only then the local flag
// is cleared.
func (n *Node) Disconnect() {
	n.once.Do(func() {
		n.mu.Lock()
		wasAuthorized := n.authorized
		nodeID := n.nodeID
		n.mu.Unlock()

		if wasAuthorized {
			n.reg.UnauthorizeServer(nodeID)
			n.mu.Lock()
			n.authorized = false
			n.mu.Unlock()
		}
		_ = n.conn.Close()
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

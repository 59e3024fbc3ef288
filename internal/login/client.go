package login

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/wrauth/internal/registry"
)

// Client represents a single launcher/login connection. The player side of
// the protocol: XOR keys 0x96 (send) / 0xC3 (receive).
type Client struct {
	conn net.Conn
	ip   string
	reg  *registry.Registry

	writeMu sync.Mutex
	once    sync.Once

	mu          sync.Mutex
	username    string
	displayname string
	rights      int
	sessionID   int16
	authorized  bool
}

// NewClient creates the client state for an accepted connection.
func NewClient(conn net.Conn, reg *registry.Registry) *Client {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &Client{conn: conn, ip: host, reg: reg}
}

// IP returns the client's remote IP address.
func (c *Client) IP() string {
	return c.ip
}

// Username returns the authorized account name.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Displayname returns the in-game nickname, empty until first set.
func (c *Client) Displayname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayname
}

// Rights returns the account's rights level.
func (c *Client) Rights() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rights
}

// SessionID returns the session id assigned at authorization.
func (c *Client) SessionID() int16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Authorized reports whether the login exchange succeeded on this connection.
func (c *Client) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// Authorize sets the account fields and obtains a session id from the
// registry. The registry holds this Client, so the fields must be in place
// before the insert.
func (c *Client) Authorize(username, displayname string, rights int) error {
	c.mu.Lock()
	c.username = username
	c.displayname = displayname
	c.rights = rights
	c.mu.Unlock()

	sid, err := c.reg.AuthorizeUser(c)
	if err != nil {
		return fmt.Errorf("authorizing %q: %w", username, err)
	}

	c.mu.Lock()
	c.sessionID = sid
	c.authorized = true
	c.mu.Unlock()
	return nil
}

// UpdateDisplayname mutates the nickname. The registry entry holds the same
// Client pointer, so no separate registry update is needed.
func (c *Client) UpdateDisplayname(displayname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayname = displayname
}

// Send writes one encoded packet to the transport. A write failure is
// logged and drops the connection; it is never surfaced to the handler.
func (c *Client) Send(buf []byte) {
	c.writeMu.Lock()
	_, err := c.conn.Write(buf)
	c.writeMu.Unlock()
	if err != nil {
		slog.Error("failed to send packet", "remote", c.ip, "err", err)
		c.Disconnect()
	}
}

// Disconnect closes the transport. Idempotent. The user session, if any,
// stays in the registry: the client drops the link after picking a server
// and the chosen node confirms the join later. Inactive leftovers are
// replaced on the next login; active ones end via END_CONNECTION or the
// node-loss cascade.
func (c *Client) Disconnect() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}

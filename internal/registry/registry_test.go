package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/wrauth/internal/wire"
)

// stubClient реализует Client для unit тестов.
type stubClient struct {
	username    string
	displayname string
	rights      int
}

func (c *stubClient) Username() string    { return c.username }
func (c *stubClient) Displayname() string { return c.displayname }
func (c *stubClient) Rights() int         { return c.rights }

// stubNode реализует Node для unit тестов.
type stubNode struct {
	id      string
	name    string
	address string
	port    int
	players int
	stype   int
}

func (n *stubNode) NodeID() string      { return n.id }
func (n *stubNode) Name() string        { return n.name }
func (n *stubNode) Address() string     { return n.address }
func (n *stubNode) Port() int           { return n.port }
func (n *stubNode) CurrentPlayers() int { return n.players }
func (n *stubNode) ServerType() int     { return n.stype }

func TestAuthorizeUser_AllocatesSequentialIDs(t *testing.T) {
	r := New()

	for i := range 5 {
		sid, err := r.AuthorizeUser(&stubClient{username: fmt.Sprintf("user%d", i)})
		require.NoError(t, err)
		assert.Equal(t, int16(i), sid)
	}
	assert.Equal(t, 5, r.AuthorizedUserCount())
}

func TestAuthorizeUser_Idempotent(t *testing.T) {
	r := New()
	c := &stubClient{username: "alice"}

	sid1, err := r.AuthorizeUser(c)
	require.NoError(t, err)
	sid2, err := r.AuthorizeUser(c)
	require.NoError(t, err)

	assert.Equal(t, sid1, sid2)
	assert.Equal(t, 1, r.AuthorizedUserCount())
}

func TestAuthorizeUser_IDsUniqueAndSingleSessionPerUsername(t *testing.T) {
	r := New()

	seen := make(map[int16]struct{})
	for i := range 1000 {
		sid, err := r.AuthorizeUser(&stubClient{username: fmt.Sprintf("user%d", i)})
		require.NoError(t, err)
		_, dup := seen[sid]
		require.False(t, dup, "session id %d allocated twice", sid)
		seen[sid] = struct{}{}
	}
	assert.Equal(t, 1000, r.AuthorizedUserCount())
}

func TestAuthorizeUser_RotationWrapsAndSkipsLiveIDs(t *testing.T) {
	r := New()

	_, err := r.AuthorizeUser(&stubClient{username: "a"}) // id 0
	require.NoError(t, err)
	_, err = r.AuthorizeUser(&stubClient{username: "b"}) // id 1
	require.NoError(t, err)

	// Jump the counter to the end of the space: the next allocation takes
	// 32767, the one after wraps to 0 and must skip both live ids.
	r.mu.Lock()
	r.nextSID = wire.MaxUserSessionID
	r.mu.Unlock()

	sid, err := r.AuthorizeUser(&stubClient{username: "c"})
	require.NoError(t, err)
	assert.Equal(t, int16(wire.MaxUserSessionID), sid)

	sid, err = r.AuthorizeUser(&stubClient{username: "d"})
	require.NoError(t, err)
	assert.Equal(t, int16(2), sid)

	// Freed slots become reusable on the next pass.
	r.UnauthorizeUser("b")
	r.mu.Lock()
	r.nextSID = 0
	r.mu.Unlock()

	sid, err = r.AuthorizeUser(&stubClient{username: "e"})
	require.NoError(t, err)
	assert.Equal(t, int16(1), sid)
}

func TestAuthorizeUser_ExhaustionFails(t *testing.T) {
	if testing.Short() {
		t.Skip("fills the whole 32768-slot space")
	}
	r := New()

	for i := range wire.MaxUserSessionID + 1 {
		_, err := r.AuthorizeUser(&stubClient{username: fmt.Sprintf("user%d", i)})
		require.NoError(t, err)
	}
	assert.Equal(t, wire.MaxUserSessionID+1, r.AuthorizedUserCount())

	_, err := r.AuthorizeUser(&stubClient{username: "overflow"})
	require.ErrorIs(t, err, ErrNoSessionIDAvailable)
	assert.Equal(t, wire.MaxUserSessionID+1, r.AuthorizedUserCount())
}

func TestUnauthorizeUser_SilentOnAbsent(t *testing.T) {
	r := New()
	r.UnauthorizeUser("ghost")
	assert.Equal(t, 0, r.AuthorizedUserCount())
}

func TestUserLookups(t *testing.T) {
	r := New()
	c := &stubClient{username: "alice", displayname: "Ally", rights: 1}

	sid, err := r.AuthorizeUser(c)
	require.NoError(t, err)

	assert.True(t, r.IsUserAuthorized("alice"))
	assert.False(t, r.IsUserAuthorized("bob"))

	got, ok := r.UserSessionID("alice")
	require.True(t, ok)
	assert.Equal(t, sid, got)

	_, ok = r.UserSessionID("bob")
	assert.False(t, ok)

	assert.Equal(t, c, r.UserBySessionID(sid))
	assert.Nil(t, r.UserBySessionID(sid+1))
}

func TestActivateUserSession(t *testing.T) {
	r := New()
	sid, err := r.AuthorizeUser(&stubClient{username: "alice"})
	require.NoError(t, err)

	assert.False(t, r.IsUserSessionActivated(sid))
	assert.True(t, r.ActivateUserSession(sid, "node-session"))
	assert.True(t, r.IsUserSessionActivated(sid))

	// Remains activated until the session is removed.
	r.UnauthorizeUser("alice")
	assert.False(t, r.IsUserSessionActivated(sid))
}

func TestActivateUserSession_MissingSession(t *testing.T) {
	r := New()
	assert.False(t, r.ActivateUserSession(42, "node-session"))
}

func TestAuthorizeServer_Idempotent(t *testing.T) {
	r := New()
	n := &stubNode{id: "srv1"}

	sid1 := r.AuthorizeServer(n)
	sid2 := r.AuthorizeServer(n)

	assert.NotEmpty(t, sid1)
	assert.Equal(t, sid1, sid2)
	assert.Equal(t, 1, r.AuthorizedServerCount())
}

func TestServerLookups(t *testing.T) {
	r := New()
	sid := r.AuthorizeServer(&stubNode{id: "srv1"})

	assert.True(t, r.IsServerAuthorized("srv1"))
	assert.False(t, r.IsServerAuthorized("srv2"))

	got, ok := r.ServerSessionID("srv1")
	require.True(t, ok)
	assert.Equal(t, sid, got)

	_, ok = r.ServerSessionID("srv2")
	assert.False(t, ok)
}

func TestUnauthorizeServer_CascadesBoundUsers(t *testing.T) {
	r := New()

	nodeSID := r.AuthorizeServer(&stubNode{id: "srv1"})
	otherSID := r.AuthorizeServer(&stubNode{id: "srv2"})

	bobSID, err := r.AuthorizeUser(&stubClient{username: "bob"})
	require.NoError(t, err)
	carolSID, err := r.AuthorizeUser(&stubClient{username: "carol"})
	require.NoError(t, err)
	daveSID, err := r.AuthorizeUser(&stubClient{username: "dave"})
	require.NoError(t, err)

	require.True(t, r.ActivateUserSession(bobSID, nodeSID))
	require.True(t, r.ActivateUserSession(carolSID, nodeSID))
	require.True(t, r.ActivateUserSession(daveSID, otherSID))

	r.UnauthorizeServer("srv1")

	assert.False(t, r.IsServerAuthorized("srv1"))
	assert.False(t, r.IsUserAuthorized("bob"))
	assert.False(t, r.IsUserAuthorized("carol"))
	assert.True(t, r.IsUserAuthorized("dave"), "users bound to другие ноды не должны пострадать")
	assert.Equal(t, 1, r.AuthorizedUserCount())

	// Released ids are reusable: a fresh login for bob succeeds.
	_, err = r.AuthorizeUser(&stubClient{username: "bob"})
	require.NoError(t, err)
}

func TestUnauthorizeServer_SilentOnAbsent(t *testing.T) {
	r := New()
	r.UnauthorizeServer("ghost")
	assert.Equal(t, 0, r.AuthorizedServerCount())
}

func TestSnapshotAuthorizedServers_StableOrder(t *testing.T) {
	r := New()
	r.AuthorizeServer(&stubNode{id: "gamma"})
	r.AuthorizeServer(&stubNode{id: "alpha"})
	r.AuthorizeServer(&stubNode{id: "beta"})

	snap := r.SnapshotAuthorizedServers()
	require.Len(t, snap, 3)
	assert.Equal(t, "alpha", snap[0].Node.NodeID())
	assert.Equal(t, "beta", snap[1].Node.NodeID())
	assert.Equal(t, "gamma", snap[2].Node.NodeID())
}

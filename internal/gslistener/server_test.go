package gslistener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/wrauth/internal/config"
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

func startServer(t *testing.T, servers ServerCatalog, reg *registry.Registry) net.Addr {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(config.Default(), servers, reg)
	go func() {
		_ = srv.Serve(ctx, ln)
	}()

	return ln.Addr()
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_HelloAndNodeAuth(t *testing.T) {
	reg := registry.New()
	addr := startServer(t, srv1Catalog(), reg)
	conn := dial(t, addr)

	hello := recvPacket(t, conn)
	assert.Equal(t, wire.IDConnection, hello.ID)

	_, err := conn.Write(wire.NewOut(wire.IDGameServerAuthentication).
		Append(1).
		Append("srv1").
		Append("Alpha").
		Append("10.0.0.1").
		Append(5340).
		Append(0).
		Append(0).
		Append(500).
		Build(wire.InternalXorGameSend))
	require.NoError(t, err)

	reply := recvPacket(t, conn)
	require.Equal(t, wire.IDGameServerAuthentication, reply.ID)
	assert.Equal(t, "1", reply.Block(0))
	assert.True(t, reg.IsServerAuthorized("srv1"))
}

func TestServer_DisconnectRevokesNodeSession(t *testing.T) {
	reg := registry.New()
	addr := startServer(t, srv1Catalog(), reg)
	conn := dial(t, addr)

	recvPacket(t, conn) // hello

	_, err := conn.Write(wire.NewOut(wire.IDGameServerAuthentication).
		Append(1).
		Append("srv1").
		Append("Alpha").
		Append("10.0.0.1").
		Append(5340).
		Append(0).
		Append(0).
		Append(500).
		Build(wire.InternalXorGameSend))
	require.NoError(t, err)
	recvPacket(t, conn) // auth ok

	require.True(t, reg.IsServerAuthorized("srv1"))

	// Обрыв соединения снимает сессию ноды.
	conn.Close()

	assert.Eventually(t, func() bool {
		return !reg.IsServerAuthorized("srv1")
	}, 2*time.Second, 10*time.Millisecond)
}

package login

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/wrauth/internal/config"
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

// startServer запускает listener на эфемерном порту и возвращает адрес.
func startServer(t *testing.T, users UserCatalog, reg *registry.Registry) net.Addr {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(config.Default(), users, reg)
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

func TestServer_SendsHelloOnConnect(t *testing.T) {
	addr := startServer(t, &MockUserCatalog{}, registry.New())
	conn := dial(t, addr)

	hello := recvPacket(t, conn)
	assert.Equal(t, wire.IDConnection, hello.ID)
}

func TestServer_FullLoginExchange(t *testing.T) {
	reg := registry.New()
	addr := startServer(t, aliceCatalog("Ally", 1), reg)
	conn := dial(t, addr)

	recvPacket(t, conn) // hello

	// Launcher handshake.
	_, err := conn.Write(wire.NewOut(wire.IDLauncher).Build(wire.ClientXorRecv))
	require.NoError(t, err)
	launcher := recvPacket(t, conn)
	assert.Equal(t, wire.IDLauncher, launcher.ID)

	// Login.
	_, err = conn.Write(wire.NewOut(wire.IDServerList).
		Append(0).
		Append(0).
		Append("alice").
		Append("pw").
		Build(wire.ClientXorRecv))
	require.NoError(t, err)

	reply := recvPacket(t, conn)
	require.Equal(t, wire.IDServerList, reply.ID)
	assert.Equal(t, "1", reply.Block(0))
	assert.Equal(t, "alice", reply.Block(3))

	// Server closes after the success reply.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	assert.True(t, reg.IsUserAuthorized("alice"))
}

func TestServer_UnknownPacketIgnored(t *testing.T) {
	addr := startServer(t, &MockUserCatalog{}, registry.New())
	conn := dial(t, addr)

	recvPacket(t, conn) // hello

	// Нет обработчика — пакет логируется и молча отбрасывается,
	// соединение живо.
	_, err := conn.Write(wire.NewOut(0x7777).Append("x").Build(wire.ClientXorRecv))
	require.NoError(t, err)

	_, err = conn.Write(wire.NewOut(wire.IDLauncher).Build(wire.ClientXorRecv))
	require.NoError(t, err)
	launcher := recvPacket(t, conn)
	assert.Equal(t, wire.IDLauncher, launcher.ID)
}

func TestServer_UndecryptableBufferDisconnects(t *testing.T) {
	addr := startServer(t, &MockUserCatalog{}, registry.New())
	conn := dial(t, addr)

	recvPacket(t, conn) // hello

	// Мусор с неправильным ключом — канал рвётся.
	_, err := conn.Write([]byte("garbage with no frame"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadAll(conn)
	assert.NoError(t, err, "server closes the connection cleanly")
}

func TestServer_TwoPacketsInOneWrite(t *testing.T) {
	addr := startServer(t, &MockUserCatalog{}, registry.New())
	conn := dial(t, addr)

	recvPacket(t, conn) // hello

	var buf []byte
	buf = append(buf, wire.NewOut(wire.IDLauncher).Build(wire.ClientXorRecv)...)
	buf = append(buf, wire.NewOut(wire.IDLauncher).Build(wire.ClientXorRecv)...)
	_, err := conn.Write(buf)
	require.NoError(t, err)

	first := recvPacket(t, conn)
	second := recvPacket(t, conn)
	assert.Equal(t, wire.IDLauncher, first.ID)
	assert.Equal(t, wire.IDLauncher, second.ID)
}

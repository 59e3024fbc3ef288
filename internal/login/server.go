package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/wrauth/internal/config"
	"github.com/udisondev/wrauth/internal/registry"
	"github.com/udisondev/wrauth/internal/wire"
)

// Server is the launcher/login listener players connect to.
type Server struct {
	cfg     config.Config
	reg     *registry.Registry
	handler *Handler
}

// NewServer creates the client listener.
func NewServer(cfg config.Config, users UserCatalog, reg *registry.Registry) *Server {
	return &Server{
		cfg:     cfg,
		reg:     reg,
		handler: NewHandler(users, reg),
	}
}

// Run binds the client port and accepts connections until cancellation.
// A bind failure is fatal and reported to the caller.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ServerIP, wire.PortAuthClient)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts client connections on ln until ctx is cancelled, then waits
// for the per-connection goroutines to run their disconnect paths.
// Тесты передают сюда listener на эфемерном порту.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	slog.Info("client listener started", "address", ln.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to accept client connection", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection owns one client socket: hello, then the read loop.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	client := NewClient(conn, s.reg)
	defer client.Disconnect()

	unwatch := context.AfterFunc(ctx, client.Disconnect)
	defer unwatch()

	slog.Info("client connected", "remote", client.IP())

	client.Send(wire.Hello(wire.ClientXorSend))

	s.readLoop(ctx, conn, client)
}

// readLoop is the inbound pipeline: read up to 1024 bytes, decode the buffer
// into framed packets, dispatch each in arrival order on its own goroutine
// so a slow handler does not block reading. An empty read or a codec failure
// ends the loop. A panic escaping a handler is caught at this boundary.
//
// One buffer serves the connection's whole lifetime: Decode copies the
// frames out, so the next read may overwrite it.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, client *Client) {
	buf := make([]byte, wire.ReadBufSize)
	for {
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			return
		}

		packets, err := wire.Decode(buf[:n], wire.ClientXorRecv)
		if err != nil {
			slog.Error("cannot decode client buffer", "remote", client.IP(), "err", err)
			client.Disconnect()
			return
		}

		for _, pkt := range packets {
			fn, ok := s.handler.Lookup(pkt.ID)
			if !ok {
				slog.Info("no handler for packet", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", client.IP())
				continue
			}
			go dispatch(ctx, client, pkt, fn)
		}
	}
}

// dispatch runs one handler invocation, recovering any panic.
func dispatch(ctx context.Context, client *Client, pkt wire.Packet, fn HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic",
				"id", fmt.Sprintf("0x%04X", pkt.ID),
				"remote", client.IP(),
				"panic", r)
			client.Disconnect()
		}
	}()
	fn(ctx, client, pkt)
}

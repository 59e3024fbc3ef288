package gslistener

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

// Server is the internal listener game-server nodes connect to.
type Server struct {
	cfg     config.Config
	reg     *registry.Registry
	handler *Handler
}

// NewServer creates the internal listener.
func NewServer(cfg config.Config, servers ServerCatalog, reg *registry.Registry) *Server {
	return &Server{
		cfg:     cfg,
		reg:     reg,
		handler: NewHandler(servers, reg),
	}
}

// Run binds the internal port and accepts node connections until
// cancellation. A bind failure is fatal and reported to the caller.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ServerIP, wire.PortInternal)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts node connections on ln until ctx is cancelled, then waits
// for the per-connection goroutines to run their disconnect paths — a
// cancelled listener must still cascade over the sessions its nodes held.
// Тесты передают сюда listener на эфемерном порту.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	slog.Info("internal listener started", "address", ln.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to accept node connection", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection owns one node socket: hello, then the read loop. On exit
// the node's disconnect path revokes its session and cascades over the user
// sessions it claimed.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	node := NewNode(conn, s.reg)
	defer node.Disconnect()

	unwatch := context.AfterFunc(ctx, node.Disconnect)
	defer unwatch()

	slog.Info("node connected", "remote", node.IP())

	node.Send(wire.Hello(wire.InternalXorAuthSend))

	s.readLoop(ctx, conn, node)
}

// readLoop mirrors the client pipeline on the internal channel. One buffer
// serves the connection's whole lifetime: Decode copies the frames out, so
// the next read may overwrite it.
func (s *Server) readLoop(ctx context.Context, conn net.Conn, node *Node) {
	buf := make([]byte, wire.ReadBufSize)
	for {
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			return
		}

		packets, err := wire.Decode(buf[:n], wire.InternalXorGameSend)
		if err != nil {
			slog.Error("cannot decode node buffer", "remote", node.IP(), "err", err)
			node.Disconnect()
			return
		}

		for _, pkt := range packets {
			fn, ok := s.handler.Lookup(pkt.ID)
			if !ok {
				slog.Info("no handler for packet", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", node.IP())
				continue
			}
			go dispatch(ctx, node, pkt, fn)
		}
	}
}

// dispatch runs one handler invocation, recovering any panic.
func dispatch(ctx context.Context, node *Node, pkt wire.Packet, fn HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic",
				"id", fmt.Sprintf("0x%04X", pkt.ID),
				"remote", node.IP(),
				"panic", r)
			node.Disconnect()
		}
	}()
	fn(ctx, node, pkt)
}

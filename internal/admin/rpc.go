// Package admin implements the operator control plane: a Unix-socket JSON
// server embedded in mostrod, and the client the mostro-admin CLI dials to
// reach it. Every RPC ultimately calls the same Engine/database methods the
// Nostr-facing dispatcher calls, so an admin action and a peer action never
// diverge in behavior.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"mostrod/internal/database"
	"mostrod/internal/engine"
	"mostrod/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request is one operator command, decoded from a single JSON document per
// connection.
type Request struct {
	Command string `json:"command"`
	OrderID string `json:"order_id,omitempty"`
	Pubkey  string `json:"pubkey,omitempty"`
}

// Response carries either Data or Error, never both.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server exposes admin operations over a Unix domain socket. Only reachable
// by whoever can open the socket file, which is the same trust boundary the
// operator's shell session already has.
type Server struct {
	engine   *engine.Engine
	users    *database.UserRepository
	disputes *database.DisputeRepository
	orphans  *database.OrphanRepository
	socket   string
}

func NewServer(eng *engine.Engine, users *database.UserRepository, disputes *database.DisputeRepository, orphans *database.OrphanRepository, socketPath string) *Server {
	return &Server{engine: eng, users: users, disputes: disputes, orphans: orphans, socket: socketPath}
}

// ListenAndServe accepts connections until ctx is canceled. Each connection
// carries exactly one request/response pair, closed after the reply is
// written.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socket)
	ln, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("listen on admin socket: %w", err)
	}
	defer ln.Close()
	defer os.Remove(s.socket)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept admin connection: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		writeResponse(conn, errorResponse(fmt.Errorf("decode request: %w", err)))
		return
	}

	resp := s.dispatch(ctx, req)
	writeResponse(conn, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	var (
		data any
		err  error
	)

	switch req.Command {
	case "cancel-order":
		data, err = s.engine.AdminCancel(ctx, req.OrderID, req.Pubkey, uuid.New().String())
	case "settle-order":
		data, err = s.engine.AdminSettle(ctx, req.OrderID, req.Pubkey, uuid.New().String())
	case "take-dispute":
		err = s.engine.AddSolver(ctx, req.OrderID, req.Pubkey)
	case "add-solver":
		err = s.setRole(ctx, req.Pubkey, s.users.SetSolver, true)
	case "remove-solver":
		err = s.setRole(ctx, req.Pubkey, s.users.SetSolver, false)
	case "ban-user":
		err = s.setRole(ctx, req.Pubkey, s.users.SetBanned, true)
	case "unban-user":
		err = s.setRole(ctx, req.Pubkey, s.users.SetBanned, false)
	case "orphans":
		data, err = s.orphans.ListUnresolved(ctx)
	default:
		err = fmt.Errorf("unknown admin command %q", req.Command)
	}

	if err != nil {
		logger.Warn("admin command failed", zap.String("command", req.Command), zap.Error(err))
		return errorResponse(err)
	}
	return okResponse(data)
}

func (s *Server) setRole(ctx context.Context, pubkey string, set func(context.Context, string, bool) error, value bool) error {
	if pubkey == "" {
		return errors.New("pubkey is required")
	}
	return set(ctx, pubkey, value)
}

func writeResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		logger.Warn("write admin response", zap.Error(err))
	}
}

func errorResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

func okResponse(data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse(fmt.Errorf("marshal response data: %w", err))
	}
	return Response{OK: true, Data: raw}
}

// Client dials a Server's socket for one request at a time. mostro-admin
// builds one per invocation; there is no persistent connection to manage.
type Client struct {
	socket string
}

func NewClient(socketPath string) *Client {
	return &Client{socket: socketPath}
}

func (c *Client) Call(req Request) (*Response, error) {
	conn, err := net.Dial("unix", c.socket)
	if err != nil {
		return nil, fmt.Errorf("dial admin socket %s: %w", c.socket, err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send admin request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read admin response: %w", err)
	}
	if !resp.OK {
		return &resp, errors.New(resp.Error)
	}
	return &resp, nil
}

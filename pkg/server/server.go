package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/protocol"
	"github.com/richard-senior/xthread/pkg/tools"
	"github.com/richard-senior/xthread/pkg/transport"
)

// Server answers MCP requests read from a transport, one at a time
type Server struct {
	transport transport.Transport
	tools     *tools.Dispatcher
	info      protocol.ServerInfo
	handlers  map[string]HandlerFunc
	stopping  bool
}

// HandlerFunc handles one JSON-RPC method. Returning a *protocol.JsonRpcError
// chooses the error code, any other error is reported as an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// New creates a server that exposes the dispatcher's tools
func New(t transport.Transport, d *tools.Dispatcher, info protocol.ServerInfo) *Server {
	s := &Server{
		transport: t,
		tools:     d,
		info:      info,
		handlers:  make(map[string]HandlerFunc),
	}
	s.handlers[string(protocol.MethodInitialize)] = s.handleInitialize
	s.handlers[string(protocol.MethodPing)] = s.handlePing
	s.handlers[string(protocol.MethodToolsList)] = s.handleToolsList
	s.handlers[string(protocol.MethodToolsCall)] = s.handleToolsCall
	s.handlers[string(protocol.MethodShutdown)] = s.handleShutdown
	for _, tool := range d.Definitions() {
		logger.Info("Registered tool:", tool.Name)
	}
	return s
}

// Start processes requests until the input ends, ctx is cancelled or the
// process is interrupted.
func (s *Server) Start(ctx context.Context) error {
	logger.Info("Starting MCP server")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.ProcessRequests(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("Received signal:", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	}
}

// ProcessRequests reads and answers requests until EOF. Malformed messages
// are answered with a parse error and skipped.
func (s *Server) ProcessRequests(ctx context.Context) error {
	for {
		req, err := s.transport.ReadRequest()
		if err != nil {
			var perr *transport.ParseError
			switch {
			case errors.Is(err, io.EOF):
				logger.Info("Input closed, shutting down")
				return nil
			case errors.As(err, &perr):
				logger.Warn("Discarding malformed message:", perr.Err.Error())
				if werr := s.transport.WriteResponse(protocol.NewJsonRpcErrorResponse(protocol.ErrParse, "Parse error", perr.Err.Error(), nil)); werr != nil {
					return werr
				}
				continue
			default:
				return err
			}
		}

		// if it is nil then no response is required
		resp := s.handleRequest(ctx, req)
		if resp == nil {
			continue
		}
		if err := s.transport.WriteResponse(resp); err != nil {
			return err
		}
		if s.stopping || ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse {
	logger.Info(">> ", req.Method)
	logger.Debug("Full request:", string(req.Params))

	if strings.HasPrefix(req.Method, "notifications/") || (req.IsNotification() && s.handlers[req.Method] == nil) {
		logger.Info("Received notification:", req.Method)
		return nil
	}

	handler := s.handlers[req.Method]
	if handler == nil {
		return protocol.NewJsonRpcErrorResponse(protocol.ErrMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil, req.ID)
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		var rpcErr *protocol.JsonRpcError
		if errors.As(err, &rpcErr) {
			return protocol.NewJsonRpcErrorResponse(rpcErr.Code, rpcErr.Message, rpcErr.Data, req.ID)
		}
		return protocol.NewJsonRpcErrorResponse(protocol.ErrInternal, err.Error(), nil, req.ID)
	}
	if req.IsNotification() {
		return nil
	}

	resp, err := protocol.NewJsonRpcResponse(result, req.ID)
	if err != nil {
		return protocol.NewJsonRpcErrorResponse(protocol.ErrInternal, "Failed to marshal result: "+err.Error(), nil, req.ID)
	}
	logger.Debug("Full response:", string(resp.Result))
	return resp
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	version := protocol.DefaultProtocolVersion
	if len(params) > 0 {
		var p initializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "invalid initialize parameters: " + err.Error()}
		}
		if p.ProtocolVersion != "" {
			version = p.ProtocolVersion
		}
		if p.ClientInfo.Name != "" {
			logger.Info(fmt.Sprintf("Client %s %s connected", p.ClientInfo.Name, p.ClientInfo.Version))
		}
	}
	logger.Info("Using protocol version:", version)

	return protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Server) handleShutdown(ctx context.Context, params json.RawMessage) (any, error) {
	logger.Info("Shutdown requested by client")
	s.stopping = true
	return struct{}{}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	return protocol.ToolsResponse{Tools: s.tools.Definitions()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "invalid tools/call parameters: " + err.Error()}
	}
	logger.Info("Tool call requested for:", p.Name)
	return s.tools.Call(ctx, p.Name, p.Arguments), nil
}

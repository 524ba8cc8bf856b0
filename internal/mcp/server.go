package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// PreToolUse is consulted before every tools/call dispatch. Returning
// an error blocks the call; the tool never executes.
type PreToolUse func(toolName string, args json.RawMessage) error

// Server speaks the MCP protocol over stdio: line-delimited JSON-RPC
// requests on stdin, responses on stdout. Logging goes to stderr so it
// never corrupts the protocol stream.
type Server struct {
	registry   *Registry
	info       ServerInfo
	logger     *zap.Logger
	preToolUse PreToolUse
}

// NewServer wires a tool registry behind the stdio transport.
func NewServer(registry *Registry, info ServerInfo, logger *zap.Logger) *Server {
	return &Server{registry: registry, info: info, logger: logger}
}

// SetPreToolUse installs the pre-tool-use guard (the security hook
// pipeline). Must be called before Run.
func (s *Server) SetPreToolUse(fn PreToolUse) { s.preToolUse = fn }

// Run reads requests from stdin until it closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	// Tool arguments can carry large drafts and work-product content.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	s.logger.Info("mcp server started", zap.String("name", s.info.Name), zap.String("version", s.info.Version))

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if resp := s.handleLine(ctx, line); resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to write response", zap.Error(err))
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading stdin: %w", err)
	}
	s.logger.Info("mcp server stopped (stdin closed)")
	return nil
}

// handleLine parses one request and produces its response, or nil for
// notifications and unparseable IDs.
func (s *Server) handleLine(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ErrCodeParse, Message: "Parse error", Data: err.Error()},
		}
	}

	// A request with no ID is a notification; nothing goes back.
	if req.ID == nil {
		if req.Method == "notifications/initialized" {
			s.logger.Info("client initialized")
		} else {
			s.logger.Debug("received notification", zap.String("method", req.Method))
		}
		return nil
	}

	s.logger.Debug("handling request", zap.String("method", req.Method), zap.String("id", string(req.ID)))

	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result, resp.Error = s.initialize(req.Params)
	case "tools/list":
		resp.Result = &ToolsListResult{Tools: s.registry.List()}
	case "tools/call":
		resp.Result, resp.Error = s.callTool(ctx, req.Params)
	default:
		resp.Error = &RPCError{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
	return resp
}

func (s *Server) initialize(params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "Invalid initialize params", Data: err.Error()}
		}
	}

	s.logger.Info("client connecting",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol_version", p.ProtocolVersion),
	)

	return &InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    ServerCapability{Tools: ToolsCapability{}},
		ServerInfo:      s.info,
	}, nil
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var call ToolsCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "Invalid tools/call params", Data: err.Error()}
	}

	tool := s.registry.Get(call.Name)
	if tool == nil {
		return nil, &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool not found: %s", call.Name)}
	}

	s.logger.Info("calling tool", zap.String("tool", call.Name))

	if s.preToolUse != nil {
		if err := s.preToolUse(call.Name, call.Arguments); err != nil {
			s.logger.Warn("tool call blocked by security hook",
				zap.String("tool", call.Name), zap.Error(err))
			return ErrorResult(err.Error()), nil
		}
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		s.logger.Error("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		return FailureResult(err), nil
	}
	return result, nil
}

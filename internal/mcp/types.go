package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

// The wire envelope is JSON-RPC 2.0 over line-delimited stdio. Only the
// message shapes taskflowmcp actually speaks live here: the handshake
// and the tool surface. The engine serves no prompts and no resources.

// Request is one incoming JSON-RPC message. ID is raw because clients
// may send a string, a number, or omit it entirely (a notification).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers one Request, echoing its ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// --- Handshake ---

// InitializeParams is the client's opening message.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult advertises what this server offers: tools, nothing
// else.
type InitializeResult struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Capabilities    ServerCapability `json:"capabilities"`
	ServerInfo      ServerInfo       `json:"serverInfo"`
}

// ServerCapability carries the single capability taskflowmcp has.
type ServerCapability struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability is the (empty) tools capability object.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo names the server in the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// --- Tool surface ---

// ToolDefinition is one tools/list entry.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the tools/list response.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolsCallParams is the tools/call request body.
type ToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolsCallResult is what every tool Execute returns: content blocks
// plus an error flag the caller's protocol layer understands.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of tool output. taskflowmcp only ever
// emits text blocks carrying JSON documents.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent wraps text in a content block.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// JSONResult marshals v as indented JSON into a successful result.
func JSONResult(v any) (*ToolsCallResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &ToolsCallResult{Content: []ContentBlock{TextContent(string(b))}}, nil
}

// NullResult is the nothing-found convention: get-style operations
// whose target does not exist return a literal JSON null, not an
// error.
func NullResult() *ToolsCallResult {
	return &ToolsCallResult{Content: []ContentBlock{TextContent("null")}}
}

// ErrorResult marks msg as a tool failure the client should surface.
func ErrorResult(msg string) *ToolsCallResult {
	return &ToolsCallResult{
		Content: []ContentBlock{TextContent(msg)},
		IsError: true,
	}
}

// FailureResult renders err into the error envelope, leading with the
// engine's typed error kind when the error carries one, so callers can
// distinguish NotFound from CycleError from a raw store failure.
func FailureResult(err error) *ToolsCallResult {
	var kinded *apperr.Error
	if errors.As(err, &kinded) {
		return ErrorResult(kinded.Error())
	}
	var cycle *apperr.CycleError
	if errors.As(err, &cycle) {
		return ErrorResult(string(apperr.KindCycle) + ": " + cycle.Error())
	}
	var archived *apperr.ArchivedTaskError
	if errors.As(err, &archived) {
		return ErrorResult(string(apperr.KindArchivedTask) + ": " + archived.Error())
	}
	return ErrorResult("tool execution failed: " + err.Error())
}

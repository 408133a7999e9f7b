// Package rpc implements a JSON-RPC 2.0 dispatcher over the workflow tools.
// It is transport agnostic: callers hand it one message and write back the
// returned bytes.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/recursiveflow/internal/domain"
	"github.com/sumire/recursiveflow/internal/tools"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// DefaultProtocolVersion is reported by initialize when the client does not ask for one.
const DefaultProtocolVersion = "2025-06-18"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and expects no reply.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ToolCaller is the tool registry surface used by the dispatcher.
type ToolCaller interface {
	List() []tools.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error)
}

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Dispatcher routes JSON-RPC messages to the tool registry.
type Dispatcher struct {
	tools ToolCaller
	info  ServerInfo
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(caller ToolCaller, info ServerInfo) *Dispatcher {
	return &Dispatcher{tools: caller, info: info}
}

// Handle processes one JSON-RPC message and returns the encoded response.
// Notifications produce a nil response.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return encode(errorResponse(nil, codeInvalidRequest, "batch requests are not supported"))
	}

	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return encode(errorResponse(nil, codeParseError, "parse error"))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return encode(errorResponse(req.ID, codeInvalidRequest, "invalid request"))
	}

	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	slog.Debug("rpc request", "request_id", reqID, "method", req.Method, "rpc_id", string(req.ID))

	result, rpcErr := d.dispatch(ctx, req.Method, req.Params)
	if rpcErr != nil {
		slog.Error("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		slog.Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}

	if req.isNotification() {
		return nil
	}
	return encode(rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "initialize":
		return d.initialize(params), nil
	case "ping", "notifications/initialized", "notifications/cancelled":
		return struct{}{}, nil
	case "tools/list":
		return map[string]any{"tools": d.tools.List()}, nil
	case "tools/call":
		return d.callTool(ctx, params)
	}

	// Tools are also callable directly by name with their arguments as params.
	res, err := d.tools.Call(ctx, method, params)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTool) {
			return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
		}
		return nil, mapCallError(err)
	}
	return res, nil
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

func (d *Dispatcher) initialize(params json.RawMessage) map[string]any {
	version := DefaultProtocolVersion
	var p initializeParams
	if len(params) > 0 && json.Unmarshal(params, &p) == nil && p.ProtocolVersion != "" {
		version = p.ProtocolVersion
	}
	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": d.info,
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func (d *Dispatcher) callTool(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params"}
	}

	res, err := d.tools.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, mapCallError(err)
	}

	text, err := json.Marshal(res)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "encode tool result"}
	}
	return callResult{
		Content: []textContent{{Type: "text", Text: string(text)}},
		IsError: res.IsError,
	}, nil
}

func mapCallError(err error) *rpcError {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnknownTool), errors.Is(err, domain.ErrInvalidInput), errors.As(err, &validationErr):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		slog.Error("unhandled tool error", "error", err)
		return &rpcError{Code: codeInternalError, Message: "internal error"}
	}
}

func errorResponse(id json.RawMessage, code int, message string) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func encode(resp rpcResponse) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to encode rpc response", "error", err)
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}

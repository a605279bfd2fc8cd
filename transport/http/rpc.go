package http

import (
	"encoding/json"
	"errors"

	"github.com/clearmesh/agentgate/core"
)

// JSON-RPC error codes. The table is part of the wire contract.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound    = -32001
	CodeAccessDenied    = -32002
	CodeSkillNotFound   = -32003
	CodeTaskCancelled   = -32004
	CodeTaskCompleted   = -32005
	CodeSessionRequired = -32006
)

// errInvalidParams marks a missing or malformed parameter before dispatch
// reaches the domain layer.
var errInvalidParams = errors.New("invalid params")

// RPCRequest is the inbound JSON-RPC envelope.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

// RPCError is the error member of a response envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RPCResponse is the outbound envelope; exactly one of Result and Error is
// set.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func rpcResult(id json.RawMessage, result any) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcError(id json.RawMessage, code int, message string) RPCResponse {
	return RPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// rpcErrorFor maps domain errors onto the wire code table. Anything
// unrecognized is an internal error; backend degradation is deliberately
// invisible here.
func rpcErrorFor(id json.RawMessage, err error) RPCResponse {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		return rpcError(id, CodeTaskNotFound, "task not found")
	case errors.Is(err, core.ErrAccessDenied):
		return rpcError(id, CodeAccessDenied, "access denied")
	case errors.Is(err, core.ErrSkillNotFound):
		return rpcError(id, CodeSkillNotFound, "skill not found")
	case errors.Is(err, core.ErrTaskCancelled):
		return rpcError(id, CodeTaskCancelled, "task already cancelled")
	case errors.Is(err, core.ErrTaskCompleted):
		return rpcError(id, CodeTaskCompleted, "task already completed")
	case errors.Is(err, core.ErrSessionRequired):
		return rpcError(id, CodeSessionRequired, "session required")
	default:
		return rpcError(id, CodeInternalError, "internal error")
	}
}

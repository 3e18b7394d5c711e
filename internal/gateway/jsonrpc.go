package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"comms-platform/pkg/logger"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// handleRPC adapts the tool surface to JSON-RPC 2.0 for clients speaking
// that protocol: tools/list mirrors GET /tools, tools/call mirrors
// POST /execute. Transport errors use RPC codes; the HTTP status is always
// 200 for well-formed RPC exchanges.
func (h *Handler) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeRPC(c, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: rpcParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: rpcInvalidRequest, Message: "invalid request"}})
		return
	}

	key := contextKey(c)
	switch req.Method {
	case "tools/list":
		writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: gin.H{"tools": h.Registry.Catalog(key)}})

	case "tools/call":
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: rpcInvalidParams, Message: "params must carry a tool name"}})
			return
		}
		writeRPC(c, h.callTool(c, key, req.ID, params.Name, params.Arguments))

	default:
		writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: rpcMethodNotFound, Message: "method not found"}})
	}
}

func (h *Handler) callTool(c *gin.Context, key AccessKey, id any, name string, args map[string]any) rpcResponse {
	def, err := h.Registry.Resolve(key, name)
	if err != nil {
		code := rpcMethodNotFound
		if errors.Is(err, ErrToolDisabled) {
			code = rpcInvalidRequest
		}
		return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: err.Error()}}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(def.InputSchema, args); err != nil {
		return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: rpcInvalidParams, Message: err.Error()}}
	}

	result, err := def.Execute(c.Request.Context(), key.SecurityContext(), args)
	if err != nil {
		status, msg := executionStatus(err)
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("tool execution failed", "tool", name, "err", err)
			msg = "tool execution failed"
		}
		return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: rpcInternalError, Message: msg, Data: gin.H{"http_status": status}}}
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func writeRPC(c *gin.Context, resp rpcResponse) {
	c.JSON(http.StatusOK, resp)
}

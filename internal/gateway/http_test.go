package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type staticAuthenticator struct {
	key AccessKey
}

func (a *staticAuthenticator) Authenticate(_ context.Context, token string) (AccessKey, error) {
	if token != "good-token" {
		return AccessKey{}, ErrInvalidKey
	}
	return a.key, nil
}

func echoTool(name string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "echoes its input",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"msg": map[string]any{"type": "string"},
			},
			"required": []string{"msg"},
		},
		Execute: func(ctx context.Context, sc SecurityContext, args map[string]any) (any, error) {
			return map[string]any{"echo": args["msg"], "tenant": sc.TenantID, "project": sc.ProjectID}, nil
		},
	}
}

func newTestServer(t *testing.T, key AccessKey) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := NewRegistry()
	registry.Register(echoTool("echo"))
	registry.Register(echoTool("hidden_tool"))

	h := NewHandler(&staticAuthenticator{key: key}, registry)
	r := gin.New()
	h.Mount(r.Group("/gateway"))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, token, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	method := http.MethodGet
	if body != nil {
		method = http.MethodPost
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestGatewayRejectsMissingOrBadToken(t *testing.T) {
	srv := newTestServer(t, AccessKey{TenantID: "t1", EnabledTools: []string{"echo"}})

	resp, _ := doJSON(t, srv, "", "/gateway/tools", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, srv, "wrong", "/gateway/tools", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayCatalogIsIntersection(t *testing.T) {
	srv := newTestServer(t, AccessKey{
		TenantID:     "t1",
		EnabledTools: []string{"echo", "retired_tool"},
	})

	resp, body := doJSON(t, srv, "good-token", "/gateway/tools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tools := body["tools"].([]any)
	require.Len(t, tools, 1, "tools missing from the registry are omitted silently")
	first := tools[0].(map[string]any)
	require.Equal(t, "echo", first["name"])
}

func TestGatewayExecuteEnvelope(t *testing.T) {
	srv := newTestServer(t, AccessKey{TenantID: "t1", ProjectID: "proj-9", EnabledTools: []string{"echo"}})

	resp, body := doJSON(t, srv, "good-token", "/gateway/execute", map[string]any{
		"tool": "echo",
		"args": map[string]any{"msg": "hello"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "echo", body["tool"])
	require.Contains(t, body, "duration_ms")

	result := body["result"].(map[string]any)
	require.Equal(t, "hello", result["echo"])
	require.Equal(t, "t1", result["tenant"])
	require.Equal(t, "proj-9", result["project"], "key-scoped identity reaches the tool")
}

func TestGatewayExecuteErrorClasses(t *testing.T) {
	srv := newTestServer(t, AccessKey{TenantID: "t1", EnabledTools: []string{"echo"}})

	// Unknown tool: 404.
	resp, body := doJSON(t, srv, "good-token", "/gateway/execute", map[string]any{"tool": "nonsense"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, false, body["ok"])

	// Registered but not enabled for this key: 403.
	resp, _ = doJSON(t, srv, "good-token", "/gateway/execute", map[string]any{"tool": "hidden_tool", "args": map[string]any{"msg": "x"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Schema violation: 400 with the offending field in the error.
	resp, body = doJSON(t, srv, "good-token", "/gateway/execute", map[string]any{"tool": "echo", "args": map[string]any{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error"], "msg")
}

func TestGatewayHealthIsOpen(t *testing.T) {
	srv := newTestServer(t, AccessKey{})
	resp, body := doJSON(t, srv, "", "/gateway/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestGatewayJSONRPC(t *testing.T) {
	srv := newTestServer(t, AccessKey{TenantID: "t1", EnabledTools: []string{"echo"}})

	// The envelope lives at the surface root.
	resp, body := doJSON(t, srv, "good-token", "/gateway", map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/list",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Len(t, result["tools"].([]any), 1)

	resp, body = doJSON(t, srv, "good-token", "/gateway", map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{"name": "echo", "arguments": map[string]any{"msg": "via rpc"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, body["error"])
	require.Equal(t, "via rpc", body["result"].(map[string]any)["echo"])

	_, body = doJSON(t, srv, "good-token", "/gateway", map[string]any{
		"jsonrpc": "2.0", "id": 3, "method": "tools/uninstall",
	})
	rpcErr := body["error"].(map[string]any)
	require.Equal(t, float64(rpcMethodNotFound), rpcErr["code"])

	// Schema violations come back as invalid params.
	_, body = doJSON(t, srv, "good-token", "/gateway", map[string]any{
		"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": map[string]any{"name": "echo", "arguments": map[string]any{}},
	})
	rpcErr = body["error"].(map[string]any)
	require.Equal(t, float64(rpcInvalidParams), rpcErr["code"])

	// /rpc stays mounted as an alias.
	resp, body = doJSON(t, srv, "good-token", "/gateway/rpc", map[string]any{
		"jsonrpc": "2.0", "id": 5, "method": "tools/list",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body["result"])
}

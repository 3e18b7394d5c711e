package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"comms-platform/internal/actions"
	"comms-platform/internal/projects"
	"comms-platform/pkg/logger"
)

const keyContextKey = "gateway.access_key"

// Authenticator resolves bearer tokens to access keys. *KeyStore is the
// Postgres implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (AccessKey, error)
}

// Handler exposes the tool-dispatch surface: health, catalog, and execute.
type Handler struct {
	Keys     Authenticator
	Registry *Registry

	clock func() time.Time
}

func NewHandler(keys Authenticator, registry *Registry) *Handler {
	return &Handler{Keys: keys, Registry: registry, clock: time.Now}
}

// Mount registers the gateway routes on a router group. Health is open;
// everything else sits behind key auth.
func (h *Handler) Mount(g *gin.RouterGroup) {
	g.GET("/health", h.handleHealth)

	authed := g.Group("", h.authenticate)
	authed.GET("/tools", h.handleListTools)
	authed.POST("/execute", h.handleExecute)
	// JSON-RPC envelope lives at the surface root; /rpc stays as an alias.
	authed.POST("", h.handleRPC)
	authed.POST("/rpc", h.handleRPC)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authenticate resolves the bearer token to an access key. All failures are
// one opaque 401.
func (h *Handler) authenticate(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	key, err := h.Keys.Authenticate(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrInvalidKey) {
			logger.FromGin(c).Error("key lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing access key"})
		return
	}
	c.Set(keyContextKey, key)
	c.Next()
}

func contextKey(c *gin.Context) AccessKey {
	key, _ := c.MustGet(keyContextKey).(AccessKey)
	return key
}

func (h *Handler) handleListTools(c *gin.Context) {
	catalog := h.Registry.Catalog(contextKey(c))
	c.JSON(http.StatusOK, gin.H{"tools": catalog})
}

type executeRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// handleExecute validates and dispatches one tool call, answering the
// uniform envelope on every outcome.
func (h *Handler) handleExecute(c *gin.Context) {
	started := h.clock()

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Tool == "" {
		h.writeEnvelope(c, http.StatusBadRequest, req.Tool, started, nil, "malformed request body")
		return
	}

	key := contextKey(c)
	def, err := h.Registry.Resolve(key, req.Tool)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrToolDisabled) {
			status = http.StatusForbidden
		}
		h.writeEnvelope(c, status, req.Tool, started, nil, err.Error())
		return
	}

	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(def.InputSchema, args); err != nil {
		h.writeEnvelope(c, http.StatusBadRequest, req.Tool, started, nil, err.Error())
		return
	}

	result, err := def.Execute(c.Request.Context(), key.SecurityContext(), args)
	if err != nil {
		status, msg := executionStatus(err)
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("tool execution failed", "tool", req.Tool, "err", err)
			msg = "tool execution failed"
		}
		h.writeEnvelope(c, status, req.Tool, started, nil, msg)
		return
	}
	h.writeEnvelope(c, http.StatusOK, req.Tool, started, result, "")
}

func (h *Handler) writeEnvelope(c *gin.Context, status int, tool string, started time.Time, result any, errMsg string) {
	body := gin.H{
		"ok":          status == http.StatusOK,
		"tool":        tool,
		"request_id":  logger.RequestID(c),
		"duration_ms": h.clock().Sub(started).Milliseconds(),
	}
	if errMsg != "" {
		body["error"] = errMsg
	} else {
		body["result"] = result
	}
	c.JSON(status, body)
}

// executionStatus maps domain errors from tool executors to HTTP classes.
func executionStatus(err error) (int, string) {
	var argErr *ArgError
	var valErr *actions.ValidationError
	switch {
	case errors.As(err, &argErr), errors.As(err, &valErr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, projects.ErrNotFound), errors.Is(err, actions.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, actions.ErrNotPending), errors.Is(err, actions.ErrApprovalRequired):
		return http.StatusConflict, err.Error()
	case errors.Is(err, actions.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}

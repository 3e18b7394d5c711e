package webhooks

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"comms-platform/pkg/logger"
)

// Handler exposes webhook ingress and operator re-drive endpoints.
// Keep these thin: read the body, call the normalizer, map error classes.
type Handler struct {
	Normalizer *Normalizer
	Store      *Store

	// MaxBodyBytes bounds provider payload size. Zero means the default 1 MiB.
	MaxBodyBytes int64
}

// HandleIngress accepts POST /webhooks/:service. The caller is a provider
// expecting a structured response on every outcome.
func (h *Handler) HandleIngress(c *gin.Context) {
	service := c.Param("service")

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, limit))
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty or unreadable body"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	raw, comm, err := h.Normalizer.Ingest(c.Request.Context(), service, payload, signature)
	if err != nil {
		h.writeNormalizeError(c, raw.ID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"webhook_id":       raw.ID,
		"communication_id": comm.ID,
	})
}

// HandleRedrive accepts POST /ops/webhooks/:id/redrive (operator-only).
func (h *Handler) HandleRedrive(c *gin.Context) {
	id := c.Param("id")

	comm, err := h.Normalizer.Redrive(c.Request.Context(), id)
	if err != nil {
		h.writeNormalizeError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "communication_id": comm.ID})
}

// HandleListFailed accepts GET /ops/webhooks/failed (operator-only).
func (h *Handler) HandleListFailed(c *gin.Context) {
	failed, err := h.Store.ListFailed(c.Request.Context(), 100)
	if err != nil {
		logger.FromGin(c).Error("list failed webhooks", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	type item struct {
		ID              string `json:"id"`
		Service         string `json:"service"`
		ProcessingError string `json:"processing_error"`
	}
	out := make([]item, 0, len(failed))
	for _, w := range failed {
		out = append(out, item{ID: w.ID, Service: w.Service, ProcessingError: w.ProcessingError})
	}
	c.JSON(http.StatusOK, gin.H{"failed": out})
}

func (h *Handler) writeNormalizeError(c *gin.Context, webhookID string, err error) {
	var parseFailure *ParseFailure

	switch {
	case errors.Is(err, ErrUnknownService):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service", "webhook_id": webhookID})
	case errors.As(err, &parseFailure):
		// Recorded on the webhook row; the payload shape was unusable.
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "unrecognized payload",
			"details":    parseFailure.Err.Error(),
			"webhook_id": webhookID,
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
	case errors.Is(err, ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": "webhook already processed", "webhook_id": webhookID})
	case errors.Is(err, ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		logger.FromGin(c).Error("webhook normalization failed", "webhook_id", webhookID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "webhook_id": webhookID})
	}
}

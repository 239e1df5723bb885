package http

import (
	"errors"
	"net/http"
	"strconv"

	"saga-transaction/internal/infrastructure/failures"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
)

type FailureHandler struct {
	log failures.Log
}

func NewFailureHandler(log failures.Log) *FailureHandler {
	return &FailureHandler{log: log}
}

// ListUnresolved returns open compensation failures, newest first
func (h *FailureHandler) ListUnresolved(c *gin.Context) {
	limit := defaultFailureLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxFailureLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	out, err := h.log.Unresolved(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if out == nil {
		out = []failures.Failure{}
	}
	c.JSON(http.StatusOK, gin.H{"failures": out})
}

func (h *FailureHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a failure id"})
		return
	}

	if err := h.log.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, failures.ErrFailureNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"saga-transaction/internal/application/runner"
	sagaapp "saga-transaction/internal/application/saga"
	"saga-transaction/internal/domain/events"
	"saga-transaction/internal/domain/saga"
	"saga-transaction/internal/infrastructure/eventstore"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SagaRunner is the part of runner.Service the handler depends on
type SagaRunner interface {
	Run(ctx context.Context, def saga.Definition) (sagaapp.Snapshot, error)
	Submit(ctx context.Context, def saga.Definition) (sagaapp.Snapshot, error)
	Get(id uuid.UUID) (sagaapp.Snapshot, bool)
	List() []sagaapp.Snapshot
}

type SagaHandler struct {
	runner  SagaRunner
	journal eventstore.EventStore
}

// NewSagaHandler serves sagas from r. A nil journal disables the events endpoint.
func NewSagaHandler(r SagaRunner, journal eventstore.EventStore) *SagaHandler {
	return &SagaHandler{
		runner:  r,
		journal: journal,
	}
}

type runResponse struct {
	sagaapp.Snapshot
	Error string `json:"error,omitempty"`
}

type eventResponse struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	SequenceNumber int64                `json:"sequence_number"`
	Timestamp      time.Time            `json:"timestamp"`
	Data           interface{}          `json:"data"`
	Metadata       events.EventMetadata `json:"metadata"`
}

// RunSaga runs the posted definition to completion, or in the background with ?async=true
func (h *SagaHandler) RunSaga(c *gin.Context) {
	var def saga.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("async") == "true" {
		snapshot, err := h.runner.Submit(c.Request.Context(), def)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, runResponse{Snapshot: snapshot})
		return
	}

	snapshot, err := h.runner.Run(c.Request.Context(), def)
	if errors.Is(err, runner.ErrInvalidDefinition) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := runResponse{Snapshot: snapshot}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SagaHandler) ListSagas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sagas": h.runner.List()})
}

func (h *SagaHandler) GetSaga(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a transaction id"})
		return
	}

	snapshot, ok := h.runner.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "saga not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetSagaEvents returns the journaled lifecycle events of a saga in sequence order
func (h *SagaHandler) GetSagaEvents(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "journal is not configured"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a transaction id"})
		return
	}

	loaded, err := h.journal.LoadEvents(c.Request.Context(), id.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(loaded) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no events for saga"})
		return
	}

	out := make([]eventResponse, 0, len(loaded))
	for _, e := range loaded {
		out = append(out, eventResponse{
			ID:             e.ID(),
			Type:           e.Type(),
			SequenceNumber: e.SequenceNumber(),
			Timestamp:      e.Timestamp(),
			Data:           e.Data(),
			Metadata:       e.Metadata(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func statusFor(err error) int {
	if errors.Is(err, runner.ErrInvalidDefinition) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

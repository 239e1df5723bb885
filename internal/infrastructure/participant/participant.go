package participant

import (
	"context"
	"hash/fnv"
	"net/http"
	"sort"
	"sync"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/infrastructure/stages"

	"github.com/gin-gonic/gin"
)

// Config shapes how the simulated participant answers
type Config struct {
	Latency time.Duration
	// FailureRate and CompensationFailureRate are fractions in [0, 1]. Whether a transaction
	// fails is derived from its id, so retries of the same transaction get the same answer.
	FailureRate             float64
	CompensationFailureRate float64
}

// Participant is a stand-in for a remote service called by HTTP stages. It holds a resource per
// transaction on POST and releases it on DELETE.
type Participant struct {
	config Config
	logger logger.Logger

	mu   sync.Mutex
	held map[string]map[string]struct{}
}

func New(config Config, l logger.Logger) *Participant {
	return &Participant{
		config: config,
		logger: l,
		held:   make(map[string]map[string]struct{}),
	}
}

func (p *Participant) Register(r gin.IRouter) {
	r.POST("/:resource", p.hold)
	r.DELETE("/:resource/:id", p.release)
}

// Held lists the transaction ids currently holding resource, sorted
func (p *Participant) Held(resource string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.held[resource]))
	for id := range p.held[resource] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Participant) hold(c *gin.Context) {
	resource := c.Param("resource")
	transactionID := c.GetHeader(stages.HeaderTransactionID)
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": stages.HeaderTransactionID + " header is required"})
		return
	}

	if err := p.wait(c.Request.Context()); err != nil {
		return
	}
	if fails(resource+"/hold/"+transactionID, p.config.FailureRate) {
		p.logger.Info("Participant rejected request",
			logger.Field{Key: "resource", Value: resource},
			logger.Field{Key: "transaction_id", Value: transactionID},
		)
		c.JSON(http.StatusConflict, gin.H{"error": "rejected"})
		return
	}

	p.mu.Lock()
	if p.held[resource] == nil {
		p.held[resource] = make(map[string]struct{})
	}
	p.held[resource][transactionID] = struct{}{}
	p.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"resource": resource, "transaction_id": transactionID})
}

// release is idempotent: releasing something never held succeeds
func (p *Participant) release(c *gin.Context) {
	resource := c.Param("resource")
	transactionID := c.Param("id")

	if err := p.wait(c.Request.Context()); err != nil {
		return
	}
	if fails(resource+"/release/"+transactionID, p.config.CompensationFailureRate) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}

	p.mu.Lock()
	delete(p.held[resource], transactionID)
	p.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (p *Participant) wait(ctx context.Context) error {
	if p.config.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.config.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fails(key string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return float64(h.Sum32()%1000) < rate*1000
}

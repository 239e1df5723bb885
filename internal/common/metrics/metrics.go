package metrics

import (
	"fmt"
	"sync"
	"time"
)

const (
	OperationProcess  = "process"
	OperationRollback = "rollback"
)

// Collector defines the interface for saga metrics collection
type Collector interface {
	RecordSagaRun(mode, status, rollbackStatus string)
	RecordStageCall(operation, status string, elapsed time.Duration)
}

// MockCollector counts calls in memory
type MockCollector struct {
	counters map[string]int64
	mu       sync.RWMutex
}

func NewMockCollector() *MockCollector {
	return &MockCollector{
		counters: make(map[string]int64),
	}
}

func (mc *MockCollector) RecordSagaRun(mode, status, rollbackStatus string) {
	mc.IncrementCounter(fmt.Sprintf("saga_runs_total{mode=%s,status=%s}", mode, status))
	if rollbackStatus != "None" {
		mc.IncrementCounter(fmt.Sprintf("saga_rollbacks_total{status=%s}", rollbackStatus))
	}
}

func (mc *MockCollector) RecordStageCall(operation, status string, _ time.Duration) {
	mc.IncrementCounter(fmt.Sprintf("saga_stage_calls_total{operation=%s,status=%s}", operation, status))
}

func (mc *MockCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name]++
}

func (mc *MockCollector) GetCounter(name string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service names agents declare as dependencies.
const (
	ServiceAIModel = "ai_model"
	ServiceCCIData = "cci_data"
	ServiceLCD     = "lcd"
	ServiceRVUData = "rvu_data"
	ServiceCache   = "cache"
	ServiceMonitor = "monitor"
)

// Registry owns the shared service instances for a process. Services are
// initialized once and handed to agents by the orchestrator.
type Registry struct {
	mu          sync.RWMutex
	ai          *AIModelService
	cci         *CCIDataService
	lcd         *LCDService
	rvu         *RVUDataService
	cache       *Cache
	monitor     *PerformanceMonitor
	initialized bool
}

// RegistryConfig configures registry initialization.
type RegistryConfig struct {
	AIModel      AIModelConfig
	Jurisdiction string
	CacheTTL     time.Duration
	Metrics      prometheus.Registerer
}

// NewRegistry builds an uninitialized registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Initialize constructs all services. Calling it twice is an error.
func (r *Registry) Initialize(ctx context.Context, cfg RegistryConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("service registry already initialized")
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	r.cache = NewCache(ttl)
	r.ai = NewAIModelService(cfg.AIModel)
	r.cci = NewCCIDataService(nil, nil, r.cache)
	r.lcd = NewLCDService(nil, cfg.Jurisdiction, r.cache)
	r.rvu = NewRVUDataService(nil, nil, r.cache)
	r.monitor = NewPerformanceMonitor(cfg.Metrics)
	r.initialized = true
	return nil
}

// Healthy reports whether every service is constructed.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized && r.ai != nil && r.cci != nil && r.lcd != nil && r.rvu != nil
}

// Has reports whether the named service is constructed and resolvable.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch name {
	case ServiceAIModel:
		return r.ai != nil
	case ServiceCCIData:
		return r.cci != nil
	case ServiceLCD:
		return r.lcd != nil
	case ServiceRVUData:
		return r.rvu != nil
	case ServiceCache:
		return r.cache != nil
	case ServiceMonitor:
		return r.monitor != nil
	}
	return false
}

// AI returns the AI model service.
func (r *Registry) AI() *AIModelService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ai
}

// CCI returns the bundling-data service.
func (r *Registry) CCI() *CCIDataService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cci
}

// LCD returns the coverage service.
func (r *Registry) LCD() *LCDService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lcd
}

// RVU returns the fee-schedule service.
func (r *Registry) RVU() *RVUDataService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rvu
}

// Cache returns the shared TTL cache.
func (r *Registry) Cache() *Cache {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache
}

// Monitor returns the performance monitor.
func (r *Registry) Monitor() *PerformanceMonitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitor
}

// SetAI replaces the AI service. Used by tests and per-run model overrides.
func (r *Registry) SetAI(svc *AIModelService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ai = svc
}

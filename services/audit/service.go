// Package audit records routing decisions asynchronously. Writes happen on
// a background worker pool so the request path never blocks on the audit
// store; under pressure events are dropped rather than queued unbounded.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// Event wraps an audit log entry queued for background persistence.
type Event struct {
	Log      *models.AuditLog
	Priority int // Higher priority events are processed first (for future enhancements)
}

// Service handles asynchronous audit logging.
type Service struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *Event
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	// Senders hold mu for reading across their channel send; Stop closes
	// eventChan under the write lock, so a send can never hit a closed channel.
	mu sync.RWMutex
}

// Config holds configuration for the audit service.
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewService creates a new audit service.
func NewService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *Event, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
		started:     false,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	// Close the event channel (no more events will be accepted)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. When the buffer is full the
// event is dropped with a warning; audit writes never stall routing.
func (s *Service) LogEvent(event *Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("tenant_id", event.Log.TenantID.String()))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking queues an event, waiting until there is buffer space or
// the context is cancelled. Holding the read lock while blocked delays Stop
// until the send resolves; workers keep draining regardless.
func (s *Service) LogEventBlocking(ctx context.Context, event *Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("audit service stopped")
	}
}

// worker processes events from the channel
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("tenant_id", event.Log.TenantID.String()))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *Service) processEvent(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// Convenience methods for the routing decisions the gateway audits.

// LogRouteSuccess records a request that completed on an upstream.
func (s *Service) LogRouteSuccess(rec *models.RequestRecord, ipAddress, userAgent string) error {
	cost, _ := rec.Cost.Float64()

	log := models.NewAuditLog(rec.TenantID, models.AuditActionRouteSuccess)
	log.WithRequest(rec.RequestID, ipAddress, userAgent)
	log.WithRouting(rec.ModelResolved, rec.Provider)
	log.WithUsage(rec.TotalTokens, rec.LatencyMs, cost)

	return s.LogEvent(&Event{Log: log, Priority: 1})
}

// LogRouteFailure records a request for which every candidate failed.
// details carries the per-candidate failure list.
func (s *Service) LogRouteFailure(rec *models.RequestRecord, ipAddress, userAgent string, details interface{}) error {
	log := models.NewAuditLog(rec.TenantID, models.AuditActionRouteFailure)
	log.WithRequest(rec.RequestID, ipAddress, userAgent)
	if rec.ModelRequested != "" {
		log.Model = &rec.ModelRequested
	}
	if rec.ErrorMessage != nil {
		log.WithError(rec.HTTPStatus, *rec.ErrorMessage)
	} else {
		log.WithError(rec.HTTPStatus, "")
	}
	if details != nil {
		log.WithDetails(details)
	}

	return s.LogEvent(&Event{Log: log, Priority: 2})
}

// LogQuotaBlock records a request denied by rate-limit admission.
func (s *Service) LogQuotaBlock(rec *models.RequestRecord, ipAddress, userAgent string, details interface{}) error {
	log := models.NewAuditLog(rec.TenantID, models.AuditActionQuotaBlock)
	log.WithRequest(rec.RequestID, ipAddress, userAgent)
	if rec.ModelRequested != "" {
		log.Model = &rec.ModelRequested
	}
	if details != nil {
		log.WithDetails(details)
	}

	return s.LogEvent(&Event{Log: log, Priority: 1})
}

// LogBudgetBlock records a request denied by the monthly budget cap.
func (s *Service) LogBudgetBlock(rec *models.RequestRecord, ipAddress, userAgent string, details interface{}) error {
	log := models.NewAuditLog(rec.TenantID, models.AuditActionBudgetBlock)
	log.WithRequest(rec.RequestID, ipAddress, userAgent)
	if rec.ModelRequested != "" {
		log.Model = &rec.ModelRequested
	}
	if details != nil {
		log.WithDetails(details)
	}

	return s.LogEvent(&Event{Log: log, Priority: 1})
}

// LogCatalogReload records an operator-triggered catalog reload. Reloads
// are system events, so the tenant is the zero UUID.
func (s *Service) LogCatalogReload(details interface{}) error {
	log := models.NewAuditLog(uuid.Nil, models.AuditActionCatalogReload)
	if details != nil {
		log.WithDetails(details)
	}

	return s.LogEvent(&Event{Log: log, Priority: 1})
}

// LogBreakerReset records an operator clearing a provider's breaker state.
func (s *Service) LogBreakerReset(provider string) error {
	log := models.NewAuditLog(uuid.Nil, models.AuditActionBreakerReset)
	log.Provider = &provider

	return s.LogEvent(&Event{Log: log, Priority: 1})
}

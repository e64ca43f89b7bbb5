// Package core implements the supply ledger and application lifecycle service.
// Every mutating operation runs as a single store transaction; the rules engine
// checks stock and cash-book invariants before the transaction commits.
package core

import (
	"context"
	"time"

	"fieldledger/internal/infra/persistence/memory"
	"fieldledger/pkg/domain"
)

const defaultLockKey = "fieldledger:ledger"

// Locker serialises mutating operations that share a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

type nowSetter interface {
	SetNowFunc(func() time.Time)
}

// Service coordinates domain operations against a persistent store.
type Service struct {
	store    PersistentStore
	logger   Logger
	clock    Clock
	clockSet bool
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	policy   ReservationPolicy
	locker   Locker
	lockKey  string
}

// NewService constructs a service backed by the provided store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		policy:  ReservationSettle,
		lockKey: defaultLockKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clockSet {
		if setter, ok := store.(nowSetter); ok {
			setter.SetNowFunc(s.clock.Now)
		}
	}
	return s
}

// NewInMemoryService creates a service backed by the in-memory store. A nil
// engine selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store exposes the underlying store.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Policy reports the active reservation policy.
func (s *Service) Policy() ReservationPolicy {
	return s.policy
}

// run executes fn in one store transaction and records logs, metrics, traces
// and audit entries for op. fn returns the id of the primary record it touched.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	var entityID string
	res, err := s.commit(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	elapsed := time.Since(started)
	s.metrics.Observe(ctx, op, err, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "kind", string(domain.KindOf(err)), "error", err)
		s.recordAudit(ctx, op, entityID, elapsed, err)
	} else {
		s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", elapsed)
		s.logViolations(op, res)
		s.recordAudit(ctx, op, entityID, elapsed, nil)
	}
	span.End(err)
	return res, err
}

func (s *Service) commit(ctx context.Context, fn func(Transaction) error) (Result, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, s.lockKey)
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				s.logger.Warn("release ledger lock", "key", s.lockKey, "error", rerr)
			}
		}()
	}
	return s.store.RunInTransaction(ctx, fn)
}

// observe wraps a read-only operation with tracing and metrics.
func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err, time.Since(started))
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "kind", string(domain.KindOf(err)), "error", err)
	}
	span.End(err)
	return err
}

func (s *Service) logViolations(op string, res Result) {
	for _, v := range res.Violations {
		if v.Severity != SeverityWarn {
			continue
		}
		s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, elapsed time.Duration, err error) {
	meta, ok := auditOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

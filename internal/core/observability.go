package core

import (
	"context"
	"time"

	"fieldledger/pkg/domain"
)

// Logger is the structured logging surface used by the service. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time to the service and its store.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
// err is the operation error, nil on success.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, err error, duration time.Duration)
}

// OutcomeSuccess labels operations that returned no error.
const OutcomeSuccess = "success"

// Outcome labels an operation result with OutcomeSuccess or its error kind.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(domain.KindOf(err))
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, error, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is finished exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus reports whether an audited operation committed.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder persists or forwards audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// LoggerAuditRecorder writes audit entries through a Logger at Info level.
type LoggerAuditRecorder struct {
	Logger Logger
}

// Record implements AuditRecorder.
func (r LoggerAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	if r.Logger == nil {
		return
	}
	args := []any{
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"entity_id", entry.EntityID,
		"status", string(entry.Status),
		"duration", entry.Duration,
	}
	if entry.Error != "" {
		args = append(args, "error", entry.Error)
	}
	r.Logger.Info("audit", args...)
}

type auditOperation struct {
	entity EntityType
	action Action
}

// auditOperations lists the mutating operations that produce audit entries.
var auditOperations = map[string]auditOperation{
	opRecordPurchase:        {EntitySupply, ActionCreate},
	opEditSupply:            {EntitySupply, ActionUpdate},
	opDeleteSupply:          {EntitySupply, ActionDelete},
	opScheduleApplication:   {EntityApplication, ActionCreate},
	opEditApplication:       {EntityApplication, ActionUpdate},
	opCancelApplication:     {EntityApplication, ActionDelete},
	opCompleteApplication:   {EntityApplication, ActionUpdate},
	opRefundApplication:     {EntityApplication, ActionUpdate},
	opCreatePlanting:        {EntityPlanting, ActionCreate},
	opLogConsumption:        {EntityPlanting, ActionUpdate},
	opDeleteConsumption:     {EntityPlanting, ActionUpdate},
	opDeletePlanting:        {EntityPlanting, ActionDelete},
	opCreateAnimalGroup:     {EntityAnimalGroup, ActionCreate},
	opDeleteAnimalGroup:     {EntityAnimalGroup, ActionDelete},
	opRecordCashTransaction: {EntityCashTransaction, ActionCreate},
}

const (
	opRecordPurchase        = "record_purchase"
	opEditSupply            = "edit_supply"
	opDeleteSupply          = "delete_supply"
	opAvailableStock        = "available_stock"
	opScheduleApplication   = "schedule_application"
	opEditApplication       = "edit_application"
	opCancelApplication     = "cancel_application"
	opCompleteApplication   = "complete_application"
	opRefundApplication     = "refund_application"
	opCreatePlanting        = "create_planting"
	opLogConsumption        = "log_consumption"
	opDeleteConsumption     = "delete_consumption"
	opDeletePlanting        = "delete_planting"
	opCreateAnimalGroup     = "create_animal_group"
	opDeleteAnimalGroup     = "delete_animal_group"
	opRecordCashTransaction = "record_cash_transaction"
	opCashBookSummary       = "cash_book_summary"
)

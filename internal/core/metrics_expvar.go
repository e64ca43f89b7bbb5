package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fieldledger/pkg/domain"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes ledger operation outcomes under /debug/vars.
// Failures are counted per error kind, so stock shortfalls, refused
// transitions and commit conflicts show up as separate rates.
type ExpvarMetricsRecorder struct {
	name  string
	mu    sync.Mutex
	ops   map[string]*OperationStats
	kinds map[string]int64
}

// OperationStats aggregates the observations of one operation.
type OperationStats struct {
	Calls    int64            `json:"calls"`
	TotalMS  float64          `json:"total_ms"`
	MaxMS    float64          `json:"max_ms"`
	Outcomes map[string]int64 `json:"outcomes"`
}

// ExpvarMetricsSnapshot is the document served for the recorder.
type ExpvarMetricsSnapshot struct {
	Operations     map[string]OperationStats `json:"operations"`
	FailuresByKind map[string]int64          `json:"failures_by_kind"`
	RecordedAt     time.Time                 `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("fieldledger_ledger_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:  name,
		ops:   make(map[string]*OperationStats),
		kinds: make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the aggregated counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make(map[string]OperationStats, len(r.ops))
	for op, st := range r.ops {
		cpy := *st
		cpy.Outcomes = make(map[string]int64, len(st.Outcomes))
		for outcome, n := range st.Outcomes {
			cpy.Outcomes[outcome] = n
		}
		ops[op] = cpy
	}
	kinds := make(map[string]int64, len(r.kinds))
	for kind, n := range r.kinds {
		kinds[kind] = n
	}
	return ExpvarMetricsSnapshot{
		Operations:     ops,
		FailuresByKind: kinds,
		RecordedAt:     time.Now().UTC(),
	}
}

// Count returns how often operation ended with outcome (OutcomeSuccess or an
// error kind).
func (r *ExpvarMetricsRecorder) Count(operation, outcome string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		return 0
	}
	return st.Outcomes[outcome]
}

// Failures returns the number of failed operations of kind across all operations.
func (r *ExpvarMetricsRecorder) Failures(kind domain.ErrorKind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kinds[string(kind)]
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, err error, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	outcome := Outcome(err)

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &OperationStats{Outcomes: make(map[string]int64, 2)}
		r.ops[operation] = st
	}
	st.Calls++
	st.TotalMS += ms
	if ms > st.MaxMS {
		st.MaxMS = ms
	}
	st.Outcomes[outcome]++
	if err != nil {
		r.kinds[outcome]++
	}
}

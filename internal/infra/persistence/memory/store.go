// Package memory provides an in-memory implementation of the ledger
// persistence store used for tests, ephemeral environments, and as the
// working set of the SQL-backed stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldledger/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Supply aliases domain.Supply for in-memory persistence operations.
	Supply = domain.Supply
	// Planting aliases domain.Planting.
	Planting = domain.Planting
	// AnimalGroup aliases domain.AnimalGroup.
	AnimalGroup = domain.AnimalGroup
	// Application aliases domain.ScheduledApplication.
	Application = domain.ScheduledApplication
	// CashTransaction aliases domain.CashTransaction.
	CashTransaction = domain.CashTransaction
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Store provides an in-memory transactional store for the ledger domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time

	listenerMu   sync.RWMutex
	listeners    map[int]domain.ChangeListener
	reloads      map[int]func()
	nextListener int
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:     newMemoryState(),
		engine:    engine,
		nowFn:     func() time.Time { return time.Now().UTC() },
		listeners: make(map[int]domain.ChangeListener),
		reloads:   make(map[int]func()),
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot and
// notifies OnReload listeners.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.mu.Unlock()

	s.listenerMu.RLock()
	reloads := make([]func(), 0, len(s.reloads))
	for _, fn := range s.reloads {
		reloads = append(reloads, fn)
	}
	s.listenerMu.RUnlock()
	for _, fn := range reloads {
		fn()
	}
}

// OnReload registers fn to run whenever the whole state is replaced, for
// example after another session committed to the shared database. Such
// reloads carry no change set, so views must drop everything they derived.
func (s *Store) OnReload(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.reloads[id] = fn
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.reloads, id)
			s.listenerMu.Unlock()
		})
	}
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Subscribe registers a listener invoked with the changes of every committed
// transaction. Listeners run synchronously after the store lock is released.
func (s *Store) Subscribe(listener domain.ChangeListener) func() {
	if listener == nil {
		return func() {}
	}
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

// Publish delivers committed changes to subscribers. Stores that wrap the
// memory store call it once their own durable commit has succeeded.
func (s *Store) Publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.listenerMu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]domain.ChangeListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenerMu.RUnlock()

	for _, l := range listeners {
		l(append([]Change(nil), changes...))
	}
}

// RunInTransaction executes fn against a cloned state, evaluates the rules
// engine, and swaps the state in on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	res, changes, err := s.Apply(ctx, fn)
	if err != nil {
		return res, err
	}
	s.Publish(changes)
	return res, nil
}

// Apply behaves like RunInTransaction but returns the committed changes
// instead of notifying subscribers.
func (s *Store) Apply(ctx context.Context, fn func(tx Transaction) error) (Result, []Change, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{store: s, state: s.state.clone(), now: s.nowFn()}
	res, err := s.evaluate(ctx, tx, fn)
	if err != nil {
		return res, nil, err
	}
	s.state = tx.state
	return res, tx.changes, nil
}

// Stage runs fn and the rules engine against a clone of the current state
// without making the outcome visible. The caller must serialise Stage and
// Commit against other writers; readers keep seeing the previous state until
// Commit.
func (s *Store) Stage(ctx context.Context, fn func(tx Transaction) error) (Result, *Staged, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, nil, err
	}
	s.mu.RLock()
	tx := &transaction{store: s, state: s.state.clone(), now: s.nowFn()}
	s.mu.RUnlock()

	res, err := s.evaluate(ctx, tx, fn)
	if err != nil {
		return res, nil, err
	}
	return res, &Staged{store: s, state: tx.state, changes: tx.changes}, nil
}

func (s *Store) evaluate(ctx context.Context, tx *transaction, fn func(tx Transaction) error) (Result, error) {
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if s.engine == nil {
		return Result{}, nil
	}
	res, err := s.engine.Evaluate(ctx, newTransactionView(&tx.state), tx.changes)
	if err != nil {
		return Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	return res, nil
}

// Staged is the uncommitted outcome of Stage.
type Staged struct {
	store   *Store
	state   memoryState
	changes []Change
}

// Snapshot returns the staged state for durable encoding.
func (st *Staged) Snapshot() Snapshot {
	return snapshotFromMemoryState(st.state)
}

// Changes returns the mutations recorded by the staged transaction.
func (st *Staged) Changes() []Change {
	return append([]Change(nil), st.changes...)
}

// Commit makes the staged state visible. Subscribers are not notified; call
// Publish with Changes once the commit is final.
func (st *Staged) Commit() {
	st.store.mu.Lock()
	st.store.state = st.state
	st.store.mu.Unlock()
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

// GetSupply returns a supply by id.
func (s *Store) GetSupply(id string) (Supply, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.state.supplies[id]
	return sup, ok
}

// ListSupplies returns all supplies ordered by name.
func (s *Store) ListSupplies() []Supply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSupplies(&s.state)
}

// GetPlanting returns a planting by id.
func (s *Store) GetPlanting(id string) (Planting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.plantings[id]
	if !ok {
		return Planting{}, false
	}
	return clonePlanting(p), true
}

// ListPlantings returns all plantings ordered by planting date.
func (s *Store) ListPlantings() []Planting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlantings(&s.state)
}

// GetApplication returns a scheduled application by id.
func (s *Store) GetApplication(id string) (Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// ListApplications returns all scheduled applications ordered by date.
func (s *Store) ListApplications() []Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApplications(&s.state)
}

// ListAnimalGroups returns all animal groups ordered by name.
func (s *Store) ListAnimalGroups() []AnimalGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAnimalGroups(&s.state)
}

// ListCashTransactions returns the cash book in chronological order.
func (s *Store) ListCashTransactions() []CashTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCash(&s.state)
}

func listSupplies(state *memoryState) []Supply {
	out := make([]Supply, 0, len(state.supplies))
	for _, sup := range state.supplies {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listPlantings(state *memoryState) []Planting {
	out := make([]Planting, 0, len(state.plantings))
	for _, p := range state.plantings {
		out = append(out, clonePlanting(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlantedAt.Equal(out[j].PlantedAt) {
			return out[i].PlantedAt.Before(out[j].PlantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listApplications(state *memoryState) []Application {
	out := make([]Application, 0, len(state.applications))
	for _, a := range state.applications {
		out = append(out, cloneApplication(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listAnimalGroups(state *memoryState) []AnimalGroup {
	out := make([]AnimalGroup, 0, len(state.animalGroups))
	for _, g := range state.animalGroups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listCash(state *memoryState) []CashTransaction {
	out := make([]CashTransaction, 0, len(state.cash))
	for _, c := range state.cash {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListSupplies() []Supply { return listSupplies(v.state) }
func (v transactionView) ListPlantings() []Planting { return listPlantings(v.state) }
func (v transactionView) ListAnimalGroups() []AnimalGroup { return listAnimalGroups(v.state) }
func (v transactionView) ListApplications() []Application { return listApplications(v.state) }
func (v transactionView) ListCashTransactions() []CashTransaction { return listCash(v.state) }

func (v transactionView) FindSupply(id string) (Supply, bool) {
	sup, ok := v.state.supplies[id]
	return sup, ok
}

func (v transactionView) FindPlanting(id string) (Planting, bool) {
	p, ok := v.state.plantings[id]
	if !ok {
		return Planting{}, false
	}
	return clonePlanting(p), true
}

func (v transactionView) FindAnimalGroup(id string) (AnimalGroup, bool) {
	g, ok := v.state.animalGroups[id]
	return g, ok
}

func (v transactionView) FindApplication(id string) (Application, bool) {
	a, ok := v.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every write in the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// FindSupply exposes supply lookup within the transaction scope.
func (tx *transaction) FindSupply(id string) (Supply, bool) {
	sup, ok := tx.state.supplies[id]
	return sup, ok
}

// CreateSupply stores a new supply.
func (tx *transaction) CreateSupply(sup Supply) (Supply, error) {
	if sup.ID == "" {
		sup.ID = tx.store.newID()
	}
	if _, exists := tx.state.supplies[sup.ID]; exists {
		return Supply{}, fmt.Errorf("supply %q already exists", sup.ID)
	}
	sup.CreatedAt = tx.now
	sup.UpdatedAt = tx.now
	tx.state.supplies[sup.ID] = sup
	tx.recordChange(Change{Entity: domain.EntitySupply, Action: domain.ActionCreate, After: sup})
	return sup, nil
}

// UpdateSupply mutates a supply using the provided mutator function.
func (tx *transaction) UpdateSupply(id string, mutator func(*Supply) error) (Supply, error) {
	current, ok := tx.state.supplies[id]
	if !ok {
		return Supply{}, domain.ErrNotFound{Entity: domain.EntitySupply, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Supply{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.supplies[id] = current
	tx.recordChange(Change{Entity: domain.EntitySupply, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteSupply removes a supply that nothing references.
func (tx *transaction) DeleteSupply(id string) error {
	current, ok := tx.state.supplies[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntitySupply, ID: id}
	}
	if ref := supplyReference(&tx.state, id); ref != "" {
		return domain.ValidationError{Field: "supply_id", Message: fmt.Sprintf("supply %q still referenced by %s", id, ref)}
	}
	delete(tx.state.supplies, id)
	tx.recordChange(Change{Entity: domain.EntitySupply, Action: domain.ActionDelete, Before: current})
	return nil
}

func supplyReference(state *memoryState, supplyID string) string {
	for _, app := range state.applications {
		if app.Status == domain.StatusRefunded {
			continue
		}
		for _, pid := range app.ProductIDs {
			if pid == supplyID {
				return fmt.Sprintf("application %q", app.ID)
			}
		}
	}
	for _, p := range state.plantings {
		for _, u := range p.SeedUsage {
			if u.SupplyID == supplyID {
				return fmt.Sprintf("seed usage of planting %q", p.ID)
			}
		}
		for _, e := range p.History {
			if e.SupplyID == supplyID {
				return fmt.Sprintf("management entry %q", e.ID)
			}
		}
	}
	return ""
}

// FindPlanting exposes planting lookup within the transaction scope.
func (tx *transaction) FindPlanting(id string) (Planting, bool) {
	p, ok := tx.state.plantings[id]
	if !ok {
		return Planting{}, false
	}
	return clonePlanting(p), true
}

// CreatePlanting stores a new planting. Seed usage must reference known supplies.
func (tx *transaction) CreatePlanting(p Planting) (Planting, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.plantings[p.ID]; exists {
		return Planting{}, fmt.Errorf("planting %q already exists", p.ID)
	}
	for _, u := range p.SeedUsage {
		if _, ok := tx.state.supplies[u.SupplyID]; !ok {
			return Planting{}, domain.ErrNotFound{Entity: domain.EntitySupply, ID: u.SupplyID}
		}
	}
	if p.SeedUsage == nil {
		p.SeedUsage = []domain.SeedUsage{}
	}
	if p.History == nil {
		p.History = []domain.ManagementEntry{}
	}
	for i := range p.History {
		if p.History[i].ID == "" {
			p.History[i].ID = tx.store.newID()
		}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.plantings[p.ID] = clonePlanting(p)
	tx.recordChange(Change{Entity: domain.EntityPlanting, Action: domain.ActionCreate, After: clonePlanting(p)})
	return clonePlanting(p), nil
}

// UpdatePlanting mutates a planting. Management entries without an id are
// assigned one.
func (tx *transaction) UpdatePlanting(id string, mutator func(*Planting) error) (Planting, error) {
	current, ok := tx.state.plantings[id]
	if !ok {
		return Planting{}, domain.ErrNotFound{Entity: domain.EntityPlanting, ID: id}
	}
	before := clonePlanting(current)
	current = clonePlanting(current)
	if err := mutator(&current); err != nil {
		return Planting{}, err
	}
	for i := range current.History {
		if current.History[i].ID == "" {
			current.History[i].ID = tx.store.newID()
		}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.plantings[id] = clonePlanting(current)
	tx.recordChange(Change{Entity: domain.EntityPlanting, Action: domain.ActionUpdate, Before: before, After: clonePlanting(current)})
	return clonePlanting(current), nil
}

// DeletePlanting removes a planting no active application targets.
func (tx *transaction) DeletePlanting(id string) error {
	current, ok := tx.state.plantings[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPlanting, ID: id}
	}
	if appID := activeTargetReference(&tx.state, domain.Target{Kind: domain.TargetPlanting, ID: id}); appID != "" {
		return domain.ValidationError{Field: "planting_id", Message: fmt.Sprintf("planting %q still targeted by application %q", id, appID)}
	}
	delete(tx.state.plantings, id)
	tx.recordChange(Change{Entity: domain.EntityPlanting, Action: domain.ActionDelete, Before: clonePlanting(current)})
	return nil
}

func activeTargetReference(state *memoryState, target domain.Target) string {
	for _, app := range state.applications {
		if app.Target == target && app.Status != domain.StatusRefunded {
			return app.ID
		}
	}
	return ""
}

// FindAnimalGroup exposes animal group lookup within the transaction scope.
func (tx *transaction) FindAnimalGroup(id string) (AnimalGroup, bool) {
	g, ok := tx.state.animalGroups[id]
	return g, ok
}

// CreateAnimalGroup stores a new animal group.
func (tx *transaction) CreateAnimalGroup(g AnimalGroup) (AnimalGroup, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.animalGroups[g.ID]; exists {
		return AnimalGroup{}, fmt.Errorf("animal group %q already exists", g.ID)
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.animalGroups[g.ID] = g
	tx.recordChange(Change{Entity: domain.EntityAnimalGroup, Action: domain.ActionCreate, After: g})
	return g, nil
}

// DeleteAnimalGroup removes an animal group no active application targets.
func (tx *transaction) DeleteAnimalGroup(id string) error {
	current, ok := tx.state.animalGroups[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAnimalGroup, ID: id}
	}
	if appID := activeTargetReference(&tx.state, domain.Target{Kind: domain.TargetAnimalGroup, ID: id}); appID != "" {
		return domain.ValidationError{Field: "animal_group_id", Message: fmt.Sprintf("animal group %q still targeted by application %q", id, appID)}
	}
	delete(tx.state.animalGroups, id)
	tx.recordChange(Change{Entity: domain.EntityAnimalGroup, Action: domain.ActionDelete, Before: current})
	return nil
}

// FindApplication exposes application lookup within the transaction scope.
func (tx *transaction) FindApplication(id string) (Application, bool) {
	a, ok := tx.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return cloneApplication(a), true
}

// CreateApplication stores a new scheduled application after resolving its
// target and products.
func (tx *transaction) CreateApplication(a Application) (Application, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.applications[a.ID]; exists {
		return Application{}, fmt.Errorf("application %q already exists", a.ID)
	}
	if err := tx.resolveTarget(a.Target); err != nil {
		return Application{}, err
	}
	for _, pid := range a.ProductIDs {
		if _, ok := tx.state.supplies[pid]; !ok {
			return Application{}, domain.ErrNotFound{Entity: domain.EntitySupply, ID: pid}
		}
	}
	if a.Status.Unset() {
		a.Status = domain.StatusPending
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.applications[a.ID] = cloneApplication(a)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: cloneApplication(a)})
	return cloneApplication(a), nil
}

func (tx *transaction) resolveTarget(t domain.Target) error {
	switch t.Kind {
	case domain.TargetPlanting:
		if _, ok := tx.state.plantings[t.ID]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityPlanting, ID: t.ID}
		}
	case domain.TargetAnimalGroup:
		if _, ok := tx.state.animalGroups[t.ID]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityAnimalGroup, ID: t.ID}
		}
	default:
		return domain.ValidationError{Field: "target.kind", Message: fmt.Sprintf("unsupported target kind %q", t.Kind)}
	}
	return nil
}

// UpdateApplication mutates a scheduled application.
func (tx *transaction) UpdateApplication(id string, mutator func(*Application) error) (Application, error) {
	current, ok := tx.state.applications[id]
	if !ok {
		return Application{}, domain.ErrNotFound{Entity: domain.EntityApplication, ID: id}
	}
	before := cloneApplication(current)
	current = cloneApplication(current)
	if err := mutator(&current); err != nil {
		return Application{}, err
	}
	if current.Target != before.Target {
		if err := tx.resolveTarget(current.Target); err != nil {
			return Application{}, err
		}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.applications[id] = cloneApplication(current)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionUpdate, Before: before, After: cloneApplication(current)})
	return cloneApplication(current), nil
}

// DeleteApplication removes a scheduled application.
func (tx *transaction) DeleteApplication(id string) error {
	current, ok := tx.state.applications[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityApplication, ID: id}
	}
	delete(tx.state.applications, id)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: cloneApplication(current)})
	return nil
}

// AppendCashTransaction appends a cash-book entry. Entries are never updated.
func (tx *transaction) AppendCashTransaction(c CashTransaction) (CashTransaction, error) {
	if !c.Amount.IsPositive() {
		return CashTransaction{}, domain.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if c.Type != domain.CashExpense && c.Type != domain.CashIncome {
		return CashTransaction{}, domain.ValidationError{Field: "type", Message: fmt.Sprintf("unsupported cash type %q", c.Type)}
	}
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cash[c.ID]; exists {
		return CashTransaction{}, fmt.Errorf("cash transaction %q already exists", c.ID)
	}
	if c.Date.IsZero() {
		c.Date = tx.now
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cash[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCashTransaction, Action: domain.ActionCreate, After: c})
	return c, nil
}

// DeleteCashTransaction removes a cash-book entry.
func (tx *transaction) DeleteCashTransaction(id string) error {
	current, ok := tx.state.cash[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCashTransaction, ID: id}
	}
	delete(tx.state.cash, id)
	tx.recordChange(Change{Entity: domain.EntityCashTransaction, Action: domain.ActionDelete, Before: current})
	return nil
}

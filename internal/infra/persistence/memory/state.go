package memory

import (
	"encoding/json"
	"fmt"

	"fieldledger/pkg/domain"
)

type memoryState struct {
	supplies     map[string]domain.Supply
	plantings    map[string]domain.Planting
	animalGroups map[string]domain.AnimalGroup
	applications map[string]domain.ScheduledApplication
	cash         map[string]domain.CashTransaction
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Supplies         map[string]domain.Supply               `json:"supplies"`
	Plantings        map[string]domain.Planting             `json:"plantings"`
	AnimalGroups     map[string]domain.AnimalGroup          `json:"animal_groups"`
	Applications     map[string]domain.ScheduledApplication `json:"applications"`
	CashTransactions map[string]domain.CashTransaction      `json:"cash_transactions"`
}

// Buckets lists the persistence bucket names in a stable order.
var Buckets = []string{"supplies", "plantings", "animal_groups", "applications", "cash_transactions"}

func newMemoryState() memoryState {
	return memoryState{
		supplies:     make(map[string]domain.Supply),
		plantings:    make(map[string]domain.Planting),
		animalGroups: make(map[string]domain.AnimalGroup),
		applications: make(map[string]domain.ScheduledApplication),
		cash:         make(map[string]domain.CashTransaction),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.supplies {
		cloned.supplies[k] = v
	}
	for k, v := range s.plantings {
		cloned.plantings[k] = clonePlanting(v)
	}
	for k, v := range s.animalGroups {
		cloned.animalGroups[k] = v
	}
	for k, v := range s.applications {
		cloned.applications[k] = cloneApplication(v)
	}
	for k, v := range s.cash {
		cloned.cash[k] = v
	}
	return cloned
}

func clonePlanting(p domain.Planting) domain.Planting {
	cp := p
	cp.SeedUsage = append([]domain.SeedUsage(nil), p.SeedUsage...)
	cp.History = append([]domain.ManagementEntry(nil), p.History...)
	return cp
}

func cloneApplication(a domain.ScheduledApplication) domain.ScheduledApplication {
	cp := a
	cp.ProductIDs = append([]string(nil), a.ProductIDs...)
	cp.Reservations = append([]domain.StockReservation(nil), a.Reservations...)
	cp.Deductions = append([]domain.StockDeduction(nil), a.Deductions...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	if a.RefundedAt != nil {
		t := *a.RefundedAt
		cp.RefundedAt = &t
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Supplies:         cloned.supplies,
		Plantings:        cloned.plantings,
		AnimalGroups:     cloned.animalGroups,
		Applications:     cloned.applications,
		CashTransactions: cloned.cash,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		supplies:     s.Supplies,
		plantings:    s.Plantings,
		animalGroups: s.AnimalGroups,
		applications: s.Applications,
		cash:         s.CashTransactions,
	}
	return state.clone()
}

// migrateSnapshot repairs legacy or partial snapshots once at load time:
// missing maps are created, applications without a stored status become
// pending, nil slices become empty, and missing unit costs are derived.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Supplies == nil {
		snapshot.Supplies = map[string]domain.Supply{}
	}
	if snapshot.Plantings == nil {
		snapshot.Plantings = map[string]domain.Planting{}
	}
	if snapshot.AnimalGroups == nil {
		snapshot.AnimalGroups = map[string]domain.AnimalGroup{}
	}
	if snapshot.Applications == nil {
		snapshot.Applications = map[string]domain.ScheduledApplication{}
	}
	if snapshot.CashTransactions == nil {
		snapshot.CashTransactions = map[string]domain.CashTransaction{}
	}

	for id, supply := range snapshot.Supplies {
		if supply.UnitCost.IsZero() && supply.Quantity.IsPositive() {
			supply.UnitCost = domain.ComputeUnitCost(supply.Cost, supply.Quantity)
		}
		supply.ID = id
		snapshot.Supplies[id] = supply
	}
	for id, planting := range snapshot.Plantings {
		if planting.SeedUsage == nil {
			planting.SeedUsage = []domain.SeedUsage{}
		}
		if planting.History == nil {
			planting.History = []domain.ManagementEntry{}
		}
		planting.ID = id
		snapshot.Plantings[id] = planting
	}
	for id, app := range snapshot.Applications {
		if app.Status.Unset() {
			app.Status = domain.StatusPending
		}
		if app.ProductIDs == nil {
			app.ProductIDs = []string{}
		}
		if app.Reservations == nil {
			app.Reservations = []domain.StockReservation{}
		}
		if app.Deductions == nil {
			app.Deductions = []domain.StockDeduction{}
		}
		app.ID = id
		snapshot.Applications[id] = app
	}
	return snapshot
}

// EncodeBuckets serialises each snapshot bucket to JSON keyed by bucket name.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case "supplies":
			data, err = json.Marshal(s.Supplies)
		case "plantings":
			data, err = json.Marshal(s.Plantings)
		case "animal_groups":
			data, err = json.Marshal(s.AnimalGroups)
		case "applications":
			data, err = json.Marshal(s.Applications)
		case "cash_transactions":
			data, err = json.Marshal(s.CashTransactions)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket decodes one bucket payload into the snapshot. Unknown buckets
// are ignored so that older binaries can read newer databases.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "supplies":
		target = &s.Supplies
	case "plantings":
		target = &s.Plantings
	case "animal_groups":
		target = &s.AnimalGroups
	case "applications":
		target = &s.Applications
	case "cash_transactions":
		target = &s.CashTransactions
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by fieldledger.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySupply identifies a supply ledger record.
	EntitySupply EntityType = "supply"
	// EntityPlanting identifies a planting record (with embedded management history).
	EntityPlanting EntityType = "planting"
	// EntityAnimalGroup identifies an animal group record.
	EntityAnimalGroup EntityType = "animal_group"
	// EntityApplication identifies a scheduled application record.
	EntityApplication EntityType = "scheduled_application"
	// EntityCashTransaction identifies a cash-book transaction record.
	EntityCashTransaction EntityType = "cash_transaction"
	// EntityManagementEntry identifies a management entry embedded in a
	// planting. It is never a Change entity; it names lookups that fail.
	EntityManagementEntry EntityType = "management_entry"
)

// SupplyCategory classifies purchasable inputs.
type SupplyCategory string

// Canonical supply categories.
const (
	CategorySeed         SupplyCategory = "seed"
	CategorySeedling     SupplyCategory = "seedling"
	CategoryFeed         SupplyCategory = "feed"
	CategoryMedicine     SupplyCategory = "medicine"
	CategoryAgrochemical SupplyCategory = "agrochemical"
	CategoryFertilizer   SupplyCategory = "fertilizer"
	CategoryOther        SupplyCategory = "other"
)

// Valid reports whether the category is one of the canonical values.
func (c SupplyCategory) Valid() bool {
	switch c {
	case CategorySeed, CategorySeedling, CategoryFeed, CategoryMedicine,
		CategoryAgrochemical, CategoryFertilizer, CategoryOther:
		return true
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Supply is the ledger record of a purchased input. Remaining and Reserved are
// stored in the supply's canonical Unit.
type Supply struct {
	Base
	Name        string          `json:"name"`
	Category    SupplyCategory  `json:"category"`
	Unit        Unit            `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Remaining   decimal.Decimal `json:"remaining"`
	Reserved    decimal.Decimal `json:"reserved"`
	PurchasedAt time.Time       `json:"purchased_at"`
	Notes       string          `json:"notes,omitempty"`
}

// Available returns the stock that is neither consumed nor earmarked.
func (s Supply) Available() decimal.Decimal {
	return s.Remaining.Sub(s.Reserved)
}

// ComputeUnitCost derives cost per canonical unit. Quantity must be positive.
func ComputeUnitCost(cost, quantity decimal.Decimal) decimal.Decimal {
	if !quantity.IsPositive() {
		return decimal.Zero
	}
	return cost.Div(quantity)
}

// TargetKind identifies what a scheduled application is applied to.
type TargetKind string

// Supported application targets.
const (
	TargetPlanting    TargetKind = "planting"
	TargetAnimalGroup TargetKind = "animal_group"
)

// Target references a planting or an animal group.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// StockReservation records stock held for a pending application, in the
// supply's canonical unit.
type StockReservation struct {
	SupplyID string          `json:"supply_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
}

// StockDeduction records stock consumed on completion; refunds replay it.
type StockDeduction struct {
	SupplyID string          `json:"supply_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// ScheduledApplication is a planned use of one or more supplies.
type ScheduledApplication struct {
	Base
	Target               Target             `json:"target"`
	ProductIDs           []string           `json:"product_ids"`
	Quantity             decimal.Decimal    `json:"quantity"`
	Unit                 Unit               `json:"unit"`
	Date                 time.Time          `json:"date"`
	Status               ApplicationStatus  `json:"status"`
	Reservations         []StockReservation `json:"stock_reservations"`
	ReservationReleased  bool               `json:"reservation_released"`
	ActualCost           decimal.Decimal    `json:"actual_cost"`
	Deductions           []StockDeduction   `json:"stock_updates_applied"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	RefundedAt           *time.Time         `json:"refunded_at,omitempty"`
	ExpenseTransactionID string             `json:"expense_transaction_id,omitempty"`
	IncomeTransactionID  string             `json:"income_transaction_id,omitempty"`
	Notes                string             `json:"notes,omitempty"`
}

// ReservationFor returns the reservation held against supplyID, if any.
func (a ScheduledApplication) ReservationFor(supplyID string) (StockReservation, bool) {
	for _, r := range a.Reservations {
		if r.SupplyID == supplyID {
			return r, true
		}
	}
	return StockReservation{}, false
}

// SeedUsage is stock consumed when a planting is created.
type SeedUsage struct {
	SupplyID string          `json:"supply_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
	Cost     decimal.Decimal `json:"cost"`
}

// ManagementEntry records direct supply use against a planting. Quantity is
// in the canonical unit of the referenced supply.
type ManagementEntry struct {
	ID            string          `json:"id"`
	SupplyID      string          `json:"supply_id"`
	Quantity      decimal.Decimal `json:"quantity_used"`
	Unit          Unit            `json:"unit"`
	Cost          decimal.Decimal `json:"application_cost"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description,omitempty"`
	ApplicationID string          `json:"application_id,omitempty"`
}

// Planting is a crop planting with its management history.
type Planting struct {
	Base
	Name      string            `json:"name"`
	Crop      string            `json:"crop"`
	Field     string            `json:"field,omitempty"`
	PlantedAt time.Time         `json:"planted_at"`
	SeedUsage []SeedUsage       `json:"seed_usage"`
	History   []ManagementEntry `json:"management_history"`
}

// FindEntry returns the management entry with the given id.
func (p Planting) FindEntry(id string) (ManagementEntry, int, bool) {
	for i, e := range p.History {
		if e.ID == id {
			return e, i, true
		}
	}
	return ManagementEntry{}, -1, false
}

// AnimalGroup is a herd, flock, or lot that can receive applications.
type AnimalGroup struct {
	Base
	Name      string `json:"name"`
	Species   string `json:"species"`
	HeadCount int    `json:"head_count"`
}

// CashType distinguishes money in from money out.
type CashType string

// Cash-book transaction types.
const (
	CashExpense CashType = "expense"
	CashIncome  CashType = "income"
)

// CashSourceKind identifies the event that produced a cash transaction.
type CashSourceKind string

// Cash transaction sources.
const (
	SourceSupplyPurchase   CashSourceKind = "supply_purchase"
	SourceSupplyAdjustment CashSourceKind = "supply_adjustment"
	SourceApplication      CashSourceKind = "application"
	SourceManual           CashSourceKind = "manual"
)

// CashSource back-references the record that produced a transaction.
type CashSource struct {
	Kind CashSourceKind `json:"kind"`
	ID   string         `json:"id,omitempty"`
}

// CashTransaction is an append-only cash-book entry.
type CashTransaction struct {
	Base
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        CashType        `json:"type"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Source      CashSource      `json:"source"`
}

// Signed returns the amount with expenses negated.
func (c CashTransaction) Signed() decimal.Decimal {
	if c.Type == CashExpense {
		return c.Amount.Neg()
	}
	return c.Amount
}

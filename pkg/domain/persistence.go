package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Writes become visible to other callers
// only if the enclosing RunInTransaction returns without error.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	FindSupply(id string) (Supply, bool)
	CreateSupply(Supply) (Supply, error)
	UpdateSupply(id string, mutator func(*Supply) error) (Supply, error)
	DeleteSupply(id string) error

	FindPlanting(id string) (Planting, bool)
	CreatePlanting(Planting) (Planting, error)
	UpdatePlanting(id string, mutator func(*Planting) error) (Planting, error)
	DeletePlanting(id string) error

	FindAnimalGroup(id string) (AnimalGroup, bool)
	CreateAnimalGroup(AnimalGroup) (AnimalGroup, error)
	DeleteAnimalGroup(id string) error

	FindApplication(id string) (ScheduledApplication, bool)
	CreateApplication(ScheduledApplication) (ScheduledApplication, error)
	UpdateApplication(id string, mutator func(*ScheduledApplication) error) (ScheduledApplication, error)
	DeleteApplication(id string) error

	AppendCashTransaction(CashTransaction) (CashTransaction, error)
	DeleteCashTransaction(id string) error
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListSupplies() []Supply
	ListPlantings() []Planting
	ListAnimalGroups() []AnimalGroup
	ListApplications() []ScheduledApplication
	ListCashTransactions() []CashTransaction
	FindSupply(id string) (Supply, bool)
	FindPlanting(id string) (Planting, bool)
	FindAnimalGroup(id string) (AnimalGroup, bool)
	FindApplication(id string) (ScheduledApplication, bool)
}

// ChangeListener receives the changes of every committed transaction.
type ChangeListener func(changes []Change)

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Subscribe registers a listener invoked after each commit and returns a
	// function that removes it.
	Subscribe(listener ChangeListener) (unsubscribe func())
	GetSupply(id string) (Supply, bool)
	ListSupplies() []Supply
	GetPlanting(id string) (Planting, bool)
	ListPlantings() []Planting
	GetApplication(id string) (ScheduledApplication, bool)
	ListApplications() []ScheduledApplication
	ListAnimalGroups() []AnimalGroup
	ListCashTransactions() []CashTransaction
}

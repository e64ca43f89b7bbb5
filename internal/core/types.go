package core

import "fieldledger/pkg/domain"

type (
	EntityType             = domain.EntityType
	Severity               = domain.Severity
	Base                   = domain.Base
	Supply                 = domain.Supply
	SupplyCategory         = domain.SupplyCategory
	Unit                   = domain.Unit
	Target                 = domain.Target
	TargetKind             = domain.TargetKind
	StockReservation       = domain.StockReservation
	StockDeduction         = domain.StockDeduction
	ScheduledApplication   = domain.ScheduledApplication
	ApplicationStatus      = domain.ApplicationStatus
	Planting               = domain.Planting
	SeedUsage              = domain.SeedUsage
	ManagementEntry        = domain.ManagementEntry
	AnimalGroup            = domain.AnimalGroup
	CashTransaction        = domain.CashTransaction
	CashType               = domain.CashType
	CashSource             = domain.CashSource
	Change                 = domain.Change
	Action                 = domain.Action
	Violation              = domain.Violation
	Result                 = domain.Result
	Rule                   = domain.Rule
	RulesEngine            = domain.RulesEngine
	RuleViolationError     = domain.RuleViolationError
	Transaction            = domain.Transaction
	TransactionView        = domain.TransactionView
	PersistentStore        = domain.PersistentStore
	ValidationError        = domain.ValidationError
	ErrNotFound            = domain.ErrNotFound
	InsufficientStockError = domain.InsufficientStockError
	InvalidTransitionError = domain.InvalidTransitionError
)

const (
	EntitySupply          = domain.EntitySupply
	EntityPlanting        = domain.EntityPlanting
	EntityAnimalGroup     = domain.EntityAnimalGroup
	EntityApplication     = domain.EntityApplication
	EntityCashTransaction = domain.EntityCashTransaction
	EntityManagementEntry = domain.EntityManagementEntry
)

const (
	StatusPending   = domain.StatusPending
	StatusCompleted = domain.StatusCompleted
	StatusRefunded  = domain.StatusRefunded
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

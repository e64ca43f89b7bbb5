package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fieldledger/pkg/domain"
)

// SeedUsageInput is stock consumed when a planting is created.
type SeedUsageInput struct {
	SupplyID string
	Quantity decimal.Decimal
	Unit     Unit
}

// PlantingInput describes a new planting.
type PlantingInput struct {
	Name      string
	Crop      string
	Field     string
	PlantedAt time.Time
	SeedUsage []SeedUsageInput
}

func (in PlantingInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ValidationError{Field: "name", Message: "required"}
	}
	for i, u := range in.SeedUsage {
		if strings.TrimSpace(u.SupplyID) == "" {
			return ValidationError{Field: fmt.Sprintf("seed_usage[%d].supply_id", i), Message: "required"}
		}
		if !u.Quantity.IsPositive() {
			return ValidationError{Field: fmt.Sprintf("seed_usage[%d].quantity", i), Message: "must be positive"}
		}
		if !u.Unit.Valid() {
			return ValidationError{Field: fmt.Sprintf("seed_usage[%d].unit", i), Message: fmt.Sprintf("unknown unit %q", u.Unit)}
		}
	}
	return nil
}

// CreatePlanting stores a planting and consumes its initial seed or seedling
// usage from stock in the same transaction.
func (s *Service) CreatePlanting(ctx context.Context, in PlantingInput) (Planting, Result, error) {
	if err := in.validate(); err != nil {
		return Planting{}, Result{}, err
	}
	var created Planting
	res, err := s.run(ctx, opCreatePlanting, func(tx Transaction) (string, error) {
		usage := make([]SeedUsage, 0, len(in.SeedUsage))
		required := make(map[string]decimal.Decimal)
		for _, u := range in.SeedUsage {
			sup, ok := tx.FindSupply(u.SupplyID)
			if !ok {
				return "", ErrNotFound{Entity: EntitySupply, ID: u.SupplyID}
			}
			amount, err := toCanonical(sup, u.Quantity, u.Unit)
			if err != nil {
				return "", err
			}
			total := required[sup.ID].Add(amount)
			if available := sup.Available(); total.GreaterThan(available) {
				return "", InsufficientStockError{
					SupplyID:   sup.ID,
					SupplyName: sup.Name,
					Required:   total,
					Available:  available,
					Unit:       sup.Unit,
				}
			}
			required[sup.ID] = total
			usage = append(usage, SeedUsage{
				SupplyID: sup.ID,
				Quantity: amount,
				Unit:     sup.Unit,
				Cost:     roundMoney(amount.Mul(sup.UnitCost)),
			})
		}
		if err := consume(tx, usageAmounts(usage)); err != nil {
			return "", err
		}
		plantedAt := in.PlantedAt
		if plantedAt.IsZero() {
			plantedAt = tx.Now()
		}
		p, err := tx.CreatePlanting(Planting{
			Name:      strings.TrimSpace(in.Name),
			Crop:      strings.TrimSpace(in.Crop),
			Field:     strings.TrimSpace(in.Field),
			PlantedAt: plantedAt,
			SeedUsage: usage,
		})
		if err != nil {
			return "", err
		}
		created = p
		return p.ID, nil
	})
	if err != nil {
		return Planting{}, res, err
	}
	return created, res, nil
}

type stockMove struct {
	supplyID string
	amount   decimal.Decimal
}

func usageAmounts(usage []SeedUsage) []stockMove {
	out := make([]stockMove, 0, len(usage))
	for _, u := range usage {
		out = append(out, stockMove{supplyID: u.SupplyID, amount: u.Quantity})
	}
	return out
}

// consume takes each amount from Remaining.
func consume(tx Transaction, moves []stockMove) error {
	for _, m := range moves {
		if _, err := tx.UpdateSupply(m.supplyID, func(sup *Supply) error {
			sup.Remaining = sup.Remaining.Sub(m.amount)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// restore puts each amount back into Remaining.
func restore(tx Transaction, moves []stockMove) error {
	for _, m := range moves {
		if _, err := tx.UpdateSupply(m.supplyID, func(sup *Supply) error {
			sup.Remaining = sup.Remaining.Add(m.amount)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// ConsumptionInput describes direct use of a supply on a planting.
type ConsumptionInput struct {
	PlantingID  string
	SupplyID    string
	Quantity    decimal.Decimal
	Unit        Unit
	Date        time.Time
	Description string
}

func (in ConsumptionInput) validate() error {
	if strings.TrimSpace(in.PlantingID) == "" {
		return ValidationError{Field: "planting_id", Message: "required"}
	}
	if strings.TrimSpace(in.SupplyID) == "" {
		return ValidationError{Field: "supply_id", Message: "required"}
	}
	if !in.Quantity.IsPositive() {
		return ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if !in.Unit.Valid() {
		return ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", in.Unit)}
	}
	return nil
}

// LogConsumption deducts stock and appends a management entry to the
// planting. Stock reserved by pending applications is not available.
func (s *Service) LogConsumption(ctx context.Context, in ConsumptionInput) (ManagementEntry, Result, error) {
	if err := in.validate(); err != nil {
		return ManagementEntry{}, Result{}, err
	}
	var entry ManagementEntry
	res, err := s.run(ctx, opLogConsumption, func(tx Transaction) (string, error) {
		if _, ok := tx.FindPlanting(in.PlantingID); !ok {
			return in.PlantingID, ErrNotFound{Entity: EntityPlanting, ID: in.PlantingID}
		}
		sup, ok := tx.FindSupply(in.SupplyID)
		if !ok {
			return in.PlantingID, ErrNotFound{Entity: EntitySupply, ID: in.SupplyID}
		}
		amount, err := toCanonical(sup, in.Quantity, in.Unit)
		if err != nil {
			return in.PlantingID, err
		}
		if available := sup.Available(); amount.GreaterThan(available) {
			return in.PlantingID, InsufficientStockError{
				SupplyID:   sup.ID,
				SupplyName: sup.Name,
				Required:   amount,
				Available:  available,
				Unit:       sup.Unit,
			}
		}
		if err := consume(tx, []stockMove{{supplyID: sup.ID, amount: amount}}); err != nil {
			return in.PlantingID, err
		}
		date := in.Date
		if date.IsZero() {
			date = tx.Now()
		}
		next := ManagementEntry{
			ID:          uuid.NewString(),
			SupplyID:    sup.ID,
			Quantity:    amount,
			Unit:        sup.Unit,
			Cost:        roundMoney(amount.Mul(sup.UnitCost)),
			Date:        date,
			Description: in.Description,
		}
		if _, err := tx.UpdatePlanting(in.PlantingID, func(p *Planting) error {
			p.History = append(p.History, next)
			return nil
		}); err != nil {
			return in.PlantingID, err
		}
		entry = next
		return in.PlantingID, nil
	})
	if err != nil {
		return ManagementEntry{}, res, err
	}
	return entry, res, nil
}

// DeleteConsumption removes a direct management entry and restores its stock.
// Entries produced by a completed application are reversed by refunding it.
func (s *Service) DeleteConsumption(ctx context.Context, plantingID, entryID string) (Result, error) {
	return s.run(ctx, opDeleteConsumption, func(tx Transaction) (string, error) {
		p, ok := tx.FindPlanting(plantingID)
		if !ok {
			return plantingID, ErrNotFound{Entity: EntityPlanting, ID: plantingID}
		}
		entry, _, ok := p.FindEntry(entryID)
		if !ok {
			return plantingID, ErrNotFound{Entity: EntityManagementEntry, ID: entryID}
		}
		if entry.ApplicationID != "" {
			return plantingID, ValidationError{Field: "entry_id", Message: fmt.Sprintf("entry belongs to application %q; refund the application instead", entry.ApplicationID)}
		}
		if err := restore(tx, []stockMove{{supplyID: entry.SupplyID, amount: entry.Quantity}}); err != nil {
			return plantingID, err
		}
		_, err := tx.UpdatePlanting(plantingID, func(p *Planting) error {
			kept := make([]ManagementEntry, 0, len(p.History))
			for _, e := range p.History {
				if e.ID != entryID {
					kept = append(kept, e)
				}
			}
			p.History = kept
			return nil
		})
		return plantingID, err
	})
}

// DeletePlanting removes a planting in one transaction: pending applications
// targeting it are cancelled, completed ones refunded, and every direct entry
// and the initial seed usage are returned to stock.
func (s *Service) DeletePlanting(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, opDeletePlanting, func(tx Transaction) (string, error) {
		if _, ok := tx.FindPlanting(id); !ok {
			return id, ErrNotFound{Entity: EntityPlanting, ID: id}
		}
		target := Target{Kind: domain.TargetPlanting, ID: id}
		for _, app := range tx.Snapshot().ListApplications() {
			if app.Target != target {
				continue
			}
			switch app.Status {
			case StatusPending:
				if err := cancelInTx(tx, app); err != nil {
					return id, err
				}
			case StatusCompleted:
				if _, err := refundInTx(tx, app); err != nil {
					return id, err
				}
			}
		}

		p, _ := tx.FindPlanting(id)
		moves := usageAmounts(p.SeedUsage)
		for _, e := range p.History {
			if e.ApplicationID != "" {
				continue
			}
			moves = append(moves, stockMove{supplyID: e.SupplyID, amount: e.Quantity})
		}
		if err := restore(tx, moves); err != nil {
			return id, err
		}
		return id, tx.DeletePlanting(id)
	})
}

// GetPlanting returns a planting by id.
func (s *Service) GetPlanting(id string) (Planting, bool) {
	return s.store.GetPlanting(id)
}

// ListPlantings returns all plantings ordered by planting date.
func (s *Service) ListPlantings() []Planting {
	return s.store.ListPlantings()
}

// AnimalGroupInput describes a new animal group.
type AnimalGroupInput struct {
	Name      string
	Species   string
	HeadCount int
}

// CreateAnimalGroup stores an animal group that applications can target.
func (s *Service) CreateAnimalGroup(ctx context.Context, in AnimalGroupInput) (AnimalGroup, Result, error) {
	if strings.TrimSpace(in.Name) == "" {
		return AnimalGroup{}, Result{}, ValidationError{Field: "name", Message: "required"}
	}
	if in.HeadCount < 0 {
		return AnimalGroup{}, Result{}, ValidationError{Field: "head_count", Message: "must not be negative"}
	}
	var created AnimalGroup
	res, err := s.run(ctx, opCreateAnimalGroup, func(tx Transaction) (string, error) {
		g, err := tx.CreateAnimalGroup(AnimalGroup{
			Name:      strings.TrimSpace(in.Name),
			Species:   strings.TrimSpace(in.Species),
			HeadCount: in.HeadCount,
		})
		if err != nil {
			return "", err
		}
		created = g
		return g.ID, nil
	})
	if err != nil {
		return AnimalGroup{}, res, err
	}
	return created, res, nil
}

// DeleteAnimalGroup removes an animal group no pending or completed application targets.
func (s *Service) DeleteAnimalGroup(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, opDeleteAnimalGroup, func(tx Transaction) (string, error) {
		return id, tx.DeleteAnimalGroup(id)
	})
}

// ListAnimalGroups returns all animal groups ordered by name.
func (s *Service) ListAnimalGroups() []AnimalGroup {
	return s.store.ListAnimalGroups()
}

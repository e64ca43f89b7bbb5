package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is a measurement unit code.
type Unit string

// Supported units. Mass units convert through grams, volume units through
// milliliters; UnitCount converts only to itself.
const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitTonne      Unit = "t"
	UnitArroba     Unit = "@"
	UnitSack       Unit = "sc"
	UnitMilliliter Unit = "mL"
	UnitLiter      Unit = "L"
	UnitCount      Unit = "un"
)

// UnitClass groups mutually convertible units.
type UnitClass string

// Unit classes.
const (
	ClassMass   UnitClass = "mass"
	ClassVolume UnitClass = "volume"
	ClassCount  UnitClass = "count"
)

type unitDef struct {
	class  UnitClass
	toBase decimal.Decimal
}

var unitTable = map[Unit]unitDef{
	UnitGram:       {ClassMass, decimal.NewFromInt(1)},
	UnitKilogram:   {ClassMass, decimal.NewFromInt(1_000)},
	UnitTonne:      {ClassMass, decimal.NewFromInt(1_000_000)},
	UnitArroba:     {ClassMass, decimal.NewFromInt(15_000)},
	UnitSack:       {ClassMass, decimal.NewFromInt(60_000)},
	UnitMilliliter: {ClassVolume, decimal.NewFromInt(1)},
	UnitLiter:      {ClassVolume, decimal.NewFromInt(1_000)},
	UnitCount:      {ClassCount, decimal.NewFromInt(1)},
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	_, ok := unitTable[u]
	return ok
}

// Class returns the compatibility class of u.
func (u Unit) Class() (UnitClass, bool) {
	def, ok := unitTable[u]
	return def.class, ok
}

// ParseUnit normalises a unit code, accepting case variants ("KG", "ml", "l").
func ParseUnit(raw string) (Unit, error) {
	trimmed := strings.TrimSpace(raw)
	if u := Unit(trimmed); u.Valid() {
		return u, nil
	}
	for u := range unitTable {
		if strings.EqualFold(string(u), trimmed) {
			return u, nil
		}
	}
	return "", ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", raw)}
}

// Convert maps quantity from one unit to another. Conversions across classes
// fail with UnitMismatchError instead of passing the value through.
func Convert(quantity decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		if !from.Valid() {
			return decimal.Zero, ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", from)}
		}
		return quantity, nil
	}
	src, ok := unitTable[from]
	if !ok {
		return decimal.Zero, ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", from)}
	}
	dst, ok := unitTable[to]
	if !ok {
		return decimal.Zero, ValidationError{Field: "unit", Message: fmt.Sprintf("unknown unit %q", to)}
	}
	if src.class != dst.class {
		return decimal.Zero, UnitMismatchError{From: from, To: to}
	}
	return quantity.Mul(src.toBase).Div(dst.toBase), nil
}

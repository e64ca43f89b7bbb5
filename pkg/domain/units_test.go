package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		qty      string
		from, to Unit
		want     string
	}{
		{"1", UnitKilogram, UnitGram, "1000"},
		{"30000", UnitGram, UnitKilogram, "30"},
		{"2", UnitTonne, UnitKilogram, "2000"},
		{"1", UnitSack, UnitKilogram, "60"},
		{"2", UnitArroba, UnitKilogram, "30"},
		{"1500", UnitMilliliter, UnitLiter, "1.5"},
		{"7", UnitCount, UnitCount, "7"},
	}
	for _, tc := range cases {
		got, err := Convert(decimal.RequireFromString(tc.qty), tc.from, tc.to)
		if err != nil {
			t.Fatalf("%s %s->%s: %v", tc.qty, tc.from, tc.to, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s %s->%s: expected %s, got %s", tc.qty, tc.from, tc.to, tc.want, got)
		}
	}
}

func TestConvertRejectsCrossClassAndUnknown(t *testing.T) {
	_, err := Convert(decimal.NewFromInt(1), UnitLiter, UnitKilogram)
	var mismatch UnitMismatchError
	if !errors.As(err, &mismatch) || mismatch.From != UnitLiter || mismatch.To != UnitKilogram {
		t.Fatalf("expected UnitMismatchError, got %v", err)
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("mismatch should classify as validation, got %s", KindOf(err))
	}
	for _, pair := range [][2]Unit{{"bushel", UnitKilogram}, {UnitKilogram, "bushel"}, {"bushel", "bushel"}} {
		if _, err := Convert(decimal.NewFromInt(1), pair[0], pair[1]); err == nil {
			t.Fatalf("expected error for %v", pair)
		}
	}
}

func TestParseUnit(t *testing.T) {
	for raw, want := range map[string]Unit{"kg": UnitKilogram, "KG": UnitKilogram, " ml ": UnitMilliliter, "l": UnitLiter, "@": UnitArroba} {
		got, err := ParseUnit(raw)
		if err != nil || got != want {
			t.Fatalf("ParseUnit(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseUnit("bushel"); err == nil || err.Error() != `validation: unit: unknown unit "bushel"` {
		t.Fatalf("expected quoted unknown unit error, got %v", err)
	}
	if class, ok := UnitSack.Class(); !ok || class != ClassMass {
		t.Fatalf("sack should be mass, got %s", class)
	}
}

package revision

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType enum constants. REPLACE is reserved in the vocabulary; no
// transition currently produces it.
const (
	ItemTypeOriginal = "ORIGINAL"
	ItemTypeNew      = "NEW"
	ItemTypeRevised  = "REVISED"
	ItemTypeReplace  = "REPLACE"
	ItemTypeDeleted  = "DELETED"
)

// OriginalItem is one line of the immutable order snapshot a session is
// opened against. The ledger only reads it, never writes it.
type OriginalItem struct {
	ID         uuid.UUID
	Name       string
	Make       string
	Unit       string
	Quantity   decimal.Decimal
	Rate       decimal.Decimal
	TaxPercent decimal.Decimal
}

// Item is a working line in the revision ledger, derived from zero or one
// OriginalItem. OriginalRowID is a weak back-reference used for lookup and
// diff display only.
type Item struct {
	Type          string
	OriginalRowID *uuid.UUID
	Name          string
	Make          string
	Unit          string
	Quantity      decimal.Decimal
	Rate          decimal.Decimal
	TaxPercent    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func lineExclGST(quantity, rate decimal.Decimal) decimal.Decimal {
	return quantity.Mul(rate)
}

func lineInclGST(quantity, rate, taxPercent decimal.Decimal) decimal.Decimal {
	excl := lineExclGST(quantity, rate)
	return excl.Add(excl.Mul(taxPercent).Div(hundred))
}

// LineExclGST returns quantity * rate for the item's current field values.
func (it Item) LineExclGST() decimal.Decimal {
	return lineExclGST(it.Quantity, it.Rate)
}

// LineInclGST returns the line total with tax applied.
func (it Item) LineInclGST() decimal.Decimal {
	return lineInclGST(it.Quantity, it.Rate, it.TaxPercent)
}

// LineExclGST returns quantity * rate for the original snapshot line.
func (o OriginalItem) LineExclGST() decimal.Decimal {
	return lineExclGST(o.Quantity, o.Rate)
}

// LineInclGST returns the original line total with tax applied.
func (o OriginalItem) LineInclGST() decimal.Decimal {
	return lineInclGST(o.Quantity, o.Rate, o.TaxPercent)
}

// matchesOriginal reports whether every field of the item equals the
// original snapshot line. Used when undoing a soft delete to decide whether
// the restored item was edited before deletion.
func (it Item) matchesOriginal(o OriginalItem) bool {
	return it.Name == o.Name &&
		it.Make == o.Make &&
		it.Unit == o.Unit &&
		it.Quantity.Equal(o.Quantity) &&
		it.Rate.Equal(o.Rate) &&
		it.TaxPercent.Equal(o.TaxPercent)
}

// ItemPatch carries partial field edits for Ledger.UpdateItem. Nil fields
// are left untouched.
type ItemPatch struct {
	Name       *string
	Make       *string
	Unit       *string
	Quantity   *decimal.Decimal
	Rate       *decimal.Decimal
	TaxPercent *decimal.Decimal
}

package revision

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns the working list of revision items for one session and the
// state machine that moves an item between ORIGINAL, NEW, REVISED and
// DELETED as the user edits it. The original snapshot is kept alongside for
// undo lookups and the before-summary; it is never mutated.
type Ledger struct {
	originals []OriginalItem
	byID      map[uuid.UUID]OriginalItem
	items     []Item
}

// NewLedger seeds the ledger with one ORIGINAL working item per snapshot
// line. Calling it again for the same session discards all in-progress
// edits, which is only acceptable at session start.
func NewLedger(originals []OriginalItem) *Ledger {
	l := &Ledger{
		originals: append([]OriginalItem(nil), originals...),
		byID:      make(map[uuid.UUID]OriginalItem, len(originals)),
		items:     make([]Item, 0, len(originals)),
	}
	for _, o := range l.originals {
		l.byID[o.ID] = o
		rowID := o.ID
		l.items = append(l.items, Item{
			Type:          ItemTypeOriginal,
			OriginalRowID: &rowID,
			Name:          o.Name,
			Make:          o.Make,
			Unit:          o.Unit,
			Quantity:      o.Quantity,
			Rate:          o.Rate,
			TaxPercent:    o.TaxPercent,
		})
	}
	return l
}

// Items returns a copy of the working list, tombstones included.
func (l *Ledger) Items() []Item {
	return append([]Item(nil), l.items...)
}

// Originals returns a copy of the snapshot the ledger was seeded with.
func (l *Ledger) Originals() []OriginalItem {
	return append([]OriginalItem(nil), l.originals...)
}

// Original looks up a snapshot line by id.
func (l *Ledger) Original(id uuid.UUID) (OriginalItem, bool) {
	o, ok := l.byID[id]
	return o, ok
}

// Len returns the number of working items, tombstones included.
func (l *Ledger) Len() int {
	return len(l.items)
}

// ActiveCount returns the number of items contributing to the after-summary.
func (l *Ledger) ActiveCount() int {
	n := 0
	for _, it := range l.items {
		if it.Type != ItemTypeDeleted {
			n++
		}
	}
	return n
}

// AddItem appends a blank NEW item and returns its index.
func (l *Ledger) AddItem() int {
	l.items = append(l.items, Item{
		Type:       ItemTypeNew,
		Quantity:   decimal.Zero,
		Rate:       decimal.Zero,
		TaxPercent: decimal.Zero,
	})
	return len(l.items) - 1
}

// UpdateItem merges the patch into the item at index. A first edit promotes
// an ORIGINAL item to REVISED; NEW and REVISED items keep their type.
// Deleted items cannot be edited.
func (l *Ledger) UpdateItem(index int, patch ItemPatch) error {
	if index < 0 || index >= len(l.items) {
		return ErrIndexOutOfRange
	}
	it := &l.items[index]
	if it.Type == ItemTypeDeleted {
		return ErrItemDeleted
	}

	if patch.Name != nil {
		it.Name = *patch.Name
	}
	if patch.Make != nil {
		it.Make = *patch.Make
	}
	if patch.Unit != nil {
		it.Unit = *patch.Unit
	}
	if patch.Quantity != nil {
		it.Quantity = *patch.Quantity
	}
	if patch.Rate != nil {
		it.Rate = *patch.Rate
	}
	if patch.TaxPercent != nil {
		it.TaxPercent = *patch.TaxPercent
	}

	if it.Type == ItemTypeOriginal {
		it.Type = ItemTypeRevised
	}
	return nil
}

// RemoveItem applies the type-dependent removal transition:
//
//	ORIGINAL, REVISED -> DELETED tombstone, fields kept for display
//	DELETED           -> undo: restore REVISED with current fields if any
//	                     field differs from the original line, else ORIGINAL
//	NEW               -> removed from the ledger outright
//
// A tombstone without an original reference is unreachable under normal
// construction; it is removed outright rather than crashing.
func (l *Ledger) RemoveItem(index int) error {
	if index < 0 || index >= len(l.items) {
		return ErrIndexOutOfRange
	}
	it := &l.items[index]

	switch it.Type {
	case ItemTypeOriginal, ItemTypeRevised:
		it.Type = ItemTypeDeleted
	case ItemTypeNew:
		l.items = append(l.items[:index], l.items[index+1:]...)
	case ItemTypeDeleted:
		if it.OriginalRowID == nil {
			l.items = append(l.items[:index], l.items[index+1:]...)
			return nil
		}
		original, ok := l.byID[*it.OriginalRowID]
		if !ok {
			l.items = append(l.items[:index], l.items[index+1:]...)
			return nil
		}
		if it.matchesOriginal(original) {
			it.Type = ItemTypeOriginal
			it.Name = original.Name
			it.Make = original.Make
			it.Unit = original.Unit
			it.Quantity = original.Quantity
			it.Rate = original.Rate
			it.TaxPercent = original.TaxPercent
		} else {
			it.Type = ItemTypeRevised
		}
	}
	return nil
}

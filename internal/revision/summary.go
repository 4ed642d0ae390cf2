package revision

import "github.com/shopspring/decimal"

// Summary holds excl./incl.-GST totals over a list of line items. It is a
// pure aggregate; it is always recomputed, never stored.
type Summary struct {
	TotalExclGST decimal.Decimal `json:"total_excl_gst"`
	TotalInclGST decimal.Decimal `json:"total_incl_gst"`
}

// Difference is after-summary minus before-summary. Positive means the
// customer owes more; negative means the vendor owes a refund.
type Difference struct {
	ExclGST decimal.Decimal `json:"excl_gst"`
	InclGST decimal.Decimal `json:"incl_gst"`
}

// Summarize sums line totals over all non-deleted items.
func Summarize(items []Item) Summary {
	s := Summary{TotalExclGST: decimal.Zero, TotalInclGST: decimal.Zero}
	for _, it := range items {
		if it.Type == ItemTypeDeleted {
			continue
		}
		s.TotalExclGST = s.TotalExclGST.Add(it.LineExclGST())
		s.TotalInclGST = s.TotalInclGST.Add(it.LineInclGST())
	}
	return s
}

// SummarizeOriginals sums line totals over the immutable order snapshot.
func SummarizeOriginals(items []OriginalItem) Summary {
	s := Summary{TotalExclGST: decimal.Zero, TotalInclGST: decimal.Zero}
	for _, o := range items {
		s.TotalExclGST = s.TotalExclGST.Add(o.LineExclGST())
		s.TotalInclGST = s.TotalInclGST.Add(o.LineInclGST())
	}
	return s
}

// Diff returns after minus before.
func Diff(after, before Summary) Difference {
	return Difference{
		ExclGST: after.TotalExclGST.Sub(before.TotalExclGST),
		InclGST: after.TotalInclGST.Sub(before.TotalInclGST),
	}
}

// NetImpact is the absolute incl.-GST delta the reconciliation step must
// conserve.
func (d Difference) NetImpact() decimal.Decimal {
	return d.InclGST.Abs()
}

// IsPositive reports a positive flow: the customer owes more.
func (d Difference) IsPositive() bool {
	return d.InclGST.IsPositive()
}

// IsNegative reports a negative flow: a refund is owed back.
func (d Difference) IsNegative() bool {
	return d.InclGST.IsNegative()
}

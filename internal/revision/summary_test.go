package revision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarize_ExcludesDeleted(t *testing.T) {
	l := NewLedger(snapshotItems())
	before := Summarize(l.Items())

	require.NoError(t, l.RemoveItem(1))
	after := Summarize(l.Items())

	removed := l.Items()[1]
	require.True(t, before.TotalExclGST.Sub(after.TotalExclGST).Equal(removed.LineExclGST()))
	require.True(t, before.TotalInclGST.Sub(after.TotalInclGST).Equal(removed.LineInclGST()))
}

func TestSummarize_Additivity(t *testing.T) {
	l := NewLedger(snapshotItems())
	idx := l.AddItem()
	require.NoError(t, l.UpdateItem(idx, ItemPatch{Name: strPtr("Cover Block"), Quantity: decPtr(200), Rate: decPtr(3), TaxPercent: decPtr(12)}))

	whole := Summarize(l.Items())
	sum := Summary{}
	for _, it := range l.Items() {
		part := Summarize([]Item{it})
		sum.TotalExclGST = sum.TotalExclGST.Add(part.TotalExclGST)
		sum.TotalInclGST = sum.TotalInclGST.Add(part.TotalInclGST)
	}

	require.True(t, whole.TotalExclGST.Equal(sum.TotalExclGST))
	require.True(t, whole.TotalInclGST.Equal(sum.TotalInclGST))
}

func TestSummarize_LineTotals(t *testing.T) {
	it := Item{Type: ItemTypeNew, Quantity: dec(10), Rate: dec(100), TaxPercent: dec(18)}
	require.True(t, it.LineExclGST().Equal(dec(1000)))
	require.True(t, it.LineInclGST().Equal(dec(1180)))
}

func TestDiff_SignConvention(t *testing.T) {
	before := Summary{TotalExclGST: dec(1000), TotalInclGST: dec(1180)}
	after := Summary{TotalExclGST: dec(800), TotalInclGST: dec(944)}

	d := Diff(after, before)
	require.True(t, d.IsNegative())
	require.False(t, d.IsPositive())
	require.True(t, d.InclGST.Equal(dec(-236)))
	require.True(t, d.NetImpact().Equal(dec(236)))
}

func TestDiff_ZeroDifference(t *testing.T) {
	s := Summary{TotalExclGST: dec(1000), TotalInclGST: dec(1180)}
	d := Diff(s, s)
	require.False(t, d.IsPositive())
	require.False(t, d.IsNegative())
	require.True(t, d.NetImpact().IsZero())
}

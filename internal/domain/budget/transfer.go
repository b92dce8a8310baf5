package budget

import "github.com/shopspring/decimal"

// Transfer records one movement of balance from a donor nature to a receiver
// nature under the same funding source. Amount is always positive. A transfer
// is internal when donor and receiver share a unit, external otherwise.
type Transfer struct {
	Source         string
	DonorUnit      string
	DonorNature    string
	ReceiverUnit   string
	ReceiverNature string
	Amount         decimal.Decimal
}

// Internal reports whether the transfer stayed within a single unit.
func (t Transfer) Internal() bool {
	return t.DonorUnit == t.ReceiverUnit
}

// TransferLog is the ordered audit trail of a reallocation run. It is
// append-only while the engine runs and consolidated before being returned.
type TransferLog []Transfer

type transferKey struct {
	source         string
	donorUnit      string
	donorNature    string
	receiverUnit   string
	receiverNature string
}

func (t Transfer) key() transferKey {
	return transferKey{
		source:         t.Source,
		donorUnit:      t.DonorUnit,
		donorNature:    t.DonorNature,
		receiverUnit:   t.ReceiverUnit,
		receiverNature: t.ReceiverNature,
	}
}

// Consolidate merges transfers that share the same donor→receiver key into a
// single entry whose amount is the sum, preserving first-seen key order. Net
// balances are unchanged. Consolidating twice yields the same log.
func (l TransferLog) Consolidate() TransferLog {
	if len(l) == 0 {
		return TransferLog{}
	}

	merged := make(map[transferKey]int, len(l))
	out := make(TransferLog, 0, len(l))
	for _, tr := range l {
		key := tr.key()
		if idx, seen := merged[key]; seen {
			out[idx].Amount = out[idx].Amount.Add(tr.Amount)
			continue
		}
		merged[key] = len(out)
		out = append(out, tr)
	}
	return out
}

// InternalCount returns how many transfers stayed within a single unit.
func (l TransferLog) InternalCount() int {
	count := 0
	for _, tr := range l {
		if tr.Internal() {
			count++
		}
	}
	return count
}

// ExternalCount returns how many transfers crossed unit boundaries.
func (l TransferLog) ExternalCount() int {
	return len(l) - l.InternalCount()
}

// Total sums the amounts of all transfers in the log.
func (l TransferLog) Total() decimal.Decimal {
	total := decimal.Zero
	for _, tr := range l {
		total = total.Add(tr.Amount)
	}
	return total
}

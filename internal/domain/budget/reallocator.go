package budget

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// donorCandidate is a positive-balance nature considered for one deficit,
// with the donation it can make and its structural position for tie-breaks.
type donorCandidate struct {
	unit      *Unit
	nature    *Nature
	available decimal.Decimal
	order     int
}

// donationCapacity computes how much a nature can give in a single transfer:
// the reserve rule keeps at least reserveRatio of the original balance, the
// per-operation cap limits one transfer to donationCap of the original
// balance, and a nature with a non-positive original balance never donates.
func (e *Engine) donationCapacity(n *Nature) decimal.Decimal {
	if n.Original.Sign() <= 0 || n.Current.Sign() <= 0 {
		return decimal.Zero
	}
	reserve := n.Original.Mul(e.reserveRatio)
	perOperation := n.Original.Mul(e.donationCap)
	available := decimal.Min(n.Current.Sub(reserve), perOperation)
	if available.Sign() <= 0 {
		return decimal.Zero
	}
	return available
}

// internalPass covers each deficit using donors from the deficit's own unit.
// Deficits are processed in structural input order; residual shortfalls are
// left in place for the external pass.
func (e *Engine) internalPass(t *BalanceTable, log *TransferLog) {
	for _, d := range t.Deficits() {
		donors := e.collectDonors(t, d, true)
		e.coverDeficit(d, donors, log)
	}
}

// externalPass covers residual deficits using donors from other units under
// the same source. Eligibility and ordering rules match the internal pass.
func (e *Engine) externalPass(t *BalanceTable, log *TransferLog) {
	for _, d := range t.Deficits() {
		donors := e.collectDonors(t, d, false)
		e.coverDeficit(d, donors, log)
	}
}

// collectDonors gathers eligible donors for a deficit in structural input
// order. Internal collection stays inside the deficit's unit; external
// collection visits every other unit of the same source.
func (e *Engine) collectDonors(t *BalanceTable, d Deficit, internal bool) []donorCandidate {
	var donors []donorCandidate
	order := 0
	for _, unit := range d.Source.Units {
		if internal != (unit == d.Unit) {
			continue
		}
		for _, nat := range unit.Natures {
			order++
			if nat == d.Nature || t.NatureForbidden(nat.Code) {
				continue
			}
			available := e.donationCapacity(nat)
			if available.Sign() <= 0 {
				continue
			}
			donors = append(donors, donorCandidate{
				unit:      unit,
				nature:    nat,
				available: available,
				order:     order,
			})
		}
	}
	return donors
}

// coverDeficit applies the selection policy: a single donor that can cover
// the whole remaining need wins (first such donor in structural order);
// otherwise donors are combined in descending available order, ties broken by
// structural position. Every donation mutates both balances immediately and
// appends a transfer.
func (e *Engine) coverDeficit(d Deficit, donors []donorCandidate, log *TransferLog) {
	remaining := d.Need()
	if remaining.Sign() <= 0 || len(donors) == 0 {
		return
	}

	scan := donors
	if e.classAffinity {
		scan = partitionByAffinity(d, donors)
	}
	for _, donor := range scan {
		if donor.available.GreaterThanOrEqual(remaining) {
			e.apply(d, donor, remaining, log)
			return
		}
	}

	ordered := e.orderForCombination(d, donors)
	for _, donor := range ordered {
		if remaining.LessThanOrEqual(e.epsilon) {
			break
		}
		amount := decimal.Min(donor.available, remaining)
		if amount.Sign() <= 0 {
			continue
		}
		e.apply(d, donor, amount, log)
		remaining = remaining.Sub(amount)
	}

	if remaining.GreaterThan(e.epsilon) {
		e.log.Debug("deficit not fully covered",
			zap.String("source", d.Source.Code),
			zap.String("unit", d.Unit.Code),
			zap.String("nature", d.Nature.Code),
			zap.String("remaining", remaining.String()),
		)
	}
}

// orderForCombination sorts donors by descending available amount with the
// structural position as the documented tie-break. With class affinity
// enabled, donors whose code shares the deficit's first two digits form a
// leading tier, each tier keeping the same internal ordering.
func (e *Engine) orderForCombination(d Deficit, donors []donorCandidate) []donorCandidate {
	ordered := make([]donorCandidate, len(donors))
	copy(ordered, donors)

	byAvailability := func(a, b donorCandidate) bool {
		if !a.available.Equal(b.available) {
			return a.available.GreaterThan(b.available)
		}
		return a.order < b.order
	}

	if e.classAffinity {
		sort.Slice(ordered, func(i, j int) bool {
			iMatch := sameClass(d.Nature, ordered[i].nature)
			jMatch := sameClass(d.Nature, ordered[j].nature)
			if iMatch != jMatch {
				return iMatch
			}
			return byAvailability(ordered[i], ordered[j])
		})
		return ordered
	}

	sort.Slice(ordered, func(i, j int) bool {
		return byAvailability(ordered[i], ordered[j])
	})
	return ordered
}

// sameClass reports whether two natures share the leading two digits of their
// codes, the grouping used for class-affinity donor selection.
func sameClass(a, b *Nature) bool {
	return len(a.Code) >= 2 && len(b.Code) >= 2 && a.Code[:2] == b.Code[:2]
}

// partitionByAffinity puts same-class donors first while keeping structural
// order inside each tier.
func partitionByAffinity(d Deficit, donors []donorCandidate) []donorCandidate {
	ordered := make([]donorCandidate, 0, len(donors))
	var rest []donorCandidate
	for _, donor := range donors {
		if sameClass(d.Nature, donor.nature) {
			ordered = append(ordered, donor)
		} else {
			rest = append(rest, donor)
		}
	}
	return append(ordered, rest...)
}

// apply moves amount from the donor to the deficit nature and records the
// transfer.
func (e *Engine) apply(d Deficit, donor donorCandidate, amount decimal.Decimal, log *TransferLog) {
	donor.nature.Current = donor.nature.Current.Sub(amount)
	d.Nature.Current = d.Nature.Current.Add(amount)

	*log = append(*log, Transfer{
		Source:         d.Source.Code,
		DonorUnit:      donor.unit.Code,
		DonorNature:    donor.nature.Code,
		ReceiverUnit:   d.Unit.Code,
		ReceiverNature: d.Nature.Code,
		Amount:         amount,
	})

	e.log.Debug("transfer applied",
		zap.String("source", d.Source.Code),
		zap.String("donor_unit", donor.unit.Code),
		zap.String("donor_nature", donor.nature.Code),
		zap.String("receiver_unit", d.Unit.Code),
		zap.String("receiver_nature", d.Nature.Code),
		zap.String("amount", amount.String()),
	)
}

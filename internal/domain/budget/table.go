package budget

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/orcamento/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// natureCodePattern matches the 6-digit codes used for units and natures.
var natureCodePattern = regexp.MustCompile(`^\d{6}$`)

// Nature is an expense-category line item within a unit. Original holds the
// balance captured before any reallocation; Current is mutated by the engine.
type Nature struct {
	Code     string
	Name     string
	Original decimal.Decimal
	Current  decimal.Decimal
}

// NewNature creates a nature whose current balance starts at the original.
func NewNature(code, name string, original decimal.Decimal) *Nature {
	return &Nature{
		Code:     NormalizeCode(code),
		Name:     name,
		Original: original,
		Current:  original,
	}
}

// Delta returns how much the nature's balance changed during the run.
func (n *Nature) Delta() decimal.Decimal {
	return n.Current.Sub(n.Original)
}

// Unit is a budget-holding organizational unit identified by a 6-digit code.
// Natures keep the order they appeared in the input.
type Unit struct {
	Code    string
	Name    string
	Natures []*Nature
}

// Source groups the units funded by one funding source.
type Source struct {
	Code  string
	Units []*Unit
}

// BalanceTable is the full Source → Unit → Nature forest the engine operates
// on. It is constructed once per run and exclusively owned by that run.
type BalanceTable struct {
	Sources []*Source

	forbiddenSources map[string]struct{}
	forbiddenNatures map[string]struct{}
}

// NormalizeCode strips the dots and spaces spreadsheet exports tend to leave
// in unit/nature codes so lookups compare clean 6-digit strings.
func NormalizeCode(code string) string {
	code = strings.ReplaceAll(code, ".", "")
	return strings.ReplaceAll(code, " ", "")
}

// NewBalanceTable validates the structural invariants of the forest: every
// nature has a parent unit, every unit a parent source, codes are well formed
// and unique within their scope. Balance values themselves are never rejected.
func NewBalanceTable(sources []*Source) (*BalanceTable, error) {
	if len(sources) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Balance table must contain at least one source")
	}

	seenSources := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if src == nil || src.Code == "" {
			return nil, shared.NewDomainError("INVALID_INPUT", "Source code must not be empty")
		}
		if _, dup := seenSources[src.Code]; dup {
			return nil, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("Duplicate source code %q", src.Code))
		}
		seenSources[src.Code] = struct{}{}

		seenUnits := make(map[string]struct{}, len(src.Units))
		for _, unit := range src.Units {
			if unit == nil {
				return nil, shared.NewDomainError("INVALID_INPUT",
					fmt.Sprintf("Source %q contains a nature with no parent unit", src.Code))
			}
			unit.Code = NormalizeCode(unit.Code)
			if !natureCodePattern.MatchString(unit.Code) {
				return nil, shared.NewDomainError("INVALID_INPUT",
					fmt.Sprintf("Unit code %q is not a 6-digit code", unit.Code))
			}
			if _, dup := seenUnits[unit.Code]; dup {
				return nil, shared.NewDomainError("INVALID_INPUT",
					fmt.Sprintf("Duplicate unit code %q under source %q", unit.Code, src.Code))
			}
			seenUnits[unit.Code] = struct{}{}

			seenNatures := make(map[string]struct{}, len(unit.Natures))
			for _, nat := range unit.Natures {
				if nat == nil {
					return nil, shared.NewDomainError("INVALID_INPUT",
						fmt.Sprintf("Unit %q contains a nil nature", unit.Code))
				}
				nat.Code = NormalizeCode(nat.Code)
				if !natureCodePattern.MatchString(nat.Code) {
					return nil, shared.NewDomainError("INVALID_INPUT",
						fmt.Sprintf("Nature code %q is not a 6-digit code", nat.Code))
				}
				if _, dup := seenNatures[nat.Code]; dup {
					return nil, shared.NewDomainError("INVALID_INPUT",
						fmt.Sprintf("Duplicate nature code %q under unit %q", nat.Code, unit.Code))
				}
				seenNatures[nat.Code] = struct{}{}
			}
		}
	}

	return &BalanceTable{
		Sources:          sources,
		forbiddenSources: make(map[string]struct{}),
		forbiddenNatures: make(map[string]struct{}),
	}, nil
}

// MarkForbidden registers the sources and natures excluded from reallocation.
// Codes that reference nothing in the table are a configuration error; the
// table is left unchanged in that case.
func (t *BalanceTable) MarkForbidden(sourceCodes, natureCodes []string) error {
	knownSources := make(map[string]struct{})
	knownNatures := make(map[string]struct{})
	for _, src := range t.Sources {
		knownSources[src.Code] = struct{}{}
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				knownNatures[nat.Code] = struct{}{}
			}
		}
	}

	pendingSources := make(map[string]struct{}, len(sourceCodes))
	for _, code := range sourceCodes {
		if _, ok := knownSources[code]; !ok {
			return shared.NewDomainError("INVALID_FORBIDDEN_SOURCE",
				fmt.Sprintf("Forbidden source %q does not exist in the balance table", code))
		}
		pendingSources[code] = struct{}{}
	}

	pendingNatures := make(map[string]struct{}, len(natureCodes))
	for _, code := range natureCodes {
		normalized := NormalizeCode(code)
		if _, ok := knownNatures[normalized]; !ok {
			return shared.NewDomainError("INVALID_FORBIDDEN_NATURE",
				fmt.Sprintf("Forbidden nature %q does not exist in the balance table", code))
		}
		pendingNatures[normalized] = struct{}{}
	}

	for code := range pendingSources {
		t.forbiddenSources[code] = struct{}{}
	}
	for code := range pendingNatures {
		t.forbiddenNatures[code] = struct{}{}
	}
	return nil
}

// SourceForbidden reports whether the source is excluded from reallocation.
func (t *BalanceTable) SourceForbidden(code string) bool {
	_, ok := t.forbiddenSources[code]
	return ok
}

// NatureForbidden reports whether the nature is excluded from reallocation.
func (t *BalanceTable) NatureForbidden(code string) bool {
	_, ok := t.forbiddenNatures[NormalizeCode(code)]
	return ok
}

// Deficit points at a nature whose current balance is negative, together with
// its parents so transfers can be addressed.
type Deficit struct {
	Source *Source
	Unit   *Unit
	Nature *Nature
}

// Need returns the positive amount required to bring the nature back to zero.
func (d Deficit) Need() decimal.Decimal {
	return d.Nature.Current.Neg()
}

// Deficits scans the table for natures with strictly negative current
// balances, excluding forbidden sources and natures. The scan is read-only
// and visits natures in structural input order, so repeated calls between
// reallocation passes are cheap and deterministic.
func (t *BalanceTable) Deficits() []Deficit {
	var deficits []Deficit
	for _, src := range t.Sources {
		if t.SourceForbidden(src.Code) {
			continue
		}
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				if t.NatureForbidden(nat.Code) {
					continue
				}
				if nat.Current.IsNegative() {
					deficits = append(deficits, Deficit{Source: src, Unit: unit, Nature: nat})
				}
			}
		}
	}
	return deficits
}

// TotalOriginal sums the original balances of every nature in the table.
func (t *BalanceTable) TotalOriginal() decimal.Decimal {
	total := decimal.Zero
	for _, src := range t.Sources {
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				total = total.Add(nat.Original)
			}
		}
	}
	return total
}

// TotalCurrent sums the current balances of every nature in the table.
func (t *BalanceTable) TotalCurrent() decimal.Decimal {
	total := decimal.Zero
	for _, src := range t.Sources {
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				total = total.Add(nat.Current)
			}
		}
	}
	return total
}

// UnitCount returns the number of units across all sources.
func (t *BalanceTable) UnitCount() int {
	count := 0
	for _, src := range t.Sources {
		count += len(src.Units)
	}
	return count
}

// NatureCount returns the number of natures across all sources.
func (t *BalanceTable) NatureCount() int {
	count := 0
	for _, src := range t.Sources {
		for _, unit := range src.Units {
			count += len(unit.Natures)
		}
	}
	return count
}

package budget

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ViolationType classifies what a validation violation is about.
type ViolationType string

const (
	// ViolationResidualDeficit marks a nature still negative after both
	// reallocation passes. An expected business outcome, not an engine bug.
	ViolationResidualDeficit ViolationType = "RESIDUAL_DEFICIT"
	// ViolationConservation marks a mismatch between the table's original
	// and current totals. Reallocation only moves value, so this is a defect.
	ViolationConservation ViolationType = "CONSERVATION_MISMATCH"
	// ViolationNonPositiveTransfer marks a transfer whose amount is not
	// strictly positive.
	ViolationNonPositiveTransfer ViolationType = "NON_POSITIVE_TRANSFER"
)

// Severity distinguishes expected business outcomes from internal defects.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Violation describes one validation finding.
type Violation struct {
	Type        ViolationType
	Severity    Severity
	SourceCode  string
	UnitCode    string
	NatureCode  string
	Amount      decimal.Decimal
	Excluded    bool
	Description string
}

// ValidationReport is the structured outcome of validating a run. Partial
// failure is reported, never raised: the caller decides how to present
// unresolved deficits. BaselineTotal is the table total before the run;
// CurrentTotal the total after.
type ValidationReport struct {
	Violations    []Violation
	BaselineTotal decimal.Decimal
	CurrentTotal  decimal.Decimal
}

// Valid reports whether the run produced no violations at all.
func (r *ValidationReport) Valid() bool {
	return len(r.Violations) == 0
}

// HasCritical reports whether any violation indicates an engine defect.
func (r *ValidationReport) HasCritical() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ResidualDeficits returns the residual-deficit violations, excluded ones
// included.
func (r *ValidationReport) ResidualDeficits() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Type == ViolationResidualDeficit {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks the post-run invariants: no nature may stay negative beyond
// the tolerance (forbidden ones are reported as excluded, never fixed), the
// table total must match the baseline captured before the run (transfers only
// move value, never create or destroy it), and every transfer amount must be
// strictly positive.
func Validate(t *BalanceTable, log TransferLog, baseline, tolerance decimal.Decimal) *ValidationReport {
	report := &ValidationReport{
		Violations:    make([]Violation, 0),
		BaselineTotal: baseline,
		CurrentTotal:  t.TotalCurrent(),
	}

	for _, src := range t.Sources {
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				if nat.Current.GreaterThanOrEqual(tolerance.Neg()) {
					continue
				}
				excluded := t.SourceForbidden(src.Code) || t.NatureForbidden(nat.Code)
				desc := fmt.Sprintf("Nature %s in unit %s remains negative", nat.Code, unit.Code)
				if excluded {
					desc += " (excluded from reallocation)"
				}
				report.Violations = append(report.Violations, Violation{
					Type:        ViolationResidualDeficit,
					Severity:    SeverityWarning,
					SourceCode:  src.Code,
					UnitCode:    unit.Code,
					NatureCode:  nat.Code,
					Amount:      nat.Current.Neg(),
					Excluded:    excluded,
					Description: desc,
				})
			}
		}
	}

	mismatch := report.CurrentTotal.Sub(report.BaselineTotal)
	if mismatch.Abs().GreaterThan(tolerance) {
		report.Violations = append(report.Violations, Violation{
			Type:     ViolationConservation,
			Severity: SeverityCritical,
			Amount:   mismatch,
			Description: fmt.Sprintf("Table total %s does not match pre-run total %s",
				report.CurrentTotal, report.BaselineTotal),
		})
	}

	for _, tr := range log {
		if tr.Amount.Sign() > 0 {
			continue
		}
		report.Violations = append(report.Violations, Violation{
			Type:       ViolationNonPositiveTransfer,
			Severity:   SeverityCritical,
			SourceCode: tr.Source,
			UnitCode:   tr.DonorUnit,
			NatureCode: tr.DonorNature,
			Amount:     tr.Amount,
			Description: fmt.Sprintf("Transfer %s/%s → %s/%s has non-positive amount %s",
				tr.DonorUnit, tr.DonorNature, tr.ReceiverUnit, tr.ReceiverNature, tr.Amount),
		})
	}

	return report
}

// Package budget implements the reallocation engine: it scans a balance
// table for natures in deficit and covers them from positive-balance donor
// natures, first within the same unit, then across units of the same funding
// source, under the reserve and per-operation protection rules. The engine is
// synchronous, deterministic and performs no I/O.
package budget

import (
	"github.com/orcamento/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Default protection rules: a donor keeps at least 20% of its original
// balance and gives at most 40% of it in a single transfer. Residual needs at
// or below the epsilon are treated as resolved.
var (
	DefaultReserveRatio = decimal.NewFromFloat(0.20)
	DefaultDonationCap  = decimal.NewFromFloat(0.40)
	DefaultEpsilon      = decimal.NewFromFloat(0.01)
)

// Engine runs the full reallocation pipeline over one balance table.
type Engine struct {
	reserveRatio  decimal.Decimal
	donationCap   decimal.Decimal
	epsilon       decimal.Decimal
	classAffinity bool
	log           *zap.Logger
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithReserveRatio overrides the share of the original balance a donor must
// retain. Values outside (0, 1) are ignored.
func WithReserveRatio(ratio decimal.Decimal) EngineOption {
	return func(e *Engine) {
		if ratio.Sign() > 0 && ratio.LessThan(decimal.NewFromInt(1)) {
			e.reserveRatio = ratio
		}
	}
}

// WithDonationCap overrides the share of the original balance a donor may
// give in a single transfer. Values outside (0, 1) are ignored.
func WithDonationCap(ratio decimal.Decimal) EngineOption {
	return func(e *Engine) {
		if ratio.Sign() > 0 && ratio.LessThan(decimal.NewFromInt(1)) {
			e.donationCap = ratio
		}
	}
}

// WithEpsilon overrides the residual-need tolerance. Negative values are
// ignored.
func WithEpsilon(epsilon decimal.Decimal) EngineOption {
	return func(e *Engine) {
		if epsilon.Sign() >= 0 {
			e.epsilon = epsilon
		}
	}
}

// WithClassAffinity enables preferring donors whose nature code shares the
// deficit's leading two digits when combining donors.
func WithClassAffinity(enabled bool) EngineOption {
	return func(e *Engine) {
		e.classAffinity = enabled
	}
}

// WithLogger sets the logger used for per-transfer diagnostics.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine creates an engine with the default protection rules.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		reserveRatio: DefaultReserveRatio,
		donationCap:  DefaultDonationCap,
		epsilon:      DefaultEpsilon,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunStats summarizes one reallocation run.
type RunStats struct {
	SourceCount           int
	UnitCount             int
	NatureCount           int
	DeficitsDetected      int
	DeficitsResolved      int
	DeficitsUnresolved    int
	InternalTransfers     int
	ExternalTransfers     int
	RawTransfers          int
	ConsolidatedTransfers int
}

// RunResult bundles everything a run produces: the mutated table (now the
// adjusted-balances view), the consolidated transfer log, the validation
// report and run statistics.
type RunResult struct {
	Table     *BalanceTable
	Transfers TransferLog
	Report    *ValidationReport
	Stats     RunStats
}

// Run executes deficit detection, the internal pass, the external pass,
// consolidation and validation on the given table. The table is mutated in
// place and must not be shared with another run. Unresolved deficits are
// reported through the validation report, never returned as an error.
func (e *Engine) Run(table *BalanceTable) (*RunResult, error) {
	if table == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Balance table cannot be nil")
	}

	stats := RunStats{
		SourceCount: len(table.Sources),
		UnitCount:   table.UnitCount(),
		NatureCount: table.NatureCount(),
	}

	baseline := table.TotalCurrent()
	deficits := table.Deficits()
	stats.DeficitsDetected = len(deficits)
	e.log.Info("starting reallocation run",
		zap.Int("sources", stats.SourceCount),
		zap.Int("units", stats.UnitCount),
		zap.Int("deficits", stats.DeficitsDetected),
	)

	var log TransferLog
	e.internalPass(table, &log)
	e.externalPass(table, &log)

	stats.RawTransfers = len(log)
	stats.InternalTransfers = log.InternalCount()
	stats.ExternalTransfers = log.ExternalCount()

	consolidated := log.Consolidate()
	stats.ConsolidatedTransfers = len(consolidated)

	report := Validate(table, consolidated, baseline, e.epsilon)
	unresolved := 0
	for _, v := range report.ResidualDeficits() {
		if !v.Excluded {
			unresolved++
		}
	}
	stats.DeficitsUnresolved = unresolved
	stats.DeficitsResolved = stats.DeficitsDetected - unresolved

	e.log.Info("reallocation run finished",
		zap.Int("raw_transfers", stats.RawTransfers),
		zap.Int("consolidated_transfers", stats.ConsolidatedTransfers),
		zap.Int("unresolved_deficits", stats.DeficitsUnresolved),
		zap.Bool("valid", report.Valid()),
	)

	return &RunResult{
		Table:     table,
		Transfers: consolidated,
		Report:    report,
		Stats:     stats,
	}, nil
}

package budget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orcamento/backend/internal/domain/budget"
)

// ReallocationService provides application-level budget reallocation
// operations: full runs, dry-run previews and standalone table validation.
type ReallocationService struct {
	engine *budget.Engine
	log    *zap.Logger
}

// NewReallocationService creates a new ReallocationService
func NewReallocationService(engine *budget.Engine, log *zap.Logger) *ReallocationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReallocationService{engine: engine, log: log}
}

// ===================== Request DTOs =====================

// NatureInput is one expense-category line of the incoming balance table.
// CurrentBalance is optional; when omitted the nature starts at its original
// balance.
type NatureInput struct {
	Code            string           `json:"code" binding:"required,code6"`
	Name            string           `json:"name"`
	OriginalBalance decimal.Decimal  `json:"original_balance"`
	CurrentBalance  *decimal.Decimal `json:"current_balance,omitempty"`
}

// UnitInput groups the natures of one organizational unit.
type UnitInput struct {
	Code    string        `json:"code" binding:"required,code6"`
	Name    string        `json:"name"`
	Natures []NatureInput `json:"natures" binding:"required,min=1,dive"`
}

// SourceInput groups the units funded by one funding source.
type SourceInput struct {
	Code  string      `json:"code" binding:"required"`
	Units []UnitInput `json:"units" binding:"required,min=1,dive"`
}

// ReallocationRequest is the full input of a reallocation run: the balance
// table plus the sources and natures excluded from it.
type ReallocationRequest struct {
	Sources          []SourceInput `json:"sources" binding:"required,min=1,dive"`
	ForbiddenSources []string      `json:"forbidden_sources"`
	ForbiddenNatures []string      `json:"forbidden_natures"`
}

// ===================== Response DTOs =====================

// TransferView represents one consolidated transfer in API responses
type TransferView struct {
	Source         string          `json:"source"`
	DonorUnit      string          `json:"donor_unit"`
	DonorNature    string          `json:"donor_nature"`
	ReceiverUnit   string          `json:"receiver_unit"`
	ReceiverNature string          `json:"receiver_nature"`
	Amount         decimal.Decimal `json:"amount"`
	Internal       bool            `json:"internal"`
}

// BalanceView is one row of the adjusted-balances view
type BalanceView struct {
	Source          string          `json:"source"`
	UnitCode        string          `json:"unit_code"`
	UnitName        string          `json:"unit_name,omitempty"`
	NatureCode      string          `json:"nature_code"`
	NatureName      string          `json:"nature_name,omitempty"`
	OriginalBalance decimal.Decimal `json:"original_balance"`
	AdjustedBalance decimal.Decimal `json:"adjusted_balance"`
	Delta           decimal.Decimal `json:"delta"`
}

// ViolationView represents one validation finding in API responses
type ViolationView struct {
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Source      string          `json:"source,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Nature      string          `json:"nature,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Excluded    bool            `json:"excluded"`
	Description string          `json:"description"`
}

// ValidationView is the validation report in API responses
type ValidationView struct {
	Valid         bool            `json:"valid"`
	HasCritical   bool            `json:"has_critical"`
	BaselineTotal decimal.Decimal `json:"baseline_total"`
	CurrentTotal  decimal.Decimal `json:"current_total"`
	Violations    []ViolationView `json:"violations"`
}

// StatsView summarizes a run in API responses
type StatsView struct {
	Sources               int `json:"sources"`
	Units                 int `json:"units"`
	Natures               int `json:"natures"`
	DeficitsDetected      int `json:"deficits_detected"`
	DeficitsResolved      int `json:"deficits_resolved"`
	DeficitsUnresolved    int `json:"deficits_unresolved"`
	InternalTransfers     int `json:"internal_transfers"`
	ExternalTransfers     int `json:"external_transfers"`
	RawTransfers          int `json:"raw_transfers"`
	ConsolidatedTransfers int `json:"consolidated_transfers"`
}

// ReallocationResponse is the result of a full reallocation run
type ReallocationResponse struct {
	RunID      uuid.UUID       `json:"run_id"`
	Balances   []BalanceView   `json:"balances"`
	Transfers  []TransferView  `json:"transfers"`
	Validation ValidationView  `json:"validation"`
	Stats      StatsView       `json:"stats"`
	DurationMS int64           `json:"duration_ms"`
}

// PreviewResponse is the result of a dry-run: the transfer plan without the
// adjusted-balances view.
type PreviewResponse struct {
	RunID      uuid.UUID      `json:"run_id"`
	Transfers  []TransferView `json:"transfers"`
	Validation ValidationView `json:"validation"`
	Stats      StatsView      `json:"stats"`
	DurationMS int64          `json:"duration_ms"`
}

// ===================== Operations =====================

// Run executes a full reallocation over the submitted balance table and
// returns the adjusted balances, the consolidated transfer log, the
// validation report and run statistics.
func (s *ReallocationService) Run(ctx context.Context, req ReallocationRequest) (*ReallocationResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := buildTable(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	start := time.Now()
	result, err := s.engine.Run(table)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	s.log.Info("reallocation run completed",
		zap.String("run_id", runID.String()),
		zap.Int("transfers", len(result.Transfers)),
		zap.Int("unresolved_deficits", result.Stats.DeficitsUnresolved),
		zap.Duration("duration", duration),
	)

	return &ReallocationResponse{
		RunID:      runID,
		Balances:   balanceViews(result.Table),
		Transfers:  transferViews(result.Transfers),
		Validation: validationView(result.Report),
		Stats:      statsView(result.Stats),
		DurationMS: duration.Milliseconds(),
	}, nil
}

// Preview runs the engine on a throwaway copy of the submitted table and
// returns the transfer plan without committing an adjusted-balances view.
func (s *ReallocationService) Preview(ctx context.Context, req ReallocationRequest) (*PreviewResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := buildTable(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	start := time.Now()
	result, err := s.engine.Run(table)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	s.log.Info("reallocation preview completed",
		zap.String("run_id", runID.String()),
		zap.Int("transfers", len(result.Transfers)),
		zap.Duration("duration", duration),
	)

	return &PreviewResponse{
		RunID:      runID,
		Transfers:  transferViews(result.Transfers),
		Validation: validationView(result.Report),
		Stats:      statsView(result.Stats),
		DurationMS: duration.Milliseconds(),
	}, nil
}

// ValidateTable validates the submitted table as-is, without reallocating:
// existing deficits, conservation against the original totals and nothing
// else.
func (s *ReallocationService) ValidateTable(ctx context.Context, req ReallocationRequest) (*ValidationView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := buildTable(req)
	if err != nil {
		return nil, err
	}

	report := budget.Validate(table, nil, table.TotalCurrent(), budget.DefaultEpsilon)
	view := validationView(report)

	s.log.Info("table validated",
		zap.Bool("valid", view.Valid),
		zap.Int("violations", len(view.Violations)),
	)
	return &view, nil
}

// ===================== Mapping =====================

// buildTable maps the request DTOs onto the domain forest and applies the
// forbidden configuration. Domain validation errors pass through unchanged.
func buildTable(req ReallocationRequest) (*budget.BalanceTable, error) {
	sources := make([]*budget.Source, 0, len(req.Sources))
	for _, src := range req.Sources {
		units := make([]*budget.Unit, 0, len(src.Units))
		for _, u := range src.Units {
			natures := make([]*budget.Nature, 0, len(u.Natures))
			for _, n := range u.Natures {
				nat := budget.NewNature(n.Code, n.Name, n.OriginalBalance)
				if n.CurrentBalance != nil {
					nat.Current = *n.CurrentBalance
				}
				natures = append(natures, nat)
			}
			units = append(units, &budget.Unit{
				Code:    budget.NormalizeCode(u.Code),
				Name:    u.Name,
				Natures: natures,
			})
		}
		sources = append(sources, &budget.Source{Code: src.Code, Units: units})
	}

	table, err := budget.NewBalanceTable(sources)
	if err != nil {
		return nil, err
	}
	if err := table.MarkForbidden(req.ForbiddenSources, req.ForbiddenNatures); err != nil {
		return nil, err
	}
	return table, nil
}

func transferViews(log budget.TransferLog) []TransferView {
	views := make([]TransferView, 0, len(log))
	for _, tr := range log {
		views = append(views, TransferView{
			Source:         tr.Source,
			DonorUnit:      tr.DonorUnit,
			DonorNature:    tr.DonorNature,
			ReceiverUnit:   tr.ReceiverUnit,
			ReceiverNature: tr.ReceiverNature,
			Amount:         tr.Amount,
			Internal:       tr.Internal(),
		})
	}
	return views
}

func balanceViews(table *budget.BalanceTable) []BalanceView {
	var views []BalanceView
	for _, src := range table.Sources {
		for _, unit := range src.Units {
			for _, nat := range unit.Natures {
				views = append(views, BalanceView{
					Source:          src.Code,
					UnitCode:        unit.Code,
					UnitName:        unit.Name,
					NatureCode:      nat.Code,
					NatureName:      nat.Name,
					OriginalBalance: nat.Original,
					AdjustedBalance: nat.Current,
					Delta:           nat.Delta(),
				})
			}
		}
	}
	return views
}

func validationView(report *budget.ValidationReport) ValidationView {
	violations := make([]ViolationView, 0, len(report.Violations))
	for _, v := range report.Violations {
		violations = append(violations, ViolationView{
			Type:        string(v.Type),
			Severity:    string(v.Severity),
			Source:      v.SourceCode,
			Unit:        v.UnitCode,
			Nature:      v.NatureCode,
			Amount:      v.Amount,
			Excluded:    v.Excluded,
			Description: v.Description,
		})
	}
	return ValidationView{
		Valid:         report.Valid(),
		HasCritical:   report.HasCritical(),
		BaselineTotal: report.BaselineTotal,
		CurrentTotal:  report.CurrentTotal,
		Violations:    violations,
	}
}

func statsView(stats budget.RunStats) StatsView {
	return StatsView{
		Sources:               stats.SourceCount,
		Units:                 stats.UnitCount,
		Natures:               stats.NatureCount,
		DeficitsDetected:      stats.DeficitsDetected,
		DeficitsResolved:      stats.DeficitsResolved,
		DeficitsUnresolved:    stats.DeficitsUnresolved,
		InternalTransfers:     stats.InternalTransfers,
		ExternalTransfers:     stats.ExternalTransfers,
		RawTransfers:          stats.RawTransfers,
		ConsolidatedTransfers: stats.ConsolidatedTransfers,
	}
}

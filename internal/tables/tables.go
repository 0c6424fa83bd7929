// Package tables implements Phase 6 (Tables & budget handling): classifying
// extracted table rows as KPI or budget rows, validating each against its
// contract, and attaching the resulting nodes to the chunks they originate
// from.
package tables

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KPI is an indicator row: must carry indicator, baseline, target, and
// unit.
type KPI struct {
	Indicator string
	Baseline  float64
	Target    float64
	Unit      string
	ChunkID   string
}

// BudgetRow is a financial line item that must balance to within a
// configured tolerance.
type BudgetRow struct {
	Label     string
	Allocated float64
	Executed  float64
	Currency  string
	ChunkID   string
}

// Balances reports whether the row balances within tolerance (relative to
// Allocated, or absolute when Allocated is zero).
func (b BudgetRow) Balances(tolerance float64) bool {
	diff := math.Abs(b.Allocated - b.Executed)
	if b.Allocated == 0 {
		return diff <= tolerance
	}
	return diff/math.Abs(b.Allocated) <= tolerance
}

// Subgraph is Phase 6's postcondition: KPI and Budget nodes attached to
// their originating chunks.
type Subgraph struct {
	KPIs    []KPI
	Budgets []BudgetRow
}

// RawRow is a classifier input: an untyped table row plus its originating
// chunk id.
type RawRow struct {
	ChunkID string
	Cells   map[string]string
}

// Classify sorts raw rows into KPI or budget rows by the presence of their
// required keys, validating each against its contract. A row satisfying
// neither contract is skipped rather than erroring — table extraction
// frequently includes header or decorative rows.
func Classify(rows []RawRow, budgetTolerance float64) (Subgraph, error) {
	var sg Subgraph
	for i, r := range rows {
		if isKPIRow(r.Cells) {
			kpi, err := parseKPI(r)
			if err != nil {
				return Subgraph{}, fmt.Errorf("tables: row %d: %w", i, err)
			}
			sg.KPIs = append(sg.KPIs, kpi)
			continue
		}
		if isBudgetRow(r.Cells) {
			row, err := parseBudgetRow(r)
			if err != nil {
				return Subgraph{}, fmt.Errorf("tables: row %d: %w", i, err)
			}
			if !row.Balances(budgetTolerance) {
				return Subgraph{}, fmt.Errorf("tables: row %d budget %q does not balance within tolerance %.4f", i, row.Label, budgetTolerance)
			}
			sg.Budgets = append(sg.Budgets, row)
		}
	}
	return sg, nil
}

func isKPIRow(cells map[string]string) bool {
	_, hasIndicator := cells["indicator"]
	_, hasBaseline := cells["baseline"]
	_, hasTarget := cells["target"]
	_, hasUnit := cells["unit"]
	return hasIndicator && hasBaseline && hasTarget && hasUnit
}

func isBudgetRow(cells map[string]string) bool {
	_, hasAllocated := cells["allocated"]
	_, hasExecuted := cells["executed"]
	return hasAllocated && hasExecuted
}

func parseKPI(r RawRow) (KPI, error) {
	baseline, err := strconv.ParseFloat(strings.TrimSpace(r.Cells["baseline"]), 64)
	if err != nil {
		return KPI{}, fmt.Errorf("baseline: %w", err)
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(r.Cells["target"]), 64)
	if err != nil {
		return KPI{}, fmt.Errorf("target: %w", err)
	}
	indicator := strings.TrimSpace(r.Cells["indicator"])
	unit := strings.TrimSpace(r.Cells["unit"])
	if indicator == "" || unit == "" {
		return KPI{}, fmt.Errorf("indicator and unit must be non-empty")
	}
	return KPI{Indicator: indicator, Baseline: baseline, Target: target, Unit: unit, ChunkID: r.ChunkID}, nil
}

func parseBudgetRow(r RawRow) (BudgetRow, error) {
	allocated, err := strconv.ParseFloat(strings.TrimSpace(r.Cells["allocated"]), 64)
	if err != nil {
		return BudgetRow{}, fmt.Errorf("allocated: %w", err)
	}
	executed, err := strconv.ParseFloat(strings.TrimSpace(r.Cells["executed"]), 64)
	if err != nil {
		return BudgetRow{}, fmt.Errorf("executed: %w", err)
	}
	return BudgetRow{
		Label:     strings.TrimSpace(r.Cells["label"]),
		Allocated: allocated,
		Executed:  executed,
		Currency:  strings.TrimSpace(r.Cells["currency"]),
		ChunkID:   r.ChunkID,
	}, nil
}

// ConsistencyScore computes the budget_consistency_score quality gate
// metric: the fraction of rows that balance within tolerance.
func ConsistencyScore(rows []BudgetRow, tolerance float64) float64 {
	if len(rows) == 0 {
		return 1.0
	}
	ok := 0
	for _, r := range rows {
		if r.Balances(tolerance) {
			ok++
		}
	}
	return float64(ok) / float64(len(rows))
}

// LinkageRate computes the kpi_linkage_rate quality gate metric: the
// fraction of KPIs whose ChunkID is non-empty (i.e., attached to an
// originating chunk).
func LinkageRate(kpis []KPI) float64 {
	if len(kpis) == 0 {
		return 1.0
	}
	linked := 0
	for _, k := range kpis {
		if k.ChunkID != "" {
			linked++
		}
	}
	return float64(linked) / float64(len(kpis))
}

package views

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"rnadash/domain/expr"
	"rnadash/internal/errors"
)

const (
	defaultPerPage = 25
	maxPerPage     = 500
)

// TableQuery selects, orders and pages the result table.
type TableQuery struct {
	Page            int    // 1-based
	PerPage         int
	SortBy          string // gene, base_mean, log2_fold_change, lfc_se, stat, p_value, adj_p_value
	Descending      bool
	SignificantOnly bool
	Search          string // case-insensitive gene substring
}

// TablePage is one page of the result table plus the table-wide summary.
type TablePage struct {
	Contrast string            `json:"contrast"`
	Summary  expr.Summary      `json:"summary"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
	Rows     []expr.GeneResult `json:"rows"`
}

// Table filters, sorts and pages the committed result table. Untestable
// genes (NaN p-values) always sort last regardless of direction.
func (s *Service) Table(q TableQuery) (*TablePage, error) {
	table, err := s.resultTable("table")
	if err != nil {
		return nil, err
	}

	rows := make([]expr.GeneResult, 0, len(table.Rows))
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, r := range table.Rows {
		if q.SignificantOnly && !r.Significant() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(string(r.Gene)), search) {
			continue
		}
		rows = append(rows, r)
	}

	key, err := sortKey(q.SortBy)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(a, b int) bool {
		va, vb := key(rows[a]), key(rows[b])
		aNaN, bNaN := math.IsNaN(va), math.IsNaN(vb)
		if aNaN || bNaN {
			return !aNaN && bNaN
		}
		if q.Descending {
			return va > vb
		}
		return va < vb
	})
	if q.SortBy == "gene" {
		sort.SliceStable(rows, func(a, b int) bool {
			if q.Descending {
				return rows[a].Gene > rows[b].Gene
			}
			return rows[a].Gene < rows[b].Gene
		})
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	start := (page - 1) * perPage
	if start > len(rows) {
		start = len(rows)
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}

	return &TablePage{
		Contrast: table.Contrast,
		Summary:  table.Summarize(),
		Total:    len(rows),
		Page:     page,
		PerPage:  perPage,
		Rows:     rows[start:end],
	}, nil
}

// sortKey maps a column name to its numeric accessor. "gene" is handled
// separately as a string sort.
func sortKey(column string) (func(expr.GeneResult) float64, error) {
	switch column {
	case "", "adj_p_value":
		return func(r expr.GeneResult) float64 { return r.AdjPValue }, nil
	case "p_value":
		return func(r expr.GeneResult) float64 { return r.PValue }, nil
	case "base_mean":
		return func(r expr.GeneResult) float64 { return r.BaseMean }, nil
	case "log2_fold_change":
		return func(r expr.GeneResult) float64 { return r.Log2FoldChange }, nil
	case "lfc_se":
		return func(r expr.GeneResult) float64 { return r.LfcSE }, nil
	case "stat":
		return func(r expr.GeneResult) float64 { return r.Stat }, nil
	case "gene":
		return func(expr.GeneResult) float64 { return 0 }, nil
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unknown sort column %q", column))
	}
}

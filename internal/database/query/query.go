package query

import (
	"math"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const PageSizeDefault = 10

// Filter provides a structure for common paging and ordering parameters.
type Filter struct {
	Page     uint64 `json:"page,omitempty" schema:"page" url:"page,omitempty"`
	PageSize uint64 `json:"page_size,omitempty" schema:"page_size" url:"page_size,omitempty"`
	Desc     bool   `json:"desc,omitempty" schema:"desc" url:"desc,omitempty"`
	OrderBy  string `json:"order_by,omitempty" schema:"order_by" url:"order_by,omitempty"`
}

// Normalized raises the page to 1 or more and substitutes PageSizeDefault for an unset page size.
// Large page sizes are honored as requested.
func (qf Filter) Normalized() Filter {
	if qf.Page < 1 {
		qf.Page = 1
	}

	if qf.PageSize < 1 {
		qf.PageSize = PageSizeDefault
	}

	return qf
}

// Limit is the page size as a bound SQL parameter, saturated at math.MaxInt64.
func (qf Filter) Limit() int64 {
	normalized := qf.Normalized()
	if normalized.PageSize > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(normalized.PageSize)
}

// Offset is the number of rows skipped before the current page, saturated at math.MaxInt64.
// SQLite reads a negative OFFSET as zero, so a wrapped product would return the first page.
func (qf Filter) Offset() int64 {
	normalized := qf.Normalized()
	skipped := normalized.Page - 1

	if skipped > uint64(math.MaxInt64)/normalized.PageSize {
		return math.MaxInt64
	}

	return int64(skipped * normalized.PageSize) //nolint:gosec
}

// Direction returns the SQL sort keyword.
func (qf Filter) Direction() string {
	if qf.Desc {
		return "DESC"
	}

	return "ASC"
}

// SafeColumn resolves the requested column against the allow list, returning the prefixed column
// name. Unknown or empty columns resolve to the prefixed fallback. There is no parameterized ORDER BY
// so the result of this function is the only column text that may reach the query.
func (qf Filter) SafeColumn(validColumns map[string][]string, fallback string) string {
	requested := strings.ToLower(strings.TrimSpace(qf.OrderBy))
	if requested == "" {
		requested = fallback
	}

	for prefix, columns := range validColumns {
		if slices.Contains(columns, requested) {
			return prefix + requested
		}
	}

	for prefix, columns := range validColumns {
		if slices.Contains(columns, fallback) {
			return prefix + fallback
		}
	}

	return fallback
}

// ApplySafeOrder orders the builder by the validated column, followed by the tiebreak columns in the
// same direction so pages are stable when sort values repeat.
func (qf Filter) ApplySafeOrder(builder sq.SelectBuilder, validColumns map[string][]string, fallback string, tiebreak ...string) sq.SelectBuilder {
	column := qf.SafeColumn(validColumns, fallback)
	direction := qf.Direction()

	clauses := []string{column + " " + direction}

	for _, tie := range tiebreak {
		if tie != column {
			clauses = append(clauses, tie+" "+direction)
		}
	}

	return builder.OrderBy(clauses...)
}

// ApplyLimitOffset appends LIMIT and OFFSET as bound parameters. It must be the last clause added to
// the builder since squirrel places suffixes after ORDER BY.
func (qf Filter) ApplyLimitOffset(builder sq.SelectBuilder) sq.SelectBuilder {
	return builder.Suffix("LIMIT ? OFFSET ?", qf.Limit(), qf.Offset())
}

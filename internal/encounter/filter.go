package encounter

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/raidmeter/encounters/internal/database/query"
	"github.com/raidmeter/encounters/internal/search"
)

// OrderAscending is the order value selecting ascending sort, every other value sorts descending.
const OrderAscending = 1

const (
	previewAlias   = "e"
	defaultSortKey = "fight_start"
)

// sortColumns is the closed set of preview columns a listing may be ordered by.
var sortColumns = map[string][]string{ //nolint:gochecknoglobals
	previewAlias + ".": {
		"id", "fight_start", "current_boss", "duration", "difficulty",
		"my_dps", "favorite", "cleared", "local_player",
	},
}

// SearchFilter holds the user selected listing filters.
type SearchFilter struct {
	// MinDuration is in seconds, only encounters lasting strictly longer are listed.
	MinDuration    int64    `json:"minDuration" schema:"min_duration" url:"min_duration,omitempty" binding:"gte=0"`
	Bosses         []string `json:"bosses" schema:"bosses" url:"bosses,omitempty"`
	Cleared        bool     `json:"cleared" schema:"cleared" url:"cleared,omitempty"`
	Favorite       bool     `json:"favorite" schema:"favorite" url:"favorite,omitempty"`
	BossOnlyDamage bool     `json:"bossOnlyDamage" schema:"boss_only_damage" url:"boss_only_damage,omitempty"`
	Difficulty     string   `json:"difficulty" schema:"difficulty" url:"difficulty,omitempty"`
	Sort           string   `json:"sort" schema:"sort" url:"sort,omitempty"`
	Order          int      `json:"order" schema:"order" url:"order,omitempty"`
}

// ListQuery is a complete listing request. Page is 1-based.
type ListQuery struct {
	Page     uint64 `json:"page" schema:"page" url:"page,omitempty"`
	PageSize uint64 `json:"pageSize" schema:"page_size" url:"page_size,omitempty"`
	Search   string `json:"search" schema:"search" url:"search,omitempty"`
	SearchFilter
}

func (q ListQuery) paging() query.Filter {
	return query.Filter{
		Page:     q.Page,
		PageSize: q.PageSize,
		Desc:     q.Order != OrderAscending,
		OrderBy:  q.Sort,
	}
}

// applyPredicates adds the join and conditions shared by the listing and its count, in a fixed order
// so placeholders and bound values always line up.
func (q ListQuery) applyPredicates(builder sq.SelectBuilder) sq.SelectBuilder {
	if phrase, ok := search.Phrase(q.Search); ok {
		builder = builder.Join(search.Table+"(?) ON "+search.Table+".rowid = "+previewAlias+".id", phrase)
	}

	builder = builder.Where(sq.Gt{previewAlias + ".duration": q.MinDuration * 1000})

	if len(q.Bosses) > 0 {
		builder = builder.Where(sq.Eq{previewAlias + ".current_boss": q.Bosses})
	}

	if q.Cleared {
		builder = builder.Where(sq.Eq{previewAlias + ".cleared": 1})
	}

	if q.Favorite {
		builder = builder.Where(sq.Eq{previewAlias + ".favorite": 1})
	}

	if q.BossOnlyDamage {
		builder = builder.Where(sq.Eq{previewAlias + ".boss_only_damage": 1})
	}

	if q.Difficulty != "" {
		builder = builder.Where(sq.Eq{previewAlias + ".difficulty": q.Difficulty})
	}

	return builder
}

// ListBuilder composes the page query. Rows are ordered by the validated sort column with the id as a
// tiebreak, and LIMIT/OFFSET are bound last.
func (q ListQuery) ListBuilder(sb sq.StatementBuilderType) sq.SelectBuilder {
	builder := sb.
		Select(
			"e.id", "e.fight_start", "e.current_boss", "e.duration", "e.difficulty",
			"e.favorite", "e.cleared", "e.local_player", "e.my_dps", "e.players").
		From(search.ContentTable + " " + previewAlias)

	paging := q.paging()
	builder = q.applyPredicates(builder)
	builder = paging.ApplySafeOrder(builder, sortColumns, defaultSortKey, previewAlias+".id")

	return paging.ApplyLimitOffset(builder)
}

// CountBuilder composes the total count using the same predicates as ListBuilder.
func (q ListQuery) CountBuilder(sb sq.StatementBuilderType) sq.SelectBuilder {
	return q.applyPredicates(sb.
		Select("COUNT(*)").
		From(search.ContentTable + " " + previewAlias))
}

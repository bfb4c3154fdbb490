package postgres

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// selectQuery assembles a SELECT whose conditions use "?" markers; build
// renumbers them as $1, $2, ... in the order they were added.
type selectQuery struct {
	base   string
	conds  []string
	order  string
	limit  int
	offset int
	args   []any
}

func selectFrom(base string) *selectQuery {
	return &selectQuery{base: base}
}

// where adds one AND-ed condition with one argument per "?".
func (q *selectQuery) where(cond string, args ...any) *selectQuery {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
	return q
}

// window restricts column to the ListOpts time range.
func (q *selectQuery) window(column string, opts domain.ListOpts) *selectQuery {
	if opts.Since != nil {
		q.where(column+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q.where(column+" <= ?", *opts.Until)
	}
	return q
}

func (q *selectQuery) orderBy(order string) *selectQuery {
	q.order = order
	return q
}

func (q *selectQuery) page(limit, offset int) *selectQuery {
	q.limit, q.offset = limit, offset
	return q
}

func (q *selectQuery) build() (string, []any) {
	var b strings.Builder
	args := append([]any(nil), q.args...)
	n := 0
	bind := func(s string) string {
		var out strings.Builder
		for _, r := range s {
			if r == '?' {
				n++
				out.WriteString("$" + strconv.Itoa(n))
				continue
			}
			out.WriteRune(r)
		}
		return out.String()
	}

	b.WriteString(q.base)
	for i, cond := range q.conds {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(bind(cond))
	}
	if q.order != "" {
		b.WriteString(" ORDER BY " + q.order)
	}
	if q.limit > 0 {
		b.WriteString(bind(" LIMIT ?"))
		args = append(args, q.limit)
	}
	if q.offset > 0 {
		b.WriteString(bind(" OFFSET ?"))
		args = append(args, q.offset)
	}
	return b.String(), args
}

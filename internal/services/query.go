package services

import (
	"fmt"
	"strings"

	"feedbackhub/internal/config"
)

// whereBuilder collects AND-ed conditions with positional arguments
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// arg appends v and returns its placeholder
func (w *whereBuilder) arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// normalizePage clamps page to >= 1 and pageSize to [1, MaxPageSize]
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = config.DefaultPageSize
	}
	if pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}
	return page, pageSize
}

// orderClause maps an API sort key through the whitelist (falling back to
// createdAt) and always appends id so pages partition the result set.
func orderClause(sortBy, sortOrder string, columns map[string]string, alias string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = columns["createdAt"]
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	if alias != "" {
		col = alias + "." + col
		return fmt.Sprintf(" ORDER BY %s %s, %s.id %s", col, dir, alias, dir)
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

// likePattern escapes LIKE metacharacters and wraps the keyword in wildcards
func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(keyword) + "%"
}

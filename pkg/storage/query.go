package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// ListQuery describes one page of a filtered listing.
//
// Filter keys may carry an operator suffix: __eq, __neq, __gt, __gte, __lt,
// __lte, __in, __notin. A bare key means __eq. The reserved key "deleted"
// selects tombstoned rows when truthy and live rows when falsy; without it,
// only live rows are returned unless IncludeDeleted is set.
//
// Marker is the UUID of the previous page's last row; rows strictly after
// it in (SortKey, id) order are returned.
type ListQuery struct {
	Filters        map[string]any
	Limit          int
	Marker         string
	SortKey        string
	SortDir        string
	IncludeDeleted bool
}

var validOps = map[string]string{
	"eq":    "=",
	"neq":   "<>",
	"gt":    ">",
	"gte":   ">=",
	"lt":    "<",
	"lte":   "<=",
	"in":    "IN",
	"notin": "NOT IN",
}

// identPattern limits sort keys and filter columns to plain identifiers;
// anything else is rejected before it reaches SQL.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// joinColumn maps a filter key onto a column reached through a join, e.g.
// goal_uuid on the audits table resolves through the goals join.
type joinColumn struct {
	join   string // full JOIN clause
	column string // qualified column the operator applies to
}

func splitFilterKey(key string) (column, op string, err error) {
	column, op = key, "eq"
	if i := strings.LastIndex(key, "__"); i > 0 {
		column, op = key[:i], key[i+2:]
	}
	if _, ok := validOps[op]; !ok {
		return "", "", &InvalidError{Reason: fmt.Sprintf("unknown filter operator %q", op)}
	}
	if !identPattern.MatchString(column) {
		return "", "", &InvalidError{Reason: fmt.Sprintf("invalid filter column %q", column)}
	}
	return column, op, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(t)
		return s == "true" || s == "1" || s == "yes"
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	return v != nil
}

// applyFilters translates the filter map into WHERE clauses on tx. Keys are
// applied in sorted order so generated SQL is deterministic.
func applyFilters(tx *gorm.DB, table string, filters map[string]any, joins map[string]joinColumn, includeDeleted bool) (*gorm.DB, error) {
	deletedHandled := false

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	joined := map[string]bool{}
	for _, key := range keys {
		value := filters[key]
		if key == "deleted" {
			deletedHandled = true
			if truthy(value) {
				tx = tx.Unscoped().Where(table + ".deleted_at IS NOT NULL")
			} else {
				tx = tx.Where(table + ".deleted_at IS NULL")
			}
			continue
		}

		column, op, err := splitFilterKey(key)
		if err != nil {
			return nil, err
		}

		qualified := table + "." + column
		if jc, ok := joins[column]; ok {
			if !joined[jc.join] {
				tx = tx.Joins(jc.join)
				joined[jc.join] = true
			}
			qualified = jc.column
		}

		switch op {
		case "in":
			tx = tx.Where(qualified+" IN ?", value)
		case "notin":
			tx = tx.Where(qualified+" NOT IN ?", value)
		default:
			tx = tx.Where(fmt.Sprintf("%s %s ?", qualified, validOps[op]), value)
		}
	}

	if !deletedHandled && includeDeleted {
		tx = tx.Unscoped()
	}
	return tx, nil
}

// applyPage adds ordering, marker keyset and limit. The marker row's sort
// value is resolved first so pagination works for any sort key.
func applyPage(tx *gorm.DB, table string, q *ListQuery) (*gorm.DB, error) {
	sortKey := q.SortKey
	if sortKey == "" {
		sortKey = "id"
	}
	if !identPattern.MatchString(sortKey) {
		return nil, &InvalidError{Reason: fmt.Sprintf("invalid sort key %q", sortKey)}
	}
	dir := strings.ToLower(q.SortDir)
	switch dir {
	case "", "asc":
		dir = "asc"
	case "desc":
	default:
		return nil, &InvalidError{Reason: fmt.Sprintf("invalid sort direction %q", q.SortDir)}
	}

	if q.Marker != "" {
		marker := map[string]any{}
		err := tx.Session(&gorm.Session{NewDB: true}).Table(table).Unscoped().
			Select(fmt.Sprintf("%s AS sort_value, id", sortKey)).
			Where("uuid = ?", q.Marker).
			Take(&marker).Error
		if err == gorm.ErrRecordNotFound {
			return nil, &InvalidError{Reason: fmt.Sprintf("marker %q does not identify a row", q.Marker)}
		}
		if err != nil {
			return nil, &DatabaseError{Op: "resolve marker", Err: err}
		}
		cmp, tie := ">", ">"
		if dir == "desc" {
			cmp = "<"
			tie = "<"
		}
		qualified := table + "." + sortKey
		tx = tx.Where(
			fmt.Sprintf("(%s %s ? OR (%s = ? AND %s.id %s ?))", qualified, cmp, qualified, table, tie),
			marker["sort_value"], marker["sort_value"], marker["id"],
		)
	}

	tx = tx.Order(fmt.Sprintf("%s.%s %s, %s.id %s", table, sortKey, dir, table, dir))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

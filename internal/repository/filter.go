package repository

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/homebase-app/homebase/internal/model"
)

const (
	DefaultQueryLimit  = 20
	DefaultSearchLimit = 10
	MaxQueryLimit      = 100
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// maxPage keeps (page-1)*limit inside int.
const maxPage = math.MaxInt / MaxQueryLimit

// filterKeyPattern is the only shape of attribute key accepted in filters.
var filterKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

var orderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"type":       true,
	"status":     true,
	"id":         true,
}

// predicate accumulates AND-ed clauses with their bind arguments.
type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) add(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

func (p *predicate) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// buildEntityPredicate translates query params into a WHERE clause over the
// entities table. Every criterion is AND-ed after the type and visibility match.
func buildEntityPredicate(d dialect, alias string, params QueryParams) (*predicate, error) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	p := &predicate{}
	p.add(col("type")+" = ?", params.Type)
	p.add(col("status")+" <> ?", model.EntityStatusDeleted)

	if params.ApplicationID != "" {
		p.add(col("application_id")+" = ?", params.ApplicationID)
	}
	if params.OwnerID != "" {
		p.add(col("owner_id")+" = ?", params.OwnerID)
	}
	if params.Status != "" {
		p.add(col("status")+" = ?", params.Status)
	}
	if params.Search != "" {
		clause, args := d.containsText(col("data"), likePattern(params.Search))
		p.add(clause, args...)
	}

	for _, key := range sortedKeys(params.Filters) {
		if !filterKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("%w: attribute key %q", ErrInvalidFilter, key)
		}
		clause, args := d.textEquals(col("data"), key, filterValue(params.Filters[key]))
		p.add(clause, args...)
	}

	return p, nil
}

// orderClause validates the requested ordering against the column whitelist.
func orderClause(column, direction string) (string, error) {
	if column == "" {
		column = "created_at"
	}
	if !orderColumns[column] {
		return "", fmt.Errorf("%w: cannot order by %q", ErrInvalidFilter, column)
	}

	direction = strings.ToLower(direction)
	switch direction {
	case "":
		direction = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return "", fmt.Errorf("%w: order direction %q", ErrInvalidFilter, direction)
	}

	// id breaks ties so pages never overlap.
	if column == "id" {
		return " ORDER BY id " + strings.ToUpper(direction), nil
	}
	return " ORDER BY " + column + " " + strings.ToUpper(direction) + ", id " + strings.ToUpper(direction), nil
}

// normalizePage clamps page and limit to the accepted range and returns the offset.
func normalizePage(page, limit, def int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	if page > maxPage {
		page = maxPage
	}
	return page, limit, (page - 1) * limit
}

// likePattern lowercases the term and escapes LIKE wildcards.
func likePattern(term string) string {
	term = cases.Lower(language.Und).String(term)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// filterValue renders a filter value the way the database renders a JSON
// scalar as text, so numbers and bools compare by their JSON spelling.
func filterValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if math.Abs(val) < 1<<53 && val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

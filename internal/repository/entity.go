package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/homebase-app/homebase/internal/model"
	"github.com/homebase-app/homebase/internal/validation"
)

const entityColumns = `id, type, application_id, owner_id, status, data, metadata, created_at, updated_at`

// CreateEntityInput describes a new entity. Only Type is required.
type CreateEntityInput struct {
	ID            string         `json:"id" validate:"max=128"`
	Type          string         `json:"type" validate:"required,max=100"`
	ApplicationID *string        `json:"applicationId" validate:"omitempty,max=128"`
	OwnerID       *string        `json:"ownerId" validate:"omitempty,max=128"`
	Status        string         `json:"status" validate:"max=50"`
	Attributes    model.Document `json:"attributes"`
	Metadata      model.Document `json:"metadata"`
}

// UpdateEntityInput carries a partial update. Nil fields are left untouched;
// documents are shallow-merged into the stored ones.
type UpdateEntityInput struct {
	Status     *string        `json:"status" validate:"omitempty,min=1,max=50"`
	Attributes model.Document `json:"attributes"`
	Metadata   model.Document `json:"metadata"`
}

func (in UpdateEntityInput) empty() bool {
	return in.Status == nil && in.Attributes == nil && in.Metadata == nil
}

// QueryParams filters a type-scoped listing. Empty strings mean "not set".
type QueryParams struct {
	Type          string
	ApplicationID string
	OwnerID       string
	Status        string
	Search        string
	Filters       map[string]any
	OrderBy       string
	OrderDir      string
	Page          int
	Limit         int
}

// QueryResult is one page of entities. Total counts all matches, not the page.
type QueryResult struct {
	Items []*model.Entity `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

type SearchParams struct {
	Type          string
	Query         string
	ApplicationID string
	Limit         int
}

// EntityRepository persists every typed document in the shared entities table.
// Lookups of a missing id return a nil entity and a nil error.
type EntityRepository interface {
	Create(ctx context.Context, in CreateEntityInput) (*model.Entity, error)
	ByID(ctx context.Context, id string) (*model.Entity, error)
	Update(ctx context.Context, id string, in UpdateEntityInput) (*model.Entity, error)
	Delete(ctx context.Context, id string, hard bool) (bool, error)
	Restore(ctx context.Context, id string) (*model.Entity, error)
	Query(ctx context.Context, params QueryParams) (*QueryResult, error)
	Search(ctx context.Context, params SearchParams) ([]*model.Entity, error)
	CountByType(ctx context.Context, applicationID string) (map[string]int, error)
}

type entityRepository struct {
	db      *sqlx.DB
	dialect dialect
	now     func() time.Time
}

func NewEntityRepository(db *sqlx.DB) EntityRepository {
	return newEntityRepository(db)
}

func newEntityRepository(db *sqlx.DB) *entityRepository {
	return &entityRepository{
		db:      db,
		dialect: dialectFor(db.DriverName()),
		now:     utcNow,
	}
}

var _ EntityRepository = (*entityRepository)(nil)

// utcNow truncates to microseconds, the resolution Postgres keeps.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (r *entityRepository) Create(ctx context.Context, in CreateEntityInput) (*model.Entity, error) {
	err := validation.Struct(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Status == "" {
		in.Status = model.EntityStatusActive
	}
	if in.Attributes == nil {
		in.Attributes = model.Document{}
	}
	if in.Metadata == nil {
		in.Metadata = model.Document{}
	}

	now := r.now()
	query := `INSERT INTO entities (id, type, application_id, owner_id, status, data, metadata, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ` + r.dialect.jsonParam() + `, ` + r.dialect.jsonParam() + `, ?, ?)
	          RETURNING ` + entityColumns

	entity := &model.Entity{}
	err = r.db.GetContext(ctx, entity, r.db.Rebind(query),
		in.ID,
		in.Type,
		in.ApplicationID,
		in.OwnerID,
		in.Status,
		in.Attributes,
		in.Metadata,
		now,
		now,
	)
	if err != nil {
		return nil, wrapErr("create entity", err)
	}

	slog.Debug("entity created", "id", entity.ID, "type", entity.Type)
	return entity, nil
}

func (r *entityRepository) ByID(ctx context.Context, id string) (*model.Entity, error) {
	entity := &model.Entity{}
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`

	err := r.db.GetContext(ctx, entity, r.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get entity", err)
	}

	return entity, nil
}

// Update applies status and shallow document merges in a single statement,
// so writers touching different top-level keys never lose each other's data.
func (r *entityRepository) Update(ctx context.Context, id string, in UpdateEntityInput) (*model.Entity, error) {
	if in.empty() {
		return r.ByID(ctx, id)
	}

	err := validation.Struct(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sets := []string{"updated_at = ?"}
	args := []any{r.now()}

	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *in.Status)
	}
	if in.Attributes != nil {
		expr, exprArgs, err := r.dialect.mergeExpr("data", in.Attributes)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "data = "+expr)
		args = append(args, exprArgs...)
	}
	if in.Metadata != nil {
		expr, exprArgs, err := r.dialect.mergeExpr("metadata", in.Metadata)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "metadata = "+expr)
		args = append(args, exprArgs...)
	}
	args = append(args, id)

	query := `UPDATE entities SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + entityColumns

	entity := &model.Entity{}
	err = r.db.GetContext(ctx, entity, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("update entity", err)
	}

	slog.Debug("entity updated", "id", entity.ID, "type", entity.Type)
	return entity, nil
}

// Delete soft-deletes by default. hard=true removes the row for good.
// Returns false when no entity has the given id.
func (r *entityRepository) Delete(ctx context.Context, id string, hard bool) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	if hard {
		query := `DELETE FROM entities WHERE id = ?`
		result, err = r.db.ExecContext(ctx, r.db.Rebind(query), id)
	} else {
		query := `UPDATE entities SET status = ?, updated_at = ? WHERE id = ?`
		result, err = r.db.ExecContext(ctx, r.db.Rebind(query), model.EntityStatusDeleted, r.now(), id)
	}
	if err != nil {
		return false, wrapErr("delete entity", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("delete entity", err)
	}

	if rows > 0 {
		slog.Debug("entity deleted", "id", id, "hard", hard)
	}
	return rows > 0, nil
}

func (r *entityRepository) Restore(ctx context.Context, id string) (*model.Entity, error) {
	status := model.EntityStatusActive
	return r.Update(ctx, id, UpdateEntityInput{Status: &status})
}

// Query returns one page plus the unpaginated total. The two statements are
// not isolated from each other; under concurrent writes they may disagree.
func (r *entityRepository) Query(ctx context.Context, params QueryParams) (*QueryResult, error) {
	if params.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidFilter)
	}

	pred, err := buildEntityPredicate(r.dialect, "", params)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(params.OrderBy, params.OrderDir)
	if err != nil {
		return nil, err
	}
	page, limit, offset := normalizePage(params.Page, params.Limit, DefaultQueryLimit)

	where := pred.where()

	var total int
	countQuery := `SELECT COUNT(*) FROM entities` + where
	err = r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), pred.args...)
	if err != nil {
		return nil, wrapErr("count entities", err)
	}

	items := []*model.Entity{}
	listQuery := `SELECT ` + entityColumns + ` FROM entities` + where + order + ` LIMIT ? OFFSET ?`
	listArgs := append(append([]any{}, pred.args...), limit, offset)
	err = r.db.SelectContext(ctx, &items, r.db.Rebind(listQuery), listArgs...)
	if err != nil {
		return nil, wrapErr("query entities", err)
	}

	return &QueryResult{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// Search is a lightweight typeahead: substring match, newest first.
func (r *entityRepository) Search(ctx context.Context, params SearchParams) ([]*model.Entity, error) {
	if params.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidFilter)
	}

	pred, err := buildEntityPredicate(r.dialect, "", QueryParams{
		Type:          params.Type,
		ApplicationID: params.ApplicationID,
		Search:        params.Query,
	})
	if err != nil {
		return nil, err
	}
	_, limit, _ := normalizePage(1, params.Limit, DefaultSearchLimit)

	items := []*model.Entity{}
	query := `SELECT ` + entityColumns + ` FROM entities` + pred.where() + ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args := append(append([]any{}, pred.args...), limit)
	err = r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...)
	if err != nil {
		return nil, wrapErr("search entities", err)
	}

	return items, nil
}

func (r *entityRepository) CountByType(ctx context.Context, applicationID string) (map[string]int, error) {
	query := `SELECT type, COUNT(*) AS count FROM entities WHERE status <> ?`
	args := []any{model.EntityStatusDeleted}
	if applicationID != "" {
		query += ` AND application_id = ?`
		args = append(args, applicationID)
	}
	query += ` GROUP BY type`

	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	if err != nil {
		return nil, wrapErr("count entities by type", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/homebase-app/homebase/internal/model"
)

const relationColumns = `source_id, target_id, relation_type, metadata, created_at`

// RelationRepository stores directed, typed edges between entity ids.
// Edges are not tied to entity lifecycle; nothing cascades either way.
type RelationRepository interface {
	Create(ctx context.Context, sourceID, targetID, relationType string, metadata model.Document) (bool, error)
	Delete(ctx context.Context, sourceID, targetID, relationType string) (bool, error)
	Has(ctx context.Context, sourceID, targetID, relationType string) (bool, error)
	Get(ctx context.Context, sourceID, targetID, relationType string) (*model.Relation, error)
	Outgoing(ctx context.Context, sourceID, relationType, targetType string) ([]*model.Entity, error)
	Incoming(ctx context.Context, targetID, relationType string) ([]*model.RelatedEntity, error)
	CountIncoming(ctx context.Context, targetID, relationType string) (int, error)
}

type relationRepository struct {
	db      *sqlx.DB
	dialect dialect
	now     func() time.Time
}

func NewRelationRepository(db *sqlx.DB) RelationRepository {
	return newRelationRepository(db)
}

func newRelationRepository(db *sqlx.DB) *relationRepository {
	return &relationRepository{
		db:      db,
		dialect: dialectFor(db.DriverName()),
		now:     utcNow,
	}
}

var _ RelationRepository = (*relationRepository)(nil)

// Create inserts the edge, or shallow-merges metadata into an existing one.
// An existing triple is not an error.
func (r *relationRepository) Create(ctx context.Context, sourceID, targetID, relationType string, metadata model.Document) (bool, error) {
	if metadata == nil {
		metadata = model.Document{}
	}

	merge, mergeArgs, err := r.dialect.mergeExpr(r.dialect.upsertColumn("relations", "metadata"), metadata)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO relations (source_id, target_id, relation_type, metadata, created_at)
	          VALUES (?, ?, ?, ` + r.dialect.jsonParam() + `, ?)
	          ON CONFLICT (source_id, target_id, relation_type) DO UPDATE SET metadata = ` + merge

	args := append([]any{sourceID, targetID, relationType, metadata, r.now()}, mergeArgs...)
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, wrapErr("create relation", err)
	}

	slog.Debug("relation upserted", "source_id", sourceID, "target_id", targetID, "relation_type", relationType)
	return true, nil
}

// Delete reports whether an edge was actually removed.
func (r *relationRepository) Delete(ctx context.Context, sourceID, targetID, relationType string) (bool, error) {
	query := `DELETE FROM relations WHERE source_id = ? AND target_id = ? AND relation_type = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), sourceID, targetID, relationType)
	if err != nil {
		return false, wrapErr("delete relation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("delete relation", err)
	}

	return rows > 0, nil
}

func (r *relationRepository) Has(ctx context.Context, sourceID, targetID, relationType string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM relations WHERE source_id = ? AND target_id = ? AND relation_type = ?`
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), sourceID, targetID, relationType)
	if err != nil {
		return false, wrapErr("check relation", err)
	}
	return count > 0, nil
}

func (r *relationRepository) Get(ctx context.Context, sourceID, targetID, relationType string) (*model.Relation, error) {
	relation := &model.Relation{}
	query := `SELECT ` + relationColumns + ` FROM relations WHERE source_id = ? AND target_id = ? AND relation_type = ?`

	err := r.db.GetContext(ctx, relation, r.db.Rebind(query), sourceID, targetID, relationType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get relation", err)
	}

	return relation, nil
}

// Outgoing returns the entities sourceID points at, newest edge first.
// Missing and soft-deleted targets are skipped.
func (r *relationRepository) Outgoing(ctx context.Context, sourceID, relationType, targetType string) ([]*model.Entity, error) {
	query := `SELECT e.id, e.type, e.application_id, e.owner_id, e.status, e.data, e.metadata, e.created_at, e.updated_at
	          FROM relations r
	          JOIN entities e ON e.id = r.target_id
	          WHERE r.source_id = ? AND r.relation_type = ? AND e.status <> ?`
	args := []any{sourceID, relationType, model.EntityStatusDeleted}

	if targetType != "" {
		query += ` AND e.type = ?`
		args = append(args, targetType)
	}
	query += ` ORDER BY r.created_at DESC, e.id`

	entities := []*model.Entity{}
	err := r.db.SelectContext(ctx, &entities, r.db.Rebind(query), args...)
	if err != nil {
		return nil, wrapErr("traverse outgoing relations", err)
	}

	return entities, nil
}

// Incoming returns the entities pointing at targetID, oldest edge first,
// each annotated with the edge's metadata and creation time.
func (r *relationRepository) Incoming(ctx context.Context, targetID, relationType string) ([]*model.RelatedEntity, error) {
	query := `SELECT e.id, e.type, e.application_id, e.owner_id, e.status, e.data, e.metadata, e.created_at, e.updated_at,
	                 r.metadata AS relation_metadata, r.created_at AS relation_created_at
	          FROM relations r
	          JOIN entities e ON e.id = r.source_id
	          WHERE r.target_id = ? AND r.relation_type = ? AND e.status <> ?
	          ORDER BY r.created_at ASC, e.id`

	related := []*model.RelatedEntity{}
	err := r.db.SelectContext(ctx, &related, r.db.Rebind(query), targetID, relationType, model.EntityStatusDeleted)
	if err != nil {
		return nil, wrapErr("traverse incoming relations", err)
	}

	return related, nil
}

// CountIncoming counts edges, including those whose source no longer exists.
func (r *relationRepository) CountIncoming(ctx context.Context, targetID, relationType string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM relations WHERE target_id = ? AND relation_type = ?`
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), targetID, relationType)
	if err != nil {
		return 0, wrapErr("count incoming relations", err)
	}
	return count, nil
}

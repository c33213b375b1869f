package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maynagashev/formdef/internal/models"
)

// EntityRepository persists the parent entities (components or forms) of one kind.
type EntityRepository interface {
	CreateEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error)
	UpdateEntity(ctx context.Context, id int64, entity *models.Entity, policy models.UpdatePolicy) (*models.Entity, error)
	GetEntity(ctx context.Context, id int64) (*models.Entity, error)
	// LockEntity checks that the entity exists and locks its row until the transaction ends.
	LockEntity(ctx context.Context, id int64) error
	ListEntities(ctx context.Context) ([]models.Entity, error)
	DeleteEntity(ctx context.Context, id int64) error
}

// postgresEntityRepository implements EntityRepository for PostgreSQL.
type postgresEntityRepository struct {
	q       Querier
	kind    models.Kind
	queries entityQueries
	log     *slog.Logger
}

// NewPostgresEntityRepository creates an entity repository for kind over q.
func NewPostgresEntityRepository(q Querier, kind models.Kind) EntityRepository {
	return &postgresEntityRepository{
		q:       q,
		kind:    kind,
		queries: buildEntityQueries(kind),
		log:     slog.Default().With("component", "EntityRepo", "kind", kind.Name),
	}
}

func (r *postgresEntityRepository) insertArgs(entity *models.Entity) []interface{} {
	args := []interface{}{entity.Key, entity.Name, entity.Description, entity.Category}
	if r.kind.HasBase {
		args = append(args, entity.BaseComponentID)
	}
	return args
}

// CreateEntity inserts a new entity and returns the stored row.
func (r *postgresEntityRepository) CreateEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	var created models.Entity

	err := r.q.GetContext(ctx, &created, r.queries.insert, r.insertArgs(entity)...)
	if err != nil {
		if pqCode(err) == pgForeignKeyViolationCode {
			r.log.WarnContext(ctx, "base component does not exist", "key", entity.Key)
			return nil, ErrBaseEntityNotFound
		}
		r.log.ErrorContext(ctx, "failed to create entity", "key", entity.Key, "error", err)
		return nil, fmt.Errorf("create %s: %w: %w", r.kind.Name, ErrStorage, err)
	}

	r.log.InfoContext(ctx, "entity created", "id", created.ID, "key", created.Key)
	return &created, nil
}

// UpdateEntity overwrites the mutable fields of an entity.
// With policy.PreserveKey the stored key is kept.
func (r *postgresEntityRepository) UpdateEntity(
	ctx context.Context,
	id int64,
	entity *models.Entity,
	policy models.UpdatePolicy,
) (*models.Entity, error) {
	var key *string
	if !policy.PreserveKey {
		key = &entity.Key
	}

	args := []interface{}{key, entity.Name, entity.Description, entity.Category}
	if r.kind.HasBase {
		args = append(args, entity.BaseComponentID)
	}
	args = append(args, id)

	var updated models.Entity
	err := r.q.GetContext(ctx, &updated, r.queries.update, args...)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			r.log.WarnContext(ctx, "entity to update not found", "id", id)
			return nil, ErrEntityNotFound
		case pqCode(err) == pgForeignKeyViolationCode:
			return nil, ErrBaseEntityNotFound
		}
		r.log.ErrorContext(ctx, "failed to update entity", "id", id, "error", err)
		return nil, fmt.Errorf("update %s %d: %w: %w", r.kind.Name, id, ErrStorage, err)
	}

	r.log.InfoContext(ctx, "entity updated", "id", id, "preserve_key", policy.PreserveKey)
	return &updated, nil
}

// GetEntity returns the entity with the given ID.
func (r *postgresEntityRepository) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	var entity models.Entity

	err := r.q.GetContext(ctx, &entity, r.queries.get, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.DebugContext(ctx, "entity not found", "id", id)
			return nil, ErrEntityNotFound
		}
		r.log.ErrorContext(ctx, "failed to get entity", "id", id, "error", err)
		return nil, fmt.Errorf("get %s %d: %w: %w", r.kind.Name, id, ErrStorage, err)
	}
	return &entity, nil
}

// LockEntity takes a row lock on the entity. Concurrent version writes for the same
// entity queue behind it, so numbering and insert cannot interleave.
func (r *postgresEntityRepository) LockEntity(ctx context.Context, id int64) error {
	var lockedID int64

	err := r.q.GetContext(ctx, &lockedID, r.queries.lock, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WarnContext(ctx, "entity to lock not found", "id", id)
			return ErrEntityNotFound
		}
		r.log.ErrorContext(ctx, "failed to lock entity", "id", id, "error", err)
		return fmt.Errorf("lock %s %d: %w: %w", r.kind.Name, id, ErrStorage, err)
	}
	return nil
}

// ListEntities returns all entities in ID order.
func (r *postgresEntityRepository) ListEntities(ctx context.Context) ([]models.Entity, error) {
	entities := make([]models.Entity, 0)

	if err := r.q.SelectContext(ctx, &entities, r.queries.list); err != nil {
		r.log.ErrorContext(ctx, "failed to list entities", "error", err)
		return nil, fmt.Errorf("list %s: %w: %w", r.kind.Plural, ErrStorage, err)
	}

	r.log.DebugContext(ctx, "entities listed", "count", len(entities))
	return entities, nil
}

// DeleteEntity physically removes an entity. It fails with ErrEntityHasVersions while
// versions still reference it.
func (r *postgresEntityRepository) DeleteEntity(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, r.queries.delete, id)
	if err != nil {
		if pqCode(err) == pgForeignKeyViolationCode {
			r.log.WarnContext(ctx, "entity still has versions", "id", id)
			return ErrEntityHasVersions
		}
		r.log.ErrorContext(ctx, "failed to delete entity", "id", id, "error", err)
		return fmt.Errorf("delete %s %d: %w: %w", r.kind.Name, id, ErrStorage, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %d: %w: %w", r.kind.Name, id, ErrStorage, err)
	}
	if affected == 0 {
		r.log.WarnContext(ctx, "entity to delete not found", "id", id)
		return ErrEntityNotFound
	}

	r.log.InfoContext(ctx, "entity deleted", "id", id)
	return nil
}

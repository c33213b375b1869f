package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maynagashev/formdef/internal/models"
)

// VersionRepository persists the numbered versions of one entity kind.
// Version numbers are per entity, dense from 1 and never reused by create.
type VersionRepository interface {
	NextVersionNumber(ctx context.Context, entityID int64) (int, error)
	CreateVersion(ctx context.Context, entityID int64, payload models.Document) (*models.Version, error)
	UpdateVersion(ctx context.Context, entityID int64, versionNumber int, payload models.Document) (*models.Version, error)
	GetVersion(ctx context.Context, entityID int64, versionNumber int) (*models.Version, error)
	GetLatestVersion(ctx context.Context, entityID int64) (*models.Version, error)
	ListVersions(ctx context.Context, entityID int64) ([]models.Version, error)
	DeleteVersion(ctx context.Context, entityID int64, versionNumber int) error
	// DeleteLatestVersion deletes the highest-numbered version and returns its number.
	DeleteLatestVersion(ctx context.Context, entityID int64) (int, error)
}

// postgresVersionRepository implements VersionRepository for PostgreSQL.
type postgresVersionRepository struct {
	q       Querier
	kind    models.Kind
	queries versionQueries
	log     *slog.Logger
}

// NewPostgresVersionRepository creates a version repository for kind over q.
func NewPostgresVersionRepository(q Querier, kind models.Kind) VersionRepository {
	return &postgresVersionRepository{
		q:       q,
		kind:    kind,
		queries: buildVersionQueries(kind),
		log:     slog.Default().With("component", "VersionRepo", "kind", kind.Name),
	}
}

// NextVersionNumber returns max(version_number)+1 for the entity, or 1 if it has none.
func (r *postgresVersionRepository) NextVersionNumber(ctx context.Context, entityID int64) (int, error) {
	var next int

	if err := r.q.GetContext(ctx, &next, r.queries.nextNumber, entityID); err != nil {
		r.log.ErrorContext(ctx, "failed to compute next version number", "entity_id", entityID, "error", err)
		return 0, fmt.Errorf("next version number for %s %d: %w: %w", r.kind.Name, entityID, ErrStorage, err)
	}
	return next, nil
}

// CreateVersion inserts the next version of the entity. Missing payload sub-documents
// are stored as {}.
func (r *postgresVersionRepository) CreateVersion(
	ctx context.Context,
	entityID int64,
	payload models.Document,
) (*models.Version, error) {
	normalized, err := r.kind.NormalizePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	next, err := r.NextVersionNumber(ctx, entityID)
	if err != nil {
		return nil, err
	}
	r.log.DebugContext(ctx, "next version number computed", "entity_id", entityID, "version_number", next)

	var created models.Version
	err = r.q.GetContext(ctx, &created, r.queries.insert, entityID, next, normalized)
	if err != nil {
		switch pqCode(err) {
		case pgUniqueViolationCode:
			r.log.WarnContext(ctx, "version number already taken", "entity_id", entityID, "version_number", next)
			return nil, fmt.Errorf("%s %d version %d: %w", r.kind.Name, entityID, next, ErrVersionConflict)
		case pgForeignKeyViolationCode:
			r.log.WarnContext(ctx, "version references missing entity", "entity_id", entityID)
			return nil, ErrEntityNotFound
		}
		r.log.ErrorContext(ctx, "failed to create version", "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("create %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}

	r.log.InfoContext(ctx, "version created",
		"id", created.ID, "entity_id", entityID, "version_number", created.VersionNumber)
	return &created, nil
}

// recordID resolves (entityID, versionNumber) to the internal row ID.
func (r *postgresVersionRepository) recordID(ctx context.Context, entityID int64, versionNumber int) (int64, error) {
	var id int64

	err := r.q.GetContext(ctx, &id, r.queries.recordID, entityID, versionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WarnContext(ctx, "version not found", "entity_id", entityID, "version_number", versionNumber)
			return 0, ErrVersionNotFound
		}
		return 0, fmt.Errorf("find %s version record: %w: %w", r.kind.Name, ErrStorage, err)
	}
	return id, nil
}

// UpdateVersion overwrites the payload of an existing version in place and marks it active.
// version_number and created_at never change.
func (r *postgresVersionRepository) UpdateVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
	payload models.Document,
) (*models.Version, error) {
	if versionNumber <= 0 {
		return nil, ErrVersionNumberRequired
	}

	normalized, err := r.kind.NormalizePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	id, err := r.recordID(ctx, entityID, versionNumber)
	if err != nil {
		return nil, err
	}
	r.log.DebugContext(ctx, "version record resolved", "id", id, "entity_id", entityID, "version_number", versionNumber)

	var updated models.Version
	if err = r.q.GetContext(ctx, &updated, r.queries.update, normalized, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		r.log.ErrorContext(ctx, "failed to update version", "id", id, "error", err)
		return nil, fmt.Errorf("update %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}

	r.log.InfoContext(ctx, "version updated", "id", id, "entity_id", entityID, "version_number", versionNumber)
	return &updated, nil
}

// GetVersion returns the version with the exact (entityID, versionNumber) pair.
func (r *postgresVersionRepository) GetVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
) (*models.Version, error) {
	var version models.Version

	err := r.q.GetContext(ctx, &version, r.queries.get, entityID, versionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.DebugContext(ctx, "version not found", "entity_id", entityID, "version_number", versionNumber)
			return nil, ErrVersionNotFound
		}
		r.log.ErrorContext(ctx, "failed to get version",
			"entity_id", entityID, "version_number", versionNumber, "error", err)
		return nil, fmt.Errorf("get %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}
	return &version, nil
}

// GetLatestVersion returns the highest-numbered version of the entity.
func (r *postgresVersionRepository) GetLatestVersion(ctx context.Context, entityID int64) (*models.Version, error) {
	var version models.Version

	err := r.q.GetContext(ctx, &version, r.queries.latest, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.DebugContext(ctx, "entity has no versions", "entity_id", entityID)
			return nil, ErrVersionNotFound
		}
		r.log.ErrorContext(ctx, "failed to get latest version", "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("get latest %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}
	return &version, nil
}

// ListVersions returns all versions of the entity, newest first. No versions is an empty slice.
func (r *postgresVersionRepository) ListVersions(ctx context.Context, entityID int64) ([]models.Version, error) {
	versions := make([]models.Version, 0)

	if err := r.q.SelectContext(ctx, &versions, r.queries.list, entityID); err != nil {
		r.log.ErrorContext(ctx, "failed to list versions", "entity_id", entityID, "error", err)
		return nil, fmt.Errorf("list %s versions: %w: %w", r.kind.Name, ErrStorage, err)
	}

	r.log.DebugContext(ctx, "versions listed", "entity_id", entityID, "count", len(versions))
	return versions, nil
}

// DeleteVersion physically removes one version.
func (r *postgresVersionRepository) DeleteVersion(ctx context.Context, entityID int64, versionNumber int) error {
	res, err := r.q.ExecContext(ctx, r.queries.delete, entityID, versionNumber)
	if err != nil {
		r.log.ErrorContext(ctx, "failed to delete version",
			"entity_id", entityID, "version_number", versionNumber, "error", err)
		return fmt.Errorf("delete %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s version: %w: %w", r.kind.Name, ErrStorage, err)
	}
	if affected == 0 {
		r.log.WarnContext(ctx, "version to delete not found", "entity_id", entityID, "version_number", versionNumber)
		return ErrVersionNotFound
	}

	r.log.InfoContext(ctx, "version deleted", "entity_id", entityID, "version_number", versionNumber)
	return nil
}

// DeleteLatestVersion looks up the current latest version and deletes exactly that row.
func (r *postgresVersionRepository) DeleteLatestVersion(ctx context.Context, entityID int64) (int, error) {
	latest, err := r.GetLatestVersion(ctx, entityID)
	if err != nil {
		return 0, err
	}

	r.log.InfoContext(ctx, "deleting latest version", "entity_id", entityID, "version_number", latest.VersionNumber)
	if err = r.DeleteVersion(ctx, entityID, latest.VersionNumber); err != nil {
		return 0, err
	}
	return latest.VersionNumber, nil
}

package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maynagashev/formdef/internal/metrics"
	"github.com/maynagashev/formdef/internal/models"
	"github.com/maynagashev/formdef/internal/repository"
	"github.com/maynagashev/formdef/internal/storage"
)

// VersioningService manages the entities of one kind and their numbered versions.
// Each call runs in exactly one transaction.
type VersioningService interface {
	Kind() models.Kind

	CreateEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error)
	UpdateEntity(ctx context.Context, id int64, entity *models.Entity, policy models.UpdatePolicy) (*models.Entity, error)
	GetEntity(ctx context.Context, id int64) (*models.Entity, error)
	ListEntities(ctx context.Context) ([]models.Entity, error)
	DeleteEntity(ctx context.Context, id int64) error

	// CreateOrUpdateVersion updates the given version when versionNumber is non-zero and
	// creates the next version otherwise. created reports which path was taken.
	CreateOrUpdateVersion(
		ctx context.Context,
		entityID int64,
		versionNumber int,
		payload models.Document,
	) (version *models.Version, created bool, err error)
	GetVersion(ctx context.Context, entityID int64, versionNumber int) (*models.Version, error)
	GetLatestVersion(ctx context.Context, entityID int64) (*models.Version, error)
	ListVersions(ctx context.Context, entityID int64) ([]models.Version, error)
	DeleteVersion(ctx context.Context, entityID int64, versionNumber int) (*models.VersionDeletion, error)
	DeleteLatestVersion(ctx context.Context, entityID int64) (*models.VersionDeletion, error)

	PublishVersion(ctx context.Context, entityID int64, versionNumber int) (*models.PublishedVersion, error)
	FetchPublishedVersion(ctx context.Context, entityID int64, versionNumber int) (io.ReadCloser, error)
}

var _ VersioningService = (*versioningService)(nil)

type versioningService struct {
	kind    models.Kind
	tx      repository.TxManager
	files   storage.FileStorage // nil disables publishing
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewVersioningService creates the service for one kind. files and m may be nil.
func NewVersioningService(
	kind models.Kind,
	tx repository.TxManager,
	files storage.FileStorage,
	m *metrics.Metrics,
) VersioningService {
	return &versioningService{
		kind:    kind,
		tx:      tx,
		files:   files,
		metrics: m,
		log:     slog.Default().With("component", "VersioningService", "kind", kind.Name),
	}
}

func (s *versioningService) Kind() models.Kind {
	return s.kind
}

// operation identifies one call for logs, errors and metrics.
type operation struct {
	name          string
	entityID      int64
	versionNumber int
}

// run executes fn in a transaction, translates the error once and records metrics.
func (s *versioningService) run(
	ctx context.Context,
	op operation,
	opts *sql.TxOptions,
	fn func(repository.Stores) error,
) error {
	start := time.Now()
	err := s.within(ctx, op, opts, fn)
	s.metrics.ObserveOperation(s.kind.Name, op.name, outcome(err), time.Since(start))
	return err
}

// within is run without the metric, for operations that continue after the transaction.
func (s *versioningService) within(
	ctx context.Context,
	op operation,
	opts *sql.TxOptions,
	fn func(repository.Stores) error,
) error {
	if err := s.tx.WithinTx(ctx, opts, fn); err != nil {
		return s.translate(ctx, op, err)
	}
	return nil
}

// translate converts repository errors to service errors. Not-found and validation
// errors keep their identity; anything else becomes an *OperationError.
func (s *versioningService) translate(ctx context.Context, op operation, err error) error {
	attrs := []any{"op", op.name, "entity_id", op.entityID, "version_number", op.versionNumber}

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		s.log.WarnContext(ctx, "request rejected", append(attrs, "error", err)...)
		return err
	case errors.Is(err, repository.ErrEntityNotFound):
		s.log.WarnContext(ctx, "entity not found", attrs...)
		return fmt.Errorf("%s %d: %w", s.kind.Name, op.entityID, ErrEntityNotFound)
	case errors.Is(err, repository.ErrVersionNotFound):
		s.log.WarnContext(ctx, "version not found", attrs...)
		if op.versionNumber > 0 {
			return fmt.Errorf("%s %d version %d: %w", s.kind.Name, op.entityID, op.versionNumber, ErrVersionNotFound)
		}
		return fmt.Errorf("%s %d has no versions: %w", s.kind.Name, op.entityID, ErrVersionNotFound)
	case errors.Is(err, repository.ErrVersionNumberRequired),
		errors.Is(err, repository.ErrInvalidPayload),
		errors.Is(err, repository.ErrBaseEntityNotFound):
		s.log.WarnContext(ctx, "invalid request", append(attrs, "error", err)...)
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	cause := err
	if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrEntityHasVersions) {
		cause = fmt.Errorf("%w: %w", ErrConflict, err)
	}
	s.log.ErrorContext(ctx, "operation failed", append(attrs, "error", err)...)
	return &OperationError{
		Op:            op.name,
		Kind:          s.kind.Name,
		EntityID:      op.entityID,
		VersionNumber: op.versionNumber,
		Err:           cause,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (s *versioningService) validateEntity(entity *models.Entity, policy models.UpdatePolicy) error {
	if entity == nil {
		return fmt.Errorf("%w: %s body is required", ErrValidation, s.kind.Name)
	}
	if entity.Name == "" {
		return fmt.Errorf("%w: %s name is required", ErrValidation, s.kind.Name)
	}
	if entity.Key == "" && !policy.PreserveKey {
		return fmt.Errorf("%w: %s key is required", ErrValidation, s.kind.Name)
	}
	if s.kind.CategoryRequired && (entity.Category == nil || *entity.Category == "") {
		return fmt.Errorf("%w: %s category is required", ErrValidation, s.kind.Name)
	}
	if !s.kind.HasBase && entity.BaseComponentID != nil {
		return fmt.Errorf("%w: %s does not support base_component_id", ErrValidation, s.kind.Name)
	}
	return nil
}

// CreateEntity stores a new entity.
func (s *versioningService) CreateEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	op := operation{name: "create_entity"}
	if err := s.validateEntity(entity, models.UpdatePolicy{}); err != nil {
		return nil, s.reject(ctx, op, err)
	}

	var created *models.Entity
	err := s.run(ctx, op, nil, func(st repository.Stores) error {
		var err error
		created, err = st.Entities.CreateEntity(ctx, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEntity changes entity metadata; versions are not touched.
func (s *versioningService) UpdateEntity(
	ctx context.Context,
	id int64,
	entity *models.Entity,
	policy models.UpdatePolicy,
) (*models.Entity, error) {
	op := operation{name: "update_entity", entityID: id}
	if err := s.validateEntity(entity, policy); err != nil {
		return nil, s.reject(ctx, op, err)
	}

	var updated *models.Entity
	err := s.run(ctx, op, nil, func(st repository.Stores) error {
		var err error
		updated, err = st.Entities.UpdateEntity(ctx, id, entity, policy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetEntity returns one entity.
func (s *versioningService) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	var entity *models.Entity
	err := s.run(ctx, operation{name: "get_entity", entityID: id}, repository.ReadOnly,
		func(st repository.Stores) error {
			var err error
			entity, err = st.Entities.GetEntity(ctx, id)
			return err
		})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// ListEntities returns all entities of the kind in ID order.
func (s *versioningService) ListEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.run(ctx, operation{name: "list_entities"}, repository.ReadOnly,
		func(st repository.Stores) error {
			var err error
			entities, err = st.Entities.ListEntities(ctx)
			return err
		})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// DeleteEntity removes an entity. It is refused with ErrConflict while versions exist.
func (s *versioningService) DeleteEntity(ctx context.Context, id int64) error {
	return s.run(ctx, operation{name: "delete_entity", entityID: id}, nil,
		func(st repository.Stores) error {
			return st.Entities.DeleteEntity(ctx, id)
		})
}

// CreateOrUpdateVersion is the single create-vs-update decision point for both kinds.
func (s *versioningService) CreateOrUpdateVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
	payload models.Document,
) (*models.Version, bool, error) {
	if versionNumber != 0 {
		version, err := s.updateVersion(ctx, entityID, versionNumber, payload)
		return version, false, err
	}
	version, err := s.createVersion(ctx, entityID, payload)
	return version, true, err
}

func (s *versioningService) createVersion(
	ctx context.Context,
	entityID int64,
	payload models.Document,
) (*models.Version, error) {
	var created *models.Version
	err := s.run(ctx, operation{name: "create_version", entityID: entityID}, nil,
		func(st repository.Stores) error {
			// The row lock serializes concurrent creates for the same entity.
			if err := st.Entities.LockEntity(ctx, entityID); err != nil {
				return err
			}
			var err error
			created, err = st.Versions.CreateVersion(ctx, entityID, payload)
			return err
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *versioningService) updateVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
	payload models.Document,
) (*models.Version, error) {
	op := operation{name: "update_version", entityID: entityID, versionNumber: versionNumber}
	if versionNumber < 0 {
		return nil, s.reject(ctx, op, fmt.Errorf("%w: %w", ErrValidation, repository.ErrVersionNumberRequired))
	}

	var updated *models.Version
	err := s.run(ctx, op, nil, func(st repository.Stores) error {
		if err := st.Entities.LockEntity(ctx, entityID); err != nil {
			return err
		}
		var err error
		updated, err = st.Versions.UpdateVersion(ctx, entityID, versionNumber, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetVersion returns one version by its number.
func (s *versioningService) GetVersion(ctx context.Context, entityID int64, versionNumber int) (*models.Version, error) {
	var version *models.Version
	err := s.run(ctx, operation{name: "get_version", entityID: entityID, versionNumber: versionNumber},
		repository.ReadOnly, func(st repository.Stores) error {
			var err error
			version, err = st.Versions.GetVersion(ctx, entityID, versionNumber)
			return err
		})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// GetLatestVersion returns the highest-numbered version.
func (s *versioningService) GetLatestVersion(ctx context.Context, entityID int64) (*models.Version, error) {
	var version *models.Version
	err := s.run(ctx, operation{name: "get_latest_version", entityID: entityID}, repository.ReadOnly,
		func(st repository.Stores) error {
			var err error
			version, err = st.Versions.GetLatestVersion(ctx, entityID)
			return err
		})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ListVersions returns all versions newest first. An existing entity without versions
// yields an empty slice; an unknown entity is ErrEntityNotFound.
func (s *versioningService) ListVersions(ctx context.Context, entityID int64) ([]models.Version, error) {
	var versions []models.Version
	err := s.run(ctx, operation{name: "list_versions", entityID: entityID}, repository.ReadOnly,
		func(st repository.Stores) error {
			if _, err := st.Entities.GetEntity(ctx, entityID); err != nil {
				return err
			}
			var err error
			versions, err = st.Versions.ListVersions(ctx, entityID)
			return err
		})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// DeleteVersion physically removes one version.
func (s *versioningService) DeleteVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
) (*models.VersionDeletion, error) {
	err := s.run(ctx, operation{name: "delete_version", entityID: entityID, versionNumber: versionNumber}, nil,
		func(st repository.Stores) error {
			if err := st.Entities.LockEntity(ctx, entityID); err != nil {
				return err
			}
			return st.Versions.DeleteVersion(ctx, entityID, versionNumber)
		})
	if err != nil {
		return nil, err
	}
	return s.deletion(entityID, versionNumber), nil
}

// DeleteLatestVersion removes the highest-numbered version.
func (s *versioningService) DeleteLatestVersion(ctx context.Context, entityID int64) (*models.VersionDeletion, error) {
	var deleted int
	err := s.run(ctx, operation{name: "delete_latest_version", entityID: entityID}, nil,
		func(st repository.Stores) error {
			if err := st.Entities.LockEntity(ctx, entityID); err != nil {
				return err
			}
			var err error
			deleted, err = st.Versions.DeleteLatestVersion(ctx, entityID)
			return err
		})
	if err != nil {
		return nil, err
	}
	return s.deletion(entityID, deleted), nil
}

func (s *versioningService) deletion(entityID int64, versionNumber int) *models.VersionDeletion {
	return &models.VersionDeletion{
		EntityID:      entityID,
		VersionNumber: versionNumber,
		Message:       fmt.Sprintf("Version %d for %s %d deleted.", versionNumber, s.kind.Name, entityID),
	}
}

// reject logs and records a request refused before any transaction was opened.
func (s *versioningService) reject(ctx context.Context, op operation, err error) error {
	s.log.WarnContext(ctx, "request rejected", "op", op.name, "entity_id", op.entityID,
		"version_number", op.versionNumber, "error", err)
	s.metrics.ObserveOperation(s.kind.Name, op.name, outcome(err), 0)
	return err
}

// ObjectKey is where a published version document is stored.
func ObjectKey(kind models.Kind, entityID int64, versionNumber int) string {
	return fmt.Sprintf("%s/%d/v%d.json", kind.Plural, entityID, versionNumber)
}

// PublishVersion writes the version document to object storage so renderers can fetch
// it without going through the database. Publishing the same version again overwrites it.
func (s *versioningService) PublishVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
) (*models.PublishedVersion, error) {
	op := operation{name: "publish_version", entityID: entityID, versionNumber: versionNumber}
	if s.files == nil {
		return nil, s.reject(ctx, op, ErrPublishingDisabled)
	}

	start := time.Now()
	var version *models.Version
	err := s.within(ctx, op, repository.ReadOnly, func(st repository.Stores) error {
		var err error
		version, err = st.Versions.GetVersion(ctx, entityID, versionNumber)
		return err
	})
	if err != nil {
		s.metrics.ObserveOperation(s.kind.Name, op.name, outcome(err), time.Since(start))
		return nil, err
	}

	body, err := json.Marshal(version)
	if err != nil {
		return nil, s.fail(ctx, op, fmt.Errorf("encode version document: %w", err))
	}

	key := ObjectKey(s.kind, entityID, versionNumber)
	if err = s.files.UploadFile(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return nil, s.fail(ctx, op, err)
	}
	s.metrics.ObserveOperation(s.kind.Name, op.name, outcome(nil), time.Since(start))

	s.log.InfoContext(ctx, "version published", "entity_id", entityID, "version_number", versionNumber,
		"object_key", key)
	return &models.PublishedVersion{
		EntityID:      entityID,
		VersionNumber: versionNumber,
		ObjectKey:     key,
		SizeBytes:     int64(len(body)),
	}, nil
}

// FetchPublishedVersion opens a previously published version document.
func (s *versioningService) FetchPublishedVersion(
	ctx context.Context,
	entityID int64,
	versionNumber int,
) (io.ReadCloser, error) {
	op := operation{name: "fetch_published_version", entityID: entityID, versionNumber: versionNumber}
	if s.files == nil {
		return nil, s.reject(ctx, op, ErrPublishingDisabled)
	}

	reader, err := s.files.DownloadFile(ctx, ObjectKey(s.kind, entityID, versionNumber))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, s.reject(ctx, op,
				fmt.Errorf("%s %d version %d: %w", s.kind.Name, entityID, versionNumber, ErrNotPublished))
		}
		return nil, s.fail(ctx, op, err)
	}
	return reader, nil
}

// fail wraps an unexpected error outside a transaction.
func (s *versioningService) fail(ctx context.Context, op operation, err error) error {
	s.log.ErrorContext(ctx, "operation failed", "op", op.name, "entity_id", op.entityID,
		"version_number", op.versionNumber, "error", err)
	wrapped := &OperationError{
		Op:            op.name,
		Kind:          s.kind.Name,
		EntityID:      op.entityID,
		VersionNumber: op.versionNumber,
		Err:           err,
	}
	s.metrics.ObserveOperation(s.kind.Name, op.name, outcome(wrapped), 0)
	return wrapped
}

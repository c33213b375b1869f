package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maynagashev/formdef/internal/models"
	"github.com/maynagashev/formdef/internal/services"
)

// maxBodyBytes limits entity and version request bodies.
const maxBodyBytes = 1 << 20

// VersioningHandler serves the entity and version routes of one kind.
type VersioningHandler struct {
	svc      services.VersioningService
	validate *validator.Validate
	log      *slog.Logger
}

// NewVersioningHandler creates a handler for the kind served by svc.
func NewVersioningHandler(svc services.VersioningService) *VersioningHandler {
	return &VersioningHandler{
		svc:      svc,
		validate: newValidator(),
		log:      slog.Default().With("component", "VersioningHandler", "kind", svc.Kind().Name),
	}
}

// Routes registers the kind's routes on r, usually a sub-router mounted at /api/{plural}.
func (h *VersioningHandler) Routes(r chi.Router) {
	r.Get("/", h.ListEntities)
	r.Post("/", h.CreateEntity)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetEntity)
		r.Put("/", h.UpdateEntity)
		r.Delete("/", h.DeleteEntity)

		r.Route("/versions", func(r chi.Router) {
			r.Get("/", h.ListVersions)
			r.Post("/", h.SaveVersion)
			r.Get("/latest", h.GetLatestVersion)
			r.Delete("/latest", h.DeleteLatestVersion)
			r.Get("/{version}", h.GetVersion)
			r.Post("/{version}", h.SaveVersion)
			r.Delete("/{version}", h.DeleteVersion)
			r.Post("/{version}/publish", h.PublishVersion)
			r.Get("/{version}/published", h.FetchPublishedVersion)
		})
	})
}

// ListEntities handles GET /.
func (h *VersioningHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.svc.ListEntities(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, entities)
}

// CreateEntity handles POST /.
func (h *VersioningHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.decodeEntity(w, r, models.UpdatePolicy{})
	if !ok {
		return
	}

	created, err := h.svc.CreateEntity(r.Context(), entity)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	h.log.InfoContext(r.Context(), "entity created", "entity_id", created.ID, "key", created.Key)
	writeEnvelope(w, h.log, http.StatusCreated, "created", created)
}

// GetEntity handles GET /{id}.
func (h *VersioningHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	entity, err := h.svc.GetEntity(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, entity)
}

// UpdateEntity handles PUT /{id}. The preserve_key query flag keeps the stored key.
func (h *VersioningHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	policy := models.UpdatePolicy{}
	if raw := r.URL.Query().Get("preserve_key"); raw != "" {
		preserve, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, h.log, "preserve_key must be a boolean")
			return
		}
		policy.PreserveKey = preserve
	}

	entity, ok := h.decodeEntity(w, r, policy)
	if !ok {
		return
	}

	updated, err := h.svc.UpdateEntity(r.Context(), id, entity, policy)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeEnvelope(w, h.log, http.StatusOK, "updated", updated)
}

// DeleteEntity handles DELETE /{id}.
func (h *VersioningHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteEntity(r.Context(), id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	kind := h.svc.Kind()
	writeEnvelope(w, h.log, http.StatusOK, "deleted", map[string]any{
		"id":      id,
		"message": fmt.Sprintf("%s %d deleted.", kind.Name, id),
	})
}

// ListVersions handles GET /{id}/versions.
func (h *VersioningHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, versions)
}

// SaveVersion handles POST /{id}/versions (create) and POST /{id}/versions/{version} (update).
// A version_number in the body is ignored; only the path selects an update.
func (h *VersioningHandler) SaveVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	versionNumber := 0
	if chi.URLParam(r, "version") != "" {
		if versionNumber, ok = h.versionNumber(w, r); !ok {
			return
		}
	}

	payload, err := decodePayload(r)
	if err != nil {
		h.log.WarnContext(r.Context(), "invalid version body", "entity_id", id, "error", err)
		writeBadRequest(w, h.log, err.Error())
		return
	}

	version, created, err := h.svc.CreateOrUpdateVersion(r.Context(), id, versionNumber, payload)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if created {
		h.log.InfoContext(r.Context(), "version created", "entity_id", id, "version_number", version.VersionNumber)
		writeEnvelope(w, h.log, http.StatusCreated, "created", version)
		return
	}
	h.log.InfoContext(r.Context(), "version updated", "entity_id", id, "version_number", version.VersionNumber)
	writeEnvelope(w, h.log, http.StatusOK, "updated", version)
}

// GetVersion handles GET /{id}/versions/{version}.
func (h *VersioningHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(w, r)
	if !ok {
		return
	}

	version, err := h.svc.GetVersion(r.Context(), id, versionNumber)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, version)
}

// GetLatestVersion handles GET /{id}/versions/latest.
func (h *VersioningHandler) GetLatestVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	version, err := h.svc.GetLatestVersion(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, version)
}

// DeleteVersion handles DELETE /{id}/versions/{version}.
func (h *VersioningHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(w, r)
	if !ok {
		return
	}

	deletion, err := h.svc.DeleteVersion(r.Context(), id, versionNumber)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeEnvelope(w, h.log, http.StatusOK, "deleted", deletion)
}

// DeleteLatestVersion handles DELETE /{id}/versions/latest.
func (h *VersioningHandler) DeleteLatestVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	deletion, err := h.svc.DeleteLatestVersion(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeEnvelope(w, h.log, http.StatusOK, "deleted", deletion)
}

// PublishVersion handles POST /{id}/versions/{version}/publish.
func (h *VersioningHandler) PublishVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(w, r)
	if !ok {
		return
	}

	published, err := h.svc.PublishVersion(r.Context(), id, versionNumber)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeEnvelope(w, h.log, http.StatusOK, "published", published)
}

// FetchPublishedVersion handles GET /{id}/versions/{version}/published and streams the
// stored document.
func (h *VersioningHandler) FetchPublishedVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(w, r)
	if !ok {
		return
	}

	reader, err := h.svc.FetchPublishedVersion(r.Context(), id, versionNumber)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			h.log.WarnContext(r.Context(), "failed to close published document", "error", closeErr)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(w, reader); err != nil {
		h.log.ErrorContext(r.Context(), "failed to stream published document",
			"entity_id", id, "version_number", versionNumber, "error", err)
	}
}

func (h *VersioningHandler) entityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, h.log, fmt.Sprintf("invalid %s id %q", h.svc.Kind().Name, raw))
		return 0, false
	}
	return id, true
}

func (h *VersioningHandler) versionNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "version")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeBadRequest(w, h.log, fmt.Sprintf("invalid version number %q", raw))
		return 0, false
	}
	return n, true
}

// decodeEntity reads an entity body. The key may be omitted when the stored key is kept.
func (h *VersioningHandler) decodeEntity(
	w http.ResponseWriter,
	r *http.Request,
	policy models.UpdatePolicy,
) (*models.Entity, bool) {
	var req models.EntityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, h.log, "invalid JSON body")
		return nil, false
	}

	var err error
	if policy.PreserveKey {
		err = h.validate.StructExcept(req, "Key")
	} else {
		err = h.validate.Struct(req)
	}
	if err != nil {
		writeBadRequest(w, h.log, validationMessage(err))
		return nil, false
	}
	return req.ToEntity(), true
}

// decodeJSON reads exactly one JSON value from the body. Numbers are kept as
// json.Number so large integers survive unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodePayload reads a version body. It must be a JSON object.
func decodePayload(r *http.Request) (models.Document, error) {
	var payload models.Document
	if err := decodeJSON(r, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, models.ErrNotADocument
		}
		return nil, errors.New("invalid JSON body")
	}
	if payload == nil {
		return nil, models.ErrNotADocument
	}
	delete(payload, "version_number")
	return payload, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	if fe.Tag() == "required" {
		return fmt.Sprintf("field %s is required", fe.Field())
	}
	return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/config"
	"github.com/maynagashev/formdef/internal/repository"
	"github.com/maynagashev/formdef/internal/storage"
)

// stubDependencies replaces the database, migration and storage constructors for one test.
func stubDependencies(t *testing.T, migrateErr, storageErr error) (sqlmock.Sqlmock, *int, *int) {
	t.Helper()
	origDB, origMigrate, origStorage := newPostgresDB, runMigrations, newFileStorage
	t.Cleanup(func() {
		newPostgresDB, runMigrations, newFileStorage = origDB, origMigrate, origStorage
	})

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	migrations, storages := 0, 0
	newPostgresDB = func(_ string, _ repository.PoolConfig) (*sqlx.DB, error) {
		return sqlx.NewDb(mockDB, "sqlmock"), nil
	}
	runMigrations = func(_ *sqlx.DB) error {
		migrations++
		return migrateErr
	}
	newFileStorage = func(_ context.Context, _ storage.MinioConfig) (storage.FileStorage, error) {
		storages++
		if storageErr != nil {
			return nil, storageErr
		}
		return &storage.MinioClient{}, nil
	}
	return mock, &migrations, &storages
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: "8080"},
		Database: config.DatabaseConfig{DSN: "dummy-dsn-for-mock", Migrate: true},
		Minio:    config.MinioConfig{Bucket: "versions"},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestSetupDependencies(t *testing.T) {
	t.Run("publishing disabled without endpoint", func(t *testing.T) {
		_, migrations, storages := stubDependencies(t, nil, nil)

		deps, err := setupDependencies(context.Background(), testConfig())
		require.NoError(t, err)
		defer deps.db.Close()

		assert.Equal(t, 1, *migrations)
		assert.Equal(t, 0, *storages)
		assert.Nil(t, deps.fileStorage)
		assert.Len(t, deps.kinds, 2)
		assert.Contains(t, deps.kinds, "components")
		assert.Contains(t, deps.kinds, "forms")
		assert.NotNil(t, deps.metrics)
	})

	t.Run("publishing enabled and migrations skipped", func(t *testing.T) {
		_, migrations, storages := stubDependencies(t, nil, nil)
		cfg := testConfig()
		cfg.Database.Migrate = false
		cfg.Minio.Endpoint = "localhost:9000"

		deps, err := setupDependencies(context.Background(), cfg)
		require.NoError(t, err)
		defer deps.db.Close()

		assert.Equal(t, 0, *migrations)
		assert.Equal(t, 1, *storages)
		assert.NotNil(t, deps.fileStorage)
	})

	t.Run("migration failure closes the database", func(t *testing.T) {
		mock, _, _ := stubDependencies(t, errors.New("dirty database"), nil)
		mock.ExpectClose()

		_, err := setupDependencies(context.Background(), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrate database")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure", func(t *testing.T) {
		mock, _, _ := stubDependencies(t, nil, errors.New("bad endpoint"))
		mock.ExpectClose()
		cfg := testConfig()
		cfg.Minio.Endpoint = "invalid-endpoint:!!!"

		_, err := setupDependencies(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "init MinIO client")
	})

	t.Run("database failure", func(t *testing.T) {
		stubDependencies(t, nil, nil)
		newPostgresDB = func(_ string, _ repository.PoolConfig) (*sqlx.DB, error) {
			return nil, errors.New("connection refused")
		}

		_, err := setupDependencies(context.Background(), testConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "init database")
	})
}

func TestSetupRouter(t *testing.T) {
	stubDependencies(t, nil, nil)
	deps, err := setupDependencies(context.Background(), testConfig())
	require.NoError(t, err)
	defer deps.db.Close()

	r := setupRouter(slog.New(slog.DiscardHandler), deps)
	require.NotNil(t, r)

	assert.True(t, hasRoute(r, http.MethodGet, "/ping"))
	assert.True(t, hasRoute(r, http.MethodGet, "/health"))
	assert.True(t, hasRoute(r, http.MethodGet, "/metrics"))
	for _, plural := range []string{"components", "forms"} {
		base := "/api/" + plural
		assert.True(t, hasRoute(r, http.MethodGet, base+"/"), base)
		assert.True(t, hasRoute(r, http.MethodPost, base+"/"), base)
		assert.True(t, hasRoute(r, http.MethodPut, base+"/{id}/"), base)
		assert.True(t, hasRoute(r, http.MethodPost, base+"/{id}/versions/"), base)
		assert.True(t, hasRoute(r, http.MethodPost, base+"/{id}/versions/{version}"), base)
		assert.True(t, hasRoute(r, http.MethodGet, base+"/{id}/versions/latest"), base)
		assert.True(t, hasRoute(r, http.MethodDelete, base+"/{id}/versions/latest"), base)
		assert.True(t, hasRoute(r, http.MethodPost, base+"/{id}/versions/{version}/publish"), base)
		assert.True(t, hasRoute(r, http.MethodGet, base+"/{id}/versions/{version}/published"), base)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong\n", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "formdef_http_requests_total"))
}

// hasRoute reports whether r serves method on pattern.
func hasRoute(r chi.Router, method, pattern string) bool {
	found := false
	_ = chi.Walk(r, func(m, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if m == method && route == pattern {
			found = true
			return errors.New("found")
		}
		return nil
	})
	return found
}

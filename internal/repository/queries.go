package repository

import (
	"fmt"
	"strings"

	"github.com/maynagashev/formdef/internal/models"
)

// Table and column names come from the static kind descriptors, never from requests.
type entityQueries struct {
	insert string
	update string
	get    string
	lock   string
	list   string
	delete string
}

type versionQueries struct {
	nextNumber string
	insert     string
	recordID   string
	update     string
	get        string
	latest     string
	list       string
	delete     string
}

func entityColumns(kind models.Kind) string {
	cols := []string{"id", "key", "name", "description", "category"}
	if kind.HasBase {
		cols = append(cols, "base_component_id")
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

func versionColumns(kind models.Kind) string {
	return fmt.Sprintf("id, %s AS entity_id, version_number, payload, is_active, created_at, updated_at",
		kind.ForeignKey)
}

func buildEntityQueries(kind models.Kind) entityQueries {
	cols := entityColumns(kind)
	t := kind.EntityTable

	var insert, update string
	if kind.HasBase {
		insert = fmt.Sprintf(`INSERT INTO %s (key, name, description, category, base_component_id, created_at, updated_at)`+
			` VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING %s`, t, cols)
		update = fmt.Sprintf(`UPDATE %s SET key = COALESCE($1, key), name = $2, description = $3, category = $4,`+
			` base_component_id = $5, updated_at = clock_timestamp() WHERE id = $6 RETURNING %s`, t, cols)
	} else {
		insert = fmt.Sprintf(`INSERT INTO %s (key, name, description, category, created_at, updated_at)`+
			` VALUES ($1, $2, $3, $4, now(), now()) RETURNING %s`, t, cols)
		update = fmt.Sprintf(`UPDATE %s SET key = COALESCE($1, key), name = $2, description = $3, category = $4,`+
			` updated_at = clock_timestamp() WHERE id = $5 RETURNING %s`, t, cols)
	}

	return entityQueries{
		insert: insert,
		update: update,
		get:    fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, cols, t),
		lock:   fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, t),
		list:   fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, cols, t),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t),
	}
}

func buildVersionQueries(kind models.Kind) versionQueries {
	cols := versionColumns(kind)
	t := kind.VersionTable
	fk := kind.ForeignKey

	return versionQueries{
		nextNumber: fmt.Sprintf(`SELECT COALESCE(MAX(version_number), 0) + 1 FROM %s WHERE %s = $1`, t, fk),
		insert: fmt.Sprintf(`INSERT INTO %s (%s, version_number, payload, is_active, created_at, updated_at)`+
			` VALUES ($1, $2, $3, true, now(), now()) RETURNING %s`, t, fk, cols),
		recordID: fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 AND version_number = $2`, t, fk),
		update: fmt.Sprintf(`UPDATE %s SET payload = $1, is_active = true, updated_at = clock_timestamp()`+
			` WHERE id = $2 RETURNING %s`, t, cols),
		get:    fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND version_number = $2`, cols, t, fk),
		latest: fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY version_number DESC LIMIT 1`, cols, t, fk),
		list:   fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY version_number DESC`, cols, t, fk),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND version_number = $2`, t, fk),
	}
}

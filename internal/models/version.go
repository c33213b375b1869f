package models

import "time"

// Version is one numbered snapshot of an entity definition.
// (EntityID, VersionNumber) is unique and is the external lookup key; ID is internal.
type Version struct {
	ID            int64     `db:"id" json:"id"`
	EntityID      int64     `db:"entity_id" json:"entity_id"`
	VersionNumber int       `db:"version_number" json:"version_number"`
	Payload       Document  `db:"payload" json:"payload"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// VersionDeletion confirms a physical version delete.
type VersionDeletion struct {
	EntityID      int64  `json:"entity_id"`
	VersionNumber int    `json:"version_number"`
	Message       string `json:"message"`
}

// PublishedVersion describes a version document written to object storage.
type PublishedVersion struct {
	EntityID      int64  `json:"entity_id"`
	VersionNumber int    `json:"version_number"`
	ObjectKey     string `json:"object_key"`
	SizeBytes     int64  `json:"size_bytes"`
}

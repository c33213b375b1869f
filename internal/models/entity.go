package models

import "time"

// Entity is a versioned logical object: a component or a form definition.
// Its versions reference it by ID.
type Entity struct {
	ID              int64     `db:"id" json:"id"`
	Key             string    `db:"key" json:"key"`
	Name            string    `db:"name" json:"name"`
	Description     *string   `db:"description" json:"description,omitempty"`
	Category        *string   `db:"category" json:"category,omitempty"`
	BaseComponentID *int64    `db:"base_component_id" json:"base_component_id,omitempty"` // components only
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EntityRequest is the request body for creating or updating an entity.
type EntityRequest struct {
	Key             string  `json:"key" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Description     *string `json:"description"`
	Category        *string `json:"category"`
	BaseComponentID *int64  `json:"base_component_id" validate:"omitempty,gt=0"`
}

// ToEntity converts the request into an Entity without identity or timestamps.
func (r EntityRequest) ToEntity() *Entity {
	return &Entity{
		Key:             r.Key,
		Name:            r.Name,
		Description:     r.Description,
		Category:        r.Category,
		BaseComponentID: r.BaseComponentID,
	}
}

// UpdatePolicy controls which fields update_entity may overwrite.
type UpdatePolicy struct {
	// PreserveKey keeps the stored key and ignores the supplied one.
	PreserveKey bool
}

package model

import (
	"time"
)

const (
	EntityStatusActive  = "active"
	EntityStatusDeleted = "deleted"
)

// Well-known entity types. Any other string is a valid type too.
const (
	EntityTypeFile          = "file"
	EntityTypePost          = "post"
	EntityTypeTodo          = "todo"
	EntityTypeShoppingItem  = "shopping_item"
	EntityTypeSavedLocation = "saved_location"
	EntityTypePage          = "page"
	EntityTypeComment       = "comment"
)

type Entity struct {
	ID            string    `db:"id" json:"id"`
	Type          string    `db:"type" json:"type"`
	ApplicationID *string   `db:"application_id" json:"applicationId"` // Tenant/circle scope, nil = global
	OwnerID       *string   `db:"owner_id" json:"ownerId"`
	Status        string    `db:"status" json:"status"`
	Attributes    Document  `db:"data" json:"attributes"`
	Metadata      Document  `db:"metadata" json:"metadata"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

func (e *Entity) IsDeleted() bool {
	return e.Status == EntityStatusDeleted
}

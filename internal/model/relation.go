package model

import (
	"time"
)

const (
	RelationTypeLiked     = "liked"
	RelationTypeMember    = "member"
	RelationTypeOwns      = "owns"
	RelationTypeFavorited = "favorited"
)

// Relation is a directed, typed edge. (SourceID, TargetID, RelationType) is unique.
type Relation struct {
	SourceID     string    `db:"source_id" json:"sourceId"`
	TargetID     string    `db:"target_id" json:"targetId"`
	RelationType string    `db:"relation_type" json:"relationType"`
	Metadata     Document  `db:"metadata" json:"metadata"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// RelatedEntity is an entity reached through an incoming edge, annotated
// with that edge's metadata and creation time.
type RelatedEntity struct {
	Entity
	RelationMetadata  Document  `db:"relation_metadata" json:"relationMetadata"`
	RelationCreatedAt time.Time `db:"relation_created_at" json:"relationCreatedAt"`
}

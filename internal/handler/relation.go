package handler

import (
	"fmt"
	"net/http"

	"github.com/homebase-app/homebase/internal/model"
	"github.com/homebase-app/homebase/internal/repository"
	"github.com/homebase-app/homebase/internal/validation"
)

type RelationHandler struct {
	relations repository.RelationRepository
}

func NewRelationHandler(relations repository.RelationRepository) *RelationHandler {
	return &RelationHandler{
		relations: relations,
	}
}

// relationKey identifies one edge.
type relationKey struct {
	SourceID     string `json:"sourceId" validate:"required,max=128"`
	TargetID     string `json:"targetId" validate:"required,max=128"`
	RelationType string `json:"relationType" validate:"required,max=100"`
}

type putRelationRequest struct {
	relationKey
	Metadata model.Document `json:"metadata"`
}

func relationKeyFromQuery(r *http.Request) (relationKey, error) {
	q := r.URL.Query()
	key := relationKey{
		SourceID:     q.Get("source_id"),
		TargetID:     q.Get("target_id"),
		RelationType: q.Get("relation_type"),
	}
	err := validation.Struct(key)
	if err != nil {
		return relationKey{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	return key, nil
}

// Put creates the edge or merges metadata into the existing one.
func (h *RelationHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req putRelationRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	err = validation.Struct(req.relationKey)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	_, err = h.relations.Create(r.Context(), req.SourceID, req.TargetID, req.RelationType, req.Metadata)
	if err != nil {
		writeError(w, r, "create relation", err)
		return
	}

	relation, err := h.relations.Get(r.Context(), req.SourceID, req.TargetID, req.RelationType)
	if err != nil {
		writeError(w, r, "get relation", err)
		return
	}

	writeJSON(w, r, http.StatusOK, relation)
}

func (h *RelationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := relationKeyFromQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	removed, err := h.relations.Delete(r.Context(), key.SourceID, key.TargetID, key.RelationType)
	if err != nil {
		writeError(w, r, "delete relation", err)
		return
	}
	if !removed {
		notFound(w, "relation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationHandler) Exists(w http.ResponseWriter, r *http.Request) {
	key, err := relationKeyFromQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	has, err := h.relations.Has(r.Context(), key.SourceID, key.TargetID, key.RelationType)
	if err != nil {
		writeError(w, r, "check relation", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]bool{"exists": has})
}

func (h *RelationHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	items, err := h.relations.Outgoing(r.Context(), r.PathValue("id"), r.PathValue("relationType"), r.URL.Query().Get("target_type"))
	if err != nil {
		writeError(w, r, "traverse outgoing relations", err)
		return
	}

	writeJSON(w, r, http.StatusOK, ListResponse[*model.Entity]{Items: items})
}

func (h *RelationHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	items, err := h.relations.Incoming(r.Context(), r.PathValue("id"), r.PathValue("relationType"))
	if err != nil {
		writeError(w, r, "traverse incoming relations", err)
		return
	}

	writeJSON(w, r, http.StatusOK, ListResponse[*model.RelatedEntity]{Items: items})
}

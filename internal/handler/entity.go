package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/homebase-app/homebase/internal/ctxkeys"
	"github.com/homebase-app/homebase/internal/model"
	"github.com/homebase-app/homebase/internal/repository"
)

const filterParamPrefix = "filter."

type EntityHandler struct {
	entities repository.EntityRepository
}

func NewEntityHandler(entities repository.EntityRepository) *EntityHandler {
	return &EntityHandler{
		entities: entities,
	}
}

// Create defaults the owner to the calling principal.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in repository.CreateEntityInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if in.OwnerID == nil {
		if principal := ctxkeys.Principal(r.Context()); principal != "" {
			in.OwnerID = &principal
		}
	}

	entity, err := h.entities.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, "create entity", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, entity)
}

func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entities.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get entity", err)
		return
	}
	if entity == nil {
		notFound(w, "entity")
		return
	}

	writeJSON(w, r, http.StatusOK, entity)
}

func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in repository.UpdateEntityInput
	err := decodeJSON(w, r, &in)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	entity, err := h.entities.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, "update entity", err)
		return
	}
	if entity == nil {
		notFound(w, "entity")
		return
	}

	writeJSON(w, r, http.StatusOK, entity)
}

// Delete soft-deletes unless ?hard=true.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard, err := boolParam(r, "hard")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	removed, err := h.entities.Delete(r.Context(), r.PathValue("id"), hard)
	if err != nil {
		writeError(w, r, "delete entity", err)
		return
	}
	if !removed {
		notFound(w, "entity")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entities.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "restore entity", err)
		return
	}
	if entity == nil {
		notFound(w, "entity")
		return
	}

	writeJSON(w, r, http.StatusOK, entity)
}

func (h *EntityHandler) Query(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.entities.Query(r.Context(), params)
	if err != nil {
		writeError(w, r, "query entities", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

func (h *EntityHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	items, err := h.entities.Search(r.Context(), repository.SearchParams{
		Type:          r.PathValue("type"),
		Query:         q.Get("q"),
		ApplicationID: q.Get("application_id"),
		Limit:         limit,
	})
	if err != nil {
		writeError(w, r, "search entities", err)
		return
	}

	writeJSON(w, r, http.StatusOK, ListResponse[*model.Entity]{Items: items})
}

func (h *EntityHandler) CountByType(w http.ResponseWriter, r *http.Request) {
	counts, err := h.entities.CountByType(r.Context(), r.URL.Query().Get("application_id"))
	if err != nil {
		writeError(w, r, "count entities", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"counts": counts})
}

// queryParams maps the listing query string onto repository.QueryParams.
// filter.<key>=<value> becomes an equality filter on attribute key.
func queryParams(r *http.Request) (repository.QueryParams, error) {
	q := r.URL.Query()

	page, err := intParam(r, "page")
	if err != nil {
		return repository.QueryParams{}, err
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		return repository.QueryParams{}, err
	}

	params := repository.QueryParams{
		Type:          r.PathValue("type"),
		ApplicationID: q.Get("application_id"),
		OwnerID:       q.Get("owner_id"),
		Status:        q.Get("status"),
		Search:        q.Get("q"),
		OrderBy:       q.Get("order_by"),
		OrderDir:      q.Get("order_dir"),
		Page:          page,
		Limit:         limit,
	}

	for key, values := range q {
		name, ok := strings.CutPrefix(key, filterParamPrefix)
		if !ok || len(values) == 0 {
			continue
		}
		if params.Filters == nil {
			params.Filters = map[string]any{}
		}
		params.Filters[name] = values[0]
	}

	return params, nil
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &paramError{name: name, value: v, want: "an integer"}
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &paramError{name: name, value: v, want: "a boolean"}
	}
	return b, nil
}

type paramError struct {
	name, value, want string
}

func (e *paramError) Error() string {
	return "query parameter " + e.name + "=" + strconv.Quote(e.value) + " must be " + e.want
}

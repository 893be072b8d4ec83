package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase/internal/model"
)

// runEntityStoreSuite exercises EntityRepository against any migrated database.
func runEntityStoreSuite(t *testing.T, database *sqlx.DB) {
	ctx := context.Background()

	setup := func(t *testing.T) *testStores {
		resetTables(t, database)
		return newTestStores(database)
	}

	t.Run("create applies defaults", func(t *testing.T) {
		s := setup(t)

		e, err := s.entities.Create(ctx, CreateEntityInput{Type: model.EntityTypeTodo})
		require.NoError(t, err)

		_, err = uuid.Parse(e.ID)
		assert.NoError(t, err)
		assert.Equal(t, model.EntityTypeTodo, e.Type)
		assert.Equal(t, model.EntityStatusActive, e.Status)
		assert.Nil(t, e.ApplicationID)
		assert.Nil(t, e.OwnerID)
		assert.Equal(t, model.Document{}, e.Attributes)
		assert.Equal(t, model.Document{}, e.Metadata)
		assert.False(t, e.CreatedAt.IsZero())
		assert.True(t, e.CreatedAt.Equal(e.UpdatedAt))
	})

	t.Run("create keeps caller supplied fields", func(t *testing.T) {
		s := setup(t)

		e, err := s.entities.Create(ctx, CreateEntityInput{
			ID:            "page-1",
			Type:          model.EntityTypePage,
			ApplicationID: strPtr("circle-1"),
			OwnerID:       strPtr("u1"),
			Status:        "draft",
			Attributes:    model.Document{"title": "Recipes", "tags": []any{"food", "family"}},
			Metadata:      model.Document{"source": "import"},
		})
		require.NoError(t, err)

		assert.Equal(t, "page-1", e.ID)
		assert.Equal(t, "circle-1", *e.ApplicationID)
		assert.Equal(t, "u1", *e.OwnerID)
		assert.Equal(t, "draft", e.Status)
		assert.Equal(t, "Recipes", e.Attributes["title"])
		assert.Equal(t, []any{"food", "family"}, e.Attributes["tags"])
		assert.Equal(t, "import", e.Metadata["source"])
	})

	t.Run("create rejects duplicate id", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{ID: "dup", Type: "post"})
		require.NoError(t, err)

		_, err = s.entities.Create(ctx, CreateEntityInput{ID: "dup", Type: "comment"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEntityExists)
		assert.False(t, IsRetryable(err))
	})

	t.Run("create requires a type", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{Attributes: model.Document{"a": 1}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("by id returns nil for a missing entity", func(t *testing.T) {
		s := setup(t)

		e, err := s.entities.ByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("merge update isolates keys", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{
			Type:       "post",
			Attributes: model.Document{"a": 1, "b": 2},
		})
		require.NoError(t, err)

		updated, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{
			Attributes: model.Document{"b": 3},
		})
		require.NoError(t, err)
		require.NotNil(t, updated)

		assert.Equal(t, model.Document{"a": float64(1), "b": float64(3)}, updated.Attributes)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
		assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	})

	t.Run("merge replaces nested values wholesale", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{
			Type: "saved_location",
			Attributes: model.Document{
				"name":  "Grandma",
				"coord": map[string]any{"lat": 1.5, "lng": 2.5},
			},
		})
		require.NoError(t, err)

		updated, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{
			Attributes: model.Document{"coord": map[string]any{"lat": 3.5}},
		})
		require.NoError(t, err)

		assert.Equal(t, "Grandma", updated.Attributes["name"])
		assert.Equal(t, map[string]any{"lat": 3.5}, updated.Attributes["coord"])
	})

	t.Run("merge stores explicit null", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{
			Type:       "todo",
			Attributes: model.Document{"title": "x", "dueAt": "2026-02-01"},
		})
		require.NoError(t, err)

		updated, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{
			Attributes: model.Document{"dueAt": nil},
		})
		require.NoError(t, err)

		v, ok := updated.Attributes["dueAt"]
		assert.True(t, ok)
		assert.Nil(t, v)
		assert.Equal(t, "x", updated.Attributes["title"])
	})

	t.Run("update merges metadata and sets status", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{
			Type:     "post",
			Status:   "draft",
			Metadata: model.Document{"rev": 1},
		})
		require.NoError(t, err)

		published := "published"
		updated, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{
			Status:   &published,
			Metadata: model.Document{"reviewedBy": "u2"},
		})
		require.NoError(t, err)

		assert.Equal(t, "published", updated.Status)
		assert.Equal(t, model.Document{"rev": float64(1), "reviewedBy": "u2"}, updated.Metadata)
		assert.Equal(t, model.Document{}, updated.Attributes)
	})

	t.Run("update without fields is a plain read", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{Type: "todo"})
		require.NoError(t, err)

		got, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{})
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(created.UpdatedAt))
	})

	t.Run("update of a missing entity returns nil", func(t *testing.T) {
		s := setup(t)

		got, err := s.entities.Update(ctx, "missing", UpdateEntityInput{Attributes: model.Document{"a": 1}})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("concurrent updates to different keys are all kept", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{Type: "shopping_item"})
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.entities.Update(ctx, created.ID, UpdateEntityInput{
					Attributes: model.Document{fmt.Sprintf("k%d", i): i},
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.entities.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, got.Attributes, writers)
		for i := 0; i < writers; i++ {
			assert.Equal(t, float64(i), got.Attributes[fmt.Sprintf("k%d", i)])
		}
	})

	t.Run("soft delete is idempotent and keeps the row", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{Type: "comment"})
		require.NoError(t, err)

		deleted, err := s.entities.Delete(ctx, created.ID, false)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.entities.Delete(ctx, created.ID, false)
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := s.entities.ByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.EntityStatusDeleted, got.Status)
		assert.True(t, got.IsDeleted())
		assert.True(t, got.UpdatedAt.After(created.UpdatedAt))
	})

	t.Run("hard delete removes the row", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{Type: "comment"})
		require.NoError(t, err)

		deleted, err := s.entities.Delete(ctx, created.ID, true)
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := s.entities.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		deleted, err = s.entities.Delete(ctx, created.ID, true)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete of a missing entity reports false", func(t *testing.T) {
		s := setup(t)

		deleted, err := s.entities.Delete(ctx, "missing", false)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("restore brings a soft deleted entity back", func(t *testing.T) {
		s := setup(t)

		created, err := s.entities.Create(ctx, CreateEntityInput{Type: "todo", OwnerID: strPtr("u1")})
		require.NoError(t, err)
		_, err = s.entities.Delete(ctx, created.ID, false)
		require.NoError(t, err)

		restored, err := s.entities.Restore(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EntityStatusActive, restored.Status)

		result, err := s.entities.Query(ctx, QueryParams{Type: "todo", OwnerID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)

		missing, err := s.entities.Restore(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("query excludes deleted by default", func(t *testing.T) {
		s := setup(t)

		for i := 0; i < 3; i++ {
			_, err := s.entities.Create(ctx, CreateEntityInput{Type: "post"})
			require.NoError(t, err)
		}
		for i := 0; i < 2; i++ {
			e, err := s.entities.Create(ctx, CreateEntityInput{Type: "post"})
			require.NoError(t, err)
			_, err = s.entities.Delete(ctx, e.ID, false)
			require.NoError(t, err)
		}
		_, err := s.entities.Create(ctx, CreateEntityInput{Type: "comment"})
		require.NoError(t, err)

		result, err := s.entities.Query(ctx, QueryParams{Type: "post"})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Len(t, result.Items, 3)
		for _, e := range result.Items {
			assert.Equal(t, model.EntityStatusActive, e.Status)
		}

		// A status filter cannot be used to reveal deleted rows.
		result, err = s.entities.Query(ctx, QueryParams{Type: "post", Status: model.EntityStatusDeleted})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Total)
	})

	t.Run("total is invariant under pagination", func(t *testing.T) {
		s := setup(t)

		ids := map[string]bool{}
		for i := 0; i < 7; i++ {
			e, err := s.entities.Create(ctx, CreateEntityInput{
				Type:       "shopping_item",
				Attributes: model.Document{"list": "weekly", "n": i},
			})
			require.NoError(t, err)
			ids[e.ID] = true
		}
		_, err := s.entities.Create(ctx, CreateEntityInput{
			Type:       "shopping_item",
			Attributes: model.Document{"list": "party"},
		})
		require.NoError(t, err)

		filters := map[string]any{"list": "weekly"}
		seen := map[string]bool{}
		for page := 1; page <= 3; page++ {
			result, err := s.entities.Query(ctx, QueryParams{Type: "shopping_item", Filters: filters, Page: page, Limit: 3})
			require.NoError(t, err)
			assert.Equal(t, 7, result.Total)
			assert.Equal(t, page, result.Page)
			assert.Equal(t, 3, result.Limit)
			for _, e := range result.Items {
				assert.False(t, seen[e.ID], "entity %s returned twice", e.ID)
				seen[e.ID] = true
			}
		}
		assert.Equal(t, ids, seen)

		result, err := s.entities.Query(ctx, QueryParams{Type: "shopping_item", Filters: filters, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 7, result.Total)
		assert.Len(t, result.Items, 5)

		result, err = s.entities.Query(ctx, QueryParams{Type: "shopping_item", Filters: filters, Page: 9, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 7, result.Total)
		assert.Empty(t, result.Items)
	})

	t.Run("query orders newest first by default", func(t *testing.T) {
		s := setup(t)

		first, err := s.entities.Create(ctx, CreateEntityInput{Type: "post"})
		require.NoError(t, err)
		second, err := s.entities.Create(ctx, CreateEntityInput{Type: "post"})
		require.NoError(t, err)

		result, err := s.entities.Query(ctx, QueryParams{Type: "post"})
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Equal(t, second.ID, result.Items[0].ID)
		assert.Equal(t, first.ID, result.Items[1].ID)

		result, err = s.entities.Query(ctx, QueryParams{Type: "post", OrderBy: "created_at", OrderDir: "ASC"})
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Equal(t, first.ID, result.Items[0].ID)

		// Touching the first entity moves it to the front by updated_at.
		_, err = s.entities.Update(ctx, first.ID, UpdateEntityInput{Attributes: model.Document{"edited": true}})
		require.NoError(t, err)
		result, err = s.entities.Query(ctx, QueryParams{Type: "post", OrderBy: "updated_at"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, result.Items[0].ID)
	})

	t.Run("query scopes by application owner and status", func(t *testing.T) {
		s := setup(t)

		inputs := []CreateEntityInput{
			{Type: "todo", ApplicationID: strPtr("c1"), OwnerID: strPtr("u1")},
			{Type: "todo", ApplicationID: strPtr("c1"), OwnerID: strPtr("u2"), Status: "draft"},
			{Type: "todo", ApplicationID: strPtr("c2"), OwnerID: strPtr("u1")},
			{Type: "todo"},
		}
		for _, in := range inputs {
			_, err := s.entities.Create(ctx, in)
			require.NoError(t, err)
		}

		cases := []struct {
			name   string
			params QueryParams
			total  int
		}{
			{"type only", QueryParams{Type: "todo"}, 4},
			{"application", QueryParams{Type: "todo", ApplicationID: "c1"}, 2},
			{"owner", QueryParams{Type: "todo", OwnerID: "u1"}, 2},
			{"application and owner", QueryParams{Type: "todo", ApplicationID: "c1", OwnerID: "u1"}, 1},
			{"status", QueryParams{Type: "todo", Status: "draft"}, 1},
			{"other type", QueryParams{Type: "post"}, 0},
		}
		for _, tc := range cases {
			result, err := s.entities.Query(ctx, tc.params)
			require.NoError(t, err, tc.name)
			assert.Equal(t, tc.total, result.Total, tc.name)
			assert.Len(t, result.Items, tc.total, tc.name)
		}
	})

	t.Run("attribute filters compare by text", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{
			Type:       "shopping_item",
			Attributes: model.Document{"category": "dairy", "qty": 2, "bought": false},
		})
		require.NoError(t, err)
		_, err = s.entities.Create(ctx, CreateEntityInput{
			Type:       "shopping_item",
			Attributes: model.Document{"category": "bakery", "qty": 1, "bought": true},
		})
		require.NoError(t, err)

		cases := []struct {
			name    string
			filters map[string]any
			total   int
		}{
			{"string", map[string]any{"category": "dairy"}, 1},
			{"number", map[string]any{"qty": 2}, 1},
			{"number as text", map[string]any{"qty": "1"}, 1},
			{"bool", map[string]any{"bought": true}, 1},
			{"bool as text", map[string]any{"bought": "false"}, 1},
			{"conjunction", map[string]any{"category": "dairy", "bought": true}, 0},
			{"missing key", map[string]any{"aisle": "3"}, 0},
		}
		for _, tc := range cases {
			result, err := s.entities.Query(ctx, QueryParams{Type: "shopping_item", Filters: tc.filters})
			require.NoError(t, err, tc.name)
			assert.Equal(t, tc.total, result.Total, tc.name)
		}
	})

	t.Run("invalid filters are rejected", func(t *testing.T) {
		s := setup(t)

		cases := []QueryParams{
			{},
			{Type: "todo", Filters: map[string]any{"title') OR 1=1 --": "x"}},
			{Type: "todo", Filters: map[string]any{"a.b": "x"}},
			{Type: "todo", OrderBy: "data"},
			{Type: "todo", OrderDir: "sideways"},
		}
		for _, params := range cases {
			_, err := s.entities.Query(ctx, params)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		}
	})

	t.Run("query search is case insensitive and literal", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{Type: "todo", Attributes: model.Document{"title": "Buy Milk"}})
		require.NoError(t, err)
		_, err = s.entities.Create(ctx, CreateEntityInput{Type: "todo", Attributes: model.Document{"title": "100% juice"}})
		require.NoError(t, err)
		_, err = s.entities.Create(ctx, CreateEntityInput{Type: "todo", Attributes: model.Document{"title": "1000 juice"}})
		require.NoError(t, err)

		result, err := s.entities.Query(ctx, QueryParams{Type: "todo", Search: "buy milk"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)

		result, err = s.entities.Query(ctx, QueryParams{Type: "todo", Search: "100%"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)

		result, err = s.entities.Query(ctx, QueryParams{Type: "todo", Search: "JUICE"})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("query search folds non-ascii case", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{Type: "page", Attributes: model.Document{"title": "Élan Café"}})
		require.NoError(t, err)

		for _, term := range []string{"Élan", "élan", "ÉLAN", "CAFÉ", "café"} {
			result, err := s.entities.Query(ctx, QueryParams{Type: "page", Search: term})
			require.NoError(t, err)
			assert.Equal(t, 1, result.Total, "search %q", term)
		}

		found, err := s.entities.Search(ctx, SearchParams{Type: "page", Query: "élan café"})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("page far past the end is empty", func(t *testing.T) {
		s := setup(t)

		_, err := s.entities.Create(ctx, CreateEntityInput{Type: "todo"})
		require.NoError(t, err)

		result, err := s.entities.Query(ctx, QueryParams{Type: "todo", Page: math.MaxInt, Limit: MaxQueryLimit})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
		assert.Empty(t, result.Items)
	})

	t.Run("limit is capped", func(t *testing.T) {
		s := setup(t)

		result, err := s.entities.Query(ctx, QueryParams{Type: "todo", Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, MaxQueryLimit, result.Limit)

		result, err = s.entities.Query(ctx, QueryParams{Type: "todo"})
		require.NoError(t, err)
		assert.Equal(t, DefaultQueryLimit, result.Limit)
		assert.Equal(t, 1, result.Page)
		assert.NotNil(t, result.Items)
	})

	t.Run("search returns recent matches", func(t *testing.T) {
		s := setup(t)

		older, err := s.entities.Create(ctx, CreateEntityInput{Type: "page", ApplicationID: strPtr("c1"), Attributes: model.Document{"title": "Holiday plans"}})
		require.NoError(t, err)
		newer, err := s.entities.Create(ctx, CreateEntityInput{Type: "page", ApplicationID: strPtr("c1"), Attributes: model.Document{"title": "Holiday photos"}})
		require.NoError(t, err)
		_, err = s.entities.Create(ctx, CreateEntityInput{Type: "page", ApplicationID: strPtr("c2"), Attributes: model.Document{"title": "Holiday budget"}})
		require.NoError(t, err)
		gone, err := s.entities.Create(ctx, CreateEntityInput{Type: "page", ApplicationID: strPtr("c1"), Attributes: model.Document{"title": "Holiday old"}})
		require.NoError(t, err)
		_, err = s.entities.Delete(ctx, gone.ID, false)
		require.NoError(t, err)

		found, err := s.entities.Search(ctx, SearchParams{Type: "page", Query: "holiday", ApplicationID: "c1"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, newer.ID, found[0].ID)
		assert.Equal(t, older.ID, found[1].ID)

		found, err = s.entities.Search(ctx, SearchParams{Type: "page", Query: "holiday", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, found, 1)

		found, err = s.entities.Search(ctx, SearchParams{Type: "page", Query: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("count by type skips deleted", func(t *testing.T) {
		s := setup(t)

		for _, typ := range []string{"todo", "todo", "post"} {
			_, err := s.entities.Create(ctx, CreateEntityInput{Type: typ, ApplicationID: strPtr("c1")})
			require.NoError(t, err)
		}
		_, err := s.entities.Create(ctx, CreateEntityInput{Type: "post", ApplicationID: strPtr("c2")})
		require.NoError(t, err)
		d, err := s.entities.Create(ctx, CreateEntityInput{Type: "comment"})
		require.NoError(t, err)
		_, err = s.entities.Delete(ctx, d.ID, false)
		require.NoError(t, err)

		counts, err := s.entities.CountByType(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"todo": 2, "post": 2}, counts)

		counts, err = s.entities.CountByType(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"post": 1}, counts)
	})

	t.Run("todo lifecycle end to end", func(t *testing.T) {
		s := setup(t)

		todo, err := s.entities.Create(ctx, CreateEntityInput{
			Type:       "todo",
			OwnerID:    strPtr("u1"),
			Attributes: model.Document{"title": "Buy milk", "done": false},
		})
		require.NoError(t, err)

		params := QueryParams{Type: "todo", OwnerID: "u1"}
		result, err := s.entities.Query(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
		require.Len(t, result.Items, 1)
		assert.Equal(t, todo.ID, result.Items[0].ID)

		_, err = s.entities.Update(ctx, todo.ID, UpdateEntityInput{Attributes: model.Document{"done": true}})
		require.NoError(t, err)

		got, err := s.entities.ByID(ctx, todo.ID)
		require.NoError(t, err)
		assert.Equal(t, true, got.Attributes["done"])
		assert.Equal(t, "Buy milk", got.Attributes["title"])

		deleted, err := s.entities.Delete(ctx, todo.ID, false)
		require.NoError(t, err)
		assert.True(t, deleted)

		result, err = s.entities.Query(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Total)
		assert.Empty(t, result.Items)
	})
}

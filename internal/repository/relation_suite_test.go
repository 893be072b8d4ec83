package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase/internal/model"
)

// runRelationGraphSuite exercises RelationRepository against any migrated database.
func runRelationGraphSuite(t *testing.T, database *sqlx.DB) {
	ctx := context.Background()

	setup := func(t *testing.T) *testStores {
		resetTables(t, database)
		return newTestStores(database)
	}

	create := func(t *testing.T, s *testStores, id, typ string) *model.Entity {
		t.Helper()
		e, err := s.entities.Create(ctx, CreateEntityInput{ID: id, Type: typ, Attributes: model.Document{"name": id}})
		require.NoError(t, err)
		return e
	}

	t.Run("relations are directed", func(t *testing.T) {
		s := setup(t)

		ok, err := s.relations.Create(ctx, "a", "b", model.RelationTypeLiked, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		has, err := s.relations.Has(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.True(t, has)

		has, err = s.relations.Has(ctx, "b", "a", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.False(t, has)

		has, err = s.relations.Has(ctx, "a", "b", model.RelationTypeMember)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("creating the same triple merges metadata", func(t *testing.T) {
		s := setup(t)

		ok, err := s.relations.Create(ctx, "a", "b", model.RelationTypeLiked, model.Document{"via": "feed", "count": 1})
		require.NoError(t, err)
		assert.True(t, ok)

		first, err := s.relations.Get(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		require.NotNil(t, first)

		ok, err = s.relations.Create(ctx, "a", "b", model.RelationTypeLiked, model.Document{"reaction": "heart", "count": 2})
		require.NoError(t, err)
		assert.True(t, ok)

		rel, err := s.relations.Get(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		require.NotNil(t, rel)
		assert.Equal(t, model.Document{"via": "feed", "reaction": "heart", "count": float64(2)}, rel.Metadata)
		assert.True(t, rel.CreatedAt.Equal(first.CreatedAt))

		var rows int
		require.NoError(t, database.Get(&rows, `SELECT COUNT(*) FROM relations`))
		assert.Equal(t, 1, rows)

		// Empty metadata leaves the stored document alone.
		ok, err = s.relations.Create(ctx, "a", "b", model.RelationTypeLiked, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		rel, err = s.relations.Get(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.Len(t, rel.Metadata, 3)
	})

	t.Run("concurrent creates of one triple keep a single merged edge", func(t *testing.T) {
		s := setup(t)

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.relations.Create(ctx, "a", "b", model.RelationTypeLiked, model.Document{fmt.Sprintf("k%d", i): i})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var rows int
		require.NoError(t, database.Get(&rows, `SELECT COUNT(*) FROM relations`))
		assert.Equal(t, 1, rows)

		rel, err := s.relations.Get(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		require.NotNil(t, rel)
		assert.Len(t, rel.Metadata, writers)
		for i := 0; i < writers; i++ {
			assert.Equal(t, float64(i), rel.Metadata[fmt.Sprintf("k%d", i)])
		}
	})

	t.Run("get returns nil for a missing edge", func(t *testing.T) {
		s := setup(t)

		rel, err := s.relations.Get(ctx, "a", "b", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.Nil(t, rel)
	})

	t.Run("delete reports whether an edge was removed", func(t *testing.T) {
		s := setup(t)

		_, err := s.relations.Create(ctx, "a", "b", model.RelationTypeMember, nil)
		require.NoError(t, err)

		removed, err := s.relations.Delete(ctx, "a", "b", model.RelationTypeMember)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.relations.Delete(ctx, "a", "b", model.RelationTypeMember)
		require.NoError(t, err)
		assert.False(t, removed)

		has, err := s.relations.Has(ctx, "a", "b", model.RelationTypeMember)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("traversal is symmetric", func(t *testing.T) {
		s := setup(t)

		a := create(t, s, "user-a", "profile")
		b := create(t, s, "group-b", "circle")

		_, err := s.relations.Create(ctx, a.ID, b.ID, model.RelationTypeMember, model.Document{"role": "admin"})
		require.NoError(t, err)

		out, err := s.relations.Outgoing(ctx, a.ID, model.RelationTypeMember, "")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, b.ID, out[0].ID)
		assert.Equal(t, "circle", out[0].Type)

		in, err := s.relations.Incoming(ctx, b.ID, model.RelationTypeMember)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, a.ID, in[0].ID)
		assert.Equal(t, "group-b", out[0].Attributes["name"])
		assert.Equal(t, model.Document{"role": "admin"}, in[0].RelationMetadata)
		assert.False(t, in[0].RelationCreatedAt.IsZero())
	})

	t.Run("outgoing is newest first and incoming oldest first", func(t *testing.T) {
		s := setup(t)

		group := create(t, s, "group", "circle")
		members := []*model.Entity{
			create(t, s, "m1", "profile"),
			create(t, s, "m2", "profile"),
			create(t, s, "m3", "profile"),
		}
		for _, m := range members {
			_, err := s.relations.Create(ctx, m.ID, group.ID, model.RelationTypeMember, model.Document{"joined": m.ID})
			require.NoError(t, err)
		}

		in, err := s.relations.Incoming(ctx, group.ID, model.RelationTypeMember)
		require.NoError(t, err)
		require.Len(t, in, 3)
		assert.Equal(t, []string{"m1", "m2", "m3"}, []string{in[0].ID, in[1].ID, in[2].ID})
		assert.True(t, in[0].RelationCreatedAt.Before(in[1].RelationCreatedAt))

		user := create(t, s, "u", "profile")
		files := []*model.Entity{
			create(t, s, "f1", "file"),
			create(t, s, "f2", "file"),
			create(t, s, "f3", "file"),
		}
		for _, f := range files {
			_, err := s.relations.Create(ctx, user.ID, f.ID, model.RelationTypeFavorited, nil)
			require.NoError(t, err)
		}

		out, err := s.relations.Outgoing(ctx, user.ID, model.RelationTypeFavorited, "")
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []string{"f3", "f2", "f1"}, []string{out[0].ID, out[1].ID, out[2].ID})
	})

	t.Run("outgoing filters by target type", func(t *testing.T) {
		s := setup(t)

		user := create(t, s, "u", "profile")
		file := create(t, s, "f", "file")
		post := create(t, s, "p", "post")

		_, err := s.relations.Create(ctx, user.ID, file.ID, model.RelationTypeFavorited, nil)
		require.NoError(t, err)
		_, err = s.relations.Create(ctx, user.ID, post.ID, model.RelationTypeFavorited, nil)
		require.NoError(t, err)

		out, err := s.relations.Outgoing(ctx, user.ID, model.RelationTypeFavorited, "file")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, file.ID, out[0].ID)

		out, err = s.relations.Outgoing(ctx, user.ID, model.RelationTypeFavorited, "")
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("dangling and deleted endpoints are skipped without cascade", func(t *testing.T) {
		s := setup(t)

		user := create(t, s, "u", "profile")
		post := create(t, s, "p", "post")

		_, err := s.relations.Create(ctx, user.ID, "does-not-exist", model.RelationTypeLiked, nil)
		require.NoError(t, err)
		_, err = s.relations.Create(ctx, user.ID, post.ID, model.RelationTypeLiked, nil)
		require.NoError(t, err)

		out, err := s.relations.Outgoing(ctx, user.ID, model.RelationTypeLiked, "")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, post.ID, out[0].ID)

		_, err = s.entities.Delete(ctx, post.ID, false)
		require.NoError(t, err)

		out, err = s.relations.Outgoing(ctx, user.ID, model.RelationTypeLiked, "")
		require.NoError(t, err)
		assert.Empty(t, out)

		has, err := s.relations.Has(ctx, user.ID, post.ID, model.RelationTypeLiked)
		require.NoError(t, err)
		assert.True(t, has, "entity deletion must not remove edges")

		_, err = s.entities.Delete(ctx, user.ID, true)
		require.NoError(t, err)
		in, err := s.relations.Incoming(ctx, "does-not-exist", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.Empty(t, in)

		count, err := s.relations.CountIncoming(ctx, "does-not-exist", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("count incoming counts edges per type", func(t *testing.T) {
		s := setup(t)

		for _, src := range []string{"u1", "u2", "u3"} {
			_, err := s.relations.Create(ctx, src, "post", model.RelationTypeLiked, nil)
			require.NoError(t, err)
		}
		_, err := s.relations.Create(ctx, "u1", "post", model.RelationTypeFavorited, nil)
		require.NoError(t, err)

		count, err := s.relations.CountIncoming(ctx, "post", model.RelationTypeLiked)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		count, err = s.relations.CountIncoming(ctx, "post", model.RelationTypeMember)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

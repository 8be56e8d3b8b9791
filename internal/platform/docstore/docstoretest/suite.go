// Package docstoretest holds behaviour shared by every docstore backend.
package docstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttrpg-tracker/internal/platform/docstore"
)

// Factory builds a fresh empty store whose clock is read from now.
type Factory func(t *testing.T, now func() time.Time) docstore.Store

type steppingClock struct {
	t time.Time
}

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func Run(t *testing.T, newStore Factory) {
	t.Run("list orders by creation", func(t *testing.T) {
		clock := &steppingClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		s := newStore(t, clock.now)
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())

		for _, name := range []string{"a", "b", "c"} {
			_, err := s.Add(ctx, col, map[string]any{"name": name})
			require.NoError(t, err)
		}
		docs, err := s.List(ctx, col)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		for i := 1; i < len(docs); i++ {
			assert.False(t, docs[i].CreatedAt.Before(docs[i-1].CreatedAt))
		}
		var first struct{ Name string }
		require.NoError(t, docs[0].Decode(&first))
		assert.Equal(t, "a", first.Name)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := newStore(t, func() time.Time { return fixed })
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())

		var ids []uuid.UUID
		for i := 0; i < 4; i++ {
			d, err := s.Add(ctx, col, map[string]any{"n": i})
			require.NoError(t, err)
			ids = append(ids, d.ID)
		}
		docs, err := s.List(ctx, col)
		require.NoError(t, err)
		got := make([]uuid.UUID, 0, len(docs))
		for _, d := range docs {
			got = append(got, d.ID)
		}
		assert.Equal(t, ids, got)
	})

	t.Run("empty collection", func(t *testing.T) {
		s := newStore(t, time.Now)
		docs, err := s.List(context.Background(), docstore.CharactersPath(uuid.New()))
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		uid := uuid.New()
		_, err := s.Add(ctx, docstore.CharactersPath(uid), map[string]any{"name": "x"})
		require.NoError(t, err)

		n, err := s.Count(ctx, docstore.CharactersPath(uuid.New()))
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = s.Count(ctx, docstore.CharactersPath(uid))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("update merges and stamps", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())
		d, err := s.Add(ctx, col, map[string]any{"name": "old", "image_url": "/a.png"})
		require.NoError(t, err)
		assert.Nil(t, d.UpdatedAt)

		updated, err := s.Update(ctx, col, d.ID, map[string]any{"name": "new"})
		require.NoError(t, err)
		require.NotNil(t, updated.UpdatedAt)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(updated.Data, &fields))
		assert.Equal(t, "new", fields["name"])
		assert.Equal(t, "/a.png", fields["image_url"])

		got, err := s.Get(ctx, col, d.ID)
		require.NoError(t, err)
		assert.JSONEq(t, string(updated.Data), string(got.Data))
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t, time.Now)
		_, err := s.Update(context.Background(), docstore.CharactersPath(uuid.New()), uuid.New(), map[string]any{"name": "x"})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())
		d, err := s.Add(ctx, col, map[string]any{"name": "x"})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, col, d.ID))
		require.NoError(t, s.Delete(ctx, col, d.ID))
		require.NoError(t, s.Delete(ctx, col, uuid.New()))

		_, err = s.Get(ctx, col, d.ID)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("delete all only touches one collection", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		uid, cid := uuid.New(), uuid.New()
		items := docstore.InventoryPath(uid, cid)
		chars := docstore.CharactersPath(uid)
		_, err := s.Add(ctx, items, map[string]any{"item_name": "Sword"})
		require.NoError(t, err)
		_, err = s.Add(ctx, chars, map[string]any{"name": "Thorin"})
		require.NoError(t, err)

		require.NoError(t, s.DeleteAll(ctx, items))
		n, err := s.Count(ctx, items)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = s.Count(ctx, chars)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("add if below stops at max", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())
		for i := 0; i < 2; i++ {
			_, err := s.AddIfBelow(ctx, col, 2, map[string]any{"n": i})
			require.NoError(t, err)
		}
		_, err := s.AddIfBelow(ctx, col, 2, map[string]any{"n": 2})
		assert.ErrorIs(t, err, docstore.ErrLimitReached)

		_, err = s.AddIfBelow(ctx, docstore.CharactersPath(uuid.New()), 2, map[string]any{"n": 0})
		assert.NoError(t, err)
	})

	t.Run("concurrent add if below never overshoots", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		col := docstore.CharactersPath(uuid.New())
		const max, writers = 3, 12

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.AddIfBelow(ctx, col, max, map[string]any{"n": i})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		var ok, limited int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, docstore.ErrLimitReached):
				limited++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, max, ok)
		assert.Equal(t, writers-max, limited)
		n, err := s.Count(ctx, col)
		require.NoError(t, err)
		assert.Equal(t, max, n)
	})
}

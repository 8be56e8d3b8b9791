package character

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/platform/cache"
	"ttrpg-tracker/internal/platform/docstore"
)

// countingStore records calls made to the wrapped store and can be told to fail.
// With staleCount set, Count reports an empty collection, as a replica that has
// not seen other writers would.
type countingStore struct {
	docstore.Store
	mu         sync.Mutex
	calls      map[string]int
	fail       error
	staleCount bool
}

func newCountingStore(now func() time.Time) *countingStore {
	return &countingStore{Store: docstore.NewMemory(now), calls: map[string]int{}}
}

func (s *countingStore) hit(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.fail
}

func (s *countingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *countingStore) List(ctx context.Context, col docstore.Path) ([]docstore.Document, error) {
	if err := s.hit("list"); err != nil {
		return nil, err
	}
	return s.Store.List(ctx, col)
}

func (s *countingStore) Count(ctx context.Context, col docstore.Path) (int, error) {
	if err := s.hit("count"); err != nil {
		return 0, err
	}
	if s.staleCount {
		return 0, nil
	}
	return s.Store.Count(ctx, col)
}

func (s *countingStore) Add(ctx context.Context, col docstore.Path, data any) (docstore.Document, error) {
	if err := s.hit("add"); err != nil {
		return docstore.Document{}, err
	}
	return s.Store.Add(ctx, col, data)
}

func (s *countingStore) AddIfBelow(ctx context.Context, col docstore.Path, max int, data any) (docstore.Document, error) {
	if err := s.hit("add"); err != nil {
		return docstore.Document{}, err
	}
	return s.Store.AddIfBelow(ctx, col, max, data)
}

func (s *countingStore) Delete(ctx context.Context, col docstore.Path, id uuid.UUID) error {
	if err := s.hit("delete"); err != nil {
		return err
	}
	return s.Store.Delete(ctx, col, id)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *countingStore) {
	t.Helper()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	docs := newCountingStore(now)
	store, err := cache.NewMemoryStore(32, nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	svc := NewService(docs, query.New(store, query.DefaultTTL, zerolog.Nop()), nil, zerolog.Nop(), opts...)
	return svc, docs
}

func TestCreateFirstCharacterUsesDefaultImage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()

	c, err := svc.Create(ctx, uid, "Thorin", "")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if c.Name != "Thorin" || c.ImageURL != character.DefaultImageURL {
		t.Fatalf("unexpected character %+v", c)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		t.Fatalf("expected store-assigned id and timestamp, got %+v", c)
	}

	chars, err := svc.List(ctx, uid)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(chars) != 1 || chars[0].ID != c.ID {
		t.Fatalf("expected exactly the new character, got %+v", chars)
	}
}

func TestCreateBlankImageVariants(t *testing.T) {
	svc, _ := newTestService(t)
	uid := uuid.New()
	for _, img := range []string{"", "   ", "\t"} {
		c, err := svc.Create(context.Background(), uid, "Aria", img)
		if err != nil {
			t.Fatalf("Create err: %v", err)
		}
		if c.ImageURL != character.DefaultImageURL {
			t.Fatalf("image %q: got %q", img, c.ImageURL)
		}
	}
	c, err := svc.Create(context.Background(), uid, "Bryn", " /img/bryn.png ")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if c.ImageURL != "/img/bryn.png" {
		t.Fatalf("expected trimmed custom image, got %q", c.ImageURL)
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, docs := newTestService(t)
	_, err := svc.Create(context.Background(), uuid.New(), "   ", "")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if docs.count("add") != 0 || docs.count("count") != 0 {
		t.Fatal("validation failure must not reach the store")
	}
}

func TestCreateEnforcesLimit(t *testing.T) {
	svc, docs := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	for i := 0; i < character.MaxPerUser; i++ {
		if _, err := svc.Create(ctx, uid, "Hero", ""); err != nil {
			t.Fatalf("Create %d err: %v", i, err)
		}
	}
	adds := docs.count("add")

	_, err := svc.Create(ctx, uid, "One too many", "")
	if !errors.Is(err, apperr.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if docs.count("add") != adds {
		t.Fatal("limit rejection must not issue a remote create")
	}

	other, err := svc.Create(ctx, uuid.New(), "Someone else", "")
	if err != nil || other.Name != "Someone else" {
		t.Fatalf("limit is per user, got %v", err)
	}
}

func seedCharacters(t *testing.T, docs *countingStore, uid uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := docs.Store.Add(context.Background(), docstore.CharactersPath(uid), map[string]any{"name": "Seed"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestConcurrentCreatesStopAtLimit(t *testing.T) {
	svc, docs := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	seedCharacters(t, docs, uid, character.MaxPerUser-1)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, uid, "Racer", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, apperr.ErrLimitExceeded):
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one create to succeed, got %d", created)
	}
	n, err := docs.Store.Count(ctx, docstore.CharactersPath(uid))
	if err != nil {
		t.Fatalf("Count err: %v", err)
	}
	if n != character.MaxPerUser {
		t.Fatalf("expected %d characters, found %d", character.MaxPerUser, n)
	}
}

func TestCreateLimitHoldsWithStaleCount(t *testing.T) {
	svc, docs := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	seedCharacters(t, docs, uid, character.MaxPerUser)
	docs.staleCount = true

	_, err := svc.Create(ctx, uid, "Sneaky", "")
	if !errors.Is(err, apperr.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	n, err := docs.Store.Count(ctx, docstore.CharactersPath(uid))
	if err != nil {
		t.Fatalf("Count err: %v", err)
	}
	if n != character.MaxPerUser {
		t.Fatalf("store grew past the limit: %d", n)
	}
}

func TestListIsSortedByCreation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	names := []string{"Zed", "Amy", "Mo", "Bea"}
	for _, n := range names {
		if _, err := svc.Create(ctx, uid, n, ""); err != nil {
			t.Fatalf("Create err: %v", err)
		}
	}
	chars, err := svc.List(ctx, uid)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	for i := range chars {
		if chars[i].Name != names[i] {
			t.Fatalf("position %d: got %s want %s", i, chars[i].Name, names[i])
		}
		if i > 0 && chars[i].CreatedAt.Before(chars[i-1].CreatedAt) {
			t.Fatalf("list not sorted at %d", i)
		}
	}
}

func TestListIsCachedUntilMutation(t *testing.T) {
	svc, docs := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := svc.List(ctx, uid); err != nil {
			t.Fatalf("List err: %v", err)
		}
	}
	if docs.count("list") != 1 {
		t.Fatalf("expected 1 store read, got %d", docs.count("list"))
	}
	if _, err := svc.Create(ctx, uid, "Thorin", ""); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	chars, err := svc.List(ctx, uid)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if docs.count("list") != 2 || len(chars) != 1 {
		t.Fatalf("expected refetch after create, reads=%d chars=%d", docs.count("list"), len(chars))
	}
}

func TestDeleteThenListExcludesCharacter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	keep, _ := svc.Create(ctx, uid, "Keep", "")
	drop, _ := svc.Create(ctx, uid, "Drop", "")
	if _, err := svc.List(ctx, uid); err != nil {
		t.Fatalf("List err: %v", err)
	}

	if err := svc.Delete(ctx, uid, drop.ID); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	chars, err := svc.List(ctx, uid)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(chars) != 1 || chars[0].ID != keep.ID {
		t.Fatalf("deleted character still listed: %+v", chars)
	}

	if err := svc.Delete(ctx, uid, uuid.New()); err != nil {
		t.Fatalf("deleting an absent id should succeed, got %v", err)
	}
	if err := svc.Delete(ctx, uid, drop.ID); err != nil {
		t.Fatalf("deleting twice should succeed, got %v", err)
	}
}

func TestDeleteLeavesItemsUnlessCascading(t *testing.T) {
	ctx := context.Background()
	for _, cascade := range []bool{false, true} {
		svc, docs := newTestService(t, WithCascadeDelete(cascade))
		uid := uuid.New()
		c, _ := svc.Create(ctx, uid, "Thorin", "")
		items := docstore.InventoryPath(uid, c.ID)
		if _, err := docs.Add(ctx, items, map[string]any{"item_name": "Sword"}); err != nil {
			t.Fatalf("seed item: %v", err)
		}
		if err := svc.Delete(ctx, uid, c.ID); err != nil {
			t.Fatalf("Delete err: %v", err)
		}
		n, err := docs.Count(ctx, items)
		if err != nil {
			t.Fatalf("Count err: %v", err)
		}
		if cascade && n != 0 {
			t.Fatalf("cascade delete left %d items", n)
		}
		if !cascade && n != 1 {
			t.Fatalf("default delete should orphan items, found %d", n)
		}
	}
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	c, _ := svc.Create(ctx, uid, "Thorin", "/img/thorin.png")
	if _, err := svc.List(ctx, uid); err != nil {
		t.Fatalf("List err: %v", err)
	}

	name := "Thorin Oakenshield"
	updated, err := svc.Update(ctx, uid, c.ID, character.Patch{Name: &name})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}
	if updated.Name != name || updated.ImageURL != "/img/thorin.png" || updated.UpdatedAt == nil {
		t.Fatalf("unexpected update result %+v", updated)
	}

	blank := ""
	updated, err = svc.Update(ctx, uid, c.ID, character.Patch{ImageURL: &blank})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}
	if updated.ImageURL != character.DefaultImageURL {
		t.Fatalf("blank image should reset to default, got %q", updated.ImageURL)
	}

	got, err := svc.Get(ctx, uid, c.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Name != name {
		t.Fatalf("cached list not invalidated after update: %+v", got)
	}

	if _, err := svc.Update(ctx, uid, c.ID, character.Patch{Name: &blank}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}
	if _, err := svc.Update(ctx, uid, c.ID, character.Patch{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}
	if _, err := svc.Update(ctx, uid, uuid.New(), character.Patch{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), c.ID, character.Patch{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's character, got %v", err)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	svc, docs := newTestService(t)
	docs.fail = errors.New("connection reset")
	ctx := context.Background()
	uid := uuid.New()

	if _, err := svc.List(ctx, uid); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("List: expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.Create(ctx, uid, "Thorin", ""); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("Create: expected ErrUnavailable, got %v", err)
	}
	if err := svc.Delete(ctx, uid, uuid.New()); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("Delete: expected ErrUnavailable, got %v", err)
	}

	docs.fail = nil
	if _, err := svc.List(ctx, uid); err != nil {
		t.Fatalf("retrying the identical call should succeed, got %v", err)
	}
}

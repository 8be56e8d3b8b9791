package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/domain/character"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeCharacters keeps characters in memory. When gate is set, Create blocks on it.
type fakeCharacters struct {
	mu      sync.Mutex
	chars   []character.Character
	creates int
	lists   int
	fail    error
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeCharacters) List(context.Context, uuid.UUID) ([]character.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.fail != nil {
		return nil, f.fail
	}
	return append([]character.Character(nil), f.chars...), nil
}

func (f *fakeCharacters) Create(_ context.Context, userID uuid.UUID, name, imageURL string) (character.Character, error) {
	f.mu.Lock()
	f.creates++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return character.Character{}, f.fail
	}
	c := character.Character{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		ImageURL:  character.ImageOrDefault(imageURL),
		CreatedAt: time.Unix(int64(len(f.chars)), 0),
	}
	f.chars = append(f.chars, c)
	return c, nil
}

func (f *fakeCharacters) Update(_ context.Context, _, characterID uuid.UUID, patch character.Patch) (character.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return character.Character{}, f.fail
	}
	for i := range f.chars {
		if f.chars[i].ID == characterID {
			if patch.Name != nil {
				f.chars[i].Name = *patch.Name
			}
			if patch.ImageURL != nil {
				f.chars[i].ImageURL = character.ImageOrDefault(*patch.ImageURL)
			}
			return f.chars[i], nil
		}
	}
	return character.Character{}, apperr.ErrNotFound
}

func (f *fakeCharacters) Delete(_ context.Context, _, characterID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	kept := f.chars[:0]
	for _, c := range f.chars {
		if c.ID != characterID {
			kept = append(kept, c)
		}
	}
	f.chars = kept
	return nil
}

func (f *fakeCharacters) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func TestCharacterBoardCreateReloads(t *testing.T) {
	fake := &fakeCharacters{}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx))
	require.NoError(t, b.OpenCreate())
	assert.Equal(t, ModalCreate, b.Modal())

	c, err := b.Create(ctx, "Thorin", "")
	require.NoError(t, err)
	assert.Equal(t, character.DefaultImageURL, c.ImageURL)
	assert.Equal(t, ModalNone, b.Modal())

	chars := b.Characters()
	require.Len(t, chars, 1)
	assert.Equal(t, "Thorin", chars[0].Name)
	assert.Equal(t, 2, fake.lists, "create must be followed by a refetch")
}

func TestCharacterBoardBlankNameStaysLocal(t *testing.T) {
	fake := &fakeCharacters{}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)

	_, err := b.Create(context.Background(), "   ", "")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, 0, fake.createCalls())
}

func TestCharacterBoardLimit(t *testing.T) {
	fake := &fakeCharacters{}
	for i := 0; i < character.MaxPerUser; i++ {
		fake.chars = append(fake.chars, character.Character{ID: uuid.New(), Name: "npc"})
	}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx))

	assert.False(t, b.CanCreate())
	require.ErrorIs(t, b.OpenCreate(), apperr.ErrLimitExceeded)
	assert.Equal(t, ModalNone, b.Modal())

	_, err := b.Create(ctx, "Tenth", "")
	require.ErrorIs(t, err, apperr.ErrLimitExceeded)
	assert.Equal(t, 0, fake.createCalls())

	n, ok := b.Notice()
	require.True(t, ok)
	assert.Equal(t, "You can only have a maximum of 9 characters.", n.Message)
}

func TestCharacterBoardSingleCreateInFlight(t *testing.T) {
	fake := &fakeCharacters{entered: make(chan struct{}), gate: make(chan struct{})}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := b.Create(ctx, "Thorin", "")
		done <- err
	}()
	<-fake.entered

	_, err := b.Create(ctx, "Thorin", "")
	require.ErrorIs(t, err, ErrCreateInFlight)

	close(fake.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fake.createCalls())
	assert.Len(t, b.Characters(), 1)
}

func TestCharacterBoardGuardClearsOnFailure(t *testing.T) {
	fake := &fakeCharacters{fail: errors.New("boom")}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()

	_, err := b.Create(ctx, "Thorin", "")
	require.Error(t, err)
	assert.Empty(t, b.Characters())

	fake.mu.Lock()
	fake.fail = nil
	fake.mu.Unlock()
	_, err = b.Create(ctx, "Thorin", "")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.createCalls())
}

func TestCharacterBoardDeleteTarget(t *testing.T) {
	fake := &fakeCharacters{}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()

	require.NoError(t, b.ConfirmDelete(ctx), "confirm without a target is a no-op")

	first, err := b.Create(ctx, "Thorin", "")
	require.NoError(t, err)
	second, err := b.Create(ctx, "Balin", "")
	require.NoError(t, err)

	b.SelectDelete(first)
	b.SelectDelete(second)
	target, ok := b.DeleteTarget()
	require.True(t, ok)
	assert.Equal(t, second.ID, target.ID)
	assert.Equal(t, ModalConfirmDelete, b.Modal())

	require.NoError(t, b.ConfirmDelete(ctx))
	chars := b.Characters()
	require.Len(t, chars, 1)
	assert.Equal(t, first.ID, chars[0].ID)
	_, ok = b.DeleteTarget()
	assert.False(t, ok)

	b.SelectDelete(first)
	b.CancelDelete()
	require.NoError(t, b.ConfirmDelete(ctx))
	assert.Len(t, b.Characters(), 1)
}

func TestCharacterBoardEdit(t *testing.T) {
	fake := &fakeCharacters{}
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), nil)
	ctx := context.Background()

	_, err := b.Edit(ctx, "Nobody", "")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	c, err := b.Create(ctx, "Thorin", "/images/thorin.png")
	require.NoError(t, err)
	b.OpenEdit(c)
	assert.Equal(t, ModalEdit, b.Modal())

	_, err = b.Edit(ctx, "", "")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	updated, err := b.Edit(ctx, "Thorin Oakenshield", "")
	require.NoError(t, err)
	assert.Equal(t, "Thorin Oakenshield", updated.Name)
	assert.Equal(t, character.DefaultImageURL, updated.ImageURL)
	assert.Equal(t, "Thorin Oakenshield", b.Characters()[0].Name)
	assert.Equal(t, ModalNone, b.Modal())
}

func TestCharacterBoardFailedDeleteKeepsList(t *testing.T) {
	fake := &fakeCharacters{}
	now := time.Unix(1000, 0)
	b := NewCharacterBoard(fake, uuid.New(), zerolog.Nop(), func() time.Time { return now })
	ctx := context.Background()
	c, err := b.Create(ctx, "Thorin", "")
	require.NoError(t, err)

	fake.mu.Lock()
	fake.fail = apperr.Unavailable("delete character", errors.New("timeout"))
	fake.mu.Unlock()
	b.SelectDelete(c)
	require.Error(t, b.ConfirmDelete(ctx))
	assert.Len(t, b.Characters(), 1)

	n, ok := b.Notice()
	require.True(t, ok)
	assert.Equal(t, "Something went wrong. Please try again.", n.Message)

	now = now.Add(NoticeVisibleFor + NoticeFadeFor)
	_, ok = b.Notice()
	assert.False(t, ok)
}

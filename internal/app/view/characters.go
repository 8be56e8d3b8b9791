package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/domain/character"
)

var ErrCreateInFlight = errors.New("create already in progress")

type Modal int

const (
	ModalNone Modal = iota
	ModalCreate
	ModalEdit
	ModalConfirmDelete
)

// CharacterSyncer is satisfied by the character service and the API client.
type CharacterSyncer interface {
	List(ctx context.Context, userID uuid.UUID) ([]character.Character, error)
	Create(ctx context.Context, userID uuid.UUID, name, imageURL string) (character.Character, error)
	Update(ctx context.Context, userID, characterID uuid.UUID, patch character.Patch) (character.Character, error)
	Delete(ctx context.Context, userID, characterID uuid.UUID) error
}

// CharacterBoard is the character list a user works with. After every
// successful mutation it reloads from the syncer instead of patching locally.
type CharacterBoard struct {
	sync   CharacterSyncer
	userID uuid.UUID
	logger zerolog.Logger

	mu           sync.Mutex
	characters   []character.Character
	modal        Modal
	editing      *character.Character
	deleteTarget *character.Character
	creating     bool
	notices      notices
}

func NewCharacterBoard(s CharacterSyncer, userID uuid.UUID, logger zerolog.Logger, now func() time.Time) *CharacterBoard {
	if now == nil {
		now = time.Now
	}
	return &CharacterBoard{
		sync:       s,
		userID:     userID,
		logger:     logger.With().Str("user_id", userID.String()).Logger(),
		characters: []character.Character{},
		notices:    notices{now: now},
	}
}

func (b *CharacterBoard) Load(ctx context.Context) error {
	chars, err := b.sync.List(ctx, b.userID)
	if err != nil {
		b.fail("load characters", err)
		return err
	}
	b.mu.Lock()
	b.characters = chars
	b.mu.Unlock()
	return nil
}

func (b *CharacterBoard) Characters() []character.Character {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]character.Character, len(b.characters))
	copy(out, b.characters)
	return out
}

func (b *CharacterBoard) CanCreate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.characters) < character.MaxPerUser
}

func (b *CharacterBoard) Modal() Modal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modal
}

// OpenCreate shows the create form, or a limit alert when the board is full.
func (b *CharacterBoard) OpenCreate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.characters) >= character.MaxPerUser {
		err := apperr.ErrLimitExceeded
		b.notices.show(err)
		return err
	}
	b.modal = ModalCreate
	return nil
}

func (b *CharacterBoard) OpenEdit(c character.Character) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.editing = &c
	b.modal = ModalEdit
}

func (b *CharacterBoard) CloseModal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modal = ModalNone
	b.editing = nil
}

func (b *CharacterBoard) Create(ctx context.Context, name, imageURL string) (character.Character, error) {
	if strings.TrimSpace(name) == "" {
		return character.Character{}, apperr.Invalid("name is required")
	}

	b.mu.Lock()
	if len(b.characters) >= character.MaxPerUser {
		b.notices.show(apperr.ErrLimitExceeded)
		b.mu.Unlock()
		return character.Character{}, apperr.ErrLimitExceeded
	}
	if b.creating {
		b.mu.Unlock()
		return character.Character{}, ErrCreateInFlight
	}
	b.creating = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.creating = false
		b.mu.Unlock()
	}()

	created, err := b.sync.Create(ctx, b.userID, name, imageURL)
	if err != nil {
		b.fail("create character", err)
		return character.Character{}, err
	}
	b.CloseModal()
	if err := b.Load(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("refresh after create failed")
	}
	return created, nil
}

// Edit saves the character opened with OpenEdit.
func (b *CharacterBoard) Edit(ctx context.Context, name, imageURL string) (character.Character, error) {
	b.mu.Lock()
	target := b.editing
	b.mu.Unlock()
	if target == nil {
		return character.Character{}, apperr.Invalid("no character selected")
	}
	if strings.TrimSpace(name) == "" {
		return character.Character{}, apperr.Invalid("name is required")
	}

	updated, err := b.sync.Update(ctx, b.userID, target.ID, character.Patch{Name: &name, ImageURL: &imageURL})
	if err != nil {
		b.fail("update character", err)
		return character.Character{}, err
	}
	b.CloseModal()
	if err := b.Load(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("refresh after update failed")
	}
	return updated, nil
}

// SelectDelete replaces any pending delete target.
func (b *CharacterBoard) SelectDelete(c character.Character) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteTarget = &c
	b.modal = ModalConfirmDelete
}

func (b *CharacterBoard) CancelDelete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteTarget = nil
	b.modal = ModalNone
}

func (b *CharacterBoard) DeleteTarget() (character.Character, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteTarget == nil {
		return character.Character{}, false
	}
	return *b.deleteTarget, true
}

// ConfirmDelete deletes the pending target. Without one it does nothing.
func (b *CharacterBoard) ConfirmDelete(ctx context.Context) error {
	b.mu.Lock()
	target := b.deleteTarget
	b.mu.Unlock()
	if target == nil {
		return nil
	}

	if err := b.sync.Delete(ctx, b.userID, target.ID); err != nil {
		b.fail("delete character", err)
		return err
	}
	b.CancelDelete()
	if err := b.Load(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("refresh after delete failed")
	}
	return nil
}

func (b *CharacterBoard) Notice() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notices.get()
}

func (b *CharacterBoard) fail(op string, err error) {
	b.logger.Error().Err(err).Str("op", op).Msg("character board")
	b.mu.Lock()
	b.notices.show(err)
	b.mu.Unlock()
}

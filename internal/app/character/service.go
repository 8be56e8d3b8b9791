package character

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/platform/docstore"
	"ttrpg-tracker/internal/platform/mq"
)

// Characters are reconciled by invalidation: every successful mutation drops the
// cached list for the user and the next List reads the store again.
type Service struct {
	docs    docstore.Store
	cache   *query.Cache
	pub     mq.Publisher
	logger  zerolog.Logger
	cascade bool

	// creating serializes Create per user.
	creating *xsync.MapOf[string, *sync.Mutex]
}

type Option func(*Service)

// WithCascadeDelete makes Delete also remove the character's inventory collection.
// Without it, deleting a character leaves its items orphaned in the store.
func WithCascadeDelete(on bool) Option {
	return func(s *Service) { s.cascade = on }
}

func NewService(docs docstore.Store, cache *query.Cache, pub mq.Publisher, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{docs: docs, cache: cache, pub: pub, logger: logger, creating: xsync.NewMapOf[*sync.Mutex]()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type characterDoc struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

func toCharacter(userID uuid.UUID, d docstore.Document) (character.Character, error) {
	var body characterDoc
	if err := d.Decode(&body); err != nil {
		return character.Character{}, fmt.Errorf("decode character %s: %w", d.ID, err)
	}
	return character.Character{
		ID:        d.ID,
		UserID:    userID,
		Name:      body.Name,
		ImageURL:  character.ImageOrDefault(body.ImageURL),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]character.Character, error) {
	return query.Fetch(ctx, s.cache, query.CharactersKey(userID), func(ctx context.Context) ([]character.Character, error) {
		docs, err := s.docs.List(ctx, docstore.CharactersPath(userID))
		if err != nil {
			return nil, apperr.Unavailable("list characters", err)
		}
		chars := make([]character.Character, 0, len(docs))
		for _, d := range docs {
			c, err := toCharacter(userID, d)
			if err != nil {
				return nil, apperr.Unavailable("list characters", err)
			}
			chars = append(chars, c)
		}
		return chars, nil
	})
}

func (s *Service) Get(ctx context.Context, userID, characterID uuid.UUID) (character.Character, error) {
	chars, err := s.List(ctx, userID)
	if err != nil {
		return character.Character{}, err
	}
	for _, c := range chars {
		if c.ID == characterID {
			return c, nil
		}
	}
	return character.Character{}, fmt.Errorf("character %s: %w", characterID, apperr.ErrNotFound)
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, name, imageURL string) (character.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return character.Character{}, apperr.Invalid("character name is required")
	}
	mu, _ := s.creating.LoadOrStore(userID.String(), &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	path := docstore.CharactersPath(userID)
	n, err := s.docs.Count(ctx, path)
	if err != nil {
		return character.Character{}, apperr.Unavailable("count characters", err)
	}
	if n >= character.MaxPerUser {
		return character.Character{}, errLimit()
	}

	// Other server instances share the store but not this lock.
	d, err := s.docs.AddIfBelow(ctx, path, character.MaxPerUser, characterDoc{Name: name, ImageURL: character.ImageOrDefault(imageURL)})
	if err != nil {
		if errors.Is(err, docstore.ErrLimitReached) {
			return character.Character{}, errLimit()
		}
		return character.Character{}, apperr.Unavailable("insert character", err)
	}
	s.cache.Invalidate(ctx, query.CharactersKey(userID))
	c, err := toCharacter(userID, d)
	if err != nil {
		return character.Character{}, apperr.Unavailable("insert character", err)
	}
	s.publish(ctx, mq.Event{Type: mq.CharacterCreated, UserID: userID, CharacterID: c.ID})
	return c, nil
}

func errLimit() error {
	return fmt.Errorf("%w: you can only have a maximum of %d characters", apperr.ErrLimitExceeded, character.MaxPerUser)
}

func (s *Service) Update(ctx context.Context, userID, characterID uuid.UUID, patch character.Patch) (character.Character, error) {
	if patch.Empty() {
		return character.Character{}, apperr.Invalid("nothing to update")
	}
	fields := make(map[string]any, 2)
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return character.Character{}, apperr.Invalid("character name is required")
		}
		fields["name"] = name
	}
	if patch.ImageURL != nil {
		fields["image_url"] = character.ImageOrDefault(*patch.ImageURL)
	}

	d, err := s.docs.Update(ctx, docstore.CharactersPath(userID), characterID, fields)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return character.Character{}, fmt.Errorf("character %s: %w", characterID, apperr.ErrNotFound)
		}
		return character.Character{}, apperr.Unavailable("update character", err)
	}
	s.cache.Invalidate(ctx, query.CharactersKey(userID))
	c, err := toCharacter(userID, d)
	if err != nil {
		return character.Character{}, apperr.Unavailable("update character", err)
	}
	s.publish(ctx, mq.Event{Type: mq.CharacterUpdated, UserID: userID, CharacterID: characterID})
	return c, nil
}

func (s *Service) Delete(ctx context.Context, userID, characterID uuid.UUID) error {
	if err := s.docs.Delete(ctx, docstore.CharactersPath(userID), characterID); err != nil {
		return apperr.Unavailable("delete character", err)
	}
	s.cache.Invalidate(ctx, query.CharactersKey(userID))
	if s.cascade {
		if err := s.docs.DeleteAll(ctx, docstore.InventoryPath(userID, characterID)); err != nil {
			return apperr.Unavailable("delete inventory", err)
		}
		s.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	}
	s.publish(ctx, mq.Event{Type: mq.CharacterDeleted, UserID: userID, CharacterID: characterID})
	return nil
}

func (s *Service) publish(ctx context.Context, evt mq.Event) {
	evt.At = time.Now().UTC()
	if err := mq.PublishEvent(ctx, s.pub, evt); err != nil {
		s.logger.Warn().Err(err).Str("subject", evt.Type).Msg("publish event failed")
	}
}

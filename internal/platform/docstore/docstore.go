// Package docstore is a path-scoped document store: collections of JSON documents
// addressed by paths such as users/{uid}/characters, ordered by server-assigned
// creation time.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrLimitReached = errors.New("collection limit reached")
)

// Path names a collection.
type Path string

func CharactersPath(userID uuid.UUID) Path {
	return Path("users/" + userID.String() + "/characters")
}

func InventoryPath(userID, characterID uuid.UUID) Path {
	return Path("users/" + userID.String() + "/characters/" + characterID.String() + "/inventory")
}

type Document struct {
	ID        uuid.UUID
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Store is implemented by every backend. Ids and timestamps are always assigned by
// the store. Writes touch exactly one document except DeleteAll.
type Store interface {
	// List returns the collection ordered by creation time, oldest first.
	List(ctx context.Context, col Path) ([]Document, error)
	Get(ctx context.Context, col Path, id uuid.UUID) (Document, error)
	Count(ctx context.Context, col Path) (int, error)
	Add(ctx context.Context, col Path, data any) (Document, error)
	// AddIfBelow inserts only while col holds fewer than max documents, checking
	// and inserting atomically. It returns ErrLimitReached otherwise.
	AddIfBelow(ctx context.Context, col Path, max int, data any) (Document, error)
	// Update merges patch into the top level of the document and stamps UpdatedAt.
	// It returns ErrNotFound when the id does not exist in col.
	Update(ctx context.Context, col Path, id uuid.UUID, patch map[string]any) (Document, error)
	// Delete is a no-op for an absent id.
	Delete(ctx context.Context, col Path, id uuid.UUID) error
	DeleteAll(ctx context.Context, col Path) error
}

func encode(data any) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(data)
}

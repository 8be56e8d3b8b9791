package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ttrpg-tracker/internal/platform/metrics"
)

const (
	CharacterCreated = "characters.created"
	CharacterUpdated = "characters.updated"
	CharacterDeleted = "characters.deleted"
	ItemCreated      = "inventory.created"
	ItemUpdated      = "inventory.updated"
	ItemDeleted      = "inventory.deleted"
)

// Event announces a successful mutation. Type doubles as the subject.
type Event struct {
	Type        string     `json:"type"`
	UserID      uuid.UUID  `json:"user_id"`
	CharacterID uuid.UUID  `json:"character_id"`
	ItemID      *uuid.UUID `json:"item_id,omitempty"`
	At          time.Time  `json:"at"`
}

func PublishEvent(ctx context.Context, pub Publisher, evt Event) error {
	if pub == nil {
		return nil
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	return pub.Publish(ctx, evt.Type, b)
}

package character

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultImageURL = "/images/default-user.png"
	MaxPerUser      = 9
)

type Character struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"image_url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.ImageURL == nil
}

// ImageOrDefault returns the placeholder image path for a blank url.
func ImageOrDefault(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return DefaultImageURL
	}
	return url
}

// Package voice holds the narrator voices known to lullaby.
package voice

import (
	"errors"
	"strings"

	"github.com/sahilm/fuzzy"
)

// DefaultRate is the speech rate multiplier used when a voice has none.
const DefaultRate = 0.9

// ErrUnknownVoice is returned when no catalog voice matches a query.
var ErrUnknownVoice = errors.New("unknown voice")

// Voice is a narrator identity and the rate it prefers to speak at.
type Voice struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Rate        float64 `json:"rate"`
}

// Speed returns the voice rate, or DefaultRate when unset.
func (v Voice) Speed() float64 {
	if v.Rate <= 0 {
		return DefaultRate
	}
	return v.Rate
}

func (v Voice) String() string {
	return v.ID
}

// Catalog is an ordered set of voices. The first voice is the default.
type Catalog struct {
	voices []Voice
}

// DefaultCatalog returns the built-in narrator voices.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Voice{ID: "Kore", Description: "Warm & Gentle", Rate: DefaultRate},
		Voice{ID: "Puck", Description: "Playful & Bright", Rate: DefaultRate},
		Voice{ID: "Zephyr", Description: "Calm & Soothing", Rate: DefaultRate},
		Voice{ID: "Charon", Description: "Deep & Reassuring", Rate: DefaultRate},
		Voice{ID: "Fenrir", Description: "Soft & Whispering", Rate: DefaultRate},
	)
}

// NewCatalog returns a catalog of the given voices.
func NewCatalog(voices ...Voice) *Catalog {
	return &Catalog{voices: voices}
}

// All returns a copy of the catalog voices.
func (c *Catalog) All() []Voice {
	out := make([]Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// Default returns the first voice in the catalog.
func (c *Catalog) Default() Voice {
	if len(c.voices) == 0 {
		return Voice{Rate: DefaultRate}
	}
	return c.voices[0]
}

// Find returns the voice whose ID best matches query. Exact matches (ignoring
// case) win; otherwise the best fuzzy match is used.
func (c *Catalog) Find(query string) (Voice, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.Default(), nil
	}

	ids := make([]string, len(c.voices))
	for i, v := range c.voices {
		if strings.EqualFold(v.ID, query) {
			return v, nil
		}
		ids[i] = strings.ToLower(v.ID)
	}

	matches := fuzzy.Find(strings.ToLower(query), ids)
	if len(matches) == 0 {
		return Voice{}, ErrUnknownVoice
	}
	return c.voices[matches[0].Index], nil
}

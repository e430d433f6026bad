package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMalformedItem marks an item whose JSON does not fit either accepted shape.
var ErrMalformedItem = errors.New("malformed item")

// Item is one priced quote line.
type Item struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// UnmarshalJSON accepts either {"name": .., "price": ..} or the
// positional ["name", price] pair.
func (it *Item) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(b, &pair); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedItem, err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("%w: want a [name, price] pair, got %d elements", ErrMalformedItem, len(pair))
		}
		if err := json.Unmarshal(pair[0], &it.Name); err != nil {
			return fmt.Errorf("%w: name: %w", ErrMalformedItem, err)
		}
		if err := json.Unmarshal(pair[1], &it.Price); err != nil {
			return fmt.Errorf("%w: price: %w", ErrMalformedItem, err)
		}
		return nil
	}

	type plain Item
	var p struct {
		plain
		Price *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedItem, err)
	}
	if p.Price == nil {
		return fmt.Errorf("%w: price is required", ErrMalformedItem)
	}
	it.Name = p.Name
	it.Price = *p.Price
	return nil
}

// Quote is the latest state of a versioned quote document.
type Quote struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Items     []Item `json:"items"`
	// Version starts at 1 and grows by one per committed revision.
	Version int `json:"version"`
	// Filename names the artifact rendered for Version.
	Filename string `json:"filename"`
}

// Clone returns a deep copy so callers cannot alias engine state.
func (q Quote) Clone() Quote {
	q.Items = append([]Item(nil), q.Items...)
	return q
}

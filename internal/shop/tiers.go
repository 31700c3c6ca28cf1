// Package shop provides the protection tier table: priced durations of
// immunity from theft.
package shop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"discord-economy-bot/internal/config"
)

// ErrUnknownTier is returned when a tier key is not in the catalog.
var ErrUnknownTier = errors.New("unknown protection tier")

// Tier is a priced protection duration.
type Tier struct {
	Key      string
	Duration time.Duration
	Price    int64
}

// DefaultTiers is the built-in tier table.
var DefaultTiers = []Tier{
	{Key: "3h", Duration: 3 * time.Hour, Price: 2500},
	{Key: "8h", Duration: 8 * time.Hour, Price: 5000},
	{Key: "24h", Duration: 24 * time.Hour, Price: 15000},
}

// Catalog is an immutable set of tiers.
type Catalog struct {
	tiers []Tier
	byKey map[string]Tier
}

// NewCatalog builds a catalog from tiers, sorted by duration for display.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, errors.New("catalog needs at least one tier")
	}
	c := &Catalog{byKey: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		key := normalize(t.Key)
		if key == "" || t.Duration <= 0 || t.Price <= 0 {
			return nil, fmt.Errorf("invalid tier %+v", t)
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate tier %q", key)
		}
		t.Key = key
		c.byKey[key] = t
		c.tiers = append(c.tiers, t)
	}
	sort.Slice(c.tiers, func(i, j int) bool { return c.tiers[i].Duration < c.tiers[j].Duration })
	return c, nil
}

// FromConfig builds the catalog from protection.tiers.
func FromConfig(cfg config.ProtectionConfig) (*Catalog, error) {
	tiers := make([]Tier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers = append(tiers, Tier{Key: t.Key, Duration: t.Duration, Price: t.Price})
	}
	return NewCatalog(tiers)
}

// Tiers returns the tiers in ascending duration order.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Lookup returns the tier for key. Keys are case-insensitive and an "h"
// suffix is optional, so "8", "8h" and "8H" are the same tier.
func (c *Catalog) Lookup(key string) (Tier, error) {
	if t, ok := c.byKey[normalize(key)]; ok {
		return t, nil
	}
	if t, ok := c.byKey[normalize(key)+"h"]; ok {
		return t, nil
	}
	return Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, key)
}

// Keys returns the tier keys in display order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		keys = append(keys, t.Key)
	}
	return keys
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

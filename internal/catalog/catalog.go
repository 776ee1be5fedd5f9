// Package catalog holds the membership tier table.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"torch/internal/models"

	"gopkg.in/yaml.v2"
)

var ErrUnknownTier = errors.New("unknown tier")

// Catalog is an immutable tier table, loaded once at start.
type Catalog struct {
	tiers map[models.TierID]models.Tier
}

// Default returns the studio's published tiers.
func Default() *Catalog {
	c, _ := New(defaultTiers())
	return c
}

func defaultTiers() []models.Tier {
	return []models.Tier{
		{ID: models.TierSession, Name: "Session", MonthlyRate: 2200, FoundingRate: 1870, Hours: 32, BookingWindow: 14, GuestLimit: 2, OverageRate: 69, Priority: 4, Color: "#8b5cf6"},
		{ID: models.TierMember, Name: "Member", MonthlyRate: 3500, FoundingRate: 2975, Hours: 64, BookingWindow: 30, GuestLimit: 4, OverageRate: 55, Priority: 3, Color: "#3b82f6"},
		{ID: models.TierResidency, Name: "Residency", MonthlyRate: 5000, FoundingRate: 4250, Hours: 120, BookingWindow: 60, GuestLimit: 6, OverageRate: 42, Priority: 2, Color: "#D4AF37"},
		{ID: models.TierAmbassador, Name: "Ambassador", MonthlyRate: 5000, FoundingRate: 4250, Hours: 120, BookingWindow: 90, GuestLimit: 8, OverageRate: 42, Priority: 1, Color: "#D4AF37"},
	}
}

// New validates tiers and builds a catalog from them.
func New(tiers []models.Tier) (*Catalog, error) {
	if err := Validate(tiers); err != nil {
		return nil, err
	}
	m := make(map[models.TierID]models.Tier, len(tiers))
	for _, t := range tiers {
		if t.Name == "" {
			t.Name = string(t.ID)
		}
		m[t.ID] = t
	}
	return &Catalog{tiers: m}, nil
}

// Load reads a tiers file shaped as `tiers: [...]`.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers: %w", err)
	}

	var file struct {
		Tiers []models.Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tiers: %w", err)
	}
	return New(file.Tiers)
}

func Validate(tiers []models.Tier) error {
	if len(tiers) == 0 {
		return errors.New("at least one tier is required")
	}
	seen := make(map[models.TierID]bool)
	for _, t := range tiers {
		if !t.ID.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTier, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tier: %s", t.ID)
		}
		seen[t.ID] = true
		if t.Hours <= 0 {
			return fmt.Errorf("tier %s has non-positive hours %d", t.ID, t.Hours)
		}
		if t.GuestLimit < 0 {
			return fmt.Errorf("tier %s has negative guest limit", t.ID)
		}
	}
	return nil
}

func (c *Catalog) Get(id models.TierID) (models.Tier, bool) {
	t, ok := c.tiers[id]
	return t, ok
}

// Tier returns the tier or ErrUnknownTier.
func (c *Catalog) Tier(id models.TierID) (models.Tier, error) {
	t, ok := c.tiers[id]
	if !ok {
		return models.Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, id)
	}
	return t, nil
}

// All returns the tiers ordered by priority, highest (1) first.
func (c *Catalog) All() []models.Tier {
	out := make([]models.Tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMember_Helpers(t *testing.T) {
	m := &Member{
		Name:           "Derrick Milano",
		AccessCode:     "TORCH2026",
		HoursUsed:      24,
		HoursScheduled: 16,
		Sessions: []Session{
			{ID: "S001", Date: "2026-03-18"},
			{ID: "S002", Date: "2026-03-22"},
		},
		Guests: []Guest{
			{Name: "Marcus Thompson", Session: "S001"},
			{Name: "Sarah Chen", Session: "S001"},
		},
	}

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, "Derrick", m.FirstName())
		assert.Equal(t, "Milano", m.LastName())
		assert.Equal(t, "DM", m.Initials())
	})

	t.Run("MaskedAccessCode", func(t *testing.T) {
		assert.Equal(t, "••••2026", m.MaskedAccessCode())
		short := &Member{AccessCode: "AB"}
		assert.Equal(t, "••••AB", short.MaskedAccessCode())
	})

	t.Run("HoursRemaining", func(t *testing.T) {
		assert.Equal(t, 80, m.HoursRemaining(Tier{Hours: 120}))
	})

	t.Run("Sessions", func(t *testing.T) {
		s, ok := m.FindSession("S002")
		assert.True(t, ok)
		assert.Equal(t, "2026-03-22", s.Date)

		_, ok = m.FindSession("missing")
		assert.False(t, ok)

		assert.Len(t, m.GuestsForSession("S001"), 2)
		assert.Empty(t, m.GuestsForSession("S002"))
	})

	t.Run("NextSession", func(t *testing.T) {
		next, ok := m.NextSession(time.Date(2026, 3, 19, 12, 0, 0, 0, time.UTC))
		assert.True(t, ok)
		assert.Equal(t, "S002", next.ID)

		_, ok = m.NextSession(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
		assert.False(t, ok)
	})

	t.Run("CloneDoesNotAlias", func(t *testing.T) {
		c := m.Clone()
		c.Sessions[0].Date = "2030-01-01"
		c.Guests = append(c.Guests, Guest{Name: "X"})
		assert.Equal(t, "2026-03-18", m.Sessions[0].Date)
		assert.Len(t, m.Guests, 2)
		assert.Nil(t, (*Member)(nil).Clone())
	})
}

func TestTier(t *testing.T) {
	tier := Tier{MonthlyRate: 3500, FoundingRate: 2975}
	assert.Equal(t, 2975, tier.Rate(true))
	assert.Equal(t, 3500, tier.Rate(false))

	assert.True(t, TierAmbassador.Valid())
	assert.False(t, TierID("Gold").Valid())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "member@torch.com", NormalizeEmail("  Member@Torch.COM "))
}

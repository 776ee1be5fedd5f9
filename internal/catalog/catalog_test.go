package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"torch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	member, ok := c.Get(models.TierMember)
	require.True(t, ok)
	assert.Equal(t, 64, member.Hours)
	assert.Equal(t, 4, member.GuestLimit)
	assert.Equal(t, 30, member.BookingWindow)
	assert.Equal(t, 2975, member.Rate(true))

	all := c.All()
	require.Len(t, all, 4)
	assert.Equal(t, models.TierAmbassador, all[0].ID)
	assert.Equal(t, models.TierSession, all[3].ID)

	_, err := c.Tier("Gold")
	assert.True(t, errors.Is(err, ErrUnknownTier))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	content := `
tiers:
  - id: Session
    hours: 10
    guest_limit: 1
    priority: 2
  - id: Member
    name: "Member Plus"
    hours: 20
    guest_limit: 3
    priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	session, ok := c.Get(models.TierSession)
	require.True(t, ok)
	assert.Equal(t, "Session", session.Name)
	assert.Equal(t, 10, session.Hours)

	_, ok = c.Get(models.TierResidency)
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []models.Tier
		wantErr bool
	}{
		{name: "valid", tiers: []models.Tier{{ID: models.TierMember, Hours: 64, GuestLimit: 4}}},
		{name: "empty", tiers: nil, wantErr: true},
		{name: "unknown id", tiers: []models.Tier{{ID: "Gold", Hours: 1}}, wantErr: true},
		{name: "duplicate", tiers: []models.Tier{{ID: models.TierMember, Hours: 1}, {ID: models.TierMember, Hours: 2}}, wantErr: true},
		{name: "zero hours", tiers: []models.Tier{{ID: models.TierMember}}, wantErr: true},
		{name: "negative guests", tiers: []models.Tier{{ID: models.TierMember, Hours: 1, GuestLimit: -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tiers)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

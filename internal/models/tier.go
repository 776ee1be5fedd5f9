package models

type TierID string

const (
	TierSession    TierID = "Session"
	TierMember     TierID = "Member"
	TierResidency  TierID = "Residency"
	TierAmbassador TierID = "Ambassador"
)

// KnownTiers lists every tier identifier the studio sells.
var KnownTiers = []TierID{TierSession, TierMember, TierResidency, TierAmbassador}

func (id TierID) Valid() bool {
	for _, known := range KnownTiers {
		if id == known {
			return true
		}
	}
	return false
}

// Tier is a membership plan. Rates are whole dollars per month.
type Tier struct {
	ID            TierID `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	MonthlyRate   int    `yaml:"monthly_rate" json:"monthly_rate"`
	FoundingRate  int    `yaml:"founding_rate" json:"founding_rate"`
	Hours         int    `yaml:"hours" json:"hours"`
	BookingWindow int    `yaml:"booking_window" json:"booking_window"`
	GuestLimit    int    `yaml:"guest_limit" json:"guest_limit"`
	OverageRate   int    `yaml:"overage_rate" json:"overage_rate"`
	Priority      int    `yaml:"priority" json:"priority"`
	Color         string `yaml:"color" json:"color"`
}

// Rate returns the monthly amount billed to a member of this tier.
func (t Tier) Rate(founding bool) int {
	if founding {
		return t.FoundingRate
	}
	return t.MonthlyRate
}

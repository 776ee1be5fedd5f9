package models

import (
	"strings"
	"time"
)

type Member struct {
	ID               string         `json:"id" yaml:"id"`
	Email            string         `json:"email" yaml:"email"`
	AccessCode       string         `json:"access_code" yaml:"access_code"`
	Name             string         `json:"name" yaml:"name"`
	Tier             TierID         `json:"tier" yaml:"tier"`
	Founding         bool           `json:"founding" yaml:"founding"`
	JoinDate         string         `json:"join_date" yaml:"join_date"`
	Phone            string         `json:"phone" yaml:"phone"`
	Company          string         `json:"company" yaml:"company"`
	HoursUsed        int            `json:"hours_used" yaml:"hours_used"`
	HoursScheduled   int            `json:"hours_scheduled" yaml:"hours_scheduled"`
	Sessions         []Session      `json:"sessions" yaml:"sessions"`
	Guests           []Guest        `json:"guests" yaml:"guests"`
	History          []HistoryEntry `json:"history" yaml:"history"`
	SquareCustomerID string         `json:"square_customer_id,omitempty" yaml:"square_customer_id,omitempty"`
}

// MemberContext is the explicit session context handed to every portal operation:
// the profile that owns the durable slot and the member currently signed in on it.
type MemberContext struct {
	Profile string
	Member  *Member
}

// HistoryEntry is a completed past session.
type HistoryEntry struct {
	Date  string `json:"date" yaml:"date"`
	Type  string `json:"type" yaml:"type"`
	Hours int    `json:"hours" yaml:"hours"`
}

// NormalizeEmail is the directory lookup key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *Member) FirstName() string {
	fields := strings.Fields(m.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// LastName returns everything after the first name.
func (m *Member) LastName() string {
	fields := strings.Fields(m.Name)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

func (m *Member) Initials() string {
	var b strings.Builder
	for _, part := range strings.Fields(m.Name) {
		b.WriteString(strings.ToUpper(string([]rune(part)[0])))
	}
	return b.String()
}

// MaskedAccessCode shows only the last four characters of the access code.
func (m *Member) MaskedAccessCode() string {
	code := []rune(m.AccessCode)
	if len(code) > 4 {
		code = code[len(code)-4:]
	}
	return "••••" + string(code)
}

// HoursRemaining is the part of the monthly allocation neither used nor scheduled.
func (m *Member) HoursRemaining(tier Tier) int {
	return tier.Hours - m.HoursUsed - m.HoursScheduled
}

func (m *Member) FindSession(id string) (Session, bool) {
	for _, s := range m.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// GuestsForSession returns the guests registered against a session id.
func (m *Member) GuestsForSession(sessionID string) []Guest {
	var out []Guest
	for _, g := range m.Guests {
		if g.Session == sessionID {
			out = append(out, g)
		}
	}
	return out
}

// NextSession returns the first session dated on or after today, in booking order.
func (m *Member) NextSession(today time.Time) (Session, bool) {
	todayStr := today.Format(DateLayout)
	for _, s := range m.Sessions {
		if s.Date >= todayStr {
			return s, true
		}
	}
	return Session{}, false
}

// Clone returns a deep copy so seed data and stored records are never aliased.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	if m.Sessions != nil {
		c.Sessions = append([]Session{}, m.Sessions...)
	}
	if m.Guests != nil {
		c.Guests = append([]Guest{}, m.Guests...)
	}
	if m.History != nil {
		c.History = append([]HistoryEntry{}, m.History...)
	}
	return &c
}

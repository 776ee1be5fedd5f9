package repository

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"torch/internal/domain"
	"torch/internal/models"

	"gopkg.in/yaml.v2"
)

// StaticDirectory is an in-memory member directory keyed by normalized email.
// Reads and writes go through deep copies so callers never alias stored records.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[string]*models.Member
}

func NewStaticDirectory(members []*models.Member) *StaticDirectory {
	d := &StaticDirectory{members: make(map[string]*models.Member, len(members))}
	for _, m := range members {
		d.members[models.NormalizeEmail(m.Email)] = m.Clone()
	}
	return d
}

func (d *StaticDirectory) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[models.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (d *StaticDirectory) Save(ctx context.Context, member *models.Member) error {
	if member == nil || member.Email == "" {
		return fmt.Errorf("member email is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.members[models.NormalizeEmail(member.Email)] = member.Clone()
	return nil
}

func (d *StaticDirectory) List(ctx context.Context) ([]*models.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*models.Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type membersFile struct {
	Members []*models.Member `yaml:"members"`
}

// LoadMembers reads seed members from a YAML file.
func LoadMembers(path string) ([]*models.Member, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read members file: %w", err)
	}

	var f membersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse members file: %w", err)
	}

	seen := make(map[string]bool, len(f.Members))
	for i, m := range f.Members {
		if m == nil || m.ID == "" || m.Email == "" {
			return nil, fmt.Errorf("member #%d: id and email are required", i+1)
		}
		if !m.Tier.Valid() {
			return nil, fmt.Errorf("member %s: unknown tier %q", m.ID, m.Tier)
		}
		key := models.NormalizeEmail(m.Email)
		if seen[key] {
			return nil, fmt.Errorf("member %s: duplicate email %s", m.ID, m.Email)
		}
		seen[key] = true
	}
	return f.Members, nil
}

// DemoMembers is the built-in demo directory.
func DemoMembers() []*models.Member {
	return []*models.Member{
		{
			ID:         "TM000",
			Email:      "joi@torchatl.com",
			AccessCode: "JOI2026",
			Name:       "Joi Coleman",
			Tier:       models.TierAmbassador,
			Founding:   true,
			JoinDate:   "2026-03-15",
			Phone:      "(404) 555-0100",
			Company:    "Torch Music Corporation",
			Sessions:   []models.Session{},
			Guests:     []models.Guest{},
			History:    []models.HistoryEntry{},
		},
		{
			ID:             "TM001",
			Email:          "derrick@example.com",
			AccessCode:     "TORCH2026",
			Name:           "Derrick Milano",
			Tier:           models.TierAmbassador,
			Founding:       true,
			JoinDate:       "2026-03-15",
			Phone:          "(404) 555-0101",
			Company:        "Milano Music Group",
			HoursUsed:      24,
			HoursScheduled: 16,
			Sessions: []models.Session{
				{ID: "S001", Date: "2026-03-18", StartTime: "14:00", EndTime: "22:00", Type: "recording", Hours: 8, Status: models.StatusConfirmed},
				{ID: "S002", Date: "2026-03-22", StartTime: "12:00", EndTime: "20:00", Type: "writing", Hours: 8, Status: models.StatusConfirmed},
			},
			Guests: []models.Guest{
				{ID: "G001", Name: "Marcus Thompson", Session: "S001", Email: "marcus@email.com"},
				{ID: "G002", Name: "Sarah Chen", Session: "S001", Email: "sarah@email.com"},
			},
			History: []models.HistoryEntry{
				{Date: "2026-03-10", Type: "Recording", Hours: 8},
				{Date: "2026-03-08", Type: "Writing", Hours: 6},
				{Date: "2026-03-05", Type: "Recording", Hours: 10},
			},
		},
		{
			ID:             "TM002",
			Email:          "member@torch.com",
			AccessCode:     "DEMO2026",
			Name:           "Demo Member",
			Tier:           models.TierMember,
			Founding:       true,
			JoinDate:       "2026-03-15",
			Phone:          "(404) 555-0102",
			Company:        "Independent",
			HoursUsed:      12,
			HoursScheduled: 8,
			Sessions: []models.Session{
				{ID: "S003", Date: "2026-03-20", StartTime: "10:00", EndTime: "18:00", Type: "recording", Hours: 8, Status: models.StatusConfirmed},
			},
			Guests: []models.Guest{},
			History: []models.HistoryEntry{
				{Date: "2026-03-12", Type: "Recording", Hours: 6},
				{Date: "2026-03-09", Type: "Mixing", Hours: 6},
			},
		},
		{
			ID:         "TM003",
			Email:      "dke@torchatl.com",
			AccessCode: "DKE2026",
			Name:       "DKE",
			Tier:       models.TierAmbassador,
			Founding:   true,
			JoinDate:   "2026-03-15",
			Sessions:   []models.Session{},
			Guests:     []models.Guest{},
			History:    []models.HistoryEntry{},
		},
	}
}

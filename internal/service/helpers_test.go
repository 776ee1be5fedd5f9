package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"torch/internal/catalog"
	"torch/internal/events"
	"torch/internal/models"
	"torch/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var demoToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	kv        *repository.MemoryStore
	directory *repository.StaticDirectory
	bus       *events.EventBus
	clock     *fixedClock
	store     *SessionStore
	catalog   *catalog.Catalog
	published []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{
		kv:        repository.NewMemoryStore(),
		directory: repository.NewStaticDirectory(repository.DemoMembers()),
		bus:       events.NewEventBus(),
		clock:     &fixedClock{now: demoToday},
		catalog:   catalog.Default(),
	}
	f.bus.SubscribeAll(func(e *events.Event) error {
		f.published = append(f.published, e.Type)
		return nil
	})
	f.store = NewSessionStore(f.kv, f.directory, f.bus, models.LoginHandoffTTL, &logger)
	f.store.SetClock(f.clock.Now)
	return f
}

// login signs a demo member in on profile "p1" and returns its session context.
func (f *fixture) login(t *testing.T, email, code string) *models.MemberContext {
	t.Helper()
	m, err := f.store.Login(context.Background(), "p1", email, code)
	require.NoError(t, err)
	return &models.MemberContext{Profile: "p1", Member: m}
}

// seed stores member as the current member of profile "p1".
func (f *fixture) seed(t *testing.T, member *models.Member) *models.MemberContext {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), "p1", member))
	return &models.MemberContext{Profile: "p1", Member: member.Clone()}
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType, refID string, payload interface{}) error {
	return m.Called(ctx, taskType, refID, payload).Error(0)
}

// mockUpdater runs fn against a copy of member and then asks the mock whether the save succeeds.
type mockUpdater struct {
	mock.Mock
	member *models.Member
}

func (m *mockUpdater) Update(ctx context.Context, profile string, fn func(*models.Member) error) (*models.Member, error) {
	updated := m.member.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	if err := m.Called(ctx, profile, updated).Error(0); err != nil {
		return nil, err
	}
	return updated, nil
}

type mockKV struct {
	mock.Mock
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockKV) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockKV) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"torch/internal/database"
	"torch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testSessionPayload() sessionPayload {
	return sessionPayload{
		Member:  &models.Member{ID: "TM002", Name: "Demo Member", Email: "member@torch.com", Tier: models.TierMember},
		Session: &models.Session{ID: "S101", Date: "2026-03-25", StartTime: "10:00", EndTime: "18:00", Hours: 8},
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendSession, "S101", testSessionPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "completed" {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(sheets.sessions) != 1 || sheets.sessions[0] != "S101" {
		t.Fatalf("expected one appended session S101, got %v", sheets.sessions)
	}
}

func TestProcessTaskInquiry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	inquiry := models.Inquiry{Name: "Ari", Email: "ari@label.com", Role: "Producer", Status: models.StatusPending}
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendInquiry, inquiry.Email, inquiry); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	if len(sheets.inquiries) != 1 || sheets.inquiries[0] != "ari@label.com" {
		t.Fatalf("expected inquiry appended, got %v", sheets.inquiries)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendSession, "S101", testSessionPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "retry" {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// задача не видна до наступления next_retry_at
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected retry task to be deferred, got %d pending", len(pending))
	}
}

func TestProcessTaskFailDeadLetters(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, rdb, RetryPolicy{MaxRetries: 1}, nil)
	worker.redisWait = 100 * time.Millisecond

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendSession, "S101", testSessionPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := mr.List(worker.deadLetterKey)
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead-lettered task, got %v (%v)", dead, err)
	}
}

func TestProcessTaskPermanentFailures(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 5}, nil)
	ctx := context.Background()

	cases := []models.SyncTask{
		{TaskType: "mystery", RefID: "x", Payload: "{}"},
		{TaskType: models.SyncTaskAppendSession, RefID: "x", Payload: "invalid json"},
		{TaskType: models.SyncTaskAppendSession, RefID: "x", Payload: `{"member":null}`},
		{TaskType: models.SyncTaskSyncMembers, RefID: "x", Payload: "{}"},
	}
	for _, task := range cases {
		task := task
		if err := db.CreateSyncTask(ctx, &task); err != nil {
			t.Fatalf("create: %v", err)
		}
		worker.processTask(ctx, &task)
		if status, _, _ := loadTaskStatus(t, db, task.ID); status != "failed" {
			t.Fatalf("%s/%s: expected failed without retry, got %s", task.TaskType, task.Payload, status)
		}
	}
}

func TestProcessTaskMemberSync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := db.SeedMembers(ctx, []*models.Member{
		{ID: "TM000", Email: "joi@torchatl.com", Tier: models.TierAmbassador},
		{ID: "TM002", Email: "member@torch.com", Tier: models.TierMember},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sheets := &fakeRosterSheets{}
	worker := NewSheetsWorker(db, sheets, db, nil, RetryPolicy{}, nil)

	if err := worker.EnqueueMemberSync(ctx); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	if sheets.rosterSize != 2 {
		t.Fatalf("expected roster of 2, got %d", sheets.rosterSize)
	}
	if status, _, _ := loadTaskStatus(t, db, task.ID); status != "completed" {
		t.Fatalf("expected completed, got %s", status)
	}
}

func TestStartDrainsPendingTasks(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// задача только в БД, как после рестарта
	payload, _ := json.Marshal(models.Inquiry{Email: "a@b.co"})
	task := models.SyncTask{TaskType: models.SyncTaskAppendInquiry, RefID: "a@b.co", Payload: string(payload)}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, _, _ := loadTaskStatus(t, db, task.ID); status == "completed" {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("task was not processed by the polling loop")
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d0 := (RetryPolicy{}).NextDelay(0); d0 != time.Second {
		t.Fatalf("zero policy expected 1s, got %s", d0)
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.Exhausted(4) {
		t.Fatalf("attempt 4 of 5 should still retry")
	}
	if !policy.Exhausted(5) {
		t.Fatalf("attempt 5 of 5 should dead-letter")
	}
	if (RetryPolicy{}).Exhausted(100) {
		t.Fatalf("zero MaxRetries never exhausts")
	}
}

func TestSheetsWorker_EnqueueTaskValidation(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	if err := worker.EnqueueTask(ctx, "", "S1", nil); err == nil {
		t.Fatalf("expected error for empty task type")
	}
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendSession, "", nil); err == nil {
		t.Fatalf("expected error for missing ref id")
	}
	if err := worker.EnqueueTask(ctx, models.SyncTaskAppendInquiry, "x", func() {}); err == nil {
		t.Fatalf("expected error for unencodable payload")
	}
}

// Helpers

type fakeSheets struct {
	err       error
	sessions  []string
	inquiries []string
}

func (f *fakeSheets) AppendSession(ctx context.Context, m *models.Member, s *models.Session) error {
	if f.err != nil {
		return f.err
	}
	f.sessions = append(f.sessions, s.ID)
	return nil
}

func (f *fakeSheets) AppendInquiry(ctx context.Context, i *models.Inquiry) error {
	if f.err != nil {
		return f.err
	}
	f.inquiries = append(f.inquiries, i.Email)
	return nil
}

type fakeRosterSheets struct {
	fakeSheets
	rosterSize int
}

func (f *fakeRosterSheets) ReplaceMembersSheet(ctx context.Context, members []*models.Member) error {
	f.rosterSize = len(members)
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.Nop()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

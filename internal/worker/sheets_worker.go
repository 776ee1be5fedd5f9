package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"torch/internal/domain"
	"torch/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskStore is the durable outbox behind the worker.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// RosterWriter is implemented by sheet writers that can rewrite the whole member roster.
type RosterWriter interface {
	ReplaceMembersSheet(ctx context.Context, members []*models.Member) error
}

// sessionPayload mirrors what the booking engine enqueues for append_session.
type sessionPayload struct {
	Member  *models.Member  `json:"member"`
	Session *models.Session `json:"session"`
}

// SheetsWorker persists Sheets tasks in the sync queue and applies them with retries.
type SheetsWorker struct {
	store         TaskStore
	sheets        domain.SheetsWriter
	members       domain.MemberRepository
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	redisWait     time.Duration
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
	logger        *zerolog.Logger
}

var _ domain.SyncWorker = (*SheetsWorker)(nil)

// NewSheetsWorker builds a worker with sane defaults. members is only needed for roster syncs.
func NewSheetsWorker(store TaskStore, sheets domain.SheetsWriter, members domain.MemberRepository, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		members:       members,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "torch:sheets:queue",
		deadLetterKey: "torch:sheets:deadletter",
		redisWait:     time.Second,
		pollInterval:  2 * time.Second,
		batchSize:     20,
		now:           time.Now,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType, refID string, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if refID == "" {
		return errors.New("ref id is required")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		RefID:    refID,
		Payload:  string(payloadBytes),
		Status:   "pending",
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// EnqueueMemberSync schedules a full rewrite of the Members sheet.
func (w *SheetsWorker) EnqueueMemberSync(ctx context.Context) error {
	return w.EnqueueTask(ctx, models.SyncTaskSyncMembers, w.now().UTC().Format(time.RFC3339), struct{}{})
}

// Start launches the main loop; stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending sync tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, w.redisWait, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP error")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	if err := w.handleSheetTask(ctx, task); err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

// permanentError marks a task that will never succeed on retry.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...interface{}) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case models.SyncTaskAppendSession:
		var p sessionPayload
		if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
			return permanent("decode payload: %v", err)
		}
		if p.Member == nil || p.Session == nil {
			return permanent("session payload missing member or session")
		}
		return w.sheets.AppendSession(ctx, p.Member, p.Session)
	case models.SyncTaskAppendInquiry:
		var inquiry models.Inquiry
		if err := json.Unmarshal([]byte(task.Payload), &inquiry); err != nil {
			return permanent("decode payload: %v", err)
		}
		return w.sheets.AppendInquiry(ctx, &inquiry)
	case models.SyncTaskSyncMembers:
		roster, ok := w.sheets.(RosterWriter)
		if !ok || w.members == nil {
			return permanent("roster sync is not supported by this writer")
		}
		members, err := w.members.List(ctx)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return roster.ReplaceMembersSheet(ctx, members)
	default:
		return permanent("unknown task type: %s", task.TaskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("sheets task will be retried")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("sheets task dead-lettered")
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}

package models

import "time"

const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
)

const (
	// DateLayout формат дат сессий и ячеек календаря
	DateLayout = "2006-01-02"

	// TimeLayout формат времени начала и окончания сессии
	TimeLayout = "15:04"
)

const (
	// LoginHandoffTTL время жизни токена входа с сайта
	LoginHandoffTTL = 5 * time.Minute

	// DefaultSessionTTL время жизни записи текущего участника в Redis (0 = без срока)
	DefaultSessionTTL = 0

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// CardsCacheTTL время жизни кэша сохраненных карт
	CardsCacheTTL = 5 * time.Minute

	// UnknownSessionLabel подпись гостя, чья сессия не найдена
	UnknownSessionLabel = "Unknown session"
)

const (
	SyncTaskAppendSession = "append_session"
	SyncTaskAppendInquiry = "append_inquiry"
	SyncTaskSyncMembers   = "sync_members"
)

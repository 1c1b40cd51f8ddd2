package redis

import (
	"context"
	"errors"
	"time"

	"events-cache/apperrors"
	"events-cache/db"
	"events-cache/logging"
	"events-cache/models"

	"github.com/goccy/go-json"
)

const CRON_STATUS_KEY = "cron:status"
const CRON_STATUS_HISTORY_KEY = "cron:status:history"
const CRON_SCHEDULE_KEY = "cron:schedule"

// RedisStatusDAO persists the refresh run status, its history and the schedule.
type RedisStatusDAO struct {
	provider    db.RedisProvider
	historySize int64
	opTimeout   time.Duration
}

// NewRedisStatusDAO initializes a RedisStatusDAO keeping at most historySize records.
func NewRedisStatusDAO(provider db.RedisProvider, historySize int, opTimeout time.Duration) *RedisStatusDAO {
	if historySize < 1 {
		historySize = 1
	}
	return &RedisStatusDAO{provider: provider, historySize: int64(historySize), opTimeout: opTimeout}
}

func (dao *RedisStatusDAO) withClient(ctx context.Context, fn func(ctx context.Context, client db.RedisClient) error) error {
	client, err := dao.provider.Acquire(ctx)
	if err != nil {
		return apperrors.CacheUnavailable("cache connection unavailable", err)
	}
	var opCtx context.Context
	var cancel context.CancelFunc
	if dao.opTimeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, dao.opTimeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	err = fn(opCtx, client)
	dao.provider.Release(client, err)
	return err
}

// ReadStatus returns the current record, or nil when none was written yet.
func (dao *RedisStatusDAO) ReadStatus(ctx context.Context) (*models.RunStatus, error) {
	var status *models.RunStatus
	err := dao.withClient(ctx, func(ctx context.Context, client db.RedisClient) error {
		str, err := client.Get(ctx, CRON_STATUS_KEY)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return apperrors.CacheUnavailable("failed to read run status", err)
		}
		var s models.RunStatus
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return apperrors.Internal("failed to unmarshal run status", err)
		}
		status = &s
		return nil
	})
	return status, err
}

// WriteStatus overwrites the current record and prepends it to the history.
func (dao *RedisStatusDAO) WriteStatus(ctx context.Context, status models.RunStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return apperrors.Internal("failed to marshal run status", err)
	}

	return dao.withClient(ctx, func(ctx context.Context, client db.RedisClient) error {
		if err := client.Set(ctx, CRON_STATUS_KEY, string(data), 0); err != nil {
			return apperrors.CacheUnavailable("failed to write run status", err)
		}
		if err := client.PushCapped(ctx, CRON_STATUS_HISTORY_KEY, string(data), dao.historySize); err != nil {
			logging.Warn().Err(err).Msg("[RedisStatusDAO] could not append run status history")
		}
		return nil
	})
}

// ListHistory returns up to limit records, newest first.
func (dao *RedisStatusDAO) ListHistory(ctx context.Context, limit int) ([]models.RunStatus, error) {
	if limit <= 0 || int64(limit) > dao.historySize {
		limit = int(dao.historySize)
	}

	history := []models.RunStatus{}
	err := dao.withClient(ctx, func(ctx context.Context, client db.RedisClient) error {
		entries, err := client.Range(ctx, CRON_STATUS_HISTORY_KEY, 0, int64(limit)-1)
		if err != nil {
			return apperrors.CacheUnavailable("failed to read run status history", err)
		}
		for _, entry := range entries {
			var s models.RunStatus
			if err := json.Unmarshal([]byte(entry), &s); err != nil {
				logging.Warn().Err(err).Msg("[RedisStatusDAO] skipping unreadable history entry")
				continue
			}
			history = append(history, s)
		}
		return nil
	})
	return history, err
}

// ReadSchedule returns the persisted schedule, or nil when none exists.
func (dao *RedisStatusDAO) ReadSchedule(ctx context.Context) (*models.Schedule, error) {
	var schedule *models.Schedule
	err := dao.withClient(ctx, func(ctx context.Context, client db.RedisClient) error {
		str, err := client.Get(ctx, CRON_SCHEDULE_KEY)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return apperrors.CacheUnavailable("failed to read schedule", err)
		}
		var s models.Schedule
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return apperrors.Internal("failed to unmarshal schedule", err)
		}
		schedule = &s
		return nil
	})
	return schedule, err
}

func (dao *RedisStatusDAO) WriteSchedule(ctx context.Context, schedule models.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return apperrors.Internal("failed to marshal schedule", err)
	}
	return dao.withClient(ctx, func(ctx context.Context, client db.RedisClient) error {
		if err := client.Set(ctx, CRON_SCHEDULE_KEY, string(data), 0); err != nil {
			return apperrors.CacheUnavailable("failed to write schedule", err)
		}
		return nil
	})
}

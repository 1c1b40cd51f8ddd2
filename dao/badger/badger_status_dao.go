// Package badger stores the refresh run status and schedule in a local
// BadgerDB, for deployments that keep status off the shared cache.
package badger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"events-cache/apperrors"
	"events-cache/logging"
	"events-cache/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	statusKey         = "cron:status"
	scheduleKey       = "cron:schedule"
	historyPrefix     = "cron:status:history:"
	historySequence   = "cron:status:history-seq"
	sequenceBandwidth = 64
)

// BadgerStatusDAO persists run status, history and schedule in BadgerDB.
type BadgerStatusDAO struct {
	db          *badger.DB
	seq         *badger.Sequence
	historySize int
}

// OpenBadgerStatusDAO opens (or creates) the store at path. An empty path
// opens an in-memory store.
func OpenBadgerStatusDAO(path string, historySize int) (*BadgerStatusDAO, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	seq, err := db.GetSequence([]byte(historySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open history sequence: %w", err)
	}
	if historySize < 1 {
		historySize = 1
	}

	logging.Info().Str("path", path).Int("history_size", historySize).Msg("[BadgerStatusDAO] opened")
	return &BadgerStatusDAO{db: db, seq: seq, historySize: historySize}, nil
}

func (dao *BadgerStatusDAO) Close() error {
	if err := dao.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("[BadgerStatusDAO] could not release history sequence")
	}
	return dao.db.Close()
}

func (dao *BadgerStatusDAO) get(ctx context.Context, key string, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := dao.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return found, err
}

// ReadStatus returns the current record, or nil when none was written yet.
func (dao *BadgerStatusDAO) ReadStatus(ctx context.Context) (*models.RunStatus, error) {
	var status models.RunStatus
	found, err := dao.get(ctx, statusKey, &status)
	if err != nil {
		return nil, apperrors.Internal("failed to read run status", err)
	}
	if !found {
		return nil, nil
	}
	return &status, nil
}

// historyKey sorts newer entries first.
func historyKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", historyPrefix, uint64(math.MaxInt64)-n))
}

// WriteStatus overwrites the current record, appends it to the history and
// trims the history to its configured size.
func (dao *BadgerStatusDAO) WriteStatus(ctx context.Context, status models.RunStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(status)
	if err != nil {
		return apperrors.Internal("failed to marshal run status", err)
	}
	n, err := dao.seq.Next()
	if err != nil {
		return apperrors.Internal("failed to allocate history entry", err)
	}

	err = dao.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(statusKey), data); err != nil {
			return err
		}
		return txn.Set(historyKey(n), data)
	})
	if err != nil {
		return apperrors.Internal("failed to write run status", err)
	}

	if err := dao.trimHistory(); err != nil {
		logging.Warn().Err(err).Msg("[BadgerStatusDAO] could not trim history")
	}
	return nil
}

func (dao *BadgerStatusDAO) trimHistory() error {
	return dao.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		prefix := []byte(historyPrefix)
		i := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if i >= dao.historySize {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
			i++
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHistory returns up to limit records, newest first.
func (dao *BadgerStatusDAO) ListHistory(ctx context.Context, limit int) ([]models.RunStatus, error) {
	if limit <= 0 || limit > dao.historySize {
		limit = dao.historySize
	}

	history := []models.RunStatus{}
	err := dao.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(historyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(history) < limit; it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var s models.RunStatus
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("[BadgerStatusDAO] skipping unreadable history entry")
				continue
			}
			history = append(history, s)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("failed to read run status history", err)
	}
	return history, nil
}

// ReadSchedule returns the persisted schedule, or nil when none exists.
func (dao *BadgerStatusDAO) ReadSchedule(ctx context.Context) (*models.Schedule, error) {
	var schedule models.Schedule
	found, err := dao.get(ctx, scheduleKey, &schedule)
	if err != nil {
		return nil, apperrors.Internal("failed to read schedule", err)
	}
	if !found {
		return nil, nil
	}
	return &schedule, nil
}

func (dao *BadgerStatusDAO) WriteSchedule(ctx context.Context, schedule models.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(schedule)
	if err != nil {
		return apperrors.Internal("failed to marshal schedule", err)
	}
	err = dao.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(scheduleKey), data)
	})
	if err != nil {
		return apperrors.Internal("failed to write schedule", err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/linkshelf/server/internal/observability"
	"github.com/sirupsen/logrus"
)

const jobKeyPrefix = "job:"

// BadgerQueue stores jobs in an embedded BadgerDB, ordered by due time.
// Keys sort lexicographically by NotBefore, so the first key under the
// prefix is always the next job to run.
type BadgerQueue struct {
	db  *badger.DB
	log *observability.Logger
}

// NewBadgerQueue opens (or creates) a queue at dbPath
func NewBadgerQueue(dbPath string, log *observability.Logger) (*BadgerQueue, error) {
	log = log.Component("queue")

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{log.Entry.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger queue at %s: %w", dbPath, err)
	}
	log.WithField("path", dbPath).Info("Badger queue opened")

	return &BadgerQueue{db: db, log: log}, nil
}

// Format: job:{not_before unix nanos, zero padded}:{job id}
func jobKey(job *EnrichItemDataJob) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", jobKeyPrefix, job.NotBefore.UnixNano(), job.ID))
}

func dueTime(key []byte) (time.Time, error) {
	rest := strings.TrimPrefix(string(key), jobKeyPrefix)
	nanos, _, ok := strings.Cut(rest, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed job key %q", key)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed job key %q: %w", key, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func (q *BadgerQueue) Enqueue(ctx context.Context, job *EnrichItemDataJob) error {
	prepare(job)

	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(jobKey(job), value))
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.log.WithFields(logrus.Fields{
		"item_data_id": job.ItemDataID,
		"attempt":      job.Attempt,
	}).Debug("Job enqueued")
	return nil
}

// Dequeue claims the earliest due job by deleting its key in the same
// transaction that reads it. A concurrent claim of the same key makes the
// commit conflict; the loser sees an empty queue for this poll.
func (q *BadgerQueue) Dequeue(ctx context.Context) (*EnrichItemDataJob, error) {
	var job *EnrichItemDataJob
	now := time.Now().UTC()

	err := q.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)

		due, err := dueTime(key)
		if err != nil {
			return err
		}
		if due.After(now) {
			return nil
		}

		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		var j EnrichItemDataJob
		if err := json.Unmarshal(value, &j); err != nil {
			q.log.WithError(err).WithField("key", string(key)).Error("Dropping undecodable job")
			return txn.Delete(key)
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		job = &j
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return job, nil
}

// Len returns the number of queued jobs, due or not
func (q *BadgerQueue) Len() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (q *BadgerQueue) Close() error {
	q.log.Info("Closing badger queue")
	return q.db.Close()
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

// Package queue provides a bbolt-backed persistent queue of index jobs and
// a worker that drains it.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/indexsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Bucket names used by the queue.
var (
	bucketJobs    = []byte("jobs")
	bucketPending = []byte("pending") // job key -> sequence, for dedup
	bucketFailed  = []byte("failed")
)

// Queue is a FIFO of index jobs persisted in a bbolt file. A job already
// waiting is not queued twice.
type Queue struct {
	db *bolt.DB
}

// FailedJob is a job that could not be processed.
type FailedJob struct {
	Job      models.IndexJob `json:"job"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// Open opens or creates the queue database at path.
func Open(path string) (*Queue, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketJobs, bucketPending, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Queue{db: db}, nil
}

// Close closes the database.
func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

func jobKey(job models.IndexJob) []byte {
	return []byte(job.Type + models.IDSeparator + job.ID + models.IDSeparator + string(job.Stage))
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Enqueue appends a job unless an identical one is waiting.
func (q *Queue) Enqueue(ctx context.Context, job models.IndexJob) error {
	if job.Stage == "" {
		job.Stage = models.StageDraft
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return q.db.Update(func(tx *bolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		if pending.Get(jobKey(job)) != nil {
			return nil
		}
		jobs := tx.Bucket(bucketJobs)
		seq, err := jobs.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := seqKey(seq)
		if err := jobs.Put(key, data); err != nil {
			return fmt.Errorf("put job: %w", err)
		}
		return pending.Put(jobKey(job), key)
	})
}

// Pending returns the number of waiting jobs.
func (q *Queue) Pending() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketJobs).Stats().KeyN
		return nil
	})
	return n, err
}

// claim returns the oldest waiting job. The job stays queued until acked,
// but an identical job may be queued again while it runs.
func (q *Queue) claim() (key []byte, job models.IndexJob, ok bool, err error) {
	err = q.db.Update(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketJobs).Cursor().First()
		if k == nil {
			return nil
		}
		if err := json.Unmarshal(v, &job); err != nil {
			return fmt.Errorf("unmarshal job %x: %w", k, err)
		}
		key = append([]byte(nil), k...)
		ok = true

		pending := tx.Bucket(bucketPending)
		if string(pending.Get(jobKey(job))) == string(key) {
			return pending.Delete(jobKey(job))
		}
		return nil
	})
	return key, job, ok, err
}

// ack removes a job; a non-nil failure records it in the failed bucket.
func (q *Queue) ack(key []byte, job models.IndexJob, failure error) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketJobs).Delete(key); err != nil {
			return err
		}
		if failure == nil {
			return nil
		}
		data, err := json.Marshal(FailedJob{Job: job, Error: failure.Error(), FailedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFailed).Put(key, data)
	})
}

// Failed returns the jobs that could not be processed, oldest first.
func (q *Queue) Failed() ([]FailedJob, error) {
	var out []FailedJob
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).ForEach(func(k, v []byte) error {
			var f FailedJob
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshal failed job %x: %w", k, err)
			}
			out = append(out, f)
			return nil
		})
	})
	return out, err
}

// Drain processes waiting jobs in order until the queue is empty or ctx is
// done. Jobs that fail are moved aside and do not stop the drain.
func (q *Queue) Drain(ctx context.Context, fn func(models.IndexJob) error) (processed, failed int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		key, job, ok, err := q.claim()
		if err != nil {
			return processed, failed, err
		}
		if !ok {
			return processed, failed, nil
		}

		jobErr := fn(job)
		if err := q.ack(key, job, jobErr); err != nil {
			return processed, failed, fmt.Errorf("ack job: %w", err)
		}
		if jobErr != nil {
			failed++
			continue
		}
		processed++
	}
}

package artifact

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	runsBucket       = []byte("runs")
	seenInputsBucket = []byte("seen_inputs")
)

// RunRecord is the durable status row the watch subcommand keeps per
// run, so a restarted watcher can report history instead of rescanning.
type RunRecord struct {
	ID        string    `json:"id"`
	InputPath string    `json:"input_path"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Registry is a bbolt-backed store tracking which inputs the watch
// subcommand has already processed and the status of each run, so a
// restarted watcher does not reprocess a file it already turned into a
// run.
type Registry struct {
	db *bbolt.DB
}

// OpenRegistry opens (creating if absent) the registry database at
// path and ensures its buckets exist.
func OpenRegistry(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening registry database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
			return errors.Wrap(err, "creating runs bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(seenInputsBucket); err != nil {
			return errors.Wrap(err, "creating seen_inputs bucket")
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db}, nil
}

// Seen reports whether inputPath has already been assigned a run, and
// if so, which one.
func (r *Registry) Seen(inputPath string) (runID string, ok bool, err error) {
	err = r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(seenInputsBucket).Get([]byte(inputPath))
		if v != nil {
			runID = string(v)
			ok = true
		}
		return nil
	})
	return runID, ok, err
}

// MarkSeen records that inputPath has been assigned to runID and
// stores the run's initial record in one transaction.
func (r *Registry) MarkSeen(inputPath, runID string, createdAt time.Time) error {
	rec := RunRecord{
		ID:        runID,
		InputPath: inputPath,
		Status:    "queued",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshaling run record")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(seenInputsBucket).Put([]byte(inputPath), []byte(runID)); err != nil {
			return errors.Wrap(err, "recording seen input")
		}
		return tx.Bucket(runsBucket).Put([]byte(runID), data)
	})
}

// UpdateStatus transitions runID's status (e.g. "running", "done",
// "failed") and, for failures, records the error message.
func (r *Registry) UpdateStatus(runID, status string, updatedAt time.Time, runErr error) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		existing := b.Get([]byte(runID))
		var rec RunRecord
		if existing != nil {
			if err := json.Unmarshal(existing, &rec); err != nil {
				return errors.Wrap(err, "parsing existing run record")
			}
		} else {
			rec = RunRecord{ID: runID, CreatedAt: updatedAt}
		}
		rec.Status = status
		rec.UpdatedAt = updatedAt
		if runErr != nil {
			rec.Error = runErr.Error()
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshaling updated run record")
		}
		return b.Put([]byte(runID), data)
	})
}

// Get returns the current record for runID.
func (r *Registry) Get(runID string) (RunRecord, bool, error) {
	var rec RunRecord
	found := false
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(runsBucket).Get([]byte(runID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	return rec, found, err
}

// List returns every run record, ordered by bbolt's natural key order
// (i.e. by run ID).
func (r *Registry) List() ([]RunRecord, error) {
	var records []RunRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Close releases the underlying database file.
func (r *Registry) Close() error {
	return r.db.Close()
}

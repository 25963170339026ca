package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/taskmill/taskmill/pkg/sched"
)

const appsBucket = "apps"

// BoltStore keeps job records in a bbolt file: one bucket per
// application identity holding signature -> JSON record pairs, plus an
// apps bucket mapping each identity hash to its readable info.
type BoltStore struct {
	db *bolt.DB
	id appIdentity
}

// NewBoltStore opens (or creates) the bbolt file at path. The one
// second timeout turns a file locked by another process into an error
// instead of a hang.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}
	s := &BoltStore{db: db, id: currentIdentity()}
	err = db.Update(func(tx *bolt.Tx) error {
		apps, err := tx.CreateBucketIfNotExists([]byte(appsBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(s.id.Hash())); err != nil {
			return err
		}
		return apps.Put([]byte(s.id.Hash()), []byte(strings.Join(s.id.Info(), "\n")))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare state buckets: %w", err)
	}
	return s, nil
}

// Close releases the underlying bbolt file.
func (s *BoltStore) Close() error { return s.db.Close() }

// SaveJobLogs writes the job's record under its signature key.
func (s *BoltStore) SaveJobLogs(j *sched.Job) error {
	data, err := json.Marshal(capture(j))
	if err != nil {
		return fmt.Errorf("failed to encode state for job %d: %w", j.ID(), err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(s.id.Hash()))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(j.SignatureHash()), data)
	})
}

// RestoreAllJobLogs loads every record in this application's bucket
// into the matching job and deletes keys whose signature no longer
// matches any registered job.
func (s *BoltStore) RestoreAllJobLogs(jobs []*sched.Job) error {
	bySig := make(map[string]*sched.Job, len(jobs))
	for _, j := range jobs {
		bySig[j.SignatureHash()] = j
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(s.id.Hash()))
		if bkt == nil {
			return nil
		}
		var stale [][]byte
		err := bkt.ForEach(func(k, v []byte) error {
			j, ok := bySig[string(k)]
			if !ok {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			var st jobState
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("failed to decode state %s: %w", k, err)
			}
			apply(j, st)
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

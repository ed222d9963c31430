package tracker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Record is one finished run as kept in the history database.
type Record struct {
	RunID        string        `json:"run_id"`
	Scenario     string        `json:"scenario,omitempty"`
	Label        string        `json:"label,omitempty"`
	Mode         string        `json:"mode"`
	FrameCount   int           `json:"frame_count"`
	Exposure     time.Duration `json:"exposure_ns"`
	Bin          string        `json:"bin,omitempty"`
	ROI          string        `json:"roi,omitempty"`
	LastAcquired int           `json:"last_acquired"`
	LastSaved    int           `json:"last_saved"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Duration is how long the run took.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// History is an append-only log of finished runs stored in BoltDB.
type History struct {
	db *bolt.DB
}

// OpenHistory opens (creating if needed) history.db under dir.
func OpenHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, "history.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Append stores r after every earlier record.
func (h *History) Append(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (h *History) Recent(n int) ([]Record, error) {
	var out []Record
	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt history record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored records.
func (h *History) Count() (int, error) {
	n := 0
	err := h.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketRuns).Stats().KeyN
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

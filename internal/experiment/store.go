package experiment

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Sang-Buster/Argus/internal/eval"
)

// Store persists experiment runs and per-cycle metric rows in bbolt.
// BoltDB keeps the harness deployable as a single static binary, no
// external database.
type Store struct {
	db *bbolt.DB
}

var (
	bucketRuns    = []byte("runs")
	bucketMetrics = []byte("metrics")
)

// RunRecord summarizes one persisted experiment run.
type RunRecord struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	Seed      int64     `json:"seed"`
	Attack    string    `json:"attack"`
	Cycles    int       `json:"cycles"`
}

// MetricRow is one detector's score on one attack cycle.
type MetricRow struct {
	Run     string       `json:"run"`
	Cycle   int          `json:"cycle"`
	Metrics eval.Metrics `json:"metrics"`
}

// OpenStore opens (or creates) the experiment database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("experiment: open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMetrics} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("experiment: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// PutRun stores the run record keyed by name and start time.
func (s *Store) PutRun(rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("experiment: marshal run: %w", err)
	}
	key := fmt.Sprintf("%s:%d", rec.Name, rec.StartedAt.UnixNano())
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(key), data)
	})
}

// PutMetric stores one per-cycle metric row. The key orders rows by run,
// cycle and detector so range scans come back in evaluation order.
func (s *Store) PutMetric(row MetricRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("experiment: marshal metric: %w", err)
	}
	key := fmt.Sprintf("%s:%06d:%s", row.Run, row.Cycle, row.Metrics.Detector)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetrics).Put([]byte(key), data)
	})
}

// MetricsForRun returns every persisted metric row of a run, ordered by
// cycle then detector.
func (s *Store) MetricsForRun(run string) ([]MetricRow, error) {
	var rows []MetricRow
	prefix := []byte(run + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMetrics).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var row MetricRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("experiment: decode metric %s: %w", k, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i := range prefix {
		if data[i] != prefix[i] {
			return false
		}
	}
	return true
}

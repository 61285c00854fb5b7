// Package audit records proposed and executed trade actions.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

const (
	DefaultDir   = "./wal/audit"
	segmentLimit = 100
	maxSegments  = 10

	recordKeyPrefix = "audit_"
)

// IndexedRecord audit record with its WAL index.
type IndexedRecord struct {
	Index  uint64
	Record domain.AuditRecord
}

// WALStore persists audit records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed audit store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create audit WAL dir")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "audit_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Record appends rec to the WAL.
func (s *WALStore) Record(_ context.Context, rec domain.AuditRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}
	if rec.ID == "" {
		return errors.New("audit record id is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal audit record")
	}

	key := recordKeyPrefix + string(rec.Stage) + "_" + rec.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(nextIndex, key, payload), "write audit record")
}

// RecordsAfter returns all audit records written after the provided WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]IndexedRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]IndexedRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, recordKeyPrefix) {
			continue
		}

		var rec domain.AuditRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrap(err, "decode audit record")
		}
		records = append(records, IndexedRecord{Index: idx, Record: rec})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

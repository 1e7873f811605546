package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tailbot/internal/flight"
	logx "tailbot/pkg/logx"
)

const (
	defaultFilePath = "./tailbot_store"

	// maxKeep bounds the number of records held in memory and in the
	// snapshot. Old flights beyond the bound only matter for dedup, and a
	// page never reaches back that far.
	maxKeep = 500

	compactEvery = 100
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.posted.jsonl         (append-only journal)
//   - <prefix>.posted.snapshot.json (periodic snapshot, ordered oldest first)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	records []PostedFlight // oldest first
	index   map[string]int // flight key -> records position

	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultFilePath
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".posted.snapshot.json"
	journalPath := prefix + ".posted.jsonl"

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		index:        map[string]int{},
	}
	_ = s.loadSnapshot(snapPath)
	_ = s.replayJournal(journalPath)
	s.trimLocked()

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Record(ctx context.Context, pf PostedFlight) error {
	_ = ctx
	if pf.PostedAt.IsZero() {
		pf.PostedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("posted journal closed")
	}

	s.upsertLocked(pf)
	s.trimLocked()

	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(pf); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("posted compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) WasPosted(ctx context.Context, key string) (bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok, nil
}

func (s *fileStore) LastPosted(ctx context.Context) (*PostedFlight, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	last := s.records[len(s.records)-1]
	return &last, nil
}

func (s *fileStore) RecentPosted(ctx context.Context, limit int) ([]PostedFlight, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || len(s.records) == 0 {
		return nil, nil
	}
	if limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]PostedFlight, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// upsertLocked appends pf, replacing any earlier record of the same flight
// so the newest entry stays at the tail.
func (s *fileStore) upsertLocked(pf PostedFlight) {
	key := pf.Key()
	if i, ok := s.index[key]; ok {
		s.records = append(s.records[:i], s.records[i+1:]...)
	}
	s.records = append(s.records, pf)
	s.reindexLocked()
}

func (s *fileStore) trimLocked() {
	if len(s.records) <= maxKeep {
		return
	}
	s.records = s.records[len(s.records)-maxKeep:]
	s.reindexLocked()
}

func (s *fileStore) reindexLocked() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.Key()] = i
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var records []PostedFlight
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return err
	}
	for _, r := range records {
		s.upsertLocked(r)
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r PostedFlight
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Flight == (flight.Flight{}) {
			continue
		}
		s.upsertLocked(r)
	}
	return sc.Err()
}

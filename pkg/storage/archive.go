package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const maxConflictRetries = 10

// Entry is the per-URL record persisted in the archive: the crawl outcome
// (numeric status or failure tag), the MD5 fingerprint of the page body,
// the depth the URL was found at and the run that visited it.
type Entry struct {
	Outcome     string    `json:"outcome"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Depth       int       `json:"depth"`
	RunID       string    `json:"run_id"`
	VisitedAt   time.Time `json:"visited_at"`
}

// Archive is a BadgerDB-backed record of visited URLs, keyed by the
// resolved URL. It survives across runs, so repeated crawls of the same
// site accumulate a history of outcomes.
type Archive struct {
	db       *badger.DB
	log      *logrus.Logger
	keyCount atomic.Int64
}

// badgerLogrusAdapter routes Badger's internal logging through logrus
type badgerLogrusAdapter struct {
	log *logrus.Logger
}

func (a *badgerLogrusAdapter) Errorf(format string, args ...interface{}) {
	a.log.Errorf("badger: "+format, args...)
}
func (a *badgerLogrusAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warnf("badger: "+format, args...)
}
func (a *badgerLogrusAdapter) Infof(format string, args ...interface{}) {
	a.log.Debugf("badger: "+format, args...)
}
func (a *badgerLogrusAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debugf("badger: "+format, args...)
}

// Open opens (or creates) the archive at dbPath
func Open(dbPath string, log *logrus.Logger) (*Archive, error) {
	opts := badger.DefaultOptions(dbPath).
		WithLogger(&badgerLogrusAdapter{log: log}).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive at '%s': %w", dbPath, err)
	}

	a := &Archive{db: db, log: log}

	count, err := a.countKeys()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("count archive keys: %w", err)
	}
	a.keyCount.Store(int64(count))

	log.WithFields(logrus.Fields{"path": dbPath, "entries": count}).Info("Visited archive opened")
	return a, nil
}

func (a *Archive) countKeys() (int, error) {
	count := 0
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// dbUpdate wraps db.Update with a retry loop for transaction conflicts
func (a *Archive) dbUpdate(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = a.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		a.log.Debugf("Archive write conflict, retrying (%d/%d)", i+1, maxConflictRetries)
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("archive write failed after %d conflict retries: %w", maxConflictRetries, err)
}

// Record stores (or overwrites) the entry for a visited URL
func (a *Archive) Record(url string, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry for '%s': %w", url, err)
	}

	isNew := false
	err = a.dbUpdate(func(txn *badger.Txn) error {
		_, getErr := txn.Get([]byte(url))
		if errors.Is(getErr, badger.ErrKeyNotFound) {
			isNew = true
		} else if getErr != nil {
			return getErr
		}
		return txn.Set([]byte(url), value)
	})
	if err != nil {
		return err
	}
	if isNew {
		a.keyCount.Add(1)
	}
	return nil
}

// Get returns the stored entry for a URL, or found=false if never visited
func (a *Archive) Get(url string) (Entry, bool, error) {
	var entry Entry
	found := false
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return fmt.Errorf("unmarshal archive entry for '%s': %w", url, err)
			}
			found = true
			return nil
		})
	})
	return entry, found, err
}

// VisitedCount returns the cached number of archived URLs
func (a *Archive) VisitedCount() int {
	return int(a.keyCount.Load())
}

// WriteVisitedLog writes every archived URL, one per line, to filePath
func (a *Archive) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create visited log '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0

	err = a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, err := writer.WriteString(string(key) + "\n"); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate archive for visited log: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush visited log '%s': %w", filePath, err)
	}
	a.log.WithFields(logrus.Fields{"path": filePath, "urls": written}).Info("Visited log written")
	return nil
}

// RunGC runs Badger's value-log garbage collection periodically until the
// context is cancelled. Intended to run in its own goroutine.
func (a *Archive) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.db == nil || a.db.IsClosed() {
				continue
			}
			var err error
			for {
				err = a.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				a.log.Errorf("Archive GC error: %v", err)
			}
		case <-ctx.Done():
			a.log.Debug("Archive GC goroutine stopping")
			return
		}
	}
}

// Close closes the underlying database
func (a *Archive) Close() error {
	if a.db == nil || a.db.IsClosed() {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	a.log.Info("Visited archive closed")
	return nil
}

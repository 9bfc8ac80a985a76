// Package wallog is a typed append-only log on top of a gowal write-ahead log.
package wallog

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultSegmentThreshold = 1000
	defaultMaxSegments      = 100
)

// Record a decoded entry with the WAL index it was written at.
type Record[T any] struct {
	Index uint64
	Value T
}

type envelope[T any] struct {
	Index uint64 `json:"index"`
	Value T      `json:"value"`
}

// Log appends JSON-encoded values under a key prefix. Old segments are
// rotated out by gowal, so readers only see the retained tail.
type Log[T any] struct {
	wal    *gowal.Wal
	prefix string
	mu     sync.RWMutex

	// tail caches the newest entry once it has been read or written
	tail     Record[T]
	hasTail  bool
	tailRead bool
}

// Open initializes a log under dir. keyPrefix separates entry kinds sharing a WAL.
func Open[T any](dir, segmentPrefix, keyPrefix string) (*Log[T], error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           segmentPrefix,
		SegmentThreshold: defaultSegmentThreshold,
		MaxSegments:      defaultMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "init WAL in %s", dir)
	}

	return &Log[T]{wal: wal, prefix: keyPrefix}, nil
}

// Append writes value and returns its index.
func (l *Log[T]) Append(key string, value T) (uint64, error) {
	if l == nil || l.wal == nil {
		return 0, errors.New("log is not initialized")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	index := l.wal.CurrentIndex() + 1
	payload, err := json.Marshal(envelope[T]{Index: index, Value: value})
	if err != nil {
		return 0, errors.Wrap(err, "marshal log entry")
	}
	if err := l.wal.Write(index, l.prefix+key, payload); err != nil {
		return 0, errors.Wrap(err, "write log entry")
	}
	l.tail = Record[T]{Index: index, Value: value}
	l.hasTail = true
	l.tailRead = true

	return index, nil
}

// After returns retained entries written after index, oldest first.
func (l *Log[T]) After(index uint64) ([]Record[T], error) {
	if l == nil || l.wal == nil {
		return nil, errors.New("log is not initialized")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.wal.CurrentIndex() <= index {
		return nil, nil
	}

	var records []Record[T]
	for msg := range l.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, l.prefix) {
			continue
		}
		var env envelope[T]
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			return nil, errors.Wrapf(err, "decode log entry %s", msg.Key)
		}
		if env.Index <= index {
			continue
		}
		records = append(records, Record[T]{Index: env.Index, Value: env.Value})
	}

	return records, nil
}

// Last returns the most recent retained entry. Only that entry is decoded,
// and the result is cached until the next Append.
func (l *Log[T]) Last() (Record[T], bool, error) {
	if l == nil || l.wal == nil {
		return Record[T]{}, false, errors.New("log is not initialized")
	}

	l.mu.RLock()
	if l.tailRead {
		defer l.mu.RUnlock()
		return l.tail, l.hasTail, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tailRead {
		return l.tail, l.hasTail, nil
	}

	var (
		key     string
		payload []byte
	)
	for msg := range l.wal.Iterator() {
		if strings.HasPrefix(msg.Key, l.prefix) {
			key, payload = msg.Key, msg.Value
		}
	}
	l.tailRead = true
	if payload == nil {
		return Record[T]{}, false, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(payload, &env); err != nil {
		l.tailRead = false
		return Record[T]{}, false, errors.Wrapf(err, "decode log entry %s", key)
	}
	l.tail = Record[T]{Index: env.Index, Value: env.Value}
	l.hasTail = true
	return l.tail, true, nil
}

// CurrentIndex returns the latest WAL index stored.
func (l *Log[T]) CurrentIndex() uint64 {
	if l == nil || l.wal == nil {
		return 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (l *Log[T]) Close() error {
	if l == nil || l.wal == nil {
		return errors.New("log is not initialized")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.wal.Close()
}

package storage

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"sunsetdb/pkg/common"
	"sunsetdb/pkg/core/memory"
	"sunsetdb/pkg/core/structure"
)

// SyncMode determines when appended records are synced to disk.
type SyncMode int

const (
	// SyncNone relies on the write call alone.
	SyncNone SyncMode = iota
	// SyncAlways fsyncs every record before acknowledging it.
	SyncAlways
)

func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SyncNone, nil
	case "always":
		return SyncAlways, nil
	}
	return SyncNone, fmt.Errorf("storage: unknown sync mode %q", s)
}

func (m SyncMode) String() string {
	if m == SyncAlways {
		return "always"
	}
	return "none"
}

type Options struct {
	Sync     SyncMode
	ReadOnly bool
	// BloomSize is the expected number of distinct keys.
	BloomSize      uint
	BloomFalseProb float64
}

func DefaultOptions() Options {
	return Options{
		Sync:           SyncNone,
		BloomSize:      100000,
		BloomFalseProb: 0.01,
	}
}

// LogStore is an append-only, last-write-wins key/value log in a single file.
//
// It is not safe for concurrent use. The engine worker is its only caller,
// which is what serializes appends and keeps the read view stable during a
// scan.
// logFile is the part of *os.File the store appends through.
type logFile interface {
	io.ReaderAt
	io.Writer
	io.Seeker
	Fd() uintptr
	Truncate(size int64) error
	Sync() error
	Close() error
}

type LogStore struct {
	path  string
	file  logFile
	view  readView
	size  int64
	count int
	opts  Options
	bloom *structure.BloomFilter

	broken error
	closed bool
}

// Open opens an existing log file. The file must already carry the reserved
// header; see CreateLogFile.
func Open(path string, opts Options) (*LogStore, error) {
	flag := os.O_RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Err: err}
	}
	if st.Size() < HeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrMissingHeader, path, st.Size())
	}

	s := &LogStore{
		path:  path,
		file:  f,
		size:  st.Size(),
		opts:  opts,
		bloom: structure.NewBloomFilter(opts.BloomSize, opts.BloomFalseProb),
	}
	if err := s.view.refresh(f, s.size); err != nil {
		f.Close()
		return nil, &IOError{Op: "map", Err: err}
	}

	end := s.scan(func(key, value []byte, deleted bool) bool {
		s.count++
		if !deleted {
			s.bloom.Add(key)
		}
		return true
	})

	if torn := s.size - int64(end); torn > 0 && !opts.ReadOnly {
		log.Printf("[Storage] %s: dropping %s torn tail at offset %d", path, humanize.Bytes(uint64(torn)), end)
		if err := s.view.close(); err != nil {
			f.Close()
			return nil, &IOError{Op: "unmap", Err: err}
		}
		if err := f.Truncate(int64(end)); err != nil {
			f.Close()
			return nil, &IOError{Op: "truncate", Err: err}
		}
		s.size = int64(end)
		if err := s.view.refresh(f, s.size); err != nil {
			f.Close()
			return nil, &IOError{Op: "map", Err: err}
		}
	}

	log.Printf("[Storage] Opened %s (%s, %d records, sync=%s)", path, humanize.Bytes(uint64(s.size)), s.count, opts.Sync)
	return s, nil
}

// scan walks every intact record after the header in append order and
// returns the offset just past the last one.
func (s *LogStore) scan(fn func(key, value []byte, deleted bool) bool) int {
	data := s.view.bytes()
	off := HeaderSize
	for {
		key, value, deleted, next, ok := decodeRecord(data, off)
		if !ok {
			return off
		}
		off = next
		if !fn(key, value, deleted) {
			return off
		}
	}
}

func (s *LogStore) usable() error {
	if s.closed {
		return ErrClosed
	}
	return s.broken
}

// Get returns the value of the last record written for key. Every record is
// visited; a later tombstone hides earlier values.
func (s *LogStore) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrKeyIsEmpty
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	if !s.bloom.Contains(key) {
		return nil, ErrKeyNotFound
	}

	var (
		found []byte
		live  bool
	)
	s.scan(func(k, v []byte, deleted bool) bool {
		if bytes.Equal(k, key) {
			found, live = v, !deleted
		}
		return true
	})
	if !live {
		return nil, ErrKeyNotFound
	}
	// the view is remapped on the next append
	return append([]byte{}, found...), nil
}

func (s *LogStore) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	if int64(len(value)) > MaxValueSize {
		return ErrValueTooLarge
	}
	if err := s.append(EncodeRecord(key, value, false)); err != nil {
		return err
	}
	s.bloom.Add(key)
	return nil
}

// Delete appends a tombstone for key. Deleting an absent key still appends.
func (s *LogStore) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsEmpty
	}
	return s.append(EncodeRecord(key, nil, true))
}

func (s *LogStore) append(rec []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	off, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return &IOError{Op: "seek", Err: err}
	}
	if n, err := s.file.Write(rec); err != nil {
		werr := &IOError{Op: "write", Err: err}
		if n > 0 {
			if berr := s.rollback(off, werr); berr != nil {
				return berr
			}
		}
		return werr
	}
	if s.opts.Sync == SyncAlways {
		if err := s.file.Sync(); err != nil {
			serr := &IOError{Op: "sync", Err: err}
			if berr := s.rollback(off, serr); berr != nil {
				return berr
			}
			return serr
		}
	}

	s.size = off + int64(len(rec))
	s.count++
	if err := s.view.refresh(s.file, s.size); err != nil {
		s.broken = fmt.Errorf("%w: %v", ErrBroken, err)
		return s.broken
	}
	return nil
}

// rollback cuts a partially written record off the end of the file so that
// later appends are not hidden behind it. If that fails the store is broken
// and the returned error says so.
func (s *LogStore) rollback(off int64, cause error) error {
	if err := s.file.Truncate(off); err != nil {
		s.broken = fmt.Errorf("%w: rollback to %d after %v: %v", ErrBroken, off, cause, err)
		log.Printf("[Storage] %v", s.broken)
		return s.broken
	}
	return nil
}

// Scan returns the live records with start <= key < end in key order. A nil
// bound is open. limit <= 0 means no limit.
func (s *LogStore) Scan(start, end []byte, limit int) ([]common.Record, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	mt := memory.NewMemTable(32)
	s.scan(func(k, v []byte, deleted bool) bool {
		if deleted {
			mt.Delete(k)
		} else {
			mt.Put(k, v)
		}
		return true
	})

	items := mt.Scan(start, end)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	res := make([]common.Record, len(items))
	for i, it := range items {
		res[i] = common.Record{
			Key:   append([]byte{}, it.Key...),
			Value: append([]byte{}, it.Val...),
		}
	}
	return res, nil
}

func (s *LogStore) Path() string { return s.path }

// Size is the physical length of the log file including the header.
func (s *LogStore) Size() int64 { return s.size }

// Count is the number of records in the log, tombstones included.
func (s *LogStore) Count() int { return s.count }

func (s *LogStore) Stats() map[string]interface{} {
	st := map[string]interface{}{
		"log_path":      s.path,
		"log_size":      s.size,
		"log_size_text": humanize.Bytes(uint64(s.size)),
		"log_records":   s.count,
		"sync":          s.opts.Sync.String(),
	}
	for k, v := range s.bloom.Stats() {
		st[k] = v
	}
	return st
}

func (s *LogStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	verr := s.view.close()
	if err := s.file.Close(); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	if verr != nil {
		return &IOError{Op: "unmap", Err: verr}
	}
	return nil
}

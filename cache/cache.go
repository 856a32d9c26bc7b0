// Package cache memoises scans. Results live in an in-memory LRU and, when a
// directory is configured, as container files next to a JSON index that
// maps human-readable titles to file names.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan"
	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/scan"
)

const (
	// DefaultEntries is the LRU size used when none is given.
	DefaultEntries = 16
	// IndexFile is the name of the JSON index inside the cache directory.
	IndexFile = ".cache_info"
	fileExt   = ".sbuf"
)

// Key identifies a scan: the content digest plus every parameter that
// changes the resulting container.
type Key struct {
	Digest     [sha256.Size]byte
	DataBits   int
	Method     scan.Method
	SizeOfSize int
}

// KeyFor computes the key of scanning buf with the given parameters.
func KeyFor(buf []byte, dataBits int, method scan.Method, sizeOfSize int) Key {
	if sizeOfSize == 0 {
		sizeOfSize = huffscan.DefaultSizeOfSize
	}
	return Key{Digest: sha256.Sum256(buf), DataBits: dataBits, Method: method, SizeOfSize: sizeOfSize}
}

// File returns the on-disk name of the entry.
func (k Key) File() string {
	return fmt.Sprintf("%s-w%d-%s-s%d%s", hex.EncodeToString(k.Digest[:]), k.DataBits, k.Method, k.SizeOfSize, fileExt)
}

// IndexEntry describes one persisted scan.
type IndexEntry struct {
	File       string    `json:"file"`
	Digest     string    `json:"digest"`
	DataBits   int       `json:"data_bits"`
	Method     string    `json:"method"`
	SizeOfSize int       `json:"size_of_size"`
	BufferSize uint64    `json:"buffer_size"`
	Unique     int       `json:"unique"`
	Created    time.Time `json:"created"`
}

// Stats counts lookups.
type Stats struct {
	Hits     uint64
	DiskHits uint64
	Misses   uint64
}

// Scans is a scan cache. It is safe for concurrent use.
type Scans struct {
	mem *lru.Cache[Key, *huffscan.SegmentedBuffer]
	dir string
	log logrus.FieldLogger

	mu    sync.Mutex
	index map[string]IndexEntry

	hits, diskHits, misses atomic.Uint64
}

// New creates a cache holding up to entries scans in memory. An empty dir
// disables persistence; otherwise the directory is created if needed and
// its index loaded.
func New(entries int, dir string, logger logrus.FieldLogger) (*Scans, error) {
	if entries < 0 {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "cache entries %d", entries)
	}
	if entries == 0 {
		entries = DefaultEntries
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	mem, err := lru.New[Key, *huffscan.SegmentedBuffer](entries)
	if err != nil {
		return nil, errors.Wrap(err, "create lru")
	}
	s := &Scans{mem: mem, dir: dir, log: logger, index: map[string]IndexEntry{}}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the cache directory, or "" when nothing is persisted.
func (s *Scans) Dir() string { return s.dir }

// Len returns the number of scans held in memory.
func (s *Scans) Len() int { return s.mem.Len() }

// Stats returns the lookup counters.
func (s *Scans) Stats() Stats {
	return Stats{Hits: s.hits.Load(), DiskHits: s.diskHits.Load(), Misses: s.misses.Load()}
}

// Index returns a copy of the persisted entries keyed by title.
func (s *Scans) Index() map[string]IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]IndexEntry, len(s.index))
	for k, v := range s.index {
		out[k] = v
	}
	return out
}

// Scan returns the scan of buf, computing it only when neither memory nor
// disk has it. title labels the entry in the index; an empty title leaves
// the index untouched. The result is the caller's own copy.
func (s *Scans) Scan(title string, buf []byte, dataBits int, method scan.Method, sizeOfSize int) (*huffscan.SegmentedBuffer, error) {
	key := KeyFor(buf, dataBits, method, sizeOfSize)
	log := s.log.WithFields(logrus.Fields{"title": title, "data_bits": dataBits, "method": method})

	if sb, ok := s.mem.Get(key); ok {
		s.hits.Add(1)
		log.Debug("cache hit")
		return sb.Clone(), nil
	}
	if sb := s.readDisk(key, uint64(len(buf)), log); sb != nil {
		s.diskHits.Add(1)
		s.mem.Add(key, sb.Clone())
		log.Debug("cache disk hit")
		if title != "" {
			if err := s.recordIndex(title, key, sb); err != nil {
				return nil, err
			}
		}
		return sb, nil
	}

	s.misses.Add(1)
	sb, err := huffscan.ScanBuffer(buf, dataBits, method,
		huffscan.WithSizeOfSize(key.SizeOfSize), huffscan.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.mem.Add(key, sb.Clone())
	if s.dir != "" {
		if err := s.writeDisk(title, key, sb); err != nil {
			return nil, err
		}
	}
	log.WithField("unique", sb.Unique()).Debug("cache miss")
	return sb, nil
}

// Purge drops the in-memory entries. Files on disk are kept.
func (s *Scans) Purge() { s.mem.Purge() }

func (s *Scans) readDisk(key Key, size uint64, log logrus.FieldLogger) *huffscan.SegmentedBuffer {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, key.File()))
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("reading cached scan")
		}
		return nil
	}
	sb := new(huffscan.SegmentedBuffer)
	if err := sb.UnmarshalBinary(data); err != nil {
		log.WithError(err).Warn("discarding corrupt cached scan")
		return nil
	}
	if sb.DataBits != key.DataBits || sb.Method != key.Method || sb.SizeOfSize != key.SizeOfSize || sb.BufferSize != size {
		log.Warn("discarding mismatched cached scan")
		return nil
	}
	return sb
}

func (s *Scans) writeDisk(title string, key Key, sb *huffscan.SegmentedBuffer) error {
	data, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, key.File()), data); err != nil {
		return err
	}
	if title == "" {
		return nil
	}
	return s.recordIndex(title, key, sb)
}

func (s *Scans) recordIndex(title string, key Key, sb *huffscan.SegmentedBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[title] = IndexEntry{
		File:       key.File(),
		Digest:     hex.EncodeToString(key.Digest[:]),
		DataBits:   key.DataBits,
		Method:     key.Method.String(),
		SizeOfSize: key.SizeOfSize,
		BufferSize: sb.BufferSize,
		Unique:     sb.Unique(),
		Created:    time.Now().UTC(),
	}
	return s.saveIndexLocked()
}

func (s *Scans) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, IndexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read cache index")
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return errors.Wrapf(errs.ErrFormatMismatch, "cache index %s: %v", filepath.Join(s.dir, IndexFile), err)
	}
	return nil
}

func (s *Scans) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode cache index")
	}
	return writeAtomic(filepath.Join(s.dir, IndexFile), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename %s", path)
}

package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"ddash/internal/fileutil"
	"ddash/internal/logging"
	"ddash/internal/services"
)

// Entry maps one raw file to its artifact. Paths are relative to the
// warehouse base directory.
type Entry struct {
	Type    string `json:"type"`
	DDJSON  string `json:"dd_json"`
	RawData string `json:"raw_data"`
}

// Options controls how the manifest is written.
type Options struct {
	FileMode os.FileMode
	DirMode  os.FileMode
	Logger   *slog.Logger
}

type slot struct {
	entry Entry
	live  bool
}

// Store is the in-memory manifest bound to a document path.
type Store struct {
	path     string
	fileMode os.FileMode
	dirMode  os.FileMode
	logger   *slog.Logger

	mu    sync.RWMutex
	slots []slot
	index  map[string]int      // raw path -> slot
	owners map[string][]string // dd_json -> raw paths
	dead   int
}

// New returns an empty store for path. Call Load to read the persisted document.
func New(path string, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	return &Store{
		path:     path,
		fileMode: opts.FileMode,
		dirMode:  opts.DirMode,
		logger:   logging.NewComponentLogger(logger, "manifest"),
		index:    make(map[string]int),
		owners:   make(map[string][]string),
	}
}

// Path returns the manifest document location.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory entries with the persisted document. A missing
// or empty document yields an empty manifest. Duplicate raw paths collapse
// to the last occurrence.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.Reset()
			return nil
		}
		return services.Wrap(services.ErrManifestCorrupt, "manifest", "load", "read manifest", err)
	}

	var entries []Entry
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return services.Wrap(services.ErrManifestCorrupt, "manifest", "load", "parse manifest", err)
		}
	}

	s.Reset()
	duplicates := 0
	for _, entry := range entries {
		if strings.TrimSpace(entry.RawData) == "" {
			continue
		}
		if s.Upsert(entry) {
			duplicates++
		}
	}
	if duplicates > 0 {
		logging.WarnWithContext(s.logger, "manifest contained duplicate raw paths", "manifest_duplicates",
			logging.Int("duplicates", duplicates),
			logging.String("path", s.path),
			logging.String(logging.FieldImpact, "older duplicates dropped on next save"),
		)
	}

	s.logger.Debug("loaded dashboard manifest",
		logging.Int("entry_count", s.Len()),
		logging.String("path", s.path))
	return nil
}

// Upsert stores entry under its raw path, replacing an existing entry in
// place. It reports whether an entry was replaced.
func (s *Store) Upsert(entry Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[entry.RawData]; ok {
		s.dropOwnerLocked(s.slots[i].entry)
		s.slots[i].entry = entry
		s.addOwnerLocked(entry)
		return true
	}
	s.index[entry.RawData] = len(s.slots)
	s.slots = append(s.slots, slot{entry: entry, live: true})
	s.addOwnerLocked(entry)
	return false
}

// Remove deletes the entry for rawPath and returns it.
func (s *Store) Remove(rawPath string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rawPath]
	if !ok {
		return Entry{}, false
	}
	entry := s.slots[i].entry
	s.slots[i] = slot{}
	delete(s.index, rawPath)
	s.dropOwnerLocked(entry)
	s.dead++
	if s.dead > len(s.index) {
		s.compactLocked()
	}
	return entry, true
}

// Lookup returns the entry for rawPath.
func (s *Store) Lookup(rawPath string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[rawPath]
	if !ok {
		return Entry{}, false
	}
	return s.slots[i].entry, true
}

// OwnerOf returns the raw path of the first live entry whose artifact is
// ddJSON.
func (s *Store) OwnerOf(ddJSON string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raws := s.owners[ddJSON]
	if len(raws) == 0 {
		return "", false
	}
	return raws[0], true
}

// Entries returns a copy of the live entries in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.index))
	for _, sl := range s.slots {
		if sl.live {
			out = append(out, sl.entry)
		}
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = nil
	s.index = make(map[string]int)
	s.owners = make(map[string][]string)
	s.dead = 0
}

// Save writes the manifest atomically. An empty manifest is written as [].
func (s *Store) Save() error {
	entries := s.Entries()
	if err := fileutil.WriteJSONAtomic(s.path, entries, s.fileMode, s.dirMode); err != nil {
		return services.Wrap(services.ErrManifestWrite, "manifest", "save", s.path, err)
	}
	s.logger.Debug("saved dashboard manifest",
		logging.Int("entry_count", len(entries)),
		logging.String("path", s.path))
	return nil
}

func (s *Store) compactLocked() {
	live := make([]slot, 0, len(s.index))
	for _, sl := range s.slots {
		if sl.live {
			s.index[sl.entry.RawData] = len(live)
			live = append(live, sl)
		}
	}
	s.slots = live
	s.dead = 0
}

func (s *Store) addOwnerLocked(entry Entry) {
	s.owners[entry.DDJSON] = append(s.owners[entry.DDJSON], entry.RawData)
}

func (s *Store) dropOwnerLocked(entry Entry) {
	raws := s.owners[entry.DDJSON]
	for i, raw := range raws {
		if raw == entry.RawData {
			raws = append(raws[:i], raws[i+1:]...)
			break
		}
	}
	if len(raws) == 0 {
		delete(s.owners, entry.DDJSON)
		return
	}
	s.owners[entry.DDJSON] = raws
}

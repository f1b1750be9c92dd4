// Package store implements the durable, section-based key/value file that
// holds machine-managed state: the authentication tokens, discovered
// endpoints and account settings.
//
// The file is created lazily by Init inside a 0700 directory with 0600
// permissions. Init runs at most once per Store; if the file cannot be
// created the Store keeps working in memory and Write reports the failure as
// a config error, so a caller can continue without persistence. A file whose
// content does not parse is copied to a .bak file and replaced on the next
// Write.
package store

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/fileutil"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Well-known section names.
const (
	SectionDefault   = "default"
	SectionSettings  = "settings"
	SectionAuth      = "authentication"
	SectionEndpoints = "endpoints"
)

// FormatVersion is written to the default section on every Write.
const FormatVersion = "1.0"

// ErrNotInitialized is returned by Write when Init was never called.
var ErrNotInitialized = errors.New("store not initialized")

// Store is a section-based key/value file.
type Store struct {
	mu       sync.Mutex
	path     string
	sections map[string]map[string]string
	inited   bool
	initErr  error
	// discarded is set when initErr reports unparsable content; the
	// file itself is still writable.
	discarded bool
}

// New returns a Store backed by the file at path. Nothing is touched on
// disk until Init is called.
func New(path string) *Store {
	return &Store{
		path:     path,
		sections: make(map[string]map[string]string),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Init prepares the backing file and loads its content. It is safe to call
// any number of times; only the first call touches the filesystem and its
// result is returned from every later call.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inited {
		return s.initErr
	}
	s.inited = true
	s.initErr = s.load()
	return s.initErr
}

func (s *Store) load() error {
	if err := fileutil.EnsurePrivateDir(filepath.Dir(s.path)); err != nil {
		return configError("could not create config directory", s.path, err)
	}
	if err := fileutil.TouchPrivate(s.path); err != nil {
		return configError("could not write to config file", s.path, err)
	}

	// #nosec G304 -- path is derived from the configured iotc home
	data, err := os.ReadFile(s.path)
	if err != nil {
		return configError("could not read config file", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.discarded = true
		details := map[string]string{"path": s.path}
		if bakErr := fileutil.WriteAtomic(BackupPath(s.path), data, fileutil.PrivateFilePerm); bakErr == nil {
			details["backup"] = BackupPath(s.path)
		}
		return iotcerr.WithDetails(
			iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrConfigInvalid, "state file is invalid and was reset"), err),
			details,
		)
	}
	for name, values := range raw {
		if values == nil {
			values = make(map[string]string)
		}
		s.sections[name] = values
	}
	return nil
}

// Ready reports whether Init ran and Write can persist.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inited && (s.initErr == nil || s.discarded)
}

// Discarded reports whether Init found unparsable content and started
// from empty sections.
func (s *Store) Discarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// BackupPath is where unparsable content of path is preserved.
func BackupPath(path string) string {
	return path + ".bak"
}

// HasSection reports whether the named section exists.
func (s *Store) HasSection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sections[name]
	return ok
}

// Sections returns the section names in sorted order.
func (s *Store) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.sections))
}

// Section returns a handle to the named section, creating it if needed.
func (s *Store) Section(name string) *Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.section(name)
	return &Section{store: s, name: name}
}

// Values returns a copy of the named section. A missing section yields an
// empty map and is not created.
func (s *Store) Values(name string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.sections[name])
}

// Update merges values into the named section, creating it if needed.
func (s *Store) Update(name string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.section(name), values)
}

// RemoveSection deletes the named section.
func (s *Store) RemoveSection(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sections, name)
}

// Write persists every section to disk atomically.
func (s *Store) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inited {
		return iotcerr.WithCause(iotcerr.ErrConfig, ErrNotInitialized)
	}
	if s.initErr != nil && !s.discarded {
		return s.initErr
	}

	s.section(SectionDefault)["version"] = FormatVersion

	data, err := yaml.Marshal(s.sections)
	if err != nil {
		return configError("could not encode config file", s.path, err)
	}
	if err := fileutil.WriteAtomic(s.path, data, fileutil.PrivateFilePerm); err != nil {
		return configError("could not write to config file", s.path, err)
	}
	return nil
}

// section returns the live map for name. Caller holds s.mu.
func (s *Store) section(name string) map[string]string {
	sec, ok := s.sections[name]
	if !ok {
		sec = make(map[string]string)
		s.sections[name] = sec
	}
	return sec
}

func configError(msg, path string, err error) error {
	return iotcerr.WithDetails(
		iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrConfig, "%s", msg), err),
		map[string]string{"path": path},
	)
}

// Section is a handle to one named section of a Store. All access goes
// through the owning Store's lock.
type Section struct {
	store *Store
	name  string
}

// Name returns the section name.
func (sec *Section) Name() string {
	return sec.name
}

// Get returns the value for key and whether it was present.
func (sec *Section) Get(key string) (string, bool) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	v, ok := sec.store.sections[sec.name][key]
	return v, ok
}

// Set stores value under key.
func (sec *Section) Set(key, value string) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	sec.store.section(sec.name)[key] = value
}

// Delete removes key.
func (sec *Section) Delete(key string) {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	delete(sec.store.sections[sec.name], key)
}

// Keys returns the keys of the section in sorted order.
func (sec *Section) Keys() []string {
	sec.store.mu.Lock()
	defer sec.store.mu.Unlock()
	return slices.Sorted(maps.Keys(sec.store.sections[sec.name]))
}

func (sec *Section) String() string {
	return fmt.Sprintf("[%s]", sec.name)
}

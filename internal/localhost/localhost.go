// Package localhost implements the offline "localhost" operation mode: flag
// and segment definitions are read from a YAML file on disk instead of the
// control plane, with optional fsnotify-driven hot reload. Grounded on the
// teacher's internal/runtime HotReloadSystem (fsnotify.Watcher + yaml.v3 +
// checksum-based change detection).
package localhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/99souls/flagengine/internal/dto"
)

// FileDefinitions is the on-disk shape of a localhost definitions file.
type FileDefinitions struct {
	Flags    []dto.FeatureFlag `yaml:"flags"`
	Segments []dto.Segment     `yaml:"segments"`
}

// Snapshot is a parsed, checksummed definitions file.
type Snapshot struct {
	Definitions FileDefinitions
	Checksum    string
}

// Load reads and parses the definitions file at path. A missing file yields
// an empty snapshot rather than an error, matching the teacher's
// loadConfigFromFile behavior for a not-yet-created config.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("localhost: read definitions file: %w", err)
	}
	var defs FileDefinitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return Snapshot{}, fmt.Errorf("localhost: parse definitions file: %w", err)
	}
	sum := sha256.Sum256(data)
	return Snapshot{Definitions: defs, Checksum: hex.EncodeToString(sum[:])}, nil
}

// Source is a SplitAPI/SegmentAPI substitute that never issues HTTP calls:
// it serves the most recently loaded file snapshot and, when watching,
// notifies callers of changes via a channel of new Snapshots.
type Source struct {
	path string

	mu      sync.RWMutex
	current Snapshot

	watcher    *fsnotify.Watcher
	isWatching bool
	watchMu    sync.Mutex
}

// NewSource builds a Source and performs the initial load.
func NewSource(path string) (*Source, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Source{path: path, current: snap}, nil
}

// Current returns the most recently loaded snapshot.
func (s *Source) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the definitions file and swaps in a new snapshot if its
// checksum differs from the currently held one. Returns whether it changed.
func (s *Source) Reload() (bool, error) {
	snap, err := Load(s.path)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Checksum == s.current.Checksum {
		return false, nil
	}
	s.current = snap
	return true, nil
}

// Watch starts an fsnotify watch on the definitions file's directory and
// emits a new Snapshot on the returned channel whenever the file's content
// checksum changes. Both channels close when ctx is done or StopWatching is
// called.
// Calling Watch twice on the same Source is a no-op returning closed channels.
func (s *Source) Watch(ctx context.Context) (<-chan Snapshot, <-chan error) {
	changes := make(chan Snapshot, 4)
	errs := make(chan error, 4)

	s.watchMu.Lock()
	if s.isWatching {
		s.watchMu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.watchMu.Unlock()
		errs <- fmt.Errorf("localhost: create file watcher: %w", err)
		close(changes)
		close(errs)
		return changes, errs
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		s.watchMu.Unlock()
		_ = watcher.Close()
		errs <- fmt.Errorf("localhost: watch dir %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	s.watcher = watcher
	s.isWatching = true
	s.watchMu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				changed, err := s.Reload()
				if err != nil {
					errs <- err
					continue
				}
				if changed {
					changes <- s.Current()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, errs
}

// StopWatching closes the fsnotify watcher, idempotent.
func (s *Source) StopWatching() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if !s.isWatching {
		return nil
	}
	s.isWatching = false
	return s.watcher.Close()
}

package assembly

import (
	"sync"

	"dockwatch/fs"
	"dockwatch/target"

	"github.com/pkg/errors"
)

// Source hands out change sets for watched targets, one tracker per target.
type Source struct {
	fs       fs.FileSystem
	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewSource(filesystem fs.FileSystem) *Source {
	return &Source{
		fs:       filesystem,
		trackers: make(map[string]*Tracker),
	}
}

// Track primes change tracking for a target's assembly. Must be called once
// per target before UpdatedEntriesAndRefresh.
func (s *Source) Track(t *target.Target) error {
	if t.Build == nil || t.Build.AssemblyDir == "" {
		return errors.Errorf("target %s has no assembly to track", t.Name)
	}

	tracker := NewTracker(s.fs, t.Build.AssemblyDir, t.Build.AssemblyPatterns)
	if err := tracker.Prime(); err != nil {
		return errors.Wrapf(err, "failed to prime assembly tracking for %s", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[t.Name] = tracker
	return nil
}

// UpdatedEntriesAndRefresh reports the target's assembly entries changed
// since the last check and advances the checkpoint.
func (s *Source) UpdatedEntriesAndRefresh(t *target.Target) (ChangeSet, error) {
	s.mu.Lock()
	tracker, ok := s.trackers[t.Name]
	s.mu.Unlock()
	if !ok {
		return ChangeSet{}, errors.Errorf("target %s is not tracked", t.Name)
	}
	return tracker.UpdatedEntriesAndRefresh()
}

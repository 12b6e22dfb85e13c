package assembly

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	iofs "io/fs"

	"dockwatch/fs"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ChangeSet is a snapshot of assembly entries that changed since the
// previous check. Entries are paths relative to Dir; an empty set means no
// drift.
type ChangeSet struct {
	Entries []string
	Dir     string
}

// Tracker watches one target's assembly files for content changes. Each call
// to UpdatedEntriesAndRefresh advances the checkpoint in the same step that
// reports the changes, so a given change is delivered at most once.
type Tracker struct {
	fs       fs.FileSystem
	dir      string
	patterns []string
	snapshot map[string]string
}

// NewTracker creates a tracker over the assembly dir. Patterns are doublestar
// globs relative to dir; an empty pattern list tracks everything under it.
func NewTracker(filesystem fs.FileSystem, dir string, patterns []string) *Tracker {
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}
	return &Tracker{
		fs:       filesystem,
		dir:      dir,
		patterns: patterns,
	}
}

// Prime establishes the baseline snapshot. Files present at prime time are
// not reported as changes on the first check.
func (t *Tracker) Prime() error {
	snapshot, err := t.scan()
	if err != nil {
		return errors.Wrap(err, "failed to scan assembly files")
	}
	t.snapshot = snapshot
	return nil
}

// UpdatedEntriesAndRefresh returns the entries added or modified since the
// previous call and replaces the snapshot. The checkpoint advances even if
// the caller later fails to act on the result.
func (t *Tracker) UpdatedEntriesAndRefresh() (ChangeSet, error) {
	current, err := t.scan()
	if err != nil {
		return ChangeSet{}, errors.Wrap(err, "failed to scan assembly files")
	}

	var changed []string
	for path, hash := range current {
		if old, ok := t.snapshot[path]; !ok || old != hash {
			changed = append(changed, path)
		}
	}
	slices.Sort(changed)

	t.snapshot = current

	return ChangeSet{Entries: changed, Dir: t.dir}, nil
}

func (t *Tracker) scan() (map[string]string, error) {
	stamps := make(map[string]string)

	for _, pattern := range t.patterns {
		matches, err := t.fs.DoublestarGlob(filepath.Join(t.dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "error expanding glob pattern %s", pattern)
		}
		for _, match := range matches {
			err := t.fs.WalkDir(match, func(path string, d iofs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				hash, err := t.hashFile(path)
				if err != nil {
					return err
				}
				rel, err := filepath.Rel(t.dir, path)
				if err != nil {
					return err
				}
				stamps[rel] = hash
				return nil
			})
			if err != nil {
				return nil, errors.Wrapf(err, "error walking %s", match)
			}
		}
	}

	return stamps, nil
}

func (t *Tracker) hashFile(path string) (string, error) {
	content, err := t.fs.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:]), nil
}

package watch

import (
	"time"

	"dockwatch/config"
	"dockwatch/target"
)

// minInterval is the floor applied to configured watch intervals to avoid
// pathological tight poll loops.
const minInterval = 100 * time.Millisecond

// Watcher holds the per-target watch state: the resolved watch settings plus
// the last known image and container ids. The mutable ids are only touched
// from the scheduler worker, which serializes all jobs, so plain fields with
// swap-returning-old semantics are enough.
type Watcher struct {
	Target *target.Target

	interval time.Duration
	mode     target.WatchMode
	postGoal string
	postExec string

	imageID     string
	containerID string
}

// NewWatcher resolves the target's watch spec against the session defaults,
// field by field, and seeds the state with the initially observed ids. An
// empty containerID means the target has no running container.
func NewWatcher(t *target.Target, defaults config.SessionDefaults, imageID, containerID string) *Watcher {
	w := &Watcher{
		Target:      t,
		interval:    time.Duration(defaults.Interval) * time.Millisecond,
		mode:        defaults.Mode,
		postGoal:    defaults.PostGoal,
		postExec:    defaults.PostExec,
		imageID:     imageID,
		containerID: containerID,
	}

	if spec := t.Watch; spec != nil {
		if spec.Interval > 0 {
			w.interval = time.Duration(spec.Interval) * time.Millisecond
		}
		if spec.Mode != target.ModeUnset {
			w.mode = spec.Mode
		}
		if spec.PostGoal != "" {
			w.postGoal = spec.PostGoal
		}
		if spec.PostExec != "" {
			w.postExec = spec.PostExec
		}
	}

	if w.interval < minInterval {
		w.interval = minInterval
	}

	return w
}

func (w *Watcher) Interval() time.Duration { return w.interval }
func (w *Watcher) Mode() target.WatchMode  { return w.mode }
func (w *Watcher) PostGoal() string        { return w.postGoal }
func (w *Watcher) PostExec() string        { return w.postExec }

func (w *Watcher) ImageID() string     { return w.imageID }
func (w *Watcher) ContainerID() string { return w.containerID }

func (w *Watcher) SetImageID(id string)     { w.imageID = id }
func (w *Watcher) SetContainerID(id string) { w.containerID = id }
func (w *Watcher) ClearContainerID()        { w.containerID = "" }

// GetAndSetImageID stores the newly observed id and returns the previous
// one, so drift detection is a side effect of the update itself.
func (w *Watcher) GetAndSetImageID(id string) string {
	old := w.imageID
	w.imageID = id
	return old
}

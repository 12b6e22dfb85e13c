package watch

import (
	"testing"
	"time"

	"dockwatch/config"
	"dockwatch/target"
)

func testDefaults() config.SessionDefaults {
	return config.SessionDefaults{
		Mode:     target.ModeBoth,
		Interval: 5000,
		PostGoal: "default-goal",
		PostExec: "default-exec",
	}
}

func TestWatcherIntervalFloor(t *testing.T) {
	cases := []struct {
		name     string
		interval int
		want     time.Duration
	}{
		{"below floor", 10, 100 * time.Millisecond},
		{"at floor", 100, 100 * time.Millisecond},
		{"above floor", 500, 500 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tgt := &target.Target{
				Name:  "app",
				Watch: &target.WatchSpec{Interval: tc.interval},
			}
			w := NewWatcher(tgt, testDefaults(), "img", "ctr")
			if w.Interval() != tc.want {
				t.Errorf("interval %d resolved to %v, want %v", tc.interval, w.Interval(), tc.want)
			}
		})
	}
}

func TestWatcherIntervalDefault(t *testing.T) {
	w := NewWatcher(&target.Target{Name: "app"}, testDefaults(), "img", "ctr")
	if w.Interval() != 5*time.Second {
		t.Errorf("expected session default interval, got %v", w.Interval())
	}
}

func TestWatcherModeResolution(t *testing.T) {
	tgt := &target.Target{
		Name:  "app",
		Watch: &target.WatchSpec{Mode: target.ModeSync},
	}
	w := NewWatcher(tgt, testDefaults(), "img", "ctr")
	if w.Mode() != target.ModeSync {
		t.Errorf("target-level mode should win, got %v", w.Mode())
	}

	w = NewWatcher(&target.Target{Name: "app", Watch: &target.WatchSpec{}}, testDefaults(), "img", "ctr")
	if w.Mode() != target.ModeBoth {
		t.Errorf("unset mode should fall through to session default, got %v", w.Mode())
	}
}

func TestWatcherHookResolution(t *testing.T) {
	tgt := &target.Target{
		Name:  "app",
		Watch: &target.WatchSpec{PostGoal: "custom-goal"},
	}
	w := NewWatcher(tgt, testDefaults(), "img", "ctr")
	if w.PostGoal() != "custom-goal" {
		t.Errorf("expected target post goal, got %q", w.PostGoal())
	}
	if w.PostExec() != "default-exec" {
		t.Errorf("expected default post exec to fall through, got %q", w.PostExec())
	}
}

func TestWatcherGetAndSetImageID(t *testing.T) {
	w := NewWatcher(&target.Target{Name: "app"}, testDefaults(), "a", "ctr")

	history := []string{"a", "b", "b", "c"}
	previous := "a"
	for _, id := range history[1:] {
		got := w.GetAndSetImageID(id)
		if got != previous {
			t.Errorf("GetAndSetImageID(%q) returned %q, want previous value %q", id, got, previous)
		}
		drift := got != id
		wantDrift := previous != id
		if drift != wantDrift {
			t.Errorf("drift for %q -> %q: got %v, want %v", previous, id, drift, wantDrift)
		}
		previous = id
	}

	if w.ImageID() != "c" {
		t.Errorf("final image id %q, want c", w.ImageID())
	}
}

func TestWatcherContainerIDLifecycle(t *testing.T) {
	w := NewWatcher(&target.Target{Name: "app"}, testDefaults(), "img", "old")
	if w.ContainerID() != "old" {
		t.Fatalf("initial container id %q", w.ContainerID())
	}
	w.ClearContainerID()
	if w.ContainerID() != "" {
		t.Errorf("expected empty container id after clear, got %q", w.ContainerID())
	}
	w.SetContainerID("new")
	if w.ContainerID() != "new" {
		t.Errorf("expected new container id, got %q", w.ContainerID())
	}
}

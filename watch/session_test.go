package watch

import (
	"context"
	"strings"
	"testing"
	"time"

	"dockwatch/config"
	"dockwatch/target"

	"github.com/pkg/errors"
)

func sessionConfig(targets map[string]*target.Target) *config.Config {
	return &config.Config{
		Targets: targets,
		Defaults: config.SessionDefaults{
			Mode:     target.ModeBoth,
			Interval: 5000,
		},
		Hooks: map[string]string{"notify": "true"},
	}
}

func newTestSession(cfg *config.Config, changes *mockChangeSource, runtime *mockRuntime) *Session {
	return &Session{
		Config:  cfg,
		Changes: changes,
		Build:   &mockBuildGateway{},
		Runtime: runtime,
		Hooks:   &mockHooks{},
		Status:  NewStatusManager(),
	}
}

func runBriefly(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("session run failed: %v", err)
	}
}

func TestSessionRegistersTasksByMode(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Build: &target.BuildSpec{AssemblyDir: "dist", BaseDir: "/srv/app"},
			Watch: &target.WatchSpec{Mode: target.ModeBoth},
		},
	})
	changes := &mockChangeSource{}
	runtime := &mockRuntime{
		ContainerIDFunc: func(string) (string, error) { return "ctr-a", nil },
	}
	s := newTestSession(cfg, changes, runtime)

	runBriefly(t, s)

	tasks := s.Status.Snapshot("app").Tasks
	want := "rebuilding and restarting"
	if got := strings.Join(tasks, " and "); got != want {
		t.Errorf("registered tasks %q, want %q", got, want)
	}
	if len(changes.tracked) != 1 || changes.tracked[0] != "app" {
		t.Errorf("change tracking not primed for app: %v", changes.tracked)
	}
}

func TestSessionSyncModeRegistersCopyOnly(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Build: &target.BuildSpec{AssemblyDir: "dist", BaseDir: "/srv/app"},
			Watch: &target.WatchSpec{Mode: target.ModeSync},
		},
	})
	runtime := &mockRuntime{
		ContainerIDFunc: func(string) (string, error) { return "ctr-a", nil },
	}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	runBriefly(t, s)

	tasks := s.Status.Snapshot("app").Tasks
	if len(tasks) != 1 || tasks[0] != "copying artifacts" {
		t.Errorf("sync mode should register only the copy task, got %v", tasks)
	}
}

func TestSessionSkipsTargetWithNothingToWatch(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		// Run mode but no running container and no build spec.
		"idle": {
			Name:  "idle",
			Watch: &target.WatchSpec{Mode: target.ModeRun},
		},
	})
	runtime := &mockRuntime{}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	runBriefly(t, s)

	if got := s.Status.Snapshot("idle"); got.State != "" {
		t.Errorf("target with no applicable action should be skipped, status %+v", got)
	}
}

func TestSessionRestartNeedsExistingContainer(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Watch: &target.WatchSpec{Mode: target.ModeRun},
		},
	})
	// No container running at session start.
	runtime := &mockRuntime{
		ContainerIDFunc: func(string) (string, error) { return "", nil },
	}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	runBriefly(t, s)

	if tasks := s.Status.Snapshot("app").Tasks; len(tasks) != 0 {
		t.Errorf("restart watch registered without a running container: %v", tasks)
	}
}

func TestSessionSetupErrorAbortsBeforeScheduling(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Build: &target.BuildSpec{AssemblyDir: "dist"},
		},
	})
	runtime := &mockRuntime{
		ImageIDFunc: func(string) (string, error) { return "", errors.New("no such image") },
	}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected setup error")
	}
	if !strings.Contains(err.Error(), "app") {
		t.Errorf("setup error should name the target: %v", err)
	}
}

func TestSessionCleanupStopsContainers(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Watch: &target.WatchSpec{Mode: target.ModeRun, Interval: 60000},
		},
	})
	var calls []string
	runtime := &mockRuntime{
		calls:           &calls,
		ContainerIDFunc: func(string) (string, error) { return "ctr-a", nil },
	}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	runBriefly(t, s)

	stopped := false
	for _, call := range calls {
		if strings.HasPrefix(call, "StopContainer ctr-a") {
			stopped = true
		}
	}
	if !stopped {
		t.Errorf("container not stopped during cleanup, calls %v", calls)
	}
}

func TestSessionKeepRunningSkipsCleanup(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"app": {
			Name:  "app",
			Watch: &target.WatchSpec{Mode: target.ModeRun, Interval: 60000},
		},
	})
	cfg.Defaults.KeepRunning = true

	var calls []string
	runtime := &mockRuntime{
		calls:           &calls,
		ContainerIDFunc: func(string) (string, error) { return "ctr-a", nil },
	}
	s := newTestSession(cfg, &mockChangeSource{}, runtime)

	runBriefly(t, s)

	for _, call := range calls {
		if strings.HasPrefix(call, "StopContainer") {
			t.Errorf("keep-running session must not stop containers, calls %v", calls)
		}
	}
}

func TestSessionDependencyCycleIsSetupError(t *testing.T) {
	cfg := sessionConfig(map[string]*target.Target{
		"a": {Name: "a", DependsOn: []string{"b"}},
		"b": {Name: "b", DependsOn: []string{"a"}},
	})
	s := newTestSession(cfg, &mockChangeSource{}, &mockRuntime{})

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected dependency cycle to abort the session")
	}
}

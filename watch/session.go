package watch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dockwatch/config"
	"dockwatch/target"

	"github.com/pkg/errors"
)

// Session translates the configured target set into scheduler registrations,
// waits for cancellation, and tears everything down.
type Session struct {
	Config  *config.Config
	Changes ChangeSource
	Build   BuildGateway
	Runtime RuntimeGateway
	Hooks   HookInvoker
	Status  StatusManager

	// LogOutput mirrors progress to stdout/log. Off when the TUI owns the
	// terminal.
	LogOutput bool

	watchers []*Watcher
}

// Run sets up watching for every target and blocks until ctx is cancelled.
// Setup errors abort before any tick has fired; per-tick errors never reach
// here. On return the scheduler is shut down on every path, and unless the
// session is configured to keep containers running the started containers
// are stopped.
func (s *Session) Run(ctx context.Context) error {
	scheduler := NewScheduler()
	defer scheduler.Shutdown()

	reconciler := &Reconciler{
		Changes:   s.Changes,
		Build:     s.Build,
		Runtime:   s.Runtime,
		Hooks:     s.Hooks,
		Status:    s.Status,
		LogOutput: s.LogOutput,
	}

	order, err := s.startOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		t := s.Config.Targets[name]

		watcher, tasks, err := s.registerTarget(scheduler, reconciler, t)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			continue
		}

		s.watchers = append(s.watchers, watcher)
		s.Status.Register(t.Name, tasks)
		if s.LogOutput {
			fmt.Printf("%s: watching for %s\n", t.Describe(), strings.Join(tasks, " and "))
		}
	}

	scheduler.Start()
	if s.LogOutput {
		fmt.Println("Waiting ...")
	}

	<-ctx.Done()
	scheduler.Shutdown()

	if !s.Config.Defaults.KeepRunning {
		s.cleanup()
	}

	return nil
}

// registerTarget resolves the target's initial ids, builds its watcher, and
// registers the actions its mode and specs call for. A target with nothing
// applicable registers no actions and is silently skipped.
func (s *Session) registerTarget(scheduler *Scheduler, reconciler *Reconciler, t *target.Target) (*Watcher, []string, error) {
	imageID, err := s.Runtime.ImageID(t.ImageName())
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot resolve image id for %s", t.Name)
	}
	containerID, err := s.Runtime.ContainerID(t.Name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "cannot resolve container id for %s", t.Name)
	}

	watcher := NewWatcher(t, s.Config.Defaults, imageID, containerID)
	mode := watcher.Mode()

	var tasks []string

	if t.Build != nil && t.Build.AssemblyDir != "" {
		if mode.Copy() || mode.Build() {
			if err := s.Changes.Track(t); err != nil {
				return nil, nil, errors.Wrapf(err, "cannot prime change tracking for %s", t.Name)
			}
		}

		if mode.Copy() {
			action := reconciler.NewAction(ActionSync, watcher, false)
			scheduler.Register(action.Run, watcher.Interval())
			tasks = append(tasks, ActionSync.String())
		}

		if mode.Build() {
			action := reconciler.NewAction(ActionRebuild, watcher, mode.Run())
			scheduler.Register(action.Run, watcher.Interval())
			tasks = append(tasks, ActionRebuild.String())
		}
	}

	// Restart watching needs a container that already exists at session
	// start.
	if mode.Run() && watcher.ContainerID() != "" {
		action := reconciler.NewAction(ActionRestart, watcher, false)
		scheduler.Register(action.Run, watcher.Interval())
		tasks = append(tasks, ActionRestart.String())
	}

	return watcher, tasks, nil
}

func (s *Session) startOrder() ([]string, error) {
	resolver := NewStartOrderResolver()
	for name, t := range s.Config.Targets {
		resolver.AddNode(name, t.DependsOn)
	}
	order, err := resolver.Resolve()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve target start order")
	}
	return order, nil
}

// cleanup stops the watched containers in reverse start order, honoring the
// keep-container and remove-volumes settings. Errors are logged and the
// remaining containers are still stopped.
func (s *Session) cleanup() {
	defaults := s.Config.Defaults

	for i := len(s.watchers) - 1; i >= 0; i-- {
		watcher := s.watchers[i]
		id := watcher.ContainerID()
		if id == "" {
			continue
		}

		if s.LogOutput {
			fmt.Printf("[%s] stopping container %s\n", watcher.Target.Name, id)
		}
		if err := s.Runtime.StopContainer(id, defaults.KeepContainer, defaults.RemoveVolumes); err != nil {
			log.Printf("%s: error stopping container %s: %v", watcher.Target.Describe(), id, err)
			continue
		}
		watcher.ClearContainerID()
	}
}

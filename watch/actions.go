package watch

import (
	"fmt"
	"log"

	"dockwatch/assembly"
	"dockwatch/target"

	"github.com/pkg/errors"
)

// ChangeSource reports the assembly entries of a target that changed since
// the last check; the checkpoint advances as a side effect of the call.
type ChangeSource interface {
	Track(t *target.Target) error
	UpdatedEntriesAndRefresh(t *target.Target) (assembly.ChangeSet, error)
}

// BuildGateway builds target images and packages changed files for transfer.
type BuildGateway interface {
	BuildImage(t *target.Target) error
	PackageChangedFiles(set assembly.ChangeSet, targetName string) (string, error)
}

// RuntimeGateway is the container engine surface the watch session needs.
type RuntimeGateway interface {
	ImageID(image string) (string, error)
	ContainerID(name string) (string, error)
	CopyArchive(containerID, archivePath, destDir string) error
	ExecInContainer(containerID, command string) error
	StopContainer(containerID string, keepContainer, removeVolumes bool) error
	CreateAndStartContainer(t *target.Target, ports []target.PortMapping) (string, error)
	ResolvePortMappings(t *target.Target) ([]target.PortMapping, error)
}

// HookInvoker runs a named downstream hook.
type HookInvoker interface {
	Invoke(name string) error
}

// ActionKind tags the three reconcile actions.
type ActionKind int

const (
	ActionSync ActionKind = iota
	ActionRebuild
	ActionRestart
)

func (k ActionKind) String() string {
	switch k {
	case ActionSync:
		return "copying artifacts"
	case ActionRebuild:
		return "rebuilding"
	case ActionRestart:
		return "restarting"
	default:
		return "unknown"
	}
}

// Action is one registered reconcile job: a kind, the target's watcher, and
// whether a rebuild chains into a restart. Actions are built once at
// registration time, not per tick.
type Action struct {
	Kind    ActionKind
	Watcher *Watcher

	chainRestart bool
	rec          *Reconciler
}

// Run executes one tick. All per-tick errors are contained here: they are
// logged with target context and the tick is abandoned, the scheduler never
// sees them.
func (a Action) Run() {
	w := a.Watcher
	a.rec.Status.Tick(w.Target.Name)

	switch a.Kind {
	case ActionSync:
		a.rec.syncTick(w)
	case ActionRebuild:
		a.rec.rebuildTick(w, a.chainRestart)
	case ActionRestart:
		a.rec.restartTick(w)
	}
}

// Reconciler executes the reconcile actions against the external gateways.
type Reconciler struct {
	Changes ChangeSource
	Build   BuildGateway
	Runtime RuntimeGateway
	Hooks   HookInvoker
	Status  StatusManager

	// LogOutput mirrors events to stdout/log. Off when the TUI owns the
	// terminal.
	LogOutput bool
}

// NewAction builds the registration-time action record.
func (r *Reconciler) NewAction(kind ActionKind, w *Watcher, chainRestart bool) Action {
	return Action{
		Kind:         kind,
		Watcher:      w,
		chainRestart: chainRestart,
		rec:          r,
	}
}

// syncTick copies changed assembly files into the running container. Change
// entries are consumed from the checkpoint even when the push fails, so a
// given archive is delivered at most once.
func (r *Reconciler) syncTick(w *Watcher) {
	set, err := r.Changes.UpdatedEntriesAndRefresh(w.Target)
	if err != nil {
		r.errorf(w, "error scanning assembly: %v", err)
		return
	}
	if len(set.Entries) == 0 {
		return
	}

	r.eventf(w, "assembly changed, copying %d files to container %s", len(set.Entries), w.ContainerID())

	archive, err := r.Build.PackageChangedFiles(set, w.Target.Name)
	if err != nil {
		r.errorf(w, "error packaging changed files: %v", err)
		return
	}

	if err := r.Runtime.CopyArchive(w.ContainerID(), archive, w.Target.Build.BaseDir); err != nil {
		r.errorf(w, "error copying files to container %s: %v", w.ContainerID(), err)
		return
	}

	if cmd := w.PostExec(); cmd != "" {
		if err := r.Runtime.ExecInContainer(w.ContainerID(), cmd); err != nil {
			r.errorf(w, "post-exec command failed: %v", err)
		}
	}
}

// rebuildTick rebuilds the image on assembly drift and, when the mode also
// covers running, restarts the container from the fresh image.
func (r *Reconciler) rebuildTick(w *Watcher, doRestart bool) {
	set, err := r.Changes.UpdatedEntriesAndRefresh(w.Target)
	if err != nil {
		r.errorf(w, "error scanning assembly: %v", err)
		return
	}
	if len(set.Entries) == 0 {
		return
	}

	r.eventf(w, "assembly changed, rebuilding image %s", w.Target.ImageName())

	if err := r.Build.BuildImage(w.Target); err != nil {
		r.errorf(w, "error rebuilding image: %v", err)
		return
	}

	imageID, err := r.Runtime.ImageID(w.Target.ImageName())
	if err != nil {
		r.errorf(w, "error resolving rebuilt image id: %v", err)
		return
	}
	w.SetImageID(imageID)

	if doRestart {
		if err := r.restart(w); err != nil {
			r.errorf(w, "error restarting container: %v", err)
			return
		}
	}

	if err := r.postGoal(w); err != nil {
		r.errorf(w, "%v", err)
	}
}

// restartTick restarts the container when an out-of-band rebuild produced a
// new image id. Drift is detected by swapping the observed id into the watch
// state and comparing against the previous value.
func (r *Reconciler) restartTick(w *Watcher) {
	imageID, err := r.Runtime.ImageID(w.Target.ImageName())
	if err != nil {
		r.errorf(w, "error querying image id: %v", err)
		return
	}

	old := w.GetAndSetImageID(imageID)
	if old == imageID {
		return
	}

	r.eventf(w, "image changed, restarting container %s", w.ContainerID())

	if err := r.restart(w); err != nil {
		r.errorf(w, "error restarting container: %v", err)
		return
	}

	if err := r.postGoal(w); err != nil {
		r.errorf(w, "%v", err)
	}
}

// restart replaces the running container: resolve ports, best-effort
// pre-stop exec, stop the old container, start a new one. The new container
// id is recorded only after the new container is confirmed started; if the
// start fails the watcher is left with no container id.
func (r *Reconciler) restart(w *Watcher) error {
	ports, err := r.Runtime.ResolvePortMappings(w.Target)
	if err != nil {
		return errors.Wrap(err, "failed to resolve port mappings")
	}

	oldID := w.ContainerID()

	if run := w.Target.Run; run != nil && run.PreStop != "" {
		if err := r.Runtime.ExecInContainer(oldID, run.PreStop); err != nil {
			// The container is about to be torn down anyway; a failing
			// pre-stop never blocks the restart.
			r.errorf(w, "pre-stop command failed: %v", err)
		}
	}

	if err := r.Runtime.StopContainer(oldID, false, false); err != nil {
		return errors.Wrapf(err, "failed to stop container %s", oldID)
	}
	w.ClearContainerID()

	newID, err := r.Runtime.CreateAndStartContainer(w.Target, ports)
	if err != nil {
		return errors.Wrap(err, "failed to start new container")
	}
	w.SetContainerID(newID)

	r.eventf(w, "started container %s", newID)
	return nil
}

func (r *Reconciler) postGoal(w *Watcher) error {
	name := w.PostGoal()
	if name == "" {
		return nil
	}
	if err := r.Hooks.Invoke(name); err != nil {
		return errors.Wrapf(err, "post hook %s failed", name)
	}
	r.eventf(w, "ran post hook %s", name)
	return nil
}

func (r *Reconciler) eventf(w *Watcher, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Status.Event(w.Target.Name, msg)
	if r.LogOutput {
		fmt.Printf("[%s] %s\n", w.Target.Name, msg)
	}
}

func (r *Reconciler) errorf(w *Watcher, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Status.Error(w.Target.Name, msg)
	if r.LogOutput {
		log.Printf("%s: %s", w.Target.Describe(), msg)
	}
}

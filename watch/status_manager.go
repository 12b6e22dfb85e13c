package watch

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// WatchStatus is the per-target status exposed to the UI.
type WatchStatus struct {
	State       string
	Tasks       []string
	LastEvent   string
	LastEventAt time.Time
	Ticks       int
	Errors      int
	LogLines    []string
}

type StatusManager interface {
	Register(name string, tasks []string)
	SetState(name, state string)
	Event(name, message string)
	Error(name, message string)
	Tick(name string)
	Names() []string
	Snapshot(name string) WatchStatus
}

type statusManager struct {
	statuses map[string]*WatchStatus
	mu       sync.Mutex
}

func NewStatusManager() StatusManager {
	return &statusManager{
		statuses: make(map[string]*WatchStatus),
	}
}

func (sm *statusManager) Register(name string, tasks []string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.statuses[name] = &WatchStatus{
		State: "Watching",
		Tasks: tasks,
	}
}

func (sm *statusManager) SetState(name, state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if status, ok := sm.statuses[name]; ok {
		status.State = state
	}
}

func (sm *statusManager) Event(name, message string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	status, ok := sm.statuses[name]
	if !ok {
		return
	}
	status.LastEvent = message
	status.LastEventAt = time.Now()
	status.LogLines = append(status.LogLines, message)
	if len(status.LogLines) > 100 {
		status.LogLines = status.LogLines[len(status.LogLines)-100:]
	}
}

func (sm *statusManager) Error(name, message string) {
	sm.mu.Lock()
	status, ok := sm.statuses[name]
	if ok {
		status.Errors++
	}
	sm.mu.Unlock()
	sm.Event(name, message)
}

func (sm *statusManager) Tick(name string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if status, ok := sm.statuses[name]; ok {
		status.Ticks++
	}
}

func (sm *statusManager) Names() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	names := make([]string, 0, len(sm.statuses))
	for name := range sm.statuses {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns a copy safe to read outside the manager's lock.
func (sm *statusManager) Snapshot(name string) WatchStatus {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	status, ok := sm.statuses[name]
	if !ok {
		return WatchStatus{}
	}
	out := *status
	out.Tasks = slices.Clone(status.Tasks)
	out.LogLines = slices.Clone(status.LogLines)
	return out
}

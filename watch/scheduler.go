package watch

import (
	"sync"
	"time"
)

type job struct {
	run      func()
	interval time.Duration
	next     time.Time
}

// Scheduler runs registered jobs on a single worker goroutine. Watch jobs
// mutate shared per-target state and talk to one engine connection, so no
// two jobs may ever execute concurrently; one serialized timeline removes
// the need for per-target locks.
type Scheduler struct {
	mu   sync.Mutex
	jobs []*job

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	started  bool
	stopOnce sync.Once
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register schedules run to fire immediately and then at every interval.
// The caller is expected to have clamped the interval already.
func (s *Scheduler) Register(run func(), interval time.Duration) {
	s.mu.Lock()
	s.jobs = append(s.jobs, &job{run: run, interval: interval, next: time.Now()})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop()
}

// Shutdown stops the worker. An in-flight job finishes naturally but nothing
// new fires afterwards. Idempotent.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		next := s.nextDue()
		if next == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		if wait := time.Until(next.next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				// A new registration may be due earlier.
				timer.Stop()
				continue
			case <-s.stop:
				timer.Stop()
				return
			}
		}

		next.run()

		// Fixed rate relative to session start. A job that overran its
		// own interval fires once as soon as the worker is free, with no
		// catch-up burst.
		next.next = next.next.Add(next.interval)
		if now := time.Now(); next.next.Before(now) {
			next.next = now
		}
	}
}

func (s *Scheduler) nextDue() *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest *job
	for _, j := range s.jobs {
		if earliest == nil || j.next.Before(earliest.next) {
			earliest = j
		}
	}
	return earliest
}

package watch

import (
	"sync"
	"testing"
	"time"
)

func TestSchedulerFiresImmediately(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	fired := make(chan struct{}, 1)
	s.Register(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, time.Hour)
	s.Start()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job did not fire at offset zero")
	}
}

func TestSchedulerSerializesJobs(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	runs := 0

	job := func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		runs++
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	for i := 0; i < 4; i++ {
		s.Register(job, 5*time.Millisecond)
	}
	s.Start()

	time.Sleep(150 * time.Millisecond)
	s.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("expected at most one job in flight, observed %d", maxInFlight)
	}
	if runs < 8 {
		t.Errorf("expected jobs to keep firing, observed only %d runs", runs)
	}
}

func TestSchedulerRepeatsAtInterval(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	var mu sync.Mutex
	runs := 0
	s.Register(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	}, 20*time.Millisecond)
	s.Start()

	time.Sleep(110 * time.Millisecond)
	s.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if runs < 3 {
		t.Errorf("expected at least 3 runs in 110ms at 20ms interval, got %d", runs)
	}
}

func TestSchedulerShutdownStopsFiring(t *testing.T) {
	s := NewScheduler()

	var mu sync.Mutex
	runs := 0
	interval := 20 * time.Millisecond
	s.Register(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	}, interval)
	s.Start()

	time.Sleep(50 * time.Millisecond)
	s.Shutdown()

	mu.Lock()
	after := runs
	mu.Unlock()

	time.Sleep(3 * interval)

	mu.Lock()
	defer mu.Unlock()
	if runs != after {
		t.Errorf("jobs fired after shutdown: %d before, %d after", after, runs)
	}
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	s := NewScheduler()
	s.Register(func() {}, time.Hour)
	s.Start()

	s.Shutdown()
	s.Shutdown()
}

func TestSchedulerShutdownWithoutStart(t *testing.T) {
	s := NewScheduler()
	s.Register(func() {}, time.Hour)
	s.Shutdown()
}

func TestSchedulerRegisterAfterStart(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	s.Start()

	fired := make(chan struct{}, 1)
	s.Register(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, time.Hour)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job registered after start did not fire")
	}
}

package runtime

import "testing"

func TestSchedulerFIFO(t *testing.T) {
	s := NewScheduler("test")
	a, b, c := s.Spawn(), s.Spawn(), s.Spawn()
	for _, id := range []TaskID{a, b, c} {
		s.Park(id)
	}
	s.Wake(c)
	s.Wake(a)
	s.Wake(b)

	var got []TaskID
	for id, ok := s.NextReady(); ok; id, ok = s.NextReady() {
		got = append(got, id)
	}
	want := []TaskID{c, a, b}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSchedulerWakeRequiresPark(t *testing.T) {
	s := NewScheduler("test")
	id := s.Spawn()
	if s.Wake(id) {
		t.Fatalf("waking a running task should be a no-op")
	}
	s.Park(id)
	if !s.Wake(id) {
		t.Fatalf("waking a parked task should succeed")
	}
	if s.Wake(id) {
		t.Fatalf("second wake should be a no-op")
	}
	if s.Ready() != 1 {
		t.Errorf("Ready() = %d, want 1", s.Ready())
	}
}

func TestSchedulerTakeAndDone(t *testing.T) {
	s := NewScheduler("test")
	a, b := s.Spawn(), s.Spawn()
	s.Park(a)
	s.Park(b)
	s.Wake(a)
	s.Wake(b)
	if !s.Take(b) {
		t.Fatalf("Take(b) failed")
	}
	if s.Status(b) != TaskRunning {
		t.Errorf("status of taken task = %s, want running", s.Status(b))
	}
	id, ok := s.NextReady()
	if !ok || id != a {
		t.Fatalf("NextReady() = %d, %v; want %d", id, ok, a)
	}
	if _, ok := s.NextReady(); ok {
		t.Fatalf("queue should be empty after Take")
	}
	s.Done(a)
	s.Done(b)
	if s.Live() != 0 {
		t.Errorf("Live() = %d, want 0", s.Live())
	}
	if s.Status(a) != TaskDone {
		t.Errorf("finished task status = %s", s.Status(a))
	}
	spawned, finished := s.Stats()
	if spawned != 2 || finished != 2 {
		t.Errorf("Stats() = %d, %d", spawned, finished)
	}
}

func TestSchedulerDoneDropsQueuedTask(t *testing.T) {
	s := NewScheduler("test")
	id := s.Spawn()
	s.Park(id)
	s.Wake(id)
	s.Done(id)
	if _, ok := s.NextReady(); ok {
		t.Fatalf("cancelled task was dequeued")
	}
}

func TestMicrotasksRunInOrderIncludingNested(t *testing.T) {
	m := NewMicrotasks()
	var order []JobID
	first := m.Schedule()
	second := m.Schedule()
	var nested JobID
	ran := m.RunUntilIdle(func(id JobID) {
		order = append(order, id)
		if id == first {
			nested = m.Schedule()
		}
	})
	if !ran {
		t.Fatalf("RunUntilIdle reported no work")
	}
	want := []JobID{first, second, nested}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if m.RunUntilIdle(func(JobID) {}) {
		t.Errorf("empty queue reported work")
	}
	if m.Ran() != 3 {
		t.Errorf("Ran() = %d, want 3", m.Ran())
	}
}

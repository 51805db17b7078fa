package runtime

// Scheduler is the cooperative task bookkeeping behind one coroutine
// executor. It hands out task ids, tracks which tasks are parked waiting for
// a wake-up and yields ready tasks in FIFO order. It holds no task state of
// its own; the engine keeps the coroutines keyed by TaskID.
//
// A Scheduler is used from the thread the owning runtime is attached to and
// is not safe for concurrent use.
type Scheduler struct {
	name     string
	nextID   TaskID
	ready    []TaskID
	readySet map[TaskID]struct{}
	parked   map[TaskID]struct{}
	live     map[TaskID]TaskStatus
	spawned  uint64
	finished uint64
}

// TaskID identifies a spawned task. Zero is never a valid id.
type TaskID uint64

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaiting
	TaskDone
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	}
	return "unknown"
}

// NewScheduler creates an empty scheduler. name is used in diagnostics.
func NewScheduler(name string) *Scheduler {
	return &Scheduler{
		name:     name,
		nextID:   1,
		readySet: make(map[TaskID]struct{}),
		parked:   make(map[TaskID]struct{}),
		live:     make(map[TaskID]TaskStatus),
	}
}

func (s *Scheduler) Name() string { return s.name }

// Spawn registers a new task in the running state. The caller starts it
// immediately; it only enters the ready queue through Wake.
func (s *Scheduler) Spawn() TaskID {
	id := s.nextID
	s.nextID++
	s.live[id] = TaskRunning
	s.spawned++
	return id
}

// Status returns the state of id; unknown ids report TaskDone.
func (s *Scheduler) Status(id TaskID) TaskStatus {
	st, ok := s.live[id]
	if !ok {
		return TaskDone
	}
	return st
}

// Park marks a running task as waiting for a Wake.
func (s *Scheduler) Park(id TaskID) {
	if _, ok := s.live[id]; !ok {
		return
	}
	s.parked[id] = struct{}{}
	s.live[id] = TaskWaiting
}

// Wake moves a parked task to the ready queue. It reports whether the task
// was parked.
func (s *Scheduler) Wake(id TaskID) bool {
	if _, ok := s.parked[id]; !ok {
		return false
	}
	delete(s.parked, id)
	s.enqueue(id)
	return true
}

func (s *Scheduler) enqueue(id TaskID) {
	if _, ok := s.readySet[id]; ok {
		return
	}
	s.ready = append(s.ready, id)
	s.readySet[id] = struct{}{}
	s.live[id] = TaskReady
}

// IsReady reports whether id is queued.
func (s *Scheduler) IsReady(id TaskID) bool {
	_, ok := s.readySet[id]
	return ok
}

// NextReady dequeues the oldest ready task and marks it running.
func (s *Scheduler) NextReady() (TaskID, bool) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready[0] = 0
		s.ready = s.ready[1:]
		if _, ok := s.readySet[id]; !ok {
			continue
		}
		delete(s.readySet, id)
		s.live[id] = TaskRunning
		return id, true
	}
	return 0, false
}

// Take dequeues a specific ready task out of order.
func (s *Scheduler) Take(id TaskID) bool {
	if _, ok := s.readySet[id]; !ok {
		return false
	}
	delete(s.readySet, id)
	s.live[id] = TaskRunning
	return true
}

// Done forgets a finished or cancelled task.
func (s *Scheduler) Done(id TaskID) {
	if _, ok := s.live[id]; !ok {
		return
	}
	delete(s.live, id)
	delete(s.parked, id)
	delete(s.readySet, id)
	s.finished++
}

// Live returns the number of tasks that have not finished.
func (s *Scheduler) Live() int { return len(s.live) }

// Ready returns the number of queued tasks.
func (s *Scheduler) Ready() int { return len(s.readySet) }

// Parked returns the number of tasks waiting for a wake-up.
func (s *Scheduler) Parked() int { return len(s.parked) }

// ParkedTasks lists parked task ids in ascending order.
func (s *Scheduler) ParkedTasks() []TaskID {
	ids := make([]TaskID, 0, len(s.parked))
	for id := range s.parked {
		ids = append(ids, id)
	}
	sortTaskIDs(ids)
	return ids
}

// Stats reports lifetime counters.
func (s *Scheduler) Stats() (spawned, finished uint64) { return s.spawned, s.finished }

func sortTaskIDs(ids []TaskID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

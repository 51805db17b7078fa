package runtime

// JobID identifies a queued microtask. The engine stores the job payload
// itself so that the collector can trace it.
type JobID uint64

// Microtasks is the FIFO queue of promise jobs. Jobs queued while the queue
// is being drained run in the same drain, after the jobs already queued.
type Microtasks struct {
	queue []JobID
	next  JobID
	ran   uint64
}

// NewMicrotasks creates an empty queue.
func NewMicrotasks() *Microtasks {
	return &Microtasks{queue: make([]JobID, 0, 16), next: 1}
}

// Schedule allocates a job id and queues it.
func (m *Microtasks) Schedule() JobID {
	id := m.next
	m.next++
	m.queue = append(m.queue, id)
	return id
}

// Len returns the number of queued jobs.
func (m *Microtasks) Len() int { return len(m.queue) }

// RunUntilIdle runs jobs until the queue is empty and reports whether any
// job ran.
func (m *Microtasks) RunUntilIdle(run func(JobID)) bool {
	if len(m.queue) == 0 {
		return false
	}
	for len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		m.ran++
		run(id)
	}
	m.queue = m.queue[:0:cap(m.queue)]
	return true
}

// Reset drops every queued job.
func (m *Microtasks) Reset() {
	m.queue = m.queue[:0]
}

// Ran returns the number of jobs run since creation.
func (m *Microtasks) Ran() uint64 { return m.ran }

package vm

import (
	"iter"

	"github.com/tliron/commonlog"

	"lynx/pkg/errors"
	"lynx/pkg/runtime"
)

const debugAsync = false

// TaskID identifies a coroutine of an AsyncExecutor.
type TaskID = runtime.TaskID

type suspendKind uint8

const (
	suspendAwait suspendKind = iota + 1
	suspendYield
)

// suspension is what a coroutine hands back to its resumer.
type suspension struct {
	kind  suspendKind
	value Value
}

type resumeMode uint8

const (
	resumeNext resumeMode = iota
	resumeThrow
)

// coroutine runs one async function or generator body on its own value
// stack. It suspends only at Await and Yield.
type coroutine struct {
	id   TaskID
	exec *AsyncExecutor
	ctx  *execContext

	body  func() (Value, error)
	next  func() (suspension, bool)
	stop  func()
	yield func(suspension) bool

	// owner is the promise or generator object driven by this coroutine.
	owner Value

	// pending resumption, set by the job that woke the coroutine
	resumeValue Value
	resumeMode  resumeMode

	baseDepth int
	done      bool
	cancelled bool
	result    Value
	err       error

	// onDone is called once when the body finishes or is cancelled.
	onDone func(co *coroutine)
}

// suspend parks the running coroutine and returns the value it is resumed
// with. A cancelled coroutine observes errCancelled.
func (co *coroutine) suspend(s suspension) (Value, error) {
	rt := co.exec.rt
	depth := rt.callDepth - co.baseDepth
	if !co.yield(s) {
		return Undefined, errCancelled
	}
	rt.current = co.ctx
	rt.callDepth = co.baseDepth + depth
	v, mode := co.resumeValue, co.resumeMode
	co.resumeValue, co.resumeMode = Undefined, resumeNext
	if mode == resumeThrow {
		return Undefined, rt.throwValue(v)
	}
	return v, nil
}

// TaskState is the observable outcome of a task.
type TaskState uint8

const (
	TaskPending TaskState = iota
	TaskResolved
	TaskRejected
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskResolved:
		return "resolved"
	case TaskRejected:
		return "rejected"
	case TaskCancelled:
		return "cancelled"
	}
	return "unknown"
}

// AsyncResult reports the state of a task after a run or poll step.
type AsyncResult struct {
	ID    TaskID
	State TaskState
	Value Value
}

// AsyncExecutor owns the coroutines of one scheduling domain. A runtime has
// two: one for async functions and one for generators, so generator
// suspension never interferes with async scheduling.
type AsyncExecutor struct {
	name    string
	rt      *Runtime
	sched   *runtime.Scheduler
	tasks   map[TaskID]*coroutine
	results map[TaskID]AsyncResult
	// finished holds the ids in results in completion order, oldest first.
	finished []TaskID
	log      commonlog.Logger
}

// maxRetainedResults bounds the outcomes kept for finished tasks. Older ones
// are forgotten first; their values are GC roots until then.
const maxRetainedResults = 256

func newAsyncExecutor(rt *Runtime, name string) *AsyncExecutor {
	return &AsyncExecutor{
		name:    name,
		rt:      rt,
		sched:   runtime.NewScheduler(name),
		tasks:   make(map[TaskID]*coroutine),
		results: make(map[TaskID]AsyncResult),
		log:     commonlog.GetLogger("lynx.async"),
	}
}

func (e *AsyncExecutor) Name() string { return e.name }

// Scheduler exposes the task bookkeeping.
func (e *AsyncExecutor) Scheduler() *runtime.Scheduler { return e.sched }

// Pending returns the number of unfinished tasks.
func (e *AsyncExecutor) Pending() int { return len(e.tasks) }

// spawn creates a coroutine for body without starting it.
func (e *AsyncExecutor) spawn(owner Value, body func() (Value, error)) *coroutine {
	co := &coroutine{
		id:    e.sched.Spawn(),
		exec:  e,
		owner: owner,
		body:  body,
	}
	co.ctx = newExecContext(e.rt.opts.CoroutineStackSize, co)
	co.next, co.stop = iter.Pull(func(yield func(suspension) bool) {
		co.yield = yield
		e.rt.current = co.ctx
		e.rt.callDepth = co.baseDepth
		co.result, co.err = co.body()
	})
	e.tasks[co.id] = co
	if debugAsync {
		e.log.Debugf("%s: spawned task %d", e.name, co.id)
	}
	return co
}

// step resumes co with v and runs it to its next suspension or to
// completion. The resumer's execution context is restored afterwards.
func (e *AsyncExecutor) step(co *coroutine, v Value, mode resumeMode) (suspension, bool) {
	if co.done {
		errors.Fatal(errors.EngineCoroutine, "%s: task %d resumed after completion", e.name, co.id)
	}
	rt := e.rt
	savedCurrent, savedDepth := rt.current, rt.callDepth
	co.resumeValue, co.resumeMode = v, mode
	co.baseDepth = savedDepth
	restore := func() { rt.current, rt.callDepth = savedCurrent, savedDepth }
	defer restore()
	s, ok := co.next()
	restore()
	if !ok {
		e.finish(co)
		return suspension{}, true
	}
	return s, false
}

func (e *AsyncExecutor) finish(co *coroutine) {
	co.done = true
	if _, cancelled := co.err.(*cancelError); cancelled {
		co.cancelled = true
	}
	delete(e.tasks, co.id)
	e.sched.Done(co.id)
	e.record(co.outcome())
	if co.onDone != nil {
		co.onDone(co)
	}
	if debugAsync {
		e.log.Debugf("%s: task %d finished", e.name, co.id)
	}
}

// record keeps the outcome of a finished task for PollResult.
func (e *AsyncExecutor) record(r AsyncResult) {
	e.results[r.ID] = r
	e.finished = append(e.finished, r.ID)
	for len(e.results) > maxRetainedResults && len(e.finished) > 0 {
		delete(e.results, e.finished[0])
		e.finished = e.finished[1:]
	}
	if len(e.finished) > 2*maxRetainedResults {
		e.finished = e.compactFinished()
	}
}

// compactFinished drops ids already removed by Forget.
func (e *AsyncExecutor) compactFinished() []TaskID {
	kept := make([]TaskID, 0, len(e.results))
	for _, id := range e.finished {
		if _, ok := e.results[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}

func (co *coroutine) outcome() AsyncResult {
	r := AsyncResult{ID: co.id, Value: Undefined}
	switch {
	case !co.done:
		r.State = TaskPending
	case co.cancelled:
		r.State = TaskCancelled
	case co.err != nil:
		r.State = TaskRejected
		if exc, ok := co.err.(*Exception); ok {
			r.Value = exc.Value
		}
	default:
		r.State = TaskResolved
		r.Value = co.result
	}
	return r
}

// handle dispatches the suspension of an async task: an await parks the
// task until the awaited promise settles.
func (e *AsyncExecutor) handle(co *coroutine, s suspension, done bool) {
	if done {
		return
	}
	switch s.kind {
	case suspendAwait:
		e.sched.Park(co.id)
		p := e.rt.promiseResolve(s.value)
		e.rt.addReaction(p, promiseReaction{kind: reactionAwait, task: co.id})
	default:
		errors.Fatal(errors.EngineCoroutine, "%s: task %d yielded outside a generator", e.name, co.id)
	}
}

// Run starts body as a new task and drives it to its first suspension. The
// outcome stays observable through PollResult.
func (e *AsyncExecutor) Run(body func() (Value, error)) AsyncResult {
	co := e.spawn(Undefined, body)
	s, done := e.step(co, Undefined, resumeNext)
	e.handle(co, s, done)
	return e.PollResult(co.id)
}

// PollResult returns the current state of a task without driving it. An id
// that is neither live nor among the retained outcomes reports cancelled.
func (e *AsyncExecutor) PollResult(id TaskID) AsyncResult {
	if co, ok := e.tasks[id]; ok {
		return co.outcome()
	}
	if r, ok := e.results[id]; ok {
		return r
	}
	return AsyncResult{ID: id, State: TaskCancelled, Value: Undefined}
}

// Forget drops the recorded outcome of a finished task.
func (e *AsyncExecutor) Forget(id TaskID) {
	if _, live := e.tasks[id]; !live {
		delete(e.results, id)
	}
}

// Poll drives one resume step of id. When the task is not ready yet the
// microtask queue is drained first, so a task awaiting a settled promise
// resumes on the first poll.
func (e *AsyncExecutor) Poll(id TaskID) AsyncResult {
	co, ok := e.tasks[id]
	if !ok {
		return e.PollResult(id)
	}
	if !e.sched.IsReady(id) {
		e.rt.runMicrotasks()
	}
	if e.sched.Take(id) {
		e.resume(co)
	}
	return e.PollResult(id)
}

func (e *AsyncExecutor) resume(co *coroutine) {
	s, done := e.step(co, co.resumeValue, co.resumeMode)
	e.handle(co, s, done)
}

// wake schedules a parked task to resume with v, or with v thrown.
func (e *AsyncExecutor) wake(id TaskID, v Value, mode resumeMode) {
	co, ok := e.tasks[id]
	if !ok {
		return
	}
	co.resumeValue, co.resumeMode = v, mode
	e.sched.Wake(id)
}

// FinishAll drains microtasks and ready tasks until neither makes progress.
// Tasks still parked afterwards wait on promises nothing will settle.
func (e *AsyncExecutor) FinishAll() error {
	limit := e.rt.opts.MaxDrainRounds
	for round := 0; ; round++ {
		if limit > 0 && round >= limit {
			e.log.Warningf("%s: stopped draining after %d rounds with %d tasks pending", e.name, round, len(e.tasks))
			return nil
		}
		progressed := e.rt.runMicrotasks()
		for id, ok := e.sched.NextReady(); ok; id, ok = e.sched.NextReady() {
			if co, live := e.tasks[id]; live {
				e.resume(co)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	if n := e.sched.Parked(); n > 0 {
		e.log.Debugf("%s: %d tasks remain parked", e.name, n)
	}
	return nil
}

// Cancel drops a suspended task. Its body unwinds without running script
// handlers and its promise, if any, stays pending forever.
func (e *AsyncExecutor) Cancel(id TaskID) bool {
	co, ok := e.tasks[id]
	if !ok {
		return false
	}
	if e.rt.current == co.ctx {
		errors.Fatal(errors.EngineCoroutine, "%s: task %d cancelled while running", e.name, id)
	}
	rt := e.rt
	savedCurrent, savedDepth := rt.current, rt.callDepth
	co.stop()
	rt.current, rt.callDepth = savedCurrent, savedDepth
	if !co.done {
		co.err = errCancelled
		e.finish(co)
	}
	return true
}

// CancelAll drops every suspended task.
func (e *AsyncExecutor) CancelAll() int {
	n := 0
	for _, id := range e.taskIDs() {
		if e.Cancel(id) {
			n++
		}
	}
	return n
}

func (e *AsyncExecutor) taskIDs() []TaskID {
	ids := make([]TaskID, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	return ids
}

// await suspends the running async function until v settles.
func (rt *Runtime) await(f *Frame, v Value) (Value, error) {
	co := f.ctx.co
	if co == nil || co.exec != rt.async || !f.def.IsAsync {
		errors.Fatal(errors.EngineCoroutine, "%s: Await outside an async function", f.def.Name)
	}
	return co.suspend(suspension{kind: suspendAwait, value: v})
}

// yield suspends the running generator, handing v to its consumer.
func (rt *Runtime) yield(f *Frame, v Value) (Value, error) {
	co := f.ctx.co
	if co == nil || co.exec != rt.generators || !f.def.IsGenerator {
		errors.Fatal(errors.EngineCoroutine, "%s: Yield outside a generator", f.def.Name)
	}
	return co.suspend(suspension{kind: suspendYield, value: v})
}

// callAsync starts an async function. The body runs synchronously up to its
// first await; the returned promise settles when the body finishes.
func (rt *Runtime) callAsync(callee Value, fp *FunctionPayload, this Value, args []Value) (Value, error) {
	promise := rt.NewPromise()
	args = append([]Value(nil), args...)
	var co *coroutine
	co = rt.async.spawn(promise, func() (Value, error) {
		return rt.runFunction(co.ctx, callee, fp, this, args, Undefined)
	})
	if pp, ok := rt.promiseOf(promise); ok {
		pp.Task = co.id
	}
	co.onDone = func(co *coroutine) {
		switch {
		case co.cancelled:
			if pp, ok := rt.promiseOf(co.owner); ok && pp.State == PromisePending {
				pp.State = PromiseForeverPending
			}
		case co.err != nil:
			if exc, ok := co.err.(*Exception); ok {
				rt.RejectPromise(co.owner, exc.Value)
			}
		default:
			rt.ResolvePromise(co.owner, co.result)
		}
	}
	s, done := rt.async.step(co, Undefined, resumeNext)
	rt.async.handle(co, s, done)
	return promise, nil
}

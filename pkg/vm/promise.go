package vm

import (
	"lynx/pkg/runtime"
)

type reactionKind uint8

const (
	// reactionThen runs a then callback and settles the derived promise.
	reactionThen reactionKind = iota
	// reactionAwait wakes a parked async task.
	reactionAwait
)

type promiseReaction struct {
	kind        reactionKind
	onFulfilled Value
	onRejected  Value
	derived     Value
	task        TaskID
}

type jobKind uint8

const (
	jobReaction jobKind = iota
	jobThenable
)

// promiseJob is a queued microtask. Jobs are plain data so the collector can
// trace every value they hold.
type promiseJob struct {
	kind     jobKind
	reaction promiseReaction
	state    PromiseState
	arg      Value

	// thenable adoption
	promise  Value
	thenable Value
	then     Value
}

// NewPromise allocates a pending promise.
func (rt *Runtime) NewPromise() Value {
	return rt.NewObject(rt.realm.PromisePrototype, &PromisePayload{State: PromisePending, Result: Undefined})
}

// promiseOf returns the promise payload of v.
func (rt *Runtime) promiseOf(v Value) (*PromisePayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	p, ok := obj.Payload.(*PromisePayload)
	return p, ok
}

// PromiseState returns the state and result of a promise value.
func (rt *Runtime) PromiseState(v Value) (PromiseState, Value, bool) {
	p, ok := rt.promiseOf(v)
	if !ok {
		return PromisePending, Undefined, false
	}
	return p.State, p.Result, true
}

// promiseResolve returns v when it is already a promise, otherwise a new
// promise resolved with v.
func (rt *Runtime) promiseResolve(v Value) Value {
	if _, ok := rt.promiseOf(v); ok {
		return v
	}
	p := rt.NewPromise()
	rt.ResolvePromise(p, v)
	return p
}

// PromiseResolve implements Promise.resolve.
func (rt *Runtime) PromiseResolve(v Value) Value { return rt.promiseResolve(v) }

// PromiseReject returns a new promise rejected with reason.
func (rt *Runtime) PromiseReject(reason Value) Value {
	p := rt.NewPromise()
	rt.RejectPromise(p, reason)
	return p
}

// ResolvePromise resolves p with v, adopting the state of thenables through
// a queued job.
func (rt *Runtime) ResolvePromise(p, v Value) {
	pp, ok := rt.promiseOf(p)
	if !ok || pp.State != PromisePending {
		return
	}
	if v == p {
		rt.RejectPromise(p, rt.NewError(ErrorKindTypeError, "Chaining cycle detected for promise"))
		return
	}
	if v.IsObject() {
		then, err := rt.GetProperty(v, rt.keys.then)
		if err != nil {
			if exc, ok := err.(*Exception); ok {
				rt.RejectPromise(p, exc.Value)
			}
			return
		}
		if rt.IsCallable(then) {
			rt.enqueue(promiseJob{kind: jobThenable, promise: p, thenable: v, then: then})
			return
		}
	}
	rt.settle(pp, PromiseFulfilled, v)
}

// RejectPromise rejects p with reason.
func (rt *Runtime) RejectPromise(p, reason Value) {
	pp, ok := rt.promiseOf(p)
	if !ok || pp.State != PromisePending {
		return
	}
	rt.settle(pp, PromiseRejected, reason)
}

func (rt *Runtime) settle(pp *PromisePayload, state PromiseState, v Value) {
	pp.State = state
	pp.Result = v
	reactions := pp.reactions
	pp.reactions = nil
	for _, r := range reactions {
		rt.enqueue(promiseJob{kind: jobReaction, reaction: r, state: state, arg: v})
	}
	if state == PromiseRejected && !pp.handled && len(reactions) == 0 {
		rt.log.Debugf("promise rejected without handler: %s", rt.describeThrown(v))
	}
}

// addReaction subscribes r to p, queueing it at once when p has settled.
func (rt *Runtime) addReaction(p Value, r promiseReaction) {
	pp, ok := rt.promiseOf(p)
	if !ok {
		return
	}
	pp.handled = true
	switch pp.State {
	case PromisePending:
		pp.reactions = append(pp.reactions, r)
	case PromiseFulfilled, PromiseRejected:
		rt.enqueue(promiseJob{kind: jobReaction, reaction: r, state: pp.State, arg: pp.Result})
	}
}

// PromiseThen registers callbacks on p and returns the derived promise.
func (rt *Runtime) PromiseThen(p, onFulfilled, onRejected Value) (Value, error) {
	if _, ok := rt.promiseOf(p); !ok {
		return Undefined, rt.typeError("Promise.prototype.then called on incompatible receiver %s", rt.Inspect(p))
	}
	derived := rt.NewPromise()
	rt.addReaction(p, promiseReaction{kind: reactionThen, onFulfilled: onFulfilled, onRejected: onRejected, derived: derived})
	return derived, nil
}

func (rt *Runtime) enqueue(job promiseJob) {
	id := rt.microtasks.Schedule()
	rt.jobs[id] = job
}

// runMicrotasks drains the microtask queue and reports whether any job ran.
func (rt *Runtime) runMicrotasks() bool {
	return rt.microtasks.RunUntilIdle(func(id runtime.JobID) {
		job, ok := rt.jobs[id]
		if !ok {
			return
		}
		delete(rt.jobs, id)
		rt.runJob(job)
	})
}

func (rt *Runtime) runJob(job promiseJob) {
	switch job.kind {
	case jobThenable:
		resolve, reject := rt.resolvingFunctions(job.promise)
		if _, err := rt.Call(job.then, job.thenable, []Value{resolve, reject}); err != nil {
			if exc, ok := err.(*Exception); ok {
				rt.Call(reject, Undefined, []Value{exc.Value})
			}
		}
	case jobReaction:
		r := job.reaction
		if r.kind == reactionAwait {
			mode := resumeNext
			if job.state == PromiseRejected {
				mode = resumeThrow
			}
			rt.async.wake(r.task, job.arg, mode)
			return
		}
		handler := r.onFulfilled
		if job.state == PromiseRejected {
			handler = r.onRejected
		}
		if !rt.IsCallable(handler) {
			if job.state == PromiseRejected {
				rt.RejectPromise(r.derived, job.arg)
			} else {
				rt.ResolvePromise(r.derived, job.arg)
			}
			return
		}
		res, err := rt.Call(handler, Undefined, []Value{job.arg})
		if err != nil {
			if exc, ok := err.(*Exception); ok {
				rt.RejectPromise(r.derived, exc.Value)
			}
			return
		}
		rt.ResolvePromise(r.derived, res)
	}
}

// resolvingFunctions creates the resolve/reject pair handed to a thenable.
// Only the first call of either has an effect.
func (rt *Runtime) resolvingFunctions(p Value) (Value, Value) {
	settled := false
	resolve := rt.NewNativeFunction("", 1, func(c *CallContext, this Value, args []Value) (Value, error) {
		if !settled {
			settled = true
			rt.ResolvePromise(c.Slot(0), argOrUndefined(args, 0))
		}
		return Undefined, nil
	})
	reject := rt.NewNativeFunction("", 1, func(c *CallContext, this Value, args []Value) (Value, error) {
		if !settled {
			settled = true
			rt.RejectPromise(c.Slot(0), argOrUndefined(args, 0))
		}
		return Undefined, nil
	})
	rt.functionSlots(resolve, p)
	rt.functionSlots(reject, p)
	return resolve, reject
}

// PendingJobs returns the number of queued microtasks.
func (rt *Runtime) PendingJobs() int { return rt.microtasks.Len() }

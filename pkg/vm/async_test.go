package vm

import (
	"testing"
)

// asyncAddOne builds `async function() { return (await 41) + 1 }`.
func asyncAddOne() *Unit {
	ub := NewUnitBuilder("async")
	b := NewBuilder("main").Async()
	b.LoadImmI32(0, 41)
	b.Await(0, 0)
	b.AddImmI32(0, 0, 1)
	b.Return(0)
	return ub.Build(ub.Function(b.Def()))
}

// counterGenerator builds a unit whose main returns a generator object that
// yields 1 and 2 and then returns 3.
func counterGenerator() *Unit {
	ub := NewUnitBuilder("generator")
	g := NewBuilder("count").Generator()
	g.LoadImmI32(0, 1)
	g.Yield(1, 0)
	g.LoadImmI32(0, 2)
	g.Yield(1, 0)
	g.LoadImmI32(0, 3)
	g.Return(0)
	gid := ub.Function(g.Def())

	main := NewBuilder("main").Stack(2)
	main.NewFunction(1, gid)
	callFrom(main, 0)
	main.Return(0)
	return ub.Build(ub.Function(main.Def()))
}

func TestAsync_ExecuteSettlesMain(t *testing.T) {
	rt := newTestRuntime(t)
	v := execute(t, rt, asyncAddOne())
	if !v.IsInteger() || v.AsInteger() != 42 {
		t.Errorf("async main = %s, want 42", rt.Inspect(v))
	}
	if rt.Async().Pending() != 0 {
		t.Errorf("pending tasks after Execute = %d", rt.Async().Pending())
	}
}

func TestAsync_PollResumesAfterOneStep(t *testing.T) {
	rt := newTestRuntime(t)
	lu, err := rt.Link(asyncAddOne())
	if err != nil {
		t.Fatal(err)
	}
	fn := rt.newClosure(lu.Main, CaptureState{}, Undefined)
	p, err := rt.Call(fn, Undefined, nil)
	if err != nil {
		t.Fatal(err)
	}
	state, _, ok := rt.PromiseState(p)
	if !ok || state != PromisePending {
		t.Fatalf("promise state before polling = %v, want pending", state)
	}
	pp, _ := rt.promiseOf(p)
	r := rt.Async().Poll(pp.Task)
	if r.State != TaskResolved {
		t.Errorf("task state after one poll = %s, want resolved", r.State)
	}
	state, v, _ := rt.PromiseState(p)
	if state != PromiseFulfilled || v.AsInteger() != 42 {
		t.Errorf("promise = %s %s, want fulfilled 42", state, rt.Inspect(v))
	}
}

func TestAsync_RejectionIsCaught(t *testing.T) {
	rt := newTestRuntime(t)
	rejected := rt.PromiseReject(rt.String("no"))
	rt.SetGlobal("p", rejected)

	ub := NewUnitBuilder("catch")
	b := NewBuilder("main").Async()
	catch := b.NewBlock()
	b.EnterTry(catch)
	b.Emit(Instruction{Op: OpReadGlobal, A: 0, X: ub.Name("p")})
	b.Await(0, 0)
	b.Op(OpExitTry)
	b.Return(0)
	b.Place(catch)
	b.Return(0)

	v := execute(t, rt, ub.Build(ub.Function(b.Def())))
	if got := rt.GoString(v); got != "no" {
		t.Errorf("caught = %q, want no", got)
	}
}

func TestAsync_UncaughtRejection(t *testing.T) {
	rt := newTestRuntime(t)
	ub := NewUnitBuilder("reject")
	b := NewBuilder("main").Async()
	b.LoadImmI32(0, 1)
	b.Await(0, 0)
	b.Emit(Instruction{Op: OpThrowError, X: uint32(ErrorKindRangeError), Y: ub.String("late")})
	b.Op(OpReturnUndefined)

	_, err := rt.Execute(ub.Build(ub.Function(b.Def())))
	if err == nil || err.Error() != "RangeError: late" {
		t.Errorf("err = %v, want RangeError: late", err)
	}
}

func TestAsyncExecutor_Run(t *testing.T) {
	rt := newTestRuntime(t)
	r := rt.Async().Run(func() (Value, error) { return IntegerValue(5), nil })
	if r.State != TaskResolved || r.Value.AsInteger() != 5 {
		t.Errorf("Run = %s %s, want resolved 5", r.State, rt.Inspect(r.Value))
	}
	if again := rt.Async().PollResult(r.ID); again.State != TaskResolved {
		t.Errorf("PollResult after completion = %s", again.State)
	}
	rt.Async().Forget(r.ID)
	if gone := rt.Async().PollResult(r.ID); gone.State != TaskCancelled {
		t.Errorf("forgotten task state = %s, want cancelled", gone.State)
	}

	r = rt.Async().Run(func() (Value, error) { return Undefined, rt.TypeError("nope") })
	if r.State != TaskRejected {
		t.Errorf("failing task state = %s, want rejected", r.State)
	}
}

func TestGenerator_NextSequence(t *testing.T) {
	rt := newTestRuntime(t)
	gen := execute(t, rt, counterGenerator())

	want := []struct {
		v    int32
		done bool
	}{{1, false}, {2, false}, {3, true}}
	for i, w := range want {
		v, done, err := rt.GeneratorResume(gen, ResumeNext, Undefined)
		if err != nil {
			t.Fatalf("next #%d: %v", i, err)
		}
		if v.AsInteger() != w.v || done != w.done {
			t.Errorf("next #%d = (%s, %v), want (%d, %v)", i, rt.Inspect(v), done, w.v, w.done)
		}
	}
	v, done, err := rt.GeneratorResume(gen, ResumeNext, Undefined)
	if err != nil || !done || !v.IsUndefined() {
		t.Errorf("next after completion = (%s, %v, %v)", rt.Inspect(v), done, err)
	}
	if n := rt.Generators().Pending(); n != 0 {
		t.Errorf("generator tasks left = %d", n)
	}
}

func TestGenerator_ReturnCancelsBody(t *testing.T) {
	rt := newTestRuntime(t)
	gen := execute(t, rt, counterGenerator())
	if _, _, err := rt.GeneratorResume(gen, ResumeNext, Undefined); err != nil {
		t.Fatal(err)
	}
	if rt.Generators().Pending() != 1 {
		t.Fatalf("suspended generator should hold one task")
	}
	v, done, err := rt.GeneratorResume(gen, ResumeReturn, IntegerValue(7))
	if err != nil || !done || v.AsInteger() != 7 {
		t.Errorf("return(7) = (%s, %v, %v)", rt.Inspect(v), done, err)
	}
	if n := rt.Generators().Pending(); n != 0 {
		t.Errorf("generator tasks left after return = %d", n)
	}
}

func TestGenerator_ThrowBeforeStart(t *testing.T) {
	rt := newTestRuntime(t)
	gen := execute(t, rt, counterGenerator())
	_, done, err := rt.GeneratorResume(gen, ResumeThrow, rt.String("x"))
	if err == nil || !done {
		t.Fatalf("throw() on a fresh generator = (%v, %v)", done, err)
	}
	if _, done, _ := rt.GeneratorResume(gen, ResumeNext, Undefined); !done {
		t.Errorf("generator should be completed after throw()")
	}
}

func TestGenerator_ForOf(t *testing.T) {
	rt := newTestRuntime(t)
	ub := NewUnitBuilder("for-of")
	g := NewBuilder("count").Generator()
	g.LoadImmI32(0, 1)
	g.Yield(1, 0)
	g.LoadImmI32(0, 2)
	g.Yield(1, 0)
	g.LoadImmI32(0, 3)
	g.Return(0)
	gid := ub.Function(g.Def())

	main := NewBuilder("main").Stack(3)
	loop := main.NewBlock()
	done := main.NewBlock()
	main.LoadImmI32(0, 0)
	main.WriteStack(2, 0)
	main.NewFunction(1, gid)
	callFrom(main, 0)
	main.Emit(Instruction{Op: OpForOfStart, A: 0})
	main.Place(loop)
	main.Emit(Instruction{Op: OpIterNext, A: 1, X: uint32(done)})
	main.ReadStack(0, 2)
	main.Binary(OpAdd, 0, 0, 1)
	main.WriteStack(2, 0)
	main.Jump(loop)
	main.Place(done)
	main.ReadStack(0, 2)
	main.Return(0)

	v := execute(t, rt, ub.Build(ub.Function(main.Def())))
	if v.AsInteger() != 3 {
		t.Errorf("sum of yielded values = %s, want 3", rt.Inspect(v))
	}
}

func TestGenerator_AsyncGeneratorRejected(t *testing.T) {
	rt := newTestRuntime(t)
	ub := NewUnitBuilder("async-gen")
	g := NewBuilder("agen").Async().Generator()
	g.Op(OpReturnUndefined)
	gid := ub.Function(g.Def())

	main := NewBuilder("main").Stack(2)
	main.NewFunction(1, gid)
	callFrom(main, 0)
	main.Return(0)

	_, err := rt.Execute(ub.Build(ub.Function(main.Def())))
	if err == nil || err.Error() != "TypeError: async generator agen is not supported" {
		t.Errorf("err = %v", err)
	}
}

func TestGenerator_ReturnSkipsBodyHandlers(t *testing.T) {
	rt := newTestRuntime(t)
	ub := NewUnitBuilder("generator")
	g := NewBuilder("guarded").Generator()
	catch := g.NewBlock()
	g.EnterTry(catch)
	g.LoadImmI32(0, 1)
	g.Yield(1, 0)
	g.Op(OpExitTry)
	g.Op(OpReturnUndefined)
	g.Place(catch)
	g.LoadImmI32(0, 1)
	g.Emit(Instruction{Op: OpWriteGlobal, A: 0, X: ub.Name("handled")})
	g.Op(OpReturnUndefined)
	gid := ub.Function(g.Def())

	main := NewBuilder("main").Stack(2)
	main.NewFunction(1, gid)
	callFrom(main, 0)
	main.Return(0)
	gen := execute(t, rt, ub.Build(ub.Function(main.Def())))

	if _, _, err := rt.GeneratorResume(gen, ResumeNext, Undefined); err != nil {
		t.Fatal(err)
	}
	if _, done, err := rt.GeneratorResume(gen, ResumeReturn, IntegerValue(7)); err != nil || !done {
		t.Fatalf("return(7) = (%v, %v)", done, err)
	}
	if _, ok := rt.GetGlobal("handled"); ok {
		t.Error("return() ran the body's handler")
	}
	gp, _ := rt.generatorOf(gen)
	if r := rt.Generators().PollResult(gp.Task); r.State != TaskCancelled {
		t.Errorf("generator task after return() = %s, want cancelled", r.State)
	}
}

func TestAsync_OutcomesAreRetainedAndBounded(t *testing.T) {
	rt := newTestRuntime(t)
	lu, err := rt.Link(asyncAddOne())
	if err != nil {
		t.Fatal(err)
	}
	fn := rt.newClosure(lu.Main, CaptureState{}, Undefined)

	var tasks []TaskID
	for i := 0; i < 3; i++ {
		p, err := rt.Call(fn, Undefined, nil)
		if err != nil {
			t.Fatal(err)
		}
		pp, _ := rt.promiseOf(p)
		tasks = append(tasks, pp.Task)
	}
	if !rt.Async().Cancel(tasks[0]) {
		t.Fatal("Cancel of a suspended task failed")
	}
	if err := rt.FinishAll(); err != nil {
		t.Fatal(err)
	}
	if r := rt.Async().PollResult(tasks[0]); r.State != TaskCancelled {
		t.Errorf("cancelled task = %s, want cancelled", r.State)
	}
	for _, id := range tasks[1:] {
		if r := rt.Async().PollResult(id); r.State != TaskResolved || r.Value.AsInteger() != 42 {
			t.Errorf("task %d = %s %s, want resolved 42", id, r.State, rt.Inspect(r.Value))
		}
	}

	for i := 0; i < maxRetainedResults; i++ {
		rt.Async().Run(func() (Value, error) { return Undefined, nil })
	}
	if r := rt.Async().PollResult(tasks[1]); r.State != TaskCancelled {
		t.Errorf("oldest outcome still retained: %s", r.State)
	}
	if n := len(rt.Async().results); n > maxRetainedResults {
		t.Errorf("%d outcomes retained, want at most %d", n, maxRetainedResults)
	}
}

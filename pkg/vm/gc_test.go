package vm

import (
	"strings"
	"testing"
)

func runGC(t *testing.T, rt *Runtime) GCStats {
	t.Helper()
	stats, err := rt.RunGC()
	if err != nil {
		t.Fatalf("RunGC: %v", err)
	}
	return stats
}

func TestGC_RequiresAttach(t *testing.T) {
	rt := New(DefaultOptions())
	if _, err := rt.RunGC(); err != ErrNotAttached {
		t.Errorf("RunGC on detached runtime = %v, want ErrNotAttached", err)
	}
}

func TestGC_FreesGarbage(t *testing.T) {
	rt := newTestRuntime(t)
	garbage := rt.NewPlainObject()
	kept := rt.NewPlainObject()
	rt.Own(kept)
	rt.Object(kept).Props.SetValue(rt.Key("child"), rt.String("payload"), DefaultDataFlags)

	stats := runGC(t, rt)
	if rt.heap.Alive(garbage) {
		t.Errorf("unreachable object survived collection")
	}
	if !rt.heap.Alive(kept) {
		t.Fatalf("owned object was collected")
	}
	child, _ := rt.GetProperty(kept, rt.Key("child"))
	if rt.GoString(child) != "payload" {
		t.Errorf("owned object's property = %q", rt.GoString(child))
	}
	if stats.FreedObjects == 0 {
		t.Errorf("stats report no freed objects")
	}
	if rt.LastGC().Cycle != stats.Cycle {
		t.Errorf("LastGC cycle = %d, want %d", rt.LastGC().Cycle, stats.Cycle)
	}
	expectPanic(t, func() { rt.Object(garbage) }, "stale handle")
}

func TestGC_OwnIsCounted(t *testing.T) {
	rt := newTestRuntime(t)
	v := rt.NewPlainObject()
	rt.Own(v)
	rt.Own(v)
	rt.Release(v)
	runGC(t, rt)
	if !rt.heap.Alive(v) {
		t.Fatalf("object with one remaining Own was collected")
	}
	rt.Release(v)
	runGC(t, rt)
	if rt.heap.Alive(v) {
		t.Errorf("released object survived collection")
	}
}

func TestGC_ReusesCells(t *testing.T) {
	rt := newTestRuntime(t)
	s := rt.heap.objects[PayloadEmpty]
	for i := 0; i < 100; i++ {
		rt.NewPlainObject()
	}
	runGC(t, rt)
	next := s.next
	for i := 0; i < 100; i++ {
		rt.NewPlainObject()
	}
	if s.next != next {
		t.Errorf("slab grew from %d to %d cells instead of reusing freed ones", next, s.next)
	}
}

func TestGC_WeakMapEntries(t *testing.T) {
	rt := newTestRuntime(t)
	wm := rt.NewWeakMap()
	rt.Own(wm)

	deadKey, deadVal := rt.NewPlainObject(), rt.NewPlainObject()
	liveKey, liveVal := rt.NewPlainObject(), rt.NewPlainObject()
	rt.Own(liveKey)
	for _, kv := range [][2]Value{{deadKey, deadVal}, {liveKey, liveVal}} {
		if err := rt.WeakMapSet(wm, kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}

	runGC(t, rt)
	if rt.heap.Alive(deadKey) || rt.heap.Alive(deadVal) {
		t.Errorf("entry with an unreachable key kept its key or value alive")
	}
	if !rt.heap.Alive(liveVal) {
		t.Fatalf("value of a reachable key was collected")
	}
	p, _ := rt.weakMapOf(wm)
	if len(p.Entries) != 1 {
		t.Errorf("weak map holds %d entries, want 1", len(p.Entries))
	}
	got, err := rt.WeakMapGet(wm, liveKey)
	if err != nil || got != liveVal {
		t.Errorf("WeakMapGet(liveKey) = %v, %v", got, err)
	}
}

func TestGC_FlattensRopes(t *testing.T) {
	rt := newTestRuntime(t)
	left := rt.String(strings.Repeat("l", 40))
	right := rt.String(strings.Repeat("r", 40))
	rope := rt.heap.Concat(left, right)
	if rt.heap.StringAt(rope.Handle()).Kind() != StringCombined {
		t.Fatalf("expected a rope")
	}
	rt.Own(rope)

	runGC(t, rt)
	if k := rt.heap.StringAt(rope.Handle()).Kind(); k != StringOwned {
		t.Errorf("rope kind after collection = %d, want owned", k)
	}
	if rt.heap.Alive(left) || rt.heap.Alive(right) {
		t.Errorf("rope children survived after flattening")
	}
	if got := rt.GoString(rope); got != strings.Repeat("l", 40)+strings.Repeat("r", 40) {
		t.Errorf("flattened content = %q", got)
	}
}

func TestGC_CaptureEnvKeepsValues(t *testing.T) {
	rt := newTestRuntime(t)
	ub := NewUnitBuilder("capture")
	x := ub.Field("x")

	get := NewBuilder("get").ParentCapture()
	get.ReadCaptured(0, 0)
	get.Return(0)
	getID := ub.Function(get.Def())

	main := NewBuilder("main").Captures(1)
	main.Emit(Instruction{Op: OpNewObject, A: 0})
	main.LoadImmI32(1, 5)
	main.SetField(0, x, 1)
	main.WriteCaptured(0, 0)
	main.NewFunction(0, getID)
	main.Return(0)

	getter := execute(t, rt, ub.Build(ub.Function(main.Def())))
	rt.Own(getter)
	runGC(t, rt)

	obj, err := rt.Call(getter, Undefined, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !rt.heap.Alive(obj) {
		t.Fatalf("captured object was collected")
	}
	v, _ := rt.GetProperty(obj, rt.Key("x"))
	if v.AsInteger() != 5 {
		t.Errorf("captured object's x = %s, want 5", rt.Inspect(v))
	}
}

func TestGC_RefusedWhileRunning(t *testing.T) {
	rt := newTestRuntime(t)
	rt.SetGlobal("collect", rt.NewNativeFunction("collect", 0, func(c *CallContext, this Value, args []Value) (Value, error) {
		_, err := rt.RunGC()
		return BooleanValue(err == ErrCollectWhileRunning), nil
	}))

	ub := NewUnitBuilder("native-gc")
	b := NewBuilder("main").Stack(2)
	b.Emit(Instruction{Op: OpReadGlobal, A: 1, X: ub.Name("collect")})
	callFrom(b, 0)
	b.Return(0)

	if v := execute(t, rt, ub.Build(ub.Function(b.Def()))); v != True {
		t.Errorf("RunGC inside a native should be refused, got %s", rt.Inspect(v))
	}
}

func TestGC_CancelsUnreachableGenerators(t *testing.T) {
	rt := newTestRuntime(t)
	gen := execute(t, rt, counterGenerator())
	if _, _, err := rt.GeneratorResume(gen, ResumeNext, Undefined); err != nil {
		t.Fatal(err)
	}

	stats := runGC(t, rt)
	if stats.CancelledGenerators != 1 {
		t.Errorf("cancelled generators = %d, want 1", stats.CancelledGenerators)
	}
	if n := rt.Generators().Pending(); n != 0 {
		t.Errorf("generator tasks left = %d", n)
	}
}

func TestGC_KeepsReachableGenerators(t *testing.T) {
	rt := newTestRuntime(t)
	gen := execute(t, rt, counterGenerator())
	rt.Own(gen)
	if _, _, err := rt.GeneratorResume(gen, ResumeNext, Undefined); err != nil {
		t.Fatal(err)
	}
	if stats := runGC(t, rt); stats.CancelledGenerators != 0 {
		t.Errorf("reachable generator was cancelled")
	}
	v, done, err := rt.GeneratorResume(gen, ResumeNext, Undefined)
	if err != nil || done || v.AsInteger() != 2 {
		t.Errorf("next after collection = (%s, %v, %v), want (2, false)", rt.Inspect(v), done, err)
	}
}

func TestGC_PrunesFunctionTable(t *testing.T) {
	rt := newTestRuntime(t)
	before := rt.FunctionCount()
	ub := NewUnitBuilder("prune")
	f := NewBuilder("f")
	f.LoadImmI32(0, 1)
	f.Return(0)
	fid := ub.Function(f.Def())
	main := NewBuilder("main").Stack(2)
	main.NewFunction(1, fid)
	callFrom(main, 0)
	main.Return(0)

	execute(t, rt, ub.Build(ub.Function(main.Def())))
	if got := rt.FunctionCount(); got != before+2 {
		t.Fatalf("function count after link = %d, want %d", got, before+2)
	}
	stats := runGC(t, rt)
	if got := rt.FunctionCount(); got != before {
		t.Errorf("function count after collection = %d, want %d", got, before)
	}
	if stats.FreedFunctions != 2 {
		t.Errorf("freed functions = %d, want 2", stats.FreedFunctions)
	}
}

func TestExecute_CollectAfterExecute(t *testing.T) {
	opts := DefaultOptions()
	opts.CollectAfterExecute = true
	rt := New(opts)
	if err := rt.Attach(); err != nil {
		t.Fatal(err)
	}
	defer rt.Detach()

	ub := NewUnitBuilder("collect")
	b := NewBuilder("main")
	b.LoadString(0, ub.String("kept"))
	b.Emit(Instruction{Op: OpNewObject, A: 1})
	b.Return(0)
	v, err := rt.Execute(ub.Build(ub.Function(b.Def())))
	if err != nil {
		t.Fatal(err)
	}
	if rt.LastGC().Cycle != 1 {
		t.Errorf("no collection ran after Execute")
	}
	if rt.GoString(v) != "kept" {
		t.Errorf("result = %q", rt.GoString(v))
	}
}

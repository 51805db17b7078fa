package vm

import (
	stderrors "errors"
	"time"

	"lynx/pkg/errors"
)

// ErrCollectWhileRunning is returned by RunGC when script code is on the
// stack. Natives hold values in Go locals the collector cannot see.
var ErrCollectWhileRunning = stderrors.New("lynx: garbage collection requested while script code is running")

// GCStats summarizes one collection cycle.
type GCStats struct {
	Cycle               uint64
	MarkedObjects       int
	MarkedStrings       int
	FreedObjects        int
	FreedStrings        int
	FreedFunctions      int
	FreedClasses        int
	CancelledGenerators int
	LiveCells           int
	Duration            time.Duration
}

type gcState struct {
	epoch uint64
	last  GCStats
}

// LastGC returns the statistics of the most recent collection.
func (rt *Runtime) LastGC() GCStats { return rt.gc.last }

// collector is the state of one mark phase.
type collector struct {
	rt    *Runtime
	heap  *Heap
	epoch uint64
	gray  []Value

	weakMaps   []*WeakMapPayload
	weakSets   []*WeakSetPayload
	generators map[TaskID]struct{}

	stats GCStats
}

// RunGC performs a full stop-the-world mark and sweep. Reachable cells keep
// their handles and contents; unreachable cells return to their free lists.
// Function and class definitions no live code refers to are dropped from the
// tables, and suspended generators that became unreachable are cancelled.
func (rt *Runtime) RunGC() (GCStats, error) {
	if !rt.attached {
		return GCStats{}, ErrNotAttached
	}
	if rt.callDepth > 0 {
		return GCStats{}, ErrCollectWhileRunning
	}
	start := time.Now()
	rt.gc.epoch++
	c := &collector{
		rt:         rt,
		heap:       rt.heap,
		epoch:      rt.gc.epoch,
		generators: make(map[TaskID]struct{}),
	}
	c.stats.Cycle = c.epoch

	c.markRoots()
	c.drain()
	c.ephemerons()
	c.pruneWeak()
	c.cancelUnreachableGenerators()
	c.sweep()
	c.pruneTables()

	c.stats.LiveCells = rt.heap.Live()
	c.stats.Duration = time.Since(start)
	rt.gc.last = c.stats
	rt.gcLog.Debugf("cycle %d: marked %d objects %d strings, freed %d objects %d strings %d functions %d classes in %s",
		c.epoch, c.stats.MarkedObjects, c.stats.MarkedStrings, c.stats.FreedObjects, c.stats.FreedStrings,
		c.stats.FreedFunctions, c.stats.FreedClasses, c.stats.Duration)
	return c.stats, nil
}

func (c *collector) markRoots() {
	rt := c.rt
	c.mark(rt.global)
	rt.realm.roots(c.mark)
	for _, v := range rt.keyStrings {
		c.mark(v)
	}
	for _, v := range rt.literals {
		c.mark(v)
	}
	for v := range rt.owned {
		c.mark(v)
	}
	for _, job := range rt.jobs {
		c.markJob(job)
	}

	c.markContext(rt.main)
	for _, co := range rt.async.tasks {
		c.markCoroutine(co)
	}
	for _, r := range rt.async.results {
		c.mark(r.Value)
	}
	for _, r := range rt.generators.results {
		c.mark(r.Value)
	}

	for _, lu := range rt.units {
		for _, d := range lu.Functions {
			c.markDef(d)
		}
		for _, cd := range lu.Classes {
			c.markClass(cd)
		}
	}
}

// mark greys an unmarked object or marks a string. Strings have no
// children once flattened.
func (c *collector) mark(v Value) {
	switch v.typ {
	case TypeObject:
		h := v.Handle()
		s := c.heap.objects[h.class()]
		if !s.alive(h) {
			errors.Fatal(errors.EngineStaleHandle, "collector reached dead object %s", h)
		}
		f := s.flag(h.index())
		if *f != flagUnmarked {
			return
		}
		*f = flagGray
		c.gray = append(c.gray, v)
	case TypeString:
		h := v.Handle()
		s := c.heap.strings[int(h.class())-stringClassBase]
		if !s.alive(h) {
			errors.Fatal(errors.EngineStaleHandle, "collector reached dead string %s", h)
		}
		f := s.flag(h.index())
		if *f != flagUnmarked {
			return
		}
		c.heap.Flatten(v)
		*f = flagMarked
		c.stats.MarkedStrings++
	}
}

func (c *collector) marked(v Value) bool {
	switch v.typ {
	case TypeObject:
		h := v.Handle()
		s := c.heap.objects[h.class()]
		return s.alive(h) && *s.flag(h.index()) != flagUnmarked
	case TypeString:
		h := v.Handle()
		s := c.heap.strings[int(h.class())-stringClassBase]
		return s.alive(h) && *s.flag(h.index()) != flagUnmarked
	}
	return true
}

func (c *collector) drain() {
	for len(c.gray) > 0 {
		v := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		h := v.Handle()
		s := c.heap.objects[h.class()]
		*s.flag(h.index()) = flagMarked
		c.stats.MarkedObjects++
		c.scan(s.get(h))
	}
}

// scan greys everything obj refers to.
func (c *collector) scan(obj *HeapObject) {
	c.mark(obj.Proto)
	for i := range obj.Props.slots {
		cell := &obj.Props.slots[i].Cell
		c.mark(cell.Value)
		c.mark(cell.Getter)
		c.mark(cell.Setter)
	}
	switch p := obj.Payload.(type) {
	case *ArrayPayload:
		for _, e := range p.Elements {
			c.mark(e.Value)
		}
	case *FunctionPayload:
		c.markFunction(p)
	case *ClassPayload:
		if p.Def != nil {
			c.markClass(p.Def)
		}
		c.mark(p.Constructor)
		c.mark(p.Super)
	case *GeneratorPayload:
		c.mark(p.Function)
		c.mark(p.This)
		for _, a := range p.Args {
			c.mark(a)
		}
		if co, ok := c.rt.generators.tasks[p.Task]; ok && p.Task != 0 {
			c.generators[p.Task] = struct{}{}
			c.markCoroutine(co)
		}
	case *PromisePayload:
		c.mark(p.Result)
		for _, r := range p.reactions {
			c.markReaction(r)
		}
	case *ProxyPayload:
		c.mark(p.Target)
		c.mark(p.Handler)
	case *MapPayload:
		c.markEntries(p)
	case *SetPayload:
		c.markEntries(&p.MapPayload)
	case *WeakMapPayload:
		c.weakMaps = append(c.weakMaps, p)
	case *WeakSetPayload:
		c.weakSets = append(c.weakSets, p)
	case *TypedArrayPayload:
		c.mark(p.Buffer)
	case *PrimitiveWrapper:
		c.mark(p.Value)
	case *IteratorPayload:
		p.state.values(c.mark)
	}
}

func (c *collector) markEntries(m *MapPayload) {
	for i := range m.Keys {
		c.mark(m.Keys[i])
		c.mark(m.Values[i])
	}
}

func (c *collector) markFunction(p *FunctionPayload) {
	if p.Def != nil {
		c.markDef(p.Def)
	}
	c.markEnv(p.Capture.Env)
	c.mark(p.BoundThis)
	c.mark(p.NewTarget)
	c.mark(p.Home)
	c.mark(p.Class)
	if b := p.Bound; b != nil {
		c.mark(b.Target)
		c.mark(b.This)
		for _, a := range b.Args {
			c.mark(a)
		}
	}
	for _, v := range p.Slots {
		c.mark(v)
	}
}

// markEnv traces a capture env once per cycle; many closures share one.
func (c *collector) markEnv(e *CaptureEnv) {
	if e == nil || e.epoch == c.epoch {
		return
	}
	e.epoch = c.epoch
	for _, v := range e.slots {
		c.mark(v)
	}
}

func (c *collector) markDef(d *FunctionDef) {
	if d == nil || d.gcEpoch == c.epoch {
		return
	}
	d.gcEpoch = c.epoch
	for _, id := range d.nested {
		if nd, ok := c.rt.functions[id]; ok {
			c.markDef(nd)
		}
	}
	for _, id := range d.classes {
		if cd, ok := c.rt.classes[id]; ok {
			c.markClass(cd)
		}
	}
}

func (c *collector) markClass(cd *ClassDef) {
	if cd.gcEpoch == c.epoch {
		return
	}
	cd.gcEpoch = c.epoch
	c.markDef(cd.ctor)
	for _, m := range cd.methods {
		c.markDef(m.def)
	}
}

func (c *collector) markReaction(r promiseReaction) {
	c.mark(r.onFulfilled)
	c.mark(r.onRejected)
	c.mark(r.derived)
}

func (c *collector) markJob(job promiseJob) {
	c.markReaction(job.reaction)
	c.mark(job.arg)
	c.mark(job.promise)
	c.mark(job.thenable)
	c.mark(job.then)
}

func (c *collector) markCoroutine(co *coroutine) {
	c.mark(co.owner)
	c.mark(co.resumeValue)
	c.mark(co.result)
	c.markContext(co.ctx)
}

// markContext traces the live part of an execution context: the stack below
// top and, per activation, registers, bindings, env, temps and iterators.
func (c *collector) markContext(ctx *execContext) {
	if ctx == nil {
		return
	}
	for _, v := range ctx.stack[:ctx.top] {
		c.mark(v)
	}
	for _, f := range ctx.frames {
		c.markDef(f.def)
		c.mark(f.callee)
		c.mark(f.this)
		c.mark(f.newTarget)
		for _, v := range f.regs {
			c.mark(v)
		}
		for _, v := range f.args {
			c.mark(v)
		}
		c.markEnv(f.env)
		for _, v := range f.temps {
			c.mark(v)
		}
		for _, it := range f.iters {
			if it != nil {
				it.values(c.mark)
			}
		}
	}
}

// ephemerons marks WeakMap values whose keys are reachable, repeating until
// no new key becomes reachable.
func (c *collector) ephemerons() {
	for {
		progressed := false
		for _, wm := range c.weakMaps {
			for k, v := range wm.Entries {
				key := objectValue(k)
				if c.marked(key) && !c.marked(v) {
					c.mark(v)
					progressed = true
				}
			}
		}
		if len(c.gray) == 0 && !progressed {
			return
		}
		c.drain()
	}
}

func (c *collector) pruneWeak() {
	for _, wm := range c.weakMaps {
		for k := range wm.Entries {
			if !c.marked(objectValue(k)) {
				delete(wm.Entries, k)
			}
		}
	}
	for _, ws := range c.weakSets {
		for k := range ws.Entries {
			if !c.marked(objectValue(k)) {
				delete(ws.Entries, k)
			}
		}
	}
}

// cancelUnreachableGenerators unwinds suspended generator bodies whose
// generator object is garbage. Their stacks were not traced, so they must
// not run again.
func (c *collector) cancelUnreachableGenerators() {
	for _, id := range c.rt.generators.taskIDs() {
		if _, live := c.generators[id]; live {
			continue
		}
		if c.rt.generators.Cancel(id) {
			c.stats.CancelledGenerators++
		}
	}
}

func (c *collector) sweep() {
	for _, s := range c.heap.objects {
		for idx := uint32(0); idx < s.next; idx++ {
			f := s.flag(idx)
			switch *f {
			case flagFree:
			case flagUnmarked:
				if fp, ok := s.cellAt(idx).Payload.(*FunctionPayload); ok && fp.Capture.Kind == CaptureAllocated && fp.Capture.Env != nil {
					fp.Capture.Env.Release()
				}
				s.release(idx)
				c.stats.FreedObjects++
			default:
				*f = flagUnmarked
			}
		}
	}
	for _, s := range c.heap.strings {
		for idx := uint32(0); idx < s.next; idx++ {
			f := s.flag(idx)
			switch *f {
			case flagFree:
			case flagUnmarked:
				s.release(idx)
				c.stats.FreedStrings++
			default:
				*f = flagUnmarked
			}
		}
	}
}

// pruneTables drops definitions that no live closure, class, frame or
// pinned unit refers to.
func (c *collector) pruneTables() {
	for id, d := range c.rt.functions {
		if d.gcEpoch != c.epoch {
			delete(c.rt.functions, id)
			c.stats.FreedFunctions++
		}
	}
	for id, cd := range c.rt.classes {
		if cd.gcEpoch != c.epoch {
			delete(c.rt.classes, id)
			c.stats.FreedClasses++
		}
	}
}

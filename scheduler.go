package sim

import (
	"fmt"
	"sort"
)

// Phase is one of the scheduler's six ordered execution phases (spec 4.5).
type Phase int

const (
	PhaseInput Phase = iota
	PhaseUpdate
	PhasePrePhysics
	PhasePhysics
	PhasePostPhysics
	PhaseRender
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhasePrePhysics:
		return "prePhysics"
	case PhasePhysics:
		return "physics"
	case PhasePostPhysics:
		return "postPhysics"
	case PhaseRender:
		return "render"
	default:
		return "unknown"
	}
}

// allPhases lists every phase in run order (spec 2: "input -> update ->
// prePhysics -> physics -> postPhysics", then render on client only).
var allPhases = []Phase{PhaseInput, PhaseUpdate, PhasePrePhysics, PhasePhysics, PhasePostPhysics, PhaseRender}

// SystemFunc is a scheduler callback. Go's static typing already rules out
// returning a JS-style thenable; Awaitable below is the idiomatic
// equivalent guard for spec 4.5/5's "any then-bearing return ... must
// throw" — a system that wraps its result in a type implementing Awaitable
// is almost certainly smuggling deferred/async work into a tick, and the
// scheduler treats that as a protocol violation rather than letting it
// silently race.
type SystemFunc func(w *World) error

// Awaitable marks an error value as representing deferred/asynchronous
// work. No builtin type in this package implements it; a caller would have
// to go out of their way to construct one, which is exactly the "hard
// error" signal spec 5 asks for.
type Awaitable interface {
	Then(func())
}

type system struct {
	name  string
	order int
	seq   int
	fn    SystemFunc
}

// Scheduler holds a sorted system list per phase (spec 4.5). Systems are
// added with an optional explicit numeric order; ties break by insertion
// order via a monotonic counter, exactly like the teacher's coprocessor
// ticket queue orders completions by (ticket, arrival).
type Scheduler struct {
	phases  map[Phase][]*system
	counter int
}

// NewScheduler constructs an empty six-phase scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{phases: make(map[Phase][]*system, len(allPhases))}
	for _, p := range allPhases {
		s.phases[p] = nil
	}
	return s
}

// Add registers fn under phase with the given order (ties break by
// insertion order).
func (s *Scheduler) Add(phase Phase, name string, order int, fn SystemFunc) {
	s.counter++
	sys := &system{name: name, order: order, seq: s.counter, fn: fn}
	list := append(s.phases[phase], sys)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].order != list[j].order {
			return list[i].order < list[j].order
		}
		return list[i].seq < list[j].seq
	})
	s.phases[phase] = list
}

// Run executes every system registered for phase, in order, against w.
// render is the caller's responsibility to skip when not running as
// client (spec 4.5: "render is skipped when not running as client").
func (s *Scheduler) Run(phase Phase, w *World) error {
	for _, sys := range s.phases[phase] {
		err := sys.fn(w)
		if err == nil {
			continue
		}
		if _, async := err.(Awaitable); async {
			panicFault(KindProtocolViolation, "Scheduler.Run",
				fmt.Errorf("system %q in phase %s returned an awaitable result", sys.name, phase))
		}
		return fmt.Errorf("system %q in phase %s: %w", sys.name, phase, err)
	}
	return nil
}

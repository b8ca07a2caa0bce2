package typestate

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

type ViolationKind int

const (
	MissingTransition ViolationKind = iota + 1
	NonAcceptingTermination
)

func (k ViolationKind) String() string {
	switch k {
	case MissingTransition:
		return "missing_transition"
	case NonAcceptingTermination:
		return "non_accepting_termination"
	default:
		return "unknown"
	}
}

type Violation struct {
	Kind ViolationKind
	// Node is the operation without transition, or the exit node.
	Node eog.NodeID
	// Op is empty for NonAcceptingTermination.
	Op       string
	State    StateID
	Expected []string
	Base     string
	// Interprocedural marks ambiguous violations.
	Interprocedural bool
	// Path holds the operations matched on the failing path.
	Path []TraceEntry
}

type Report struct {
	OK         bool
	Trace      []TraceEntry
	Violations []Violation
	// Steps counts processed path states, Paths the explored paths that
	// ended (exit, failure or cycle guard).
	Steps    int
	Paths    int
	Pruned   int
	Duration time.Duration
}

type Evaluator struct {
	graph    *eog.Graph
	tracked  map[eog.DeclID]struct{}
	ops      map[eog.NodeID]string
	basePos  map[eog.NodeID]int
	analyzed map[string]struct{}
	hooks    Hooks
	observer RunObserver
	logger   *slog.Logger

	last *TraceRecorder
}

type EvaluatorOption func(*Evaluator)

func WithHooks(h Hooks) EvaluatorOption {
	return func(e *Evaluator) {
		if h != nil {
			e.hooks = h
		}
	}
}

// WithBasePositions declares calls where the tracked object is the
// argument at the given index instead of the receiver.
func WithBasePositions(pos map[eog.NodeID]int) EvaluatorOption {
	return func(e *Evaluator) {
		e.basePos = pos
	}
}

// WithAnalyzedCallees lists callees whose bodies are known not to touch
// the protocol; passing the tracked object to them is not an escape.
func WithAnalyzedCallees(names ...string) EvaluatorOption {
	return func(e *Evaluator) {
		for _, n := range names {
			e.analyzed[n] = struct{}{}
		}
	}
}

func WithRunObserver(o RunObserver) EvaluatorOption {
	return func(e *Evaluator) {
		e.observer = o
	}
}

func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator prepares evaluations of the declarations in tracked over
// graph g. ops maps call nodes to operation labels; unmapped nodes are
// irrelevant. An Evaluator is not safe for concurrent use; create one per
// goroutine and share the graph and automaton instead.
func NewEvaluator(g *eog.Graph, tracked []eog.DeclID, ops map[eog.NodeID]string, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		graph:    g,
		tracked:  make(map[eog.DeclID]struct{}, len(tracked)),
		ops:      ops,
		analyzed: map[string]struct{}{},
		hooks:    NopHooks{},
		logger:   slog.Default(),
	}
	for _, d := range tracked {
		e.tracked[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateOrder reports whether every path from start drives dfa into an
// accepting state without a missing transition.
func (e *Evaluator) EvaluateOrder(dfa *DFA, start eog.NodeID) bool {
	return e.Run(dfa, start).OK
}

// Trace returns the trace of the last run.
func (e *Evaluator) Trace() []TraceEntry {
	return e.last.Entries()
}

type visitKey struct {
	state StateID
	node  eog.NodeID
}

type pathState struct {
	state   StateID
	node    eog.NodeID
	visited map[visitKey]struct{}
	// escaped is set once the tracked object was handed to a call whose
	// body is not analyzed.
	escaped bool
	last    *pathStep
}

type reportKey struct {
	kind            ViolationKind
	node            eog.NodeID
	state           StateID
	interprocedural bool
}

// Run evaluates like EvaluateOrder and returns the full report.
func (e *Evaluator) Run(dfa *DFA, start eog.NodeID) *Report {
	began := time.Now()
	rec := NewTraceRecorder()
	rep := &Report{OK: true}
	defer func() {
		e.last = rec
		rep.Trace = rec.Entries()
		rep.Duration = time.Since(began)
		e.observe(rep)
	}()

	if dfa == nil || dfa.Start() == NoState {
		e.logger.Error("order evaluation without start state", "function", e.graph.Name)
		rep.OK = false
		return rep
	}
	if _, ok := e.graph.Node(start); !ok {
		e.logger.Error("order evaluation from unknown node", "function", e.graph.Name, "node", int(start))
		rep.OK = false
		return rep
	}

	reported := map[reportKey]struct{}{}
	stack := []*pathState{{
		state:   dfa.Start(),
		node:    start,
		visited: map[visitKey]struct{}{},
	}}

	for len(stack) > 0 {
		ps := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		rep.Steps++
		ps.visited[visitKey{ps.state, ps.node}] = struct{}{}

		n, _ := e.graph.Node(ps.node)
		if op, base, ok := e.relevant(n); ok {
			next, matched := dfa.Match(ps.state, op)
			if !matched {
				rep.OK = false
				rep.Paths++
				interprocedural := e.escapedAt(ps, n, base)
				key := reportKey{kind: MissingTransition, node: n.ID, interprocedural: interprocedural}
				if _, dup := reported[key]; !dup {
					reported[key] = struct{}{}
					rep.Violations = append(rep.Violations, Violation{
						Kind:            MissingTransition,
						Node:            n.ID,
						Op:              op,
						State:           ps.state,
						Expected:        dfa.ExpectedOps(ps.state),
						Base:            e.declName(base),
						Interprocedural: interprocedural,
						Path:            ps.last.entries(),
					})
					e.hooks.MissingTransition(n.ID, dfa, interprocedural)
				}
				continue
			}

			ps.state = next
			rec.Record(next, n.ID)
			ps.last = &pathStep{entry: TraceEntry{State: next, Node: n.ID}, base: base, prev: ps.last}
		} else if e.escapes(n) {
			ps.escaped = true
		}

		succ := e.graph.Successors(ps.node)
		if len(succ) == 0 {
			rep.Paths++
			if dfa.Accepts(ps.state) {
				continue
			}
			rep.OK = false
			interprocedural := e.returnedAfter(ps, start)
			key := reportKey{kind: NonAcceptingTermination, node: n.ID, state: ps.state, interprocedural: interprocedural}
			if _, dup := reported[key]; dup {
				continue
			}
			reported[key] = struct{}{}
			base := e.identityLabel(ps)
			rep.Violations = append(rep.Violations, Violation{
				Kind:            NonAcceptingTermination,
				Node:            n.ID,
				State:           ps.state,
				Expected:        dfa.ExpectedOps(ps.state),
				Base:            base,
				Interprocedural: interprocedural,
				Path:            ps.last.entries(),
			})
			e.hooks.NonAcceptingTermination(base, dfa, interprocedural)
			continue
		}

		pushed := 0
		for i := len(succ) - 1; i >= 0; i-- {
			key := visitKey{ps.state, succ[i]}
			if _, seen := ps.visited[key]; seen {
				continue
			}
			visited := ps.visited
			if i != 0 {
				visited = maps.Clone(ps.visited)
			}
			stack = append(stack, &pathState{
				state:   ps.state,
				node:    succ[i],
				visited: visited,
				escaped: ps.escaped,
				last:    ps.last,
			})
			pushed++
		}
		if pushed == 0 {
			rep.Paths++
			rep.Pruned++
		}
	}

	e.logger.Debug("order evaluation finished",
		"function", e.graph.Name,
		"protocol", dfa.Name,
		"ok", rep.OK,
		"steps", rep.Steps,
		"paths", rep.Paths,
		"violations", len(rep.Violations),
	)
	return rep
}

// relevant reports whether n is a mapped operation on a tracked object
// and returns the tracked declaration it resolved to.
func (e *Evaluator) relevant(n *eog.Node) (string, eog.DeclID, bool) {
	op, ok := e.ops[n.ID]
	if !ok {
		return "", eog.NoDecl, false
	}

	ref := n.Receiver
	if pos, ok := e.basePos[n.ID]; ok {
		ref = eog.Ref{}
		if pos >= 0 && pos < len(n.Args) {
			ref = n.Args[pos]
		}
	}
	for _, d := range e.graph.ResolveChain(ref) {
		if _, ok := e.tracked[d]; ok {
			return op, d, true
		}
	}
	return "", eog.NoDecl, false
}

// escapes reports whether n hands a tracked object to a call whose body is
// not analyzed.
func (e *Evaluator) escapes(n *eog.Node) bool {
	if !n.IsCall() {
		return false
	}
	if _, ok := e.analyzed[n.Callee]; ok {
		return false
	}
	for d := range e.tracked {
		if e.graph.PassesAsArgument(n.ID, d) {
			return true
		}
	}
	return false
}

// escapedAt classifies a missing transition at n: the object was passed to
// unanalyzed code earlier on this path, came in as a parameter, or is
// returned to the caller afterwards.
func (e *Evaluator) escapedAt(ps *pathState, n *eog.Node, base eog.DeclID) bool {
	if ps.escaped {
		return true
	}
	if e.graph.EntersFromOutside(base) {
		return true
	}
	return e.graph.ReachesReturnOf(n.ID, base)
}

// returnedAfter classifies a non-accepting exit: the receiver of the last
// matched operation flows into a return statement returning it.
func (e *Evaluator) returnedAfter(ps *pathState, start eog.NodeID) bool {
	if ps.last != nil {
		return e.graph.ReachesReturnOf(ps.last.entry.Node, ps.last.base)
	}
	for d := range e.tracked {
		if e.graph.ReachesReturnOf(start, d) {
			return true
		}
	}
	return false
}

func (e *Evaluator) identityLabel(ps *pathState) string {
	if ps.last != nil {
		return e.declName(ps.last.base)
	}
	names := make([]string, 0, len(e.tracked))
	for d := range e.tracked {
		names = append(names, e.declName(d))
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

func (e *Evaluator) declName(d eog.DeclID) string {
	decl, ok := e.graph.Decl(d)
	if !ok {
		return ""
	}
	return decl.Name
}

func (e *Evaluator) observe(rep *Report) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveRun(RunStats{
		Function:   e.graph.Name,
		OK:         rep.OK,
		Steps:      rep.Steps,
		Paths:      rep.Paths,
		Violations: len(rep.Violations),
		Duration:   rep.Duration,
	})
}

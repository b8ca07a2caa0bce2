// Package typestate checks that the calls made on a tracked object inside
// one function follow a protocol given as an automaton.
//
// The automaton (DFA) is deterministic on observable operations but may
// carry epsilon transitions; every match first closes the current state
// under epsilons. The Evaluator walks a function's execution-order graph
// (package eog) and drives the automaton along every path.
package typestate

import (
	"errors"
	"fmt"
	"sort"
)

// Epsilon labels a silent transition.
const Epsilon = "ε"

var (
	ErrMultipleStartStates = errors.New("automaton already has a start state")
	ErrNoStartState        = errors.New("automaton has no start state")
	ErrNondeterministic    = errors.New("operation leads to more than one state")
	ErrUnknownState        = errors.New("unknown state")
	ErrEmptyOperation      = errors.New("empty operation label")
)

// StateID is the handle of an automaton state.
type StateID int

const NoState StateID = -1

type State struct {
	ID        StateID
	Name      string
	Start     bool
	Accepting bool
}

type Transition struct {
	From StateID
	To   StateID
	Op   string
	// Base is the receiver name the protocol author had in mind ("cm" in
	// cm.create()); only used in diagnostics.
	Base string
}

func (t Transition) IsEpsilon() bool { return t.Op == Epsilon }

// DFA is built once with AddState/AddEdge and then only read. A built
// automaton can be shared between concurrent evaluations.
type DFA struct {
	Name string

	states   []State
	outgoing [][]Transition
	start    StateID
}

func NewDFA(name string) *DFA {
	return &DFA{Name: name, start: NoState}
}

// AddState registers a state named q<n>.
func (d *DFA) AddState(isStart, isAccepting bool) (StateID, error) {
	return d.AddNamedState(fmt.Sprintf("q%d", len(d.states)+1), isStart, isAccepting)
}

func (d *DFA) AddNamedState(name string, isStart, isAccepting bool) (StateID, error) {
	if isStart && d.start != NoState {
		return NoState, fmt.Errorf("%w: %q", ErrMultipleStartStates, d.states[d.start].Name)
	}

	id := StateID(len(d.states))
	d.states = append(d.states, State{ID: id, Name: name, Start: isStart, Accepting: isAccepting})
	d.outgoing = append(d.outgoing, nil)
	if isStart {
		d.start = id
	}
	return id, nil
}

// AddEdge registers from -op-> to. Registering the same transition twice is
// a no-op; the same non-epsilon op towards another state is rejected.
func (d *DFA) AddEdge(from, to StateID, op, base string) error {
	if !d.valid(from) {
		return fmt.Errorf("%w: %d", ErrUnknownState, from)
	}
	if !d.valid(to) {
		return fmt.Errorf("%w: %d", ErrUnknownState, to)
	}
	if op == "" {
		return ErrEmptyOperation
	}

	for _, t := range d.outgoing[from] {
		if t.Op != op {
			continue
		}
		if t.To == to {
			return nil
		}
		if op != Epsilon {
			return fmt.Errorf("%w: %s --%s--> %s and %s", ErrNondeterministic,
				d.states[from].Name, op, d.states[t.To].Name, d.states[to].Name)
		}
	}

	d.outgoing[from] = append(d.outgoing[from], Transition{From: from, To: to, Op: op, Base: base})
	return nil
}

// Validate checks what AddState/AddEdge cannot check incrementally: a
// start state exists and no epsilon closure offers one op towards two
// different states.
func (d *DFA) Validate() error {
	if d.start == NoState {
		return ErrNoStartState
	}
	for _, s := range d.states {
		targets := map[string]StateID{}
		for _, c := range d.EpsilonClosure(s.ID) {
			for _, t := range d.outgoing[c] {
				if t.IsEpsilon() {
					continue
				}
				if prev, ok := targets[t.Op]; ok && prev != t.To {
					return fmt.Errorf("%w: %s offers %s towards %s and %s", ErrNondeterministic,
						s.Name, t.Op, d.states[prev].Name, d.states[t.To].Name)
				}
				targets[t.Op] = t.To
			}
		}
	}
	return nil
}

// Start returns the start state, or NoState.
func (d *DFA) Start() StateID { return d.start }

func (d *DFA) State(id StateID) (State, bool) {
	if !d.valid(id) {
		return State{}, false
	}
	return d.states[id], true
}

func (d *DFA) States() []State {
	out := make([]State, len(d.states))
	copy(out, d.states)
	return out
}

func (d *DFA) Transitions() []Transition {
	var out []Transition
	for _, ts := range d.outgoing {
		out = append(out, ts...)
	}
	return out
}

func (d *DFA) IsAccepting(id StateID) bool {
	return d.valid(id) && d.states[id].Accepting
}

// Accepts reports whether id or a state reachable from it through epsilon
// transitions is accepting.
func (d *DFA) Accepts(id StateID) bool {
	for _, c := range d.EpsilonClosure(id) {
		if d.states[c].Accepting {
			return true
		}
	}
	return false
}

// EpsilonClosure returns id and every state reachable from it using only
// epsilon transitions, in discovery order.
func (d *DFA) EpsilonClosure(id StateID) []StateID {
	if !d.valid(id) {
		return nil
	}

	closure := []StateID{id}
	seen := map[StateID]struct{}{id: {}}
	for i := 0; i < len(closure); i++ {
		for _, t := range d.outgoing[closure[i]] {
			if !t.IsEpsilon() {
				continue
			}
			if _, ok := seen[t.To]; ok {
				continue
			}
			seen[t.To] = struct{}{}
			closure = append(closure, t.To)
		}
	}
	return closure
}

// Match returns the state reached from id by op after closing id under
// epsilons.
func (d *DFA) Match(id StateID, op string) (StateID, bool) {
	if op == Epsilon {
		return NoState, false
	}
	for _, c := range d.EpsilonClosure(id) {
		for _, t := range d.outgoing[c] {
			if t.Op == op {
				return t.To, true
			}
		}
	}
	return NoState, false
}

// ExpectedOps lists, sorted, the operations accepted from id.
func (d *DFA) ExpectedOps(id StateID) []string {
	set := map[string]struct{}{}
	for _, c := range d.EpsilonClosure(id) {
		for _, t := range d.outgoing[c] {
			if !t.IsEpsilon() {
				set[t.Op] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Bases returns the receiver names mentioned by the transitions, sorted.
func (d *DFA) Bases() []string {
	set := map[string]struct{}{}
	for _, t := range d.Transitions() {
		if t.Base != "" {
			set[t.Base] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func (d *DFA) valid(id StateID) bool {
	return id >= 0 && int(id) < len(d.states)
}

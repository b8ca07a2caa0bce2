package typestate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

// Compiler turns a protocol written as a Graphviz digraph into a DFA:
//
//	digraph Botan {
//	  init [shape=point];
//	  q6 [shape=doublecircle];
//	  init -> q1;
//	  q1 -> q2 [label="cm.create()"];
//	  q4 -> q5 [label="ε"];
//	}
//
// The start state is the target of the edge leaving the point-shaped
// marker; doublecircle nodes are accepting.
type Compiler struct{}

func NewCompiler() *Compiler { return &Compiler{} }

const (
	shapeMarker    = "point"
	shapeAccepting = "doublecircle"
)

func (c *Compiler) Compile(dot string) (*DFA, error) {
	ast, err := gographviz.ParseString(dot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOT: %w", err)
	}

	g := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, fmt.Errorf("failed to analyze DOT: %w", err)
	}

	markers := map[string]struct{}{}
	for _, n := range g.Nodes.Nodes {
		if eog.Attr(n.Attrs, "shape") == shapeMarker {
			markers[n.Name] = struct{}{}
		}
	}

	// 1) start state
	start := ""
	for _, e := range g.Edges.Edges {
		if _, ok := markers[e.Src]; !ok {
			continue
		}
		if start != "" && start != e.Dst {
			return nil, compileErr("edge "+e.Src+"->"+e.Dst, ErrMultipleStartStates)
		}
		start = e.Dst
	}
	if start == "" {
		return nil, compileErr("graph "+g.Name, ErrNoStartState)
	}

	// 2) states
	d := NewDFA(g.Name)
	ids := map[string]StateID{}
	for _, n := range g.Nodes.Nodes {
		if _, ok := markers[n.Name]; ok {
			continue
		}
		accepting := eog.Attr(n.Attrs, "shape") == shapeAccepting
		id, err := d.AddNamedState(n.Name, n.Name == start, accepting)
		if err != nil {
			return nil, compileErr("state "+n.Name, err)
		}
		ids[n.Name] = id
	}
	if _, ok := ids[start]; !ok {
		return nil, compileErr("state "+start, ErrUnknownState)
	}

	// 3) transitions, in text order
	for _, e := range g.Edges.Edges {
		if _, ok := markers[e.Src]; ok {
			continue
		}
		element := "edge " + e.Src + "->" + e.Dst
		from, ok := ids[e.Src]
		if !ok {
			return nil, compileErr(element, ErrUnknownState)
		}
		to, ok := ids[e.Dst]
		if !ok {
			return nil, compileErr(element, ErrUnknownState)
		}

		base, op := SplitOperation(eog.Attr(e.Attrs, "label"))
		if err := d.AddEdge(from, to, op, base); err != nil {
			return nil, compileErr(element, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, compileErr("graph "+g.Name, err)
	}
	return d, nil
}

var opRe = regexp.MustCompile(`^(?:([A-Za-z_][A-Za-z0-9_]*)\.)?(.+)$`)

// SplitOperation splits an edge label such as "cm.create()" into its base
// hint and operation. Empty labels, "ε" and "epsilon" are silent.
func SplitOperation(label string) (base, op string) {
	label = strings.TrimSpace(label)
	switch strings.ToLower(label) {
	case "", Epsilon, "epsilon", "eps":
		return "", Epsilon
	}

	m := opRe.FindStringSubmatch(label)
	if m == nil {
		return "", label
	}
	// a dot inside the argument list is not a base separator
	if m[1] != "" && strings.Index(label, "(") >= 0 && strings.Index(label, ".") > strings.Index(label, "(") {
		return "", label
	}
	return m[1], m[2]
}

// DOT renders the automaton in the format Compile reads.
func (d *DFA) DOT() (string, error) {
	name := dotID(d.Name)
	if d.Name == "" {
		name = "protocol"
	}

	g := gographviz.NewGraph()
	if err := g.SetName(name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	const marker = "__start"
	if err := g.AddNode(name, marker, map[string]string{"shape": shapeMarker}); err != nil {
		return "", err
	}
	for _, s := range d.states {
		shape := "circle"
		if s.Accepting {
			shape = shapeAccepting
		}
		if err := g.AddNode(name, dotID(s.Name), map[string]string{"shape": shape}); err != nil {
			return "", err
		}
	}
	if d.start != NoState {
		if err := g.AddEdge(marker, dotID(d.states[d.start].Name), true, nil); err != nil {
			return "", err
		}
	}
	for _, t := range d.Transitions() {
		label := t.Op
		if t.Base != "" && !t.IsEpsilon() {
			label = t.Base + "." + t.Op
		}
		attrs := map[string]string{"label": strconv.Quote(label)}
		if err := g.AddEdge(dotID(d.states[t.From].Name), dotID(d.states[t.To].Name), true, attrs); err != nil {
			return "", err
		}
	}
	return g.String(), nil
}

var plainIDRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func dotID(s string) string {
	if plainIDRe.MatchString(s) {
		return s
	}
	return strconv.Quote(s)
}


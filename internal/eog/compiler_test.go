package eog

import (
	"errors"
	"testing"

	"github.com/awalterschulze/gographviz"
)

const aliasAndReturn = `digraph aliasAndReturn {
  n0 [label="var p1"];
  n1 [label="p1.create()"];
  n2 [label="var p2 = p1"];
  n3 [label="p2.init()"];
  n4 [label="foo(p2, 42)"];
  n5 [label="if (x == 1)"];
  n6 [label="return p1"];
  n7 [label="exit"];
  n0 -> n1;
  n1 -> n2;
  n2 -> n3;
  n3 -> n4;
  n4 -> n5;
  n5 -> n6;
  n5 -> n7;
}`

func TestCompiler_StatementKinds(t *testing.T) {
	g, err := NewCompiler().Compile(aliasAndReturn)
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "aliasAndReturn" {
		t.Fatalf("expected graph name aliasAndReturn, got %q", g.Name)
	}
	if g.Len() != 8 {
		t.Fatalf("expected 8 nodes, got %d", g.Len())
	}

	want := []Kind{KindDecl, KindCall, KindDecl, KindCall, KindCall, KindOther, KindReturn, KindOther}
	for i, k := range want {
		n, _ := g.Node(NodeID(i))
		if n.Kind != k {
			t.Fatalf("node %d: expected kind %s, got %s", i, k, n.Kind)
		}
	}

	call, _ := g.Node(1)
	if call.Callee != "create" || call.Receiver.Name != "p1" {
		t.Fatalf("unexpected call node: %#v", call)
	}

	if !g.Frozen() {
		t.Fatalf("expected compiled graph to be frozen")
	}
	if _, err := g.Add(Node{}); !errors.Is(err, ErrGraphFrozen) {
		t.Fatalf("expected ErrGraphFrozen, got %v", err)
	}
}

func TestCompiler_SuccessorOrderFollowsText(t *testing.T) {
	g, err := NewCompiler().Compile(aliasAndReturn)
	if err != nil {
		t.Fatal(err)
	}
	branch, _ := g.NodeByName("n5")
	succ := g.Successors(branch)
	if len(succ) != 2 {
		t.Fatalf("expected 2 successors, got %d", len(succ))
	}
	ret, _ := g.NodeByName("n6")
	exit, _ := g.NodeByName("n7")
	if succ[0] != ret || succ[1] != exit {
		t.Fatalf("unexpected successor order: %v", succ)
	}
	if len(g.Successors(exit)) != 0 {
		t.Fatalf("expected exit node to have no successors")
	}
	if g.Entry() != 0 {
		t.Fatalf("expected entry 0, got %d", g.Entry())
	}
}

func TestResolve_FollowsAssignments(t *testing.T) {
	g, err := NewCompiler().Compile(aliasAndReturn)
	if err != nil {
		t.Fatal(err)
	}
	p1 := g.DeclsNamed("p1")[0]
	p2 := g.DeclsNamed("p2")[0]

	init, _ := g.Node(3)
	if got := g.ResolveDecl(init.Receiver); got != p1 {
		t.Fatalf("expected p2 to resolve to p1 (%d), got %d", p1, got)
	}
	if !g.RefersTo(init.Receiver, p2) {
		t.Fatalf("expected chain to contain p2 itself")
	}

	if !g.PassesAsArgument(4, p1) {
		t.Fatalf("expected foo(p2, 42) to pass p1")
	}
	if g.PassesAsArgument(3, p1) {
		t.Fatalf("receiver is not an argument")
	}

	if !g.ReachesReturnOf(1, p1) {
		t.Fatalf("expected return p1 to be reachable")
	}
	if g.ReachesReturnOf(7, p1) {
		t.Fatalf("exit node cannot reach a return")
	}
	if g.EntersFromOutside(p1) {
		t.Fatalf("local declaration should not enter from outside")
	}
}

func TestCompiler_ParametersAndCallResults(t *testing.T) {
	g, err := NewCompiler().Compile(`digraph f {
  a [label="param p"];
  b [label="var q = make()"];
  c [label="r := p"];
  a -> b;
  b -> c;
}`)
	if err != nil {
		t.Fatal(err)
	}

	p := g.DeclsNamed("p")[0]
	q := g.DeclsNamed("q")[0]
	r := g.DeclsNamed("r")[0]
	if !g.EntersFromOutside(p) {
		t.Fatalf("parameter should enter from outside")
	}
	if g.EntersFromOutside(q) {
		t.Fatalf("call result is created locally, not handed in by the caller")
	}
	if d, _ := g.Decl(q); d.AliasOf != NoDecl {
		t.Fatalf("call result should not alias anything, got %d", d.AliasOf)
	}
	if !g.EntersFromOutside(r) {
		t.Fatalf("alias of a parameter should enter from outside")
	}
	if g.DeclNode(p) != 0 {
		t.Fatalf("expected parameter node 0, got %d", g.DeclNode(p))
	}
}

func TestCompiler_Errors(t *testing.T) {
	cases := map[string]string{
		"syntax":     `digraph {`,
		"undeclared": `digraph { a [label="x = y"]; }`,
		"redeclared": `digraph { a [label="var x"]; b [label="var x"]; }`,
	}
	for name, dot := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewCompiler().Compile(dot); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestAttr(t *testing.T) {
	attrs := gographviz.Attrs{
		"label":  `"put(\"k\")"`,
		"shape":  "point",
		"xlabel": `"left\l"`,
	}
	cases := map[string]string{
		"label":   `put("k")`,
		"shape":   "point",
		"xlabel":  `left\l`,
		"missing": "",
	}
	for key, want := range cases {
		if got := Attr(attrs, key); got != want {
			t.Fatalf("Attr(%q) = %q, want %q", key, got, want)
		}
	}
}

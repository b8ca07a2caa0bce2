package oplabel

import (
	"errors"
	"testing"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

const fileUse = `digraph fileUse {
  n0 [label="var f = os.Open(path)"];
  n1 [label="f.Read(buf)"];
  n2 [label="log(f)"];
  n3 [label="f.Close()"];
  n4 [label="return"];
  n0 -> n1; n1 -> n2; n2 -> n3; n3 -> n4;
}`

func compile(t *testing.T) *eog.Graph {
	t.Helper()
	g, err := eog.NewCompiler().Compile(fileUse)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func opsByName(t *testing.T, g *eog.Graph, ops map[eog.NodeID]string) map[string]string {
	t.Helper()
	out := map[string]string{}
	for id, op := range ops {
		n, ok := g.Node(id)
		if !ok {
			t.Fatalf("unknown node %d", id)
		}
		out[n.Name] = op
	}
	return out
}

func TestLabeler_DefaultConvention(t *testing.T) {
	g := compile(t)
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}

	ops, err := l.Label(g)
	if err != nil {
		t.Fatal(err)
	}
	got := opsByName(t, g, ops)
	want := map[string]string{"n0": "Open()", "n1": "Read()", "n3": "Close()"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("expected %s=%s, got %v", k, v, got)
		}
	}
}

func TestLabeler_RulesFirstMatchWins(t *testing.T) {
	g := compile(t)
	l, err := New(
		Rule{Op: "open()", When: `receiver == "os" and callee == "Open"`},
		Rule{Op: "close()", When: `text == "f.Close()"`},
		Rule{When: `callee in ["Read", "Write"] and argc <= 1`},
		Rule{Op: "never()", When: `kind == "call"`},
	)
	if err != nil {
		t.Fatal(err)
	}

	ops, err := l.Label(g)
	if err != nil {
		t.Fatal(err)
	}
	got := opsByName(t, g, ops)
	if got["n0"] != "open()" || got["n1"] != "Read()" || got["n3"] != "close()" {
		t.Fatalf("unexpected labels %v", got)
	}
	if got["n2"] != "never()" {
		t.Fatalf("expected the catch-all rule to label log(f), got %v", got)
	}
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"function call": `len(callee) > 2`,
		"member access": `receiver.Name == "x"`,
		"arithmetic":    `argc + 1 == 2`,
		"not bool":      `callee`,
		"unknown var":   `nope == 1`,
		"unterminated":  `callee == "x`,
	}
	for name, when := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(Rule{Op: "x()", When: when})
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

func TestValidate_IgnoresStringContents(t *testing.T) {
	for _, cond := range []string{
		`text == "f.Close()"`,
		`callee == "a-b" or not (argc > 1)`,
		`text != 'x.y(z); w'`,
		``,
	} {
		if err := Validate(cond); err != nil {
			t.Fatalf("Validate(%q): %v", cond, err)
		}
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules([]byte("rules:\n  - op: create()\n    when: 'callee == \"New\"'\n  - when: 'receiver != \"\"'\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].Op != "create()" || rules[1].Op != "" {
		t.Fatalf("unexpected rules %+v", rules)
	}
	if _, err := New(rules...); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRules([]byte("rules: [")); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

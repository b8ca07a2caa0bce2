// Package oplabel maps call nodes of an execution-order graph to the
// operation labels of a protocol.
package oplabel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

var ErrInvalidRule = errors.New("invalid labeling rule")

// Rule labels the call nodes matching When with Op. An empty When matches
// every call; an empty Op means callee + "()".
type Rule struct {
	Op   string `yaml:"op" json:"op"`
	When string `yaml:"when" json:"when"`
}

// env is the variable set a rule condition sees.
type env struct {
	Callee   string `expr:"callee"`
	Receiver string `expr:"receiver"`
	Argc     int    `expr:"argc"`
	Kind     string `expr:"kind"`
	Text     string `expr:"text"`
}

type compiledRule struct {
	op      string
	program *vm.Program
}

// Labeler applies rules in order; the first matching rule wins. A Labeler
// is immutable after New and safe for concurrent use.
type Labeler struct {
	rules []compiledRule
}

func New(rules ...Rule) (*Labeler, error) {
	l := &Labeler{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		cr := compiledRule{op: strings.TrimSpace(r.Op)}
		when := strings.TrimSpace(r.When)
		if when != "" {
			if err := Validate(when); err != nil {
				return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, i, err)
			}
			program, err := expr.Compile(when, expr.Env(env{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, i, err)
			}
			cr.program = program
		}
		l.rules = append(l.rules, cr)
	}
	return l, nil
}

// Label returns the operation of every call node a rule matches. With no
// rules, every call with a receiver is labeled callee + "()".
func (l *Labeler) Label(g *eog.Graph) (map[eog.NodeID]string, error) {
	ops := map[eog.NodeID]string{}
	for i := 0; i < g.Len(); i++ {
		n, _ := g.Node(eog.NodeID(i))
		if !n.IsCall() {
			continue
		}

		if len(l.rules) == 0 {
			if n.Receiver.Name != "" {
				ops[n.ID] = n.Callee + "()"
			}
			continue
		}

		op, ok, err := l.match(n)
		if err != nil {
			return nil, fmt.Errorf("label %s in %s: %w", n.Name, g.Name, err)
		}
		if ok {
			ops[n.ID] = op
		}
	}
	return ops, nil
}

func (l *Labeler) match(n *eog.Node) (string, bool, error) {
	vars := env{
		Callee:   n.Callee,
		Receiver: n.Receiver.Name,
		Argc:     len(n.Args),
		Kind:     n.Kind.String(),
		Text:     n.Label,
	}
	for _, r := range l.rules {
		if r.program != nil {
			out, err := expr.Run(r.program, vars)
			if err != nil {
				return "", false, err
			}
			if b, _ := out.(bool); !b {
				continue
			}
		}
		if r.op == "" {
			return n.Callee + "()", true, nil
		}
		return r.op, true, nil
	}
	return "", false, nil
}

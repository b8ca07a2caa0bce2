package typestate

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type yamlProtocol struct {
	Name        string           `yaml:"name"`
	States      []yamlState      `yaml:"states"`
	Transitions []yamlTransition `yaml:"transitions"`
}

type yamlState struct {
	Name      string `yaml:"name"`
	Start     bool   `yaml:"start"`
	Accepting bool   `yaml:"accepting"`
}

type yamlTransition struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Op      string `yaml:"op"`
	Base    string `yaml:"base"`
	Epsilon bool   `yaml:"epsilon"`
}

// CompileYAML builds a DFA from a document such as:
//
//	name: botan
//	states:
//	  - {name: q1, start: true}
//	  - {name: q2}
//	  - {name: q3, accepting: true}
//	transitions:
//	  - {from: q1, to: q2, op: create(), base: cm}
//	  - {from: q2, to: q3, epsilon: true}
func (c *Compiler) CompileYAML(data []byte) (*DFA, error) {
	var doc yamlProtocol
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.States) == 0 {
		return nil, compileErr("states", fmt.Errorf("at least one state is required"))
	}

	d := NewDFA(doc.Name)
	ids := map[string]StateID{}
	for i, s := range doc.States {
		if s.Name == "" {
			return nil, compileErr(fmt.Sprintf("states[%d]", i), fmt.Errorf("name is required"))
		}
		if _, dup := ids[s.Name]; dup {
			return nil, compileErr("state "+s.Name, fmt.Errorf("duplicate state"))
		}
		id, err := d.AddNamedState(s.Name, s.Start, s.Accepting)
		if err != nil {
			return nil, compileErr("state "+s.Name, err)
		}
		ids[s.Name] = id
	}

	for i, t := range doc.Transitions {
		element := fmt.Sprintf("transitions[%d] %s->%s", i, t.From, t.To)
		from, ok := ids[t.From]
		if !ok {
			return nil, compileErr(element, ErrUnknownState)
		}
		to, ok := ids[t.To]
		if !ok {
			return nil, compileErr(element, ErrUnknownState)
		}

		base, op := t.Base, t.Op
		switch {
		case t.Op == "" && !t.Epsilon:
			return nil, compileErr(element, ErrEmptyOperation)
		case t.Epsilon:
			base, op = "", Epsilon
		case base == "":
			base, op = SplitOperation(op)
		}
		if err := d.AddEdge(from, to, op, base); err != nil {
			return nil, compileErr(element, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, compileErr("protocol "+doc.Name, err)
	}
	return d, nil
}

// CompileProtocol dispatches on format: "dot" (default) or "yaml".
func (c *Compiler) CompileProtocol(format, text string) (*DFA, error) {
	switch format {
	case "", "dot":
		return c.Compile(text)
	case "yaml", "yml":
		return c.CompileYAML([]byte(text))
	default:
		return nil, fmt.Errorf("unsupported protocol format %q", format)
	}
}

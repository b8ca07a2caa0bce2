package eog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
)

// Compiler builds function graphs from Graphviz DOT. Every node's label
// is a statement (see parseStatement); nodes without a label are opaque.
// Edge order in the text is successor order.
type Compiler struct{}

func NewCompiler() *Compiler { return &Compiler{} }

func (c *Compiler) Compile(dot string) (*Graph, error) {
	ast, err := gographviz.ParseString(dot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOT: %w", err)
	}

	dg := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, dg); err != nil {
		return nil, fmt.Errorf("failed to analyze DOT: %w", err)
	}

	g := New(dg.Name)

	// 1) statements
	stmts := make([]statement, len(dg.Nodes.Nodes))
	for i, n := range dg.Nodes.Nodes {
		st, err := parseStatement(Attr(n.Attrs, "label"))
		if err != nil {
			return nil, fmt.Errorf("invalid statement in node %q: %w", n.Name, err)
		}
		stmts[i] = st
	}

	// 2) declarations, so references may precede them in the text
	decls := map[string]DeclID{}
	for i, st := range stmts {
		if st.Declares == "" {
			continue
		}
		if _, dup := decls[st.Declares]; dup {
			return nil, fmt.Errorf("node %q redeclares %q", dg.Nodes.Nodes[i].Name, st.Declares)
		}
		kind := DeclLocal
		if st.Kind == KindParam {
			kind = DeclParam
		}
		id, err := g.Declare(st.Declares, kind)
		if err != nil {
			return nil, err
		}
		decls[st.Declares] = id
	}

	ref := func(node, name string) (Ref, error) {
		if name == "" {
			return Ref{}, nil
		}
		id, ok := decls[name]
		if !ok {
			return Ref{}, fmt.Errorf("node %q references undeclared %q", node, name)
		}
		return Ref{Name: name, Decl: id}, nil
	}

	// 3) nodes
	for i, dn := range dg.Nodes.Nodes {
		st := stmts[i]
		n := Node{
			Name:   dn.Name,
			Kind:   st.Kind,
			Label:  Attr(dn.Attrs, "label"),
			Callee: st.Callee,
		}

		var err error
		if st.Target != "" {
			var target Ref
			if target, err = ref(dn.Name, st.Target); err != nil {
				return nil, err
			}
			n.Decl = target.Decl
		}
		if st.Kind == KindParam {
			n.Decl = decls[st.Declares]
		}
		if n.Value, err = ref(dn.Name, st.Value); err != nil {
			return nil, err
		}
		if n.Receiver, err = ref(dn.Name, st.Receiver); err != nil {
			// packages, fields and globals: keep the name, no declaration
			n.Receiver = Ref{Name: st.Receiver}
		}
		for _, a := range st.Args {
			// literal-looking identifiers such as true/nil are not references
			r, err := ref(dn.Name, a)
			if err != nil {
				continue
			}
			n.Args = append(n.Args, r)
		}

		if _, err := g.Add(n); err != nil {
			return nil, err
		}
	}

	// 4) execution-order edges
	for _, e := range dg.Edges.Edges {
		from, ok := g.NodeByName(e.Src)
		if !ok {
			return nil, fmt.Errorf("edge references unknown source node %q", e.Src)
		}
		to, ok := g.NodeByName(e.Dst)
		if !ok {
			return nil, fmt.Errorf("edge references unknown destination node %q", e.Dst)
		}
		if err := g.Connect(from, to); err != nil {
			return nil, err
		}
	}

	g.Freeze()
	return g, nil
}

// Attr reads a Graphviz attribute. Quoted values are unescaped; values
// with escapes Go does not know (\l, \N) keep them verbatim.
func Attr(attrs gographviz.Attrs, key string) string {
	val, ok := attrs[gographviz.Attr(key)]
	if !ok {
		return ""
	}

	val = strings.TrimSpace(val)
	if len(val) < 2 || val[0] != '"' || val[len(val)-1] != '"' {
		return val
	}
	if u, err := strconv.Unquote(val); err == nil {
		return u
	}
	return strings.ReplaceAll(val[1:len(val)-1], `\"`, `"`)
}

package oplabel

import (
	"fmt"
	"strings"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

// Mapping assigns operations to nodes by node name.
type Mapping map[string]string

// ParseMapping reads "node=op" pairs separated by ';' or newlines, e.g.
// "n1=create();n2=init()".
func ParseMapping(raw string) (Mapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' })
	out := make(Mapping, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid mapping %q (expected node=op)", part)
		}

		node := strings.TrimSpace(kv[0])
		if node == "" {
			return nil, fmt.Errorf("empty node in mapping %q", part)
		}
		op := strings.TrimSpace(kv[1])
		if op == "" {
			return nil, fmt.Errorf("empty operation in mapping %q", part)
		}
		if prev, dup := out[node]; dup && prev != op {
			return nil, fmt.Errorf("node %q mapped to both %q and %q", node, prev, op)
		}

		out[node] = op
	}

	return out, nil
}

// Bind resolves the node names of m in g.
func (m Mapping) Bind(g *eog.Graph) (map[eog.NodeID]string, error) {
	ops := make(map[eog.NodeID]string, len(m))
	for name, op := range m {
		id, ok := g.NodeByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", eog.ErrNodeNotFound, name, g.Name)
		}
		ops[id] = op
	}
	return ops, nil
}

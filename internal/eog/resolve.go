package eog

// ResolveChain returns the declarations r resolves to, starting with the
// declaration it names and following assignment aliases. The chain stops on
// the first repeated declaration.
func (g *Graph) ResolveChain(r Ref) []DeclID {
	if !r.Valid() {
		return nil
	}

	var chain []DeclID
	seen := map[DeclID]struct{}{}
	for cur := r.Decl; cur != NoDecl; {
		if _, ok := seen[cur]; ok {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)

		d, ok := g.Decl(cur)
		if !ok {
			break
		}
		cur = d.AliasOf
	}
	return chain
}

// ResolveDecl returns the ultimate declaration r refers to.
func (g *Graph) ResolveDecl(r Ref) DeclID {
	chain := g.ResolveChain(r)
	if len(chain) == 0 {
		return NoDecl
	}
	return chain[len(chain)-1]
}

// RefersTo reports whether r resolves to d, directly or through aliases.
func (g *Graph) RefersTo(r Ref, d DeclID) bool {
	for _, c := range g.ResolveChain(r) {
		if c == d {
			return true
		}
	}
	return false
}

// PassesAsArgument reports whether node id is a call taking d as one of its
// arguments.
func (g *Graph) PassesAsArgument(id NodeID, d DeclID) bool {
	n, ok := g.Node(id)
	if !ok || !n.IsCall() {
		return false
	}
	for _, a := range n.Args {
		if g.RefersTo(a, d) {
			return true
		}
	}
	return false
}

// EntersFromOutside reports whether the value held by d was handed in by the
// caller: some declaration on its alias chain is a parameter. Call results
// do not count; a constructor call creates the object locally.
func (g *Graph) EntersFromOutside(d DeclID) bool {
	for _, c := range g.ResolveChain(Ref{Decl: d}) {
		decl, ok := g.Decl(c)
		if !ok {
			continue
		}
		if decl.Kind == DeclParam {
			return true
		}
	}
	return false
}

// ReachesReturnOf reports whether a return statement returning d can be
// reached from node from by following execution-order edges. from itself is
// included.
func (g *Graph) ReachesReturnOf(from NodeID, d DeclID) bool {
	if _, ok := g.Node(from); !ok {
		return false
	}

	seen := map[NodeID]struct{}{from: {}}
	queue := []NodeID{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		n, _ := g.Node(id)
		if n.Kind == KindReturn && g.RefersTo(n.Value, d) {
			return true
		}
		for _, next := range n.succ {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}

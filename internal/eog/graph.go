// Package eog holds the per-function execution-order graph the order
// evaluator walks.
//
// A Graph is an arena: nodes and declarations are addressed by stable
// indices and edges are stored as successor index lists. Graphs are built
// with Declare/Add/Connect (or compiled from DOT, see Compiler) and then
// frozen; a frozen graph is read-only and safe to share between goroutines.
package eog

import (
	"errors"
	"fmt"
)

var (
	ErrGraphFrozen  = errors.New("graph is frozen")
	ErrNodeNotFound = errors.New("node not found")
	ErrDeclNotFound = errors.New("declaration not found")
	ErrDuplicateID  = errors.New("duplicate node name")
)

// NodeID indexes a node in its Graph.
type NodeID int

// NoNode is returned by lookups that find nothing.
const NoNode NodeID = -1

// DeclID identifies a variable declaration. The zero value means "no
// declaration"; two declarations with the same name have different IDs.
type DeclID int

const NoDecl DeclID = 0

type Kind int

const (
	KindOther Kind = iota
	KindDecl
	KindParam
	KindAssign
	KindCall
	KindReturn
)

var kindNames = map[Kind]string{
	KindOther:  "other",
	KindDecl:   "decl",
	KindParam:  "param",
	KindAssign: "assign",
	KindCall:   "call",
	KindReturn: "return",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

type DeclKind int

const (
	DeclLocal DeclKind = iota
	DeclParam
)

type Declaration struct {
	ID   DeclID
	Name string
	Kind DeclKind
	// AliasOf is set when the declaration was assigned another reference
	// (x = y). Resolution follows it.
	AliasOf DeclID
}

// Ref is a reference expression: the name as written and the declaration
// it refers to.
type Ref struct {
	Name string
	Decl DeclID
}

func (r Ref) Valid() bool { return r.Decl != NoDecl }

type Node struct {
	ID    NodeID
	Name  string
	Kind  Kind
	Label string

	// Decl is the declared (KindDecl, KindParam) or assigned (KindAssign)
	// declaration.
	Decl DeclID
	// Value is the initializer/assigned reference, or the returned
	// reference for KindReturn.
	Value Ref

	// Callee is set for calls, including assignments from a call.
	Callee   string
	Receiver Ref
	Args     []Ref

	succ []NodeID
	pred []NodeID
}

// IsCall reports whether the node evaluates a call expression.
func (n *Node) IsCall() bool { return n.Callee != "" }

type Graph struct {
	Name string

	nodes  []*Node
	decls  []Declaration
	names  map[string]NodeID
	frozen bool
}

func New(name string) *Graph {
	return &Graph{
		Name:  name,
		names: map[string]NodeID{},
	}
}

// Declare registers a new declaration. Names are not unique.
func (g *Graph) Declare(name string, kind DeclKind) (DeclID, error) {
	if g.frozen {
		return NoDecl, ErrGraphFrozen
	}
	id := DeclID(len(g.decls) + 1)
	g.decls = append(g.decls, Declaration{ID: id, Name: name, Kind: kind})
	return id, nil
}

// Add appends n to the arena and returns its ID. Assignments and
// initializers copying another reference make the target an alias of it.
func (g *Graph) Add(n Node) (NodeID, error) {
	if g.frozen {
		return NoNode, ErrGraphFrozen
	}

	id := NodeID(len(g.nodes))
	if n.Name == "" {
		n.Name = fmt.Sprintf("n%d", id)
	}
	if _, dup := g.names[n.Name]; dup {
		return NoNode, fmt.Errorf("%w: %q", ErrDuplicateID, n.Name)
	}

	for _, d := range append([]DeclID{n.Decl, n.Value.Decl, n.Receiver.Decl}, refDecls(n.Args)...) {
		if d == NoDecl {
			continue
		}
		if _, ok := g.Decl(d); !ok {
			return NoNode, fmt.Errorf("node %q: %w: %d", n.Name, ErrDeclNotFound, d)
		}
	}

	if n.Decl != NoDecl && (n.Kind == KindDecl || n.Kind == KindAssign) &&
		!n.IsCall() && n.Value.Valid() && n.Value.Decl != n.Decl {
		g.decls[n.Decl-1].AliasOf = n.Value.Decl
	}

	n.ID = id
	n.succ = nil
	n.pred = nil
	g.nodes = append(g.nodes, &n)
	g.names[n.Name] = id
	return id, nil
}

// Connect adds the execution-order edge from -> to. Successor order is the
// order of Connect calls.
func (g *Graph) Connect(from, to NodeID) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	src, ok := g.Node(from)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, from)
	}
	dst, ok := g.Node(to)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, to)
	}
	src.succ = append(src.succ, to)
	dst.pred = append(dst.pred, from)
	return nil
}

// Freeze makes the graph read-only.
func (g *Graph) Freeze() { g.frozen = true }

func (g *Graph) Frozen() bool { return g.frozen }

// Node returns the node with the given ID. Callers must not mutate it.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

func (g *Graph) NodeByName(name string) (NodeID, bool) {
	id, ok := g.names[name]
	return id, ok
}

func (g *Graph) Decl(id DeclID) (Declaration, bool) {
	if id <= NoDecl || int(id) > len(g.decls) {
		return Declaration{}, false
	}
	return g.decls[id-1], true
}

// DeclsNamed returns every declaration carrying name, in declaration order.
func (g *Graph) DeclsNamed(name string) []DeclID {
	var out []DeclID
	for _, d := range g.decls {
		if d.Name == name {
			out = append(out, d.ID)
		}
	}
	return out
}

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Successors(id NodeID) []NodeID {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	return n.succ
}

func (g *Graph) Predecessors(id NodeID) []NodeID {
	n, ok := g.Node(id)
	if !ok {
		return nil
	}
	return n.pred
}

// Entry returns the first node without predecessors.
func (g *Graph) Entry() NodeID {
	for _, n := range g.nodes {
		if len(n.pred) == 0 {
			return n.ID
		}
	}
	if len(g.nodes) > 0 {
		return 0
	}
	return NoNode
}

// DeclNode returns the node introducing d (a declaration or parameter
// node), or NoNode.
func (g *Graph) DeclNode(d DeclID) NodeID {
	for _, n := range g.nodes {
		if (n.Kind == KindDecl || n.Kind == KindParam) && n.Decl == d {
			return n.ID
		}
	}
	return NoNode
}

func refDecls(refs []Ref) []DeclID {
	out := make([]DeclID, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Decl)
	}
	return out
}

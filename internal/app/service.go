package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/cache"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/oplabel"
)

var ErrInvalidRequest = errors.New("invalid check request")

type ProtocolCompiler interface {
	CompileProtocol(format, text string) (*typestate.DFA, error)
}

type GraphCompiler interface {
	Compile(dot string) (*eog.Graph, error)
}

type Cache interface {
	GetOrCompute(source string, fn func() (*typestate.DFA, error)) (*typestate.DFA, error)
}

type Service struct {
	protocols ProtocolCompiler
	graphs    GraphCompiler
	cache     Cache
	workers   int
	logger    *slog.Logger
	observer  typestate.RunObserver
}

type ServiceOption func(*Service)

func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRunObserver(o typestate.RunObserver) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

func NewService(protocols ProtocolCompiler, graphs GraphCompiler, cache Cache, opts ...ServiceOption) *Service {
	s := &Service{
		protocols: protocols,
		graphs:    graphs,
		cache:     cache,
		workers:   runtime.GOMAXPROCS(0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// job is one (function, tracked declaration) evaluation.
type job struct {
	graph *eog.Graph
	decl  eog.DeclID
	start eog.NodeID
	ops   map[eog.NodeID]string
	pos   map[eog.NodeID]int
}

// Check compiles the protocol (cached) and every function graph, then
// evaluates each tracked declaration independently. Order violations are
// part of the report; errors are reserved for invalid input.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckReport, error) {
	if strings.TrimSpace(req.Protocol) == "" {
		return nil, fmt.Errorf("%w: protocol is required", ErrInvalidRequest)
	}
	if len(req.Functions) == 0 {
		return nil, fmt.Errorf("%w: at least one function is required", ErrInvalidRequest)
	}

	format := strings.ToLower(strings.TrimSpace(req.ProtocolFormat))
	if format == "" {
		format = "dot"
	}
	source := format + "\x00" + req.Protocol
	dfa, err := s.cache.GetOrCompute(source, func() (*typestate.DFA, error) {
		return s.protocols.CompileProtocol(format, req.Protocol)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: protocol: %v", ErrInvalidRequest, err)
	}

	labeler, err := oplabel.New(req.Rules...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var jobs []job
	for i, fn := range req.Functions {
		js, err := s.prepare(dfa, labeler, fn)
		if err != nil {
			return nil, fmt.Errorf("%w: function %d: %v", ErrInvalidRequest, i, err)
		}
		jobs = append(jobs, js...)
	}

	report := &CheckReport{
		RunID:       uuid.NewString(),
		OK:          true,
		Protocol:    protocolInfo(dfa, source),
		Evaluations: make([]Evaluation, len(jobs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Evaluations[i] = s.evaluate(dfa, j, req.AnalyzedCallees)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, ev := range report.Evaluations {
		if !ev.OK {
			report.OK = false
		}
	}

	s.logger.Info("check finished",
		"run_id", report.RunID,
		"protocol", dfa.Name,
		"evaluations", len(report.Evaluations),
		"ok", report.OK,
	)
	return report, nil
}

func (s *Service) prepare(dfa *typestate.DFA, labeler *oplabel.Labeler, fn FunctionInput) ([]job, error) {
	if strings.TrimSpace(fn.Graph) == "" {
		return nil, fmt.Errorf("graph is required")
	}
	g, err := s.graphs.Compile(fn.Graph)
	if err != nil {
		return nil, err
	}

	var ops map[eog.NodeID]string
	if len(fn.Ops) > 0 {
		ops, err = oplabel.Mapping(fn.Ops).Bind(g)
	} else {
		ops, err = labeler.Label(g)
	}
	if err != nil {
		return nil, err
	}

	var pos map[eog.NodeID]int
	if len(fn.BasePositions) > 0 {
		pos, err = bindPositions(g, fn.BasePositions)
		if err != nil {
			return nil, err
		}
	}

	tracked := fn.Tracked
	if len(tracked) == 0 {
		tracked = dfa.Bases()
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("no tracked declaration and the protocol has no base hint")
	}

	start := eog.NoNode
	if fn.Start != "" {
		id, ok := g.NodeByName(fn.Start)
		if !ok {
			return nil, fmt.Errorf("%w: start %q", eog.ErrNodeNotFound, fn.Start)
		}
		start = id
	}

	var out []job
	for _, name := range tracked {
		decls := g.DeclsNamed(name)
		if len(decls) == 0 {
			return nil, fmt.Errorf("%w: %q in %s", eog.ErrDeclNotFound, name, g.Name)
		}
		for _, d := range decls {
			j := job{graph: g, decl: d, start: start, ops: ops, pos: pos}
			if j.start == eog.NoNode {
				j.start = g.DeclNode(d)
			}
			if j.start == eog.NoNode {
				j.start = g.Entry()
			}
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Service) evaluate(dfa *typestate.DFA, j job, analyzed []string) Evaluation {
	collector := &typestate.Collector{}
	opts := []typestate.EvaluatorOption{
		typestate.WithHooks(typestate.MultiHooks{collector, typestate.NewLogHooks(s.logger, j.graph)}),
		typestate.WithAnalyzedCallees(analyzed...),
		typestate.WithLogger(s.logger),
	}
	if j.pos != nil {
		opts = append(opts, typestate.WithBasePositions(j.pos))
	}
	if s.observer != nil {
		opts = append(opts, typestate.WithRunObserver(s.observer))
	}

	e := typestate.NewEvaluator(j.graph, []eog.DeclID{j.decl}, j.ops, opts...)
	rep := e.Run(dfa, j.start)

	decl, _ := j.graph.Decl(j.decl)
	ev := Evaluation{
		Function:   j.graph.Name,
		Tracked:    decl.Name,
		OK:         rep.OK,
		Definite:   nodeNames(j.graph, collector.Definite()),
		Ambiguous:  nodeNames(j.graph, collector.Ambiguous()),
		Trace:      make([]TraceStep, 0, len(rep.Trace)),
		Steps:      rep.Steps,
		Paths:      rep.Paths,
		DurationMs: float64(rep.Duration.Microseconds()) / 1000.0,
	}
	for _, entry := range rep.Trace {
		n, _ := j.graph.Node(entry.Node)
		ev.Trace = append(ev.Trace, TraceStep{State: stateName(dfa, entry.State), Node: n.Name, Statement: n.Label})
	}
	for _, v := range rep.Violations {
		n, _ := j.graph.Node(v.Node)
		ev.Violations = append(ev.Violations, ViolationInfo{
			Kind:            v.Kind.String(),
			Node:            n.Name,
			Statement:       n.Label,
			Op:              v.Op,
			State:           stateName(dfa, v.State),
			Expected:        v.Expected,
			Base:            v.Base,
			Interprocedural: v.Interprocedural,
		})
	}
	return ev
}

func bindPositions(g *eog.Graph, raw map[string]int) (map[eog.NodeID]int, error) {
	out := make(map[eog.NodeID]int, len(raw))
	for name, p := range raw {
		id, ok := g.NodeByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: base position for %q", eog.ErrNodeNotFound, name)
		}
		out[id] = p
	}
	return out, nil
}

func protocolInfo(dfa *typestate.DFA, source string) ProtocolInfo {
	return ProtocolInfo{
		Name:        dfa.Name,
		Hash:        cache.Key(source),
		Start:       stateName(dfa, dfa.Start()),
		States:      len(dfa.States()),
		Transitions: len(dfa.Transitions()),
	}
}

func stateName(dfa *typestate.DFA, id typestate.StateID) string {
	if s, ok := dfa.State(id); ok {
		return s.Name
	}
	return ""
}

func nodeNames(g *eog.Graph, ids []eog.NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			out = append(out, n.Name)
		}
	}
	return out
}

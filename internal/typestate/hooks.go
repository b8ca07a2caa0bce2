package typestate

import (
	"log/slog"
	"sync"

	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
)

// Hooks receives the failures found by the evaluator. interprocedural is
// true when the tracked object crossed the function boundary, so the
// failure may be explained by code outside the analyzed function.
type Hooks interface {
	MissingTransition(node eog.NodeID, dfa *DFA, interprocedural bool)
	NonAcceptingTermination(base string, dfa *DFA, interprocedural bool)
}

type NopHooks struct{}

func (NopHooks) MissingTransition(eog.NodeID, *DFA, bool)    {}
func (NopHooks) NonAcceptingTermination(string, *DFA, bool) {}

// HookFuncs adapts plain functions to Hooks; nil fields are ignored.
type HookFuncs struct {
	OnMissingTransition       func(node eog.NodeID, dfa *DFA, interprocedural bool)
	OnNonAcceptingTermination func(base string, dfa *DFA, interprocedural bool)
}

func (h HookFuncs) MissingTransition(node eog.NodeID, dfa *DFA, interprocedural bool) {
	if h.OnMissingTransition != nil {
		h.OnMissingTransition(node, dfa, interprocedural)
	}
}

func (h HookFuncs) NonAcceptingTermination(base string, dfa *DFA, interprocedural bool) {
	if h.OnNonAcceptingTermination != nil {
		h.OnNonAcceptingTermination(base, dfa, interprocedural)
	}
}

// MultiHooks fans every call out to each hook in order.
type MultiHooks []Hooks

func (m MultiHooks) MissingTransition(node eog.NodeID, dfa *DFA, interprocedural bool) {
	for _, h := range m {
		h.MissingTransition(node, dfa, interprocedural)
	}
}

func (m MultiHooks) NonAcceptingTermination(base string, dfa *DFA, interprocedural bool) {
	for _, h := range m {
		h.NonAcceptingTermination(base, dfa, interprocedural)
	}
}

type Termination struct {
	Base            string
	Interprocedural bool
}

// Collector splits failing nodes into ambiguous (interprocedural) and
// definite ones. It is safe for concurrent use.
type Collector struct {
	mu           sync.Mutex
	ambiguous    []eog.NodeID
	definite     []eog.NodeID
	terminations []Termination
}

func (c *Collector) MissingTransition(node eog.NodeID, _ *DFA, interprocedural bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if interprocedural {
		c.ambiguous = append(c.ambiguous, node)
		return
	}
	c.definite = append(c.definite, node)
}

func (c *Collector) NonAcceptingTermination(base string, _ *DFA, interprocedural bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminations = append(c.terminations, Termination{Base: base, Interprocedural: interprocedural})
}

func (c *Collector) Ambiguous() []eog.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eog.NodeID(nil), c.ambiguous...)
}

func (c *Collector) Definite() []eog.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eog.NodeID(nil), c.definite...)
}

func (c *Collector) Terminations() []Termination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Termination(nil), c.terminations...)
}

// LogHooks writes one structured log line per failure.
type LogHooks struct {
	logger *slog.Logger
	graph  *eog.Graph
}

func NewLogHooks(logger *slog.Logger, g *eog.Graph) *LogHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHooks{logger: logger, graph: g}
}

func (l *LogHooks) MissingTransition(node eog.NodeID, dfa *DFA, interprocedural bool) {
	attrs := []any{"protocol", dfa.Name, "node", int(node), "interprocedural", interprocedural}
	if l.graph != nil {
		if n, ok := l.graph.Node(node); ok {
			attrs = append(attrs, "function", l.graph.Name, "statement", n.Label)
		}
	}
	if interprocedural {
		l.logger.Warn("call order violation, object escapes the function", attrs...)
		return
	}
	l.logger.Error("call order violation", attrs...)
}

func (l *LogHooks) NonAcceptingTermination(base string, dfa *DFA, interprocedural bool) {
	attrs := []any{"protocol", dfa.Name, "base", base, "interprocedural", interprocedural}
	if l.graph != nil {
		attrs = append(attrs, "function", l.graph.Name)
	}
	if interprocedural {
		l.logger.Warn("protocol not completed, object may be used by the caller", attrs...)
		return
	}
	l.logger.Error("protocol not completed before function exit", attrs...)
}

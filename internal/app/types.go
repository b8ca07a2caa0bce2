package app

import "github.com/awmpietro/golang-typestate-order-check/internal/typestate/oplabel"

type CheckRequest struct {
	// Protocol is the automaton source in ProtocolFormat ("dot" when empty).
	Protocol       string
	ProtocolFormat string
	Functions      []FunctionInput
	// Rules label call nodes of functions without explicit Ops.
	Rules           []oplabel.Rule
	AnalyzedCallees []string
}

type FunctionInput struct {
	Graph string
	// Tracked names the declarations to check; the protocol's base hints
	// are used when empty.
	Tracked []string
	// Ops maps node names to operations. Rules apply when empty.
	Ops map[string]string
	// Start is the node to evaluate from; the tracked declaration is used
	// when empty.
	Start         string
	BasePositions map[string]int
}

type CheckReport struct {
	RunID       string       `json:"run_id"`
	OK          bool         `json:"ok"`
	Protocol    ProtocolInfo `json:"protocol"`
	Evaluations []Evaluation `json:"evaluations"`
}

type ProtocolInfo struct {
	Name        string `json:"name"`
	Hash        string `json:"hash"`
	Start       string `json:"start"`
	States      int    `json:"states"`
	Transitions int    `json:"transitions"`
}

type Evaluation struct {
	Function   string          `json:"function"`
	Tracked    string          `json:"tracked"`
	OK         bool            `json:"ok"`
	Definite   []string        `json:"definite,omitempty"`
	Ambiguous  []string        `json:"ambiguous,omitempty"`
	Violations []ViolationInfo `json:"violations,omitempty"`
	Trace      []TraceStep     `json:"trace"`
	Steps      int             `json:"steps"`
	Paths      int             `json:"paths"`
	DurationMs float64         `json:"duration_ms"`
}

type ViolationInfo struct {
	Kind            string   `json:"kind"`
	Node            string   `json:"node"`
	Statement       string   `json:"statement,omitempty"`
	Op              string   `json:"op,omitempty"`
	State           string   `json:"state"`
	Expected        []string `json:"expected"`
	Base            string   `json:"base,omitempty"`
	Interprocedural bool     `json:"interprocedural"`
}

type TraceStep struct {
	State     string `json:"state"`
	Node      string `json:"node"`
	Statement string `json:"statement"`
}

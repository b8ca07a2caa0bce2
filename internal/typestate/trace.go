package typestate

import "github.com/awmpietro/golang-typestate-order-check/internal/eog"

// TraceEntry records that the operation at Node moved the automaton to
// State.
type TraceEntry struct {
	State StateID    `json:"state"`
	Node  eog.NodeID `json:"node"`
}

// TraceRecorder is the append-only log of one evaluation run. Entries of
// all explored paths are appended in exploration order.
type TraceRecorder struct {
	entries []TraceEntry
}

func NewTraceRecorder() *TraceRecorder { return &TraceRecorder{} }

func (r *TraceRecorder) Record(state StateID, node eog.NodeID) {
	r.entries = append(r.entries, TraceEntry{State: state, Node: node})
}

func (r *TraceRecorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the log.
func (r *TraceRecorder) Entries() []TraceEntry {
	if r.Len() == 0 {
		return nil
	}
	out := make([]TraceEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// pathStep is the per-path view of the trace: a persistent list sharing
// its prefix with the path it branched from.
type pathStep struct {
	entry TraceEntry
	base  eog.DeclID
	prev  *pathStep
}

func (s *pathStep) entries() []TraceEntry {
	var out []TraceEntry
	for cur := s; cur != nil; cur = cur.prev {
		out = append(out, cur.entry)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/config"
	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/cache"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/oplabel"
)

type checkOptions struct {
	protocol string
	format   string
	graphs   []string
	tracked  []string
	ops      []string
	rules    string
	analyzed []string
	start    []string
	jsonOut  bool
	workers  int
	verbose  bool
}

func newCheckCmd() *cobra.Command {
	var o checkOptions
	cmd := &cobra.Command{
		Use:   "check --protocol FILE --graph FILE [--graph FILE...]",
		Short: "Evaluate function graphs against a protocol",
		Long: `Evaluates every tracked declaration of every function graph against the
protocol. Exits 1 when a violation is found and 2 on invalid input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.protocol, "protocol", "p", "", "protocol file (.dot, .yaml or .yml)")
	f.StringVar(&o.format, "format", "", "protocol format; derived from the file extension when empty")
	f.StringSliceVarP(&o.graphs, "graph", "g", nil, "function graph DOT file (repeatable)")
	f.StringSliceVarP(&o.tracked, "track", "t", nil, "declaration names to track; protocol base hints when empty")
	f.StringArrayVar(&o.ops, "ops", nil, `explicit node mapping, e.g. "n1=create();n2=init()"; prefix with "FILE:" when several graphs are given (repeatable)`)
	f.StringVar(&o.rules, "rules", "", "YAML file with labeling rules")
	f.StringSliceVar(&o.analyzed, "analyzed", nil, "callees whose bodies do not affect the protocol")
	f.StringArrayVar(&o.start, "start", nil, `node to start from; "FILE:NODE" when several graphs are given (repeatable)`)
	f.BoolVar(&o.jsonOut, "json", false, "print the full report as JSON")
	f.IntVar(&o.workers, "workers", 0, "parallel evaluations (CHECK_WORKERS when 0)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log every evaluation")
	_ = cmd.MarkFlagRequired("protocol")
	_ = cmd.MarkFlagRequired("graph")
	return cmd
}

func runCheck(ctx context.Context, out, errOut io.Writer, o checkOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := buildRequest(o)
	if err != nil {
		return &exitCodeError{code: exitError, err: err}
	}

	cfg := config.Load()
	logger := slog.New(slog.DiscardHandler)
	if o.verbose {
		cfg.LogLevel = "debug"
		cfg.LogFormat = "text"
		logger = cfg.Logger(errOut)
	}

	workers := cfg.Workers
	if o.workers > 0 {
		workers = o.workers
	}
	opts := []app.ServiceOption{app.WithWorkers(workers), app.WithLogger(logger)}
	if o.verbose {
		opts = append(opts, app.WithRunObserver(typestate.NewRunLogger(logger)))
	}
	svc := app.NewService(typestate.NewCompiler(), eog.NewCompiler(), cache.NewInMemory(1), opts...)

	report, err := svc.Check(ctx, req)
	if err != nil {
		return &exitCodeError{code: exitError, err: err}
	}

	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return &exitCodeError{code: exitError, err: err}
		}
	} else {
		printReport(out, report)
	}

	if !report.OK {
		return &exitCodeError{code: exitViolation}
	}
	return nil
}

func buildRequest(o checkOptions) (app.CheckRequest, error) {
	raw, err := os.ReadFile(o.protocol)
	if err != nil {
		return app.CheckRequest{}, fmt.Errorf("read protocol: %w", err)
	}
	format := o.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(o.protocol)), ".")
	}

	req := app.CheckRequest{
		Protocol:        string(raw),
		ProtocolFormat:  format,
		AnalyzedCallees: o.analyzed,
	}

	if o.rules != "" {
		data, err := os.ReadFile(o.rules)
		if err != nil {
			return app.CheckRequest{}, fmt.Errorf("read rules: %w", err)
		}
		if req.Rules, err = oplabel.LoadRules(data); err != nil {
			return app.CheckRequest{}, err
		}
	}

	ops, err := perGraph("ops", o.ops, o.graphs)
	if err != nil {
		return app.CheckRequest{}, err
	}
	starts, err := perGraph("start", o.start, o.graphs)
	if err != nil {
		return app.CheckRequest{}, err
	}

	for _, path := range o.graphs {
		data, err := os.ReadFile(path)
		if err != nil {
			return app.CheckRequest{}, fmt.Errorf("read graph: %w", err)
		}
		mapping, err := oplabel.ParseMapping(strings.Join(ops[path], ";"))
		if err != nil {
			return app.CheckRequest{}, fmt.Errorf("%s: %w", path, err)
		}
		if len(starts[path]) > 1 {
			return app.CheckRequest{}, fmt.Errorf("%s: more than one --start", path)
		}
		req.Functions = append(req.Functions, app.FunctionInput{
			Graph:   string(data),
			Tracked: o.tracked,
			Ops:     mapping,
			Start:   strings.Join(starts[path], ""),
		})
	}
	return req, nil
}

// perGraph assigns "FILE:VALUE" flag values to the graph named FILE, by path
// or base name. A value without a prefix belongs to the only graph and is
// rejected when several graphs are given.
func perGraph(flag string, values, graphs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, v := range values {
		file, val, prefixed := splitGraphPrefix(v)
		if !prefixed {
			if len(graphs) != 1 {
				return nil, fmt.Errorf("--%s %q applies to %d graphs; use FILE:VALUE", flag, v, len(graphs))
			}
			out[graphs[0]] = append(out[graphs[0]], val)
			continue
		}

		path, ok := findGraph(file, graphs)
		if !ok {
			return nil, fmt.Errorf("--%s %q: no --graph %q", flag, v, file)
		}
		out[path] = append(out[path], val)
	}
	return out, nil
}

// splitGraphPrefix cuts at the first ':' that precedes any '='.
func splitGraphPrefix(v string) (file, val string, ok bool) {
	i := strings.Index(v, ":")
	if i < 0 {
		return "", v, false
	}
	if eq := strings.Index(v, "="); eq >= 0 && eq < i {
		return "", v, false
	}
	return v[:i], v[i+1:], true
}

func findGraph(file string, graphs []string) (string, bool) {
	for _, g := range graphs {
		if g == file {
			return g, true
		}
	}
	var match string
	for _, g := range graphs {
		if filepath.Base(g) == file {
			if match != "" {
				return "", false
			}
			match = g
		}
	}
	return match, match != ""
}

func printReport(w io.Writer, r *app.CheckReport) {
	fmt.Fprintf(w, "protocol %s (%d states, %d transitions)\n", r.Protocol.Name, r.Protocol.States, r.Protocol.Transitions)
	for _, ev := range r.Evaluations {
		verdict := "ok"
		if !ev.OK {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%s %s.%s: %d paths, %d matched calls\n", verdict, ev.Function, ev.Tracked, ev.Paths, len(ev.Trace))
		for _, v := range ev.Violations {
			kind := "definite"
			if v.Interprocedural {
				kind = "ambiguous"
			}
			switch v.Kind {
			case typestate.MissingTransition.String():
				fmt.Fprintf(w, "  %s: %s %q in state %s, expected one of %s\n",
					kind, v.Node, v.Statement, v.State, strings.Join(v.Expected, ", "))
			default:
				fmt.Fprintf(w, "  %s: %s not finished at %s (state %s), expected one of %s\n",
					kind, v.Base, v.Node, v.State, strings.Join(v.Expected, ", "))
			}
		}
	}
}

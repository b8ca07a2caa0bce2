package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/eog"
	"github.com/awmpietro/golang-typestate-order-check/internal/transport/httptransport"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/cache"
)

func fixture(t *testing.T, parts ...string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(append([]string{"..", "typestate", "testdata"}, parts...)...))
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func newCheckServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := typestate.NewPrometheusRunObserver(reg)
	if err != nil {
		t.Fatal(err)
	}

	svc := app.NewService(
		typestate.NewCompiler(),
		eog.NewCompiler(),
		cache.NewInMemory(1024),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithRunObserver(metrics),
	)
	h := httptransport.NewHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("/check", h.Check)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return httptest.NewServer(mux)
}

func postCheck(t *testing.T, srv *httptest.Server, rawBody string) (int, map[string]any, string) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/check", "application/json", bytes.NewBufferString(rawBody))
	if err != nil {
		t.Fatalf("post /check failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return resp.StatusCode, nil, string(body)
	}
	return resp.StatusCode, out, string(body)
}

func postCheckJSON(t *testing.T, srv *httptest.Server, payload map[string]any) (int, map[string]any, string) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return postCheck(t, srv, string(b))
}

func evaluations(t *testing.T, out map[string]any) []map[string]any {
	t.Helper()
	raw, ok := out["evaluations"].([]any)
	if !ok {
		t.Fatalf("missing evaluations: %#v", out)
	}
	evs := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		evs = append(evs, r.(map[string]any))
	}
	return evs
}

func TestHTTPCheck_EndToEnd(t *testing.T) {
	srv := newCheckServer(t)
	defer srv.Close()

	status, out, body := postCheckJSON(t, srv, map[string]any{
		"protocol": fixture(t, "complex_order.dot"),
		"functions": []map[string]any{
			{"graph": fixture(t, "functions", "ok_do_while.dot")},
			{"graph": fixture(t, "functions", "nok_while.dot")},
			{"graph": fixture(t, "functions", "interproc_return.dot")},
			{"graph": fixture(t, "functions", "interproc_param.dot"), "start": "n1"},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if out["ok"] != false || out["run_id"] == "" {
		t.Fatalf("unexpected report header: %s", body)
	}

	evs := evaluations(t, out)
	if len(evs) != 4 {
		t.Fatalf("expected 4 evaluations, got %d", len(evs))
	}

	if evs[0]["ok"] != true {
		t.Fatalf("do-while loop must pass: %v", evs[0])
	}

	definite, _ := evs[1]["definite"].([]any)
	if evs[1]["ok"] != false || len(definite) != 1 || definite[0] != "n7" {
		t.Fatalf("zero-iteration path must fail at n7: %v", evs[1])
	}

	violations, _ := evs[2]["violations"].([]any)
	if len(violations) != 1 {
		t.Fatalf("expected one violation for the returned object: %v", evs[2])
	}
	v := violations[0].(map[string]any)
	if v["kind"] != "non_accepting_termination" || v["interprocedural"] != true {
		t.Fatalf("returned object must be an ambiguous termination: %v", v)
	}

	ambiguous, _ := evs[3]["ambiguous"].([]any)
	if len(ambiguous) != 1 || ambiguous[0] != "n1" {
		t.Fatalf("parameter must be ambiguous at n1: %v", evs[3])
	}
}

func TestHTTPCheck_YAMLProtocolMatchesDOT(t *testing.T) {
	srv := newCheckServer(t)
	defer srv.Close()

	fns := []map[string]any{
		{"graph": fixture(t, "functions", "ok_do_while.dot")},
		{"graph": fixture(t, "functions", "nok_while.dot")},
	}
	_, dotOut, _ := postCheckJSON(t, srv, map[string]any{"protocol": fixture(t, "complex_order.dot"), "functions": fns})
	_, yamlOut, body := postCheckJSON(t, srv, map[string]any{
		"protocol":        fixture(t, "complex_order.yaml"),
		"protocol_format": "yaml",
		"functions":       fns,
	})

	dotEvs, yamlEvs := evaluations(t, dotOut), evaluations(t, yamlOut)
	for i := range dotEvs {
		if dotEvs[i]["ok"] != yamlEvs[i]["ok"] {
			t.Fatalf("verdicts differ for evaluation %d: %s", i, body)
		}
	}
}

func TestHTTPCheck_InputErrors(t *testing.T) {
	srv := newCheckServer(t)
	defer srv.Close()

	cases := map[string]string{
		"invalid json":     `{`,
		"missing protocol": `{"functions":[{"graph":"digraph f {}"}]}`,
		"no functions":     `{"protocol":"digraph p {}","functions":[]}`,
		"bad protocol":     `{"protocol":"digraph p { a -> b [label=\"x()\"]; }","functions":[{"graph":"digraph f { n0 [label=\"var cm\"]; }"}]}`,
		"bad graph":        `{"protocol":"digraph p { s [shape=point]; s -> a; }","functions":[{"graph":"digraph f { n0 [label=\"x.m()\"]; n1 [label=\"var x\"]; n2 [label=\"var x\"]; }","tracked":["x"]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			status, out, raw := postCheck(t, srv, body)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", status, raw)
			}
			if out["error"] == nil {
				t.Fatalf("expected error body, got %s", raw)
			}
		})
	}
}

func TestHTTPCheck_ConcurrentRequestsAndMetrics(t *testing.T) {
	srv := newCheckServer(t)
	defer srv.Close()

	protocol := fixture(t, "complex_order.dot")
	graphs := []string{
		fixture(t, "functions", "ok_do_while.dot"),
		fixture(t, "functions", "nok_while.dot"),
	}

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, out, body := postCheckMapNoFatal(srv, map[string]any{
				"protocol":  protocol,
				"functions": []map[string]any{{"graph": graphs[i%2]}},
			})
			if status != http.StatusOK {
				errs <- &integrationErr{msg: "status not ok", body: body}
				return
			}
			if want := i%2 == 0; out["ok"] != want {
				errs <- &integrationErr{msg: "unexpected verdict", body: body}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	metrics, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(metrics), `ordercheck_evaluations_total{ok="true"} 20`) {
		t.Fatalf("expected 20 passing evaluations in metrics:\n%s", metrics)
	}
}

type integrationErr struct {
	msg  string
	body string
}

func (e *integrationErr) Error() string {
	return e.msg + ": " + e.body
}

func postCheckMapNoFatal(srv *httptest.Server, payload map[string]any) (int, map[string]any, string) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err.Error()
	}
	resp, err := http.Post(srv.URL+"/check", "application/json", bytes.NewBuffer(b))
	if err != nil {
		return 0, nil, err.Error()
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(body, &out)
	return resp.StatusCode, out, string(body)
}

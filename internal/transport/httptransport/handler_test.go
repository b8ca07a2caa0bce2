package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
)

type checkSvcStub struct {
	checkFn func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error)
}

func (s *checkSvcStub) Check(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
	return s.checkFn(ctx, req)
}

func okStub() *checkSvcStub {
	return &checkSvcStub{checkFn: func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
		return &app.CheckReport{RunID: "run-1", OK: true}, nil
	}}
}

const validBody = `{"protocol":"digraph p {}","functions":[{"graph":"digraph f {}","tracked":["cm"]}]}`

func TestHandler_Check_MethodNotAllowed(t *testing.T) {
	h := NewHandler(okStub())

	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestHandler_Check_InvalidJSON(t *testing.T) {
	h := NewHandler(okStub())

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestHandler_Check_ValidationFailure(t *testing.T) {
	called := false
	h := NewHandler(&checkSvcStub{checkFn: func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
		called = true
		return nil, nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(`{"functions":[]}`))
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if called {
		t.Fatalf("expected service not to be called")
	}
}

func TestHandler_Check_PassesRequestAndReturnsReport(t *testing.T) {
	var got app.CheckRequest
	h := NewHandler(&checkSvcStub{checkFn: func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
		got = req
		return &app.CheckReport{
			RunID: "run-1",
			Evaluations: []app.Evaluation{{
				Function: "f",
				Tracked:  "cm",
				Definite: []string{"n1"},
			}},
		}, nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(validBody))
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Protocol != "digraph p {}" || len(got.Functions) != 1 || got.Functions[0].Tracked[0] != "cm" {
		t.Fatalf("unexpected request passed to service: %+v", got)
	}

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["run_id"] != "run-1" || out["ok"] != false {
		t.Fatalf("unexpected response %v", out)
	}
	evals, _ := out["evaluations"].([]any)
	if len(evals) != 1 {
		t.Fatalf("expected one evaluation, got %v", out["evaluations"])
	}
}

func TestHandler_Check_InvalidRequestFromService(t *testing.T) {
	h := NewHandler(&checkSvcStub{checkFn: func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
		return nil, fmt.Errorf("%w: protocol: bad", app.ErrInvalidRequest)
	}})

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(validBody))
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["error"] != "check failed" {
		t.Fatalf("unexpected error body %v", out)
	}
}

func TestHandler_Check_InternalError(t *testing.T) {
	h := NewHandler(&checkSvcStub{checkFn: func(ctx context.Context, req app.CheckRequest) (*app.CheckReport, error) {
		return nil, fmt.Errorf("boom")
	}})

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(validBody))
	rr := httptest.NewRecorder()

	h.Check(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

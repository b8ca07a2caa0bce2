package checkdto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/awmpietro/golang-typestate-order-check/internal/app"
	"github.com/awmpietro/golang-typestate-order-check/internal/typestate/oplabel"
)

type CheckRequest struct {
	Protocol        string          `json:"protocol" validate:"required"`
	ProtocolFormat  string          `json:"protocol_format,omitempty" validate:"omitempty,oneof=dot yaml yml"`
	Functions       []FunctionInput `json:"functions" validate:"required,min=1,dive"`
	Rules           []Rule          `json:"rules,omitempty" validate:"dive"`
	AnalyzedCallees []string        `json:"analyzed_callees,omitempty" validate:"dive,required"`
}

type FunctionInput struct {
	Graph         string            `json:"graph" validate:"required"`
	Tracked       []string          `json:"tracked,omitempty" validate:"dive,required"`
	Ops           map[string]string `json:"ops,omitempty" validate:"dive,keys,required,endkeys,required"`
	Start         string            `json:"start,omitempty"`
	BasePositions map[string]int    `json:"base_positions,omitempty" validate:"dive,keys,required,endkeys,min=0"`
}

type Rule struct {
	Op   string `json:"op,omitempty"`
	When string `json:"when,omitempty"`
}

type CheckResponse = app.CheckReport

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the shape of the request; protocol and graph contents
// are checked when they are compiled.
func (r CheckRequest) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", app.ErrInvalidRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", app.ErrInvalidRequest, err)
	}
	return nil
}

func (r CheckRequest) ToApp() app.CheckRequest {
	out := app.CheckRequest{
		Protocol:        r.Protocol,
		ProtocolFormat:  r.ProtocolFormat,
		AnalyzedCallees: r.AnalyzedCallees,
		Functions:       make([]app.FunctionInput, 0, len(r.Functions)),
	}
	for _, rule := range r.Rules {
		out.Rules = append(out.Rules, oplabel.Rule{Op: rule.Op, When: rule.When})
	}
	for _, fn := range r.Functions {
		out.Functions = append(out.Functions, app.FunctionInput{
			Graph:         fn.Graph,
			Tracked:       fn.Tracked,
			Ops:           fn.Ops,
			Start:         fn.Start,
			BasePositions: fn.BasePositions,
		})
	}
	return out
}

// StatusFor maps a Check error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func ErrorBody(err error) map[string]any {
	return map[string]any{
		"error":   "check failed",
		"details": err.Error(),
	}
}

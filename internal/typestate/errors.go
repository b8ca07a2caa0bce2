package typestate

import "fmt"

// CompileError reports the protocol element (state, edge or document
// section) that could not be compiled.
type CompileError struct {
	Element string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Element, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func compileErr(element string, err error) error {
	return &CompileError{Element: element, Err: err}
}

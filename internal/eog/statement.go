package eog

import (
	"fmt"
	"regexp"
	"strings"
)

// statement is the parsed form of a node label. Names are resolved to
// declarations by the compiler.
type statement struct {
	Kind     Kind
	Declares string
	Target   string
	Value    string
	Callee   string
	Receiver string
	Args     []string
}

const identPattern = `[A-Za-z_][A-Za-z0-9_]*`

var (
	identRe  = regexp.MustCompile(`^` + identPattern + `$`)
	paramRe  = regexp.MustCompile(`^param\s+(` + identPattern + `)$`)
	varRe    = regexp.MustCompile(`^var\s+(` + identPattern + `)(?:\s*=\s*(.+))?$`)
	assignRe = regexp.MustCompile(`^(` + identPattern + `)\s*:?=\s*(.+)$`)
	returnRe = regexp.MustCompile(`^return(?:\s+(.+))?$`)
	callRe   = regexp.MustCompile(`^(?:(` + identPattern + `)\.)?(` + identPattern + `)\s*\((.*)\)$`)
)

var controlKeywords = map[string]struct{}{
	"if": {}, "while": {}, "for": {}, "switch": {}, "do": {}, "catch": {},
}

// parseStatement understands a deliberately small statement language:
//
//	param x | var x | var x = y | var x = f(a) | x = y | x = r.f(a)
//	x.m(a, b) | f(a) | return | return x
//
// Anything else is an opaque statement (conditions, joins, exits).
func parseStatement(label string) (statement, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ";"))
	if s == "" {
		return statement{Kind: KindOther}, nil
	}

	if m := paramRe.FindStringSubmatch(s); m != nil {
		return statement{Kind: KindParam, Declares: m[1]}, nil
	}

	if m := varRe.FindStringSubmatch(s); m != nil {
		st := statement{Kind: KindDecl, Declares: m[1], Target: m[1]}
		if m[2] != "" {
			if err := st.parseValue(m[2]); err != nil {
				return statement{}, err
			}
		}
		return st, nil
	}

	if m := returnRe.FindStringSubmatch(s); m != nil {
		st := statement{Kind: KindReturn}
		if v := strings.TrimSpace(m[1]); identRe.MatchString(v) {
			st.Value = v
		}
		return st, nil
	}

	if m := callRe.FindStringSubmatch(s); m != nil {
		if _, ok := controlKeywords[m[2]]; ok && m[1] == "" {
			return statement{Kind: KindOther}, nil
		}
		return statement{Kind: KindCall, Receiver: m[1], Callee: m[2], Args: splitArgs(m[3])}, nil
	}

	if m := assignRe.FindStringSubmatch(s); m != nil {
		if strings.HasPrefix(s, m[1]+" ==") || strings.HasPrefix(s, m[1]+"==") {
			return statement{Kind: KindOther}, nil
		}
		st := statement{Kind: KindAssign, Target: m[1]}
		if strings.Contains(s, ":=") {
			st.Kind = KindDecl
			st.Declares = m[1]
		}
		if err := st.parseValue(m[2]); err != nil {
			return statement{}, err
		}
		return st, nil
	}

	return statement{Kind: KindOther}, nil
}

func (st *statement) parseValue(raw string) error {
	raw = strings.TrimSpace(raw)
	if identRe.MatchString(raw) {
		st.Value = raw
		return nil
	}
	if m := callRe.FindStringSubmatch(raw); m != nil {
		st.Receiver = m[1]
		st.Callee = m[2]
		st.Args = splitArgs(m[3])
		return nil
	}
	if raw == "" {
		return fmt.Errorf("empty right-hand side")
	}
	// literals and other expressions carry no reference
	return nil
}

// splitArgs returns the identifier arguments of a call; literals and
// nested expressions are dropped.
func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var out []string
	depth := 0
	start := 0
	flush := func(end int) {
		arg := strings.TrimSpace(raw[start:end])
		if identRe.MatchString(arg) {
			out = append(out, arg)
		}
	}
	for i, r := range raw {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(raw))
	return out
}

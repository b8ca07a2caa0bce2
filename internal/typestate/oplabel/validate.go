package oplabel

import (
	"fmt"
	"strings"
	"unicode"
)

// Validate rejects conditions outside the supported subset: comparisons,
// boolean operators, string literals, numbers, list literals for "in"
// and the rule variables. Characters inside string literals are ignored.
func Validate(cond string) error {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return nil
	}

	code, err := stripStrings(cond)
	if err != nil {
		return err
	}

	illegalChars := []rune{'{', '}', ';', ':', '?', '@', '#', '$', '\\'}
	for _, ch := range illegalChars {
		if strings.ContainsRune(code, ch) {
			return fmt.Errorf("illegal character %q", ch)
		}
	}

	if strings.Contains(code, ".") {
		return fmt.Errorf("member access is not allowed")
	}

	illegalOps := []string{"+", "-", "*", "/", "%"}
	for _, op := range illegalOps {
		if strings.Contains(code, op) {
			return fmt.Errorf("arithmetic operator %q is not allowed", op)
		}
	}

	for i := 0; i < len(code)-1; i++ {
		if code[i] != '(' {
			continue
		}
		j := i - 1
		for j >= 0 && unicode.IsSpace(rune(code[j])) {
			j--
		}
		if j < 0 || !(unicode.IsLetter(rune(code[j])) || unicode.IsDigit(rune(code[j])) || code[j] == '_') {
			continue
		}
		k := j
		for k >= 0 && (unicode.IsLetter(rune(code[k])) || unicode.IsDigit(rune(code[k])) || code[k] == '_') {
			k--
		}
		ident := code[k+1 : j+1]
		switch ident {
		case "and", "or", "not", "in":
			continue
		}
		return fmt.Errorf("function calls are not allowed (found %q(...))", ident)
	}

	return nil
}

// stripStrings blanks the contents of quoted literals so that operation
// names like "x.close()" can be compared against.
func stripStrings(cond string) (string, error) {
	var b strings.Builder
	var quote rune
	escaped := false
	for _, r := range cond {
		switch {
		case quote == 0 && (r == '"' || r == '\'' || r == '`'):
			quote = r
			b.WriteRune(r)
		case quote != 0 && escaped:
			escaped = false
			b.WriteRune('_')
		case quote != 0 && r == '\\':
			escaped = true
			b.WriteRune('_')
		case quote != 0 && r == quote:
			quote = 0
			b.WriteRune(r)
		case quote != 0:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		return "", fmt.Errorf("unterminated string literal")
	}
	return b.String(), nil
}

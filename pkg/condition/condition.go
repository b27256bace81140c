// Package condition implements the compatibility-predicate language
// (spec.md §4.G): logical and/or, comparisons including regex operators,
// parenthesized grouping, indexed variable references, and the
// slicer-specific quirks of value lookup (notably PrusaSlicer's
// semicolon-separated list-as-string convention).
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roboll/slicerprofiledb/pkg/slicer"
)

// ParseError is returned when the expression is syntactically malformed
// in a way §4.G treats as fatal for that one expression (currently:
// unbalanced parentheses).
type ParseError struct {
	Expr string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("condition: %s: %s", e.Msg, e.Expr)
}

// Context is the configuration the predicate is evaluated against: a
// printer's settings map, with an optional defaults map layered
// underneath for keys the printer map does not define.
type Context struct {
	Slicer   slicer.Type
	Config   map[string]interface{}
	Defaults map[string]interface{}
}

var operators = []string{"=~", "!~", "==", "!=", ">=", "<=", ">", "<"}

// Evaluate parses and evaluates expr against ctx. Unbalanced parentheses
// return a *ParseError; any other malformed comparison evaluates to false
// rather than erroring, so a broken condition never claims compatibility.
func Evaluate(expr string, ctx Context) (bool, error) {
	if err := checkBalanced(expr); err != nil {
		return false, err
	}
	resolved, err := resolveParens(expr, ctx)
	if err != nil {
		return false, err
	}
	return evalFlat(resolved, ctx), nil
}

func checkBalanced(expr string) error {
	depth := 0
	inRegex := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if inRegex {
			if c == '/' {
				inRegex = false
			}
			continue
		}
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return &ParseError{Expr: expr, Msg: "unbalanced parenthesis"}
			}
		case '/':
			if prev := strings.TrimRight(expr[:i], " "); strings.HasSuffix(prev, "=~") || strings.HasSuffix(prev, "!~") {
				inRegex = true
			}
		}
	}
	if depth != 0 {
		return &ParseError{Expr: expr, Msg: "unbalanced parenthesis"}
	}
	return nil
}

// resolveParens repeatedly finds the first balanced parenthesis pair that
// does not lie inside a regex literal, recursively evaluates the inner
// expression, and splices "True"/"False" in its place, until none remain.
func resolveParens(expr string, ctx Context) (string, error) {
	for {
		open, close, ok := firstParenPair(expr)
		if !ok {
			return expr, nil
		}
		inner := expr[open+1 : close]
		result, err := Evaluate(inner, ctx)
		if err != nil {
			return "", err
		}
		lit := "False"
		if result {
			lit = "True"
		}
		expr = expr[:open] + lit + expr[close+1:]
	}
}

func firstParenPair(expr string) (open, close int, ok bool) {
	inRegex := false
	open = -1
	depth := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if inRegex {
			if c == '/' {
				inRegex = false
			}
			continue
		}
		switch c {
		case '(':
			if open == -1 {
				open = i
			}
			if open != -1 {
				depth++
			}
		case ')':
			if open != -1 {
				depth--
				if depth == 0 {
					return open, i, true
				}
			}
		case '/':
			if prev := strings.TrimRight(expr[:i], " "); strings.HasSuffix(prev, "=~") || strings.HasSuffix(prev, "!~") {
				inRegex = true
			}
		}
	}
	return 0, 0, false
}

var splitExpr = regexp.MustCompile(` and | && | or | \|\| `)
var splitTokens = regexp.MustCompile(`( and | && | or | \|\| )`)

// evalFlat splits a parenthesis-free expression on and/or and folds left,
// applying the short-circuit rule: if the operator sequence is all-AND, a
// single false term yields false; if all-OR, a single true term yields
// true; otherwise fold left without short-circuit.
func evalFlat(expr string, ctx Context) bool {
	parts := splitTokens.Split(expr, -1)
	terms := []string{}
	ops := []string{}
	for i, p := range parts {
		if i%2 == 0 {
			terms = append(terms, strings.TrimSpace(p))
		} else {
			norm := strings.TrimSpace(p)
			if norm == "&&" {
				norm = "and"
			} else if norm == "||" {
				norm = "or"
			}
			ops = append(ops, norm)
		}
	}

	allAnd := true
	allOr := true
	for _, op := range ops {
		if op != "and" {
			allAnd = false
		}
		if op != "or" {
			allOr = false
		}
	}

	results := make([]bool, len(terms))
	for i, term := range terms {
		results[i] = evalTerm(term, ctx)
	}

	if len(ops) > 0 && allAnd {
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
	if len(ops) > 0 && allOr {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}

	acc := results[0]
	for i, op := range ops {
		rhs := results[i+1]
		if op == "and" {
			acc = acc && rhs
		} else {
			acc = acc || rhs
		}
	}
	return acc
}

func evalTerm(term string, ctx Context) bool {
	term = strings.TrimSpace(term)

	negate := false
	if strings.HasPrefix(term, "! ") {
		negate = true
		term = strings.TrimSpace(term[2:])
	}

	result := evalAtom(term, ctx)
	if negate {
		return !result
	}
	return result
}

func evalAtom(term string, ctx Context) bool {
	switch term {
	case "True", "true":
		return true
	case "False", "false":
		return false
	}

	if idx, opLen, op, ok := findOperator(term); ok {
		lhs := strings.TrimSpace(term[:idx])
		rhs := strings.TrimSpace(term[idx+opLen:])
		return evalComparison(lhs, op, rhs, ctx)
	}

	// Bare variable reference: truthy when "1" or "true".
	val, ok := lookup(term, ctx)
	if !ok {
		return false
	}
	s := stringify(val)
	return s == "1" || s == "true"
}

func findOperator(term string) (idx, opLen int, op string, ok bool) {
	best := -1
	bestOp := ""
	for _, o := range operators {
		if i := strings.Index(term, o); i != -1 {
			if best == -1 || i < best {
				best = i
				bestOp = o
			}
		}
	}
	if best == -1 {
		return 0, 0, "", false
	}
	return best, len(bestOp), bestOp, true
}

func evalComparison(lhsRef, op, rhs string, ctx Context) bool {
	lhsVal, ok := lookup(lhsRef, ctx)
	if !ok && op != "==" && op != "!=" {
		return false
	}
	lhs := stringify(lhsVal)

	switch op {
	case "==", "!=":
		want := strings.Trim(rhs, `"`)
		eq := lhs == want
		if op == "!=" {
			return !eq
		}
		return eq
	case "=~", "!~":
		pattern := strings.Trim(rhs, "/")
		re, err := regexp.Compile("(?s)^" + pattern)
		if err != nil {
			return false
		}
		matched := re.MatchString(lhs)
		if op == "!~" {
			return !matched
		}
		return matched
	case "<", "<=", ">", ">=":
		lf, lerr := strconv.ParseFloat(lhs, 64)
		rf, rerr := strconv.ParseFloat(strings.Trim(rhs, `"`), 64)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		}
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

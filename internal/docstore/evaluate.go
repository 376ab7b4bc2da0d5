package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluate applies a FilterExpression to a single document, returning
// whether it matches. Evaluate never returns an error for a
// well-formed expression built through this package's constructors;
// the error return exists for forward compatibility with expressions
// decoded from an untrusted source.
func Evaluate(expr FilterExpression, doc map[string]any) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil
	case emptyFilter:
		return true, nil
	case Comparison:
		return evalComparison(e, doc)
	case In:
		return evalIn(e, doc), nil
	case Text:
		return evalText(e, doc), nil
	case Regex:
		return evalRegex(e, doc), nil
	case Existence:
		return evalExistence(e, doc), nil
	case And:
		for _, op := range e.Operands {
			ok, err := Evaluate(op, doc)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, op := range e.Operands {
			ok, err := Evaluate(op, doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Evaluate(e.Operand, doc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("docstore: unknown filter expression %T", expr)
	}
}

func evalComparison(c Comparison, doc map[string]any) (bool, error) {
	actual, present := doc[c.Field]
	cmp, ok := compareValues(actual, c.Value)
	switch c.Op {
	case OpEq:
		if !present {
			return c.Value == nil, nil
		}
		return ok && cmp == 0, nil
	case OpNe:
		if !present {
			return c.Value != nil, nil
		}
		return !ok || cmp != 0, nil
	case OpGt:
		return present && ok && cmp > 0, nil
	case OpGe:
		return present && ok && cmp >= 0, nil
	case OpLt:
		return present && ok && cmp < 0, nil
	case OpLe:
		return present && ok && cmp <= 0, nil
	default:
		return false, fmt.Errorf("docstore: unknown comparison operator %q", c.Op)
	}
}

func evalIn(in In, doc map[string]any) bool {
	actual, present := doc[in.Field]
	if !present {
		return false
	}
	for _, candidate := range in.Values {
		if cmp, ok := compareValues(actual, candidate); ok && cmp == 0 {
			return true
		}
	}
	return false
}

func evalText(t Text, doc map[string]any) bool {
	actual, present := doc[t.Field]
	if !present {
		return false
	}
	s, ok := actual.(string)
	if !ok {
		return false
	}
	needle := t.Value
	if !t.CaseSensitive {
		s = strings.ToLower(s)
		needle = strings.ToLower(needle)
	}
	switch t.Op {
	case TextContains:
		return strings.Contains(s, needle)
	case TextStartsWith:
		return strings.HasPrefix(s, needle)
	case TextEndsWith:
		return strings.HasSuffix(s, needle)
	default:
		return false
	}
}

func evalRegex(r Regex, doc map[string]any) bool {
	actual, present := doc[r.Field]
	if !present {
		return false
	}
	s, ok := actual.(string)
	if !ok {
		return false
	}
	if r.compiled == nil {
		compiled, err := Match(r.Field, r.Pattern, r.CaseSensitive)
		if err != nil {
			return false
		}
		r = compiled.(Regex)
	}
	return r.compiled.MatchString(s)
}

func evalExistence(e Existence, doc map[string]any) bool {
	_, present := doc[e.Field]
	switch e.Op {
	case Exists:
		return present
	case NotExists:
		return !present
	default:
		return false
	}
}

// compareValues compares two dynamically-typed values, returning
// (cmp, true) when both sides are of a comparable kind (numeric vs
// numeric, string vs string, bool vs bool, time-like vs time-like via
// string formatting), or (0, false) when they can't be compared.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs), true
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			if ab == bb {
				return 0, true
			}
			if !ab && bb {
				return -1, true
			}
			return 1, true
		}
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

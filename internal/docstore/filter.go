// Package docstore implements QueryService and the FilterExpression
// algebra (spec.md §4.6): a closed-form query algebra over
// string-keyed document maps, plus an in-memory reference engine.
//
// A concrete document-database driver (MongoDB or similar) is
// deliberately not wired here — constructing vendor SDKs is out of
// scope per spec.md §1. The algebra and reference engine are the
// complete deliverable; the interface is what importpipeline and
// cleanse consume.
package docstore

import "regexp"

// FilterExpression is a sealed sum type: Comparison | In | Text | Regex
// | Existence | And | Or | Not | Empty. The marker method is
// unexported so only this package can produce new variants, matching
// the "explicit Empty identity" design note (spec.md §9).
type FilterExpression interface {
	isFilterExpression()
}

// CompareOp enumerates the comparison operators.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
)

// Comparison is a (field, op, value) filter.
type Comparison struct {
	Field string
	Op    CompareOp
	Value any
}

func (Comparison) isFilterExpression() {}

// In matches when the field's value is a member of Values.
type In struct {
	Field  string
	Values []any
}

func (In) isFilterExpression() {}

// TextOp enumerates text-match operators.
type TextOp string

const (
	TextContains   TextOp = "Contains"
	TextStartsWith TextOp = "StartsWith"
	TextEndsWith   TextOp = "EndsWith"
)

// Text is a substring/prefix/suffix match.
type Text struct {
	Field         string
	Op            TextOp
	Value         string
	CaseSensitive bool
}

func (Text) isFilterExpression() {}

// Regex matches a field's string value against a compiled pattern.
type Regex struct {
	Field         string
	Pattern       string
	CaseSensitive bool
	compiled      *regexp.Regexp
}

func (Regex) isFilterExpression() {}

// ExistenceOp enumerates existence checks.
type ExistenceOp string

const (
	Exists    ExistenceOp = "Exists"
	NotExists ExistenceOp = "NotExists"
)

// Existence checks field presence.
type Existence struct {
	Field string
	Op    ExistenceOp
}

func (Existence) isFilterExpression() {}

// And is the logical conjunction of its operands.
type And struct{ Operands []FilterExpression }

func (And) isFilterExpression() {}

// Or is the logical disjunction of its operands.
type Or struct{ Operands []FilterExpression }

func (Or) isFilterExpression() {}

// Not negates its operand.
type Not struct{ Operand FilterExpression }

func (Not) isFilterExpression() {}

// emptyFilter is the identity filter: And(x, Empty) == x.
type emptyFilter struct{}

func (emptyFilter) isFilterExpression() {}

// EmptyFilter is the singleton identity FilterExpression.
var EmptyFilter FilterExpression = emptyFilter{}

// IsEmpty reports whether f is the identity filter.
func IsEmpty(f FilterExpression) bool {
	_, ok := f.(emptyFilter)
	return ok || f == nil
}

// Eq, Ne, Gt, Ge, Lt, Le are Comparison constructors.
func Eq(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpEq, Value: value} }
func Ne(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpNe, Value: value} }
func Gt(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpGt, Value: value} }
func Ge(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpGe, Value: value} }
func Lt(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpLt, Value: value} }
func Le(field string, value any) FilterExpression { return Comparison{Field: field, Op: OpLe, Value: value} }

// InSet builds an In filter.
func InSet(field string, values ...any) FilterExpression { return In{Field: field, Values: values} }

// ContainsText, StartsWithText, EndsWithText build Text filters.
func ContainsText(field, value string, caseSensitive bool) FilterExpression {
	return Text{Field: field, Op: TextContains, Value: value, CaseSensitive: caseSensitive}
}
func StartsWithText(field, value string, caseSensitive bool) FilterExpression {
	return Text{Field: field, Op: TextStartsWith, Value: value, CaseSensitive: caseSensitive}
}
func EndsWithText(field, value string, caseSensitive bool) FilterExpression {
	return Text{Field: field, Op: TextEndsWith, Value: value, CaseSensitive: caseSensitive}
}

// Match builds a Regex filter, compiling the pattern eagerly (with the
// (?i) flag prepended when case-insensitive) so Evaluate never fails on
// a malformed pattern mid-scan.
func Match(field, pattern string, caseSensitive bool) (FilterExpression, error) {
	p := pattern
	if !caseSensitive {
		p = "(?i)" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	return Regex{Field: field, Pattern: pattern, CaseSensitive: caseSensitive, compiled: re}, nil
}

// HasField, MissingField build Existence filters.
func HasField(field string) FilterExpression    { return Existence{Field: field, Op: Exists} }
func MissingField(field string) FilterExpression { return Existence{Field: field, Op: NotExists} }

// AndOf builds a conjunction, collapsing EmptyFilter operands at
// construction time (spec.md §9).
func AndOf(operands ...FilterExpression) FilterExpression {
	collapsed := collapseEmpty(operands)
	if len(collapsed) == 0 {
		return EmptyFilter
	}
	if len(collapsed) == 1 {
		return collapsed[0]
	}
	return And{Operands: collapsed}
}

// OrOf builds a disjunction, collapsing EmptyFilter operands at
// construction time.
func OrOf(operands ...FilterExpression) FilterExpression {
	collapsed := collapseEmpty(operands)
	if len(collapsed) == 0 {
		return EmptyFilter
	}
	if len(collapsed) == 1 {
		return collapsed[0]
	}
	return Or{Operands: collapsed}
}

// NotOf negates operand, unless operand is already Empty (Not(Empty)
// stays Empty — negating the identity has no useful meaning in this
// algebra and this keeps AndOf/OrOf collapsing stable).
func NotOf(operand FilterExpression) FilterExpression {
	if IsEmpty(operand) {
		return EmptyFilter
	}
	return Not{Operand: operand}
}

func collapseEmpty(operands []FilterExpression) []FilterExpression {
	out := make([]FilterExpression, 0, len(operands))
	for _, o := range operands {
		if IsEmpty(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

package docstore

import "testing"

func TestAndOfCollapsesEmpty(t *testing.T) {
	x := Eq("name", "rex")
	got := AndOf(x, EmptyFilter)
	if got != x {
		t.Fatalf("AndOf(x, Empty) = %#v, want identity x", got)
	}
}

func TestOrOfCollapsesEmpty(t *testing.T) {
	x := Eq("name", "rex")
	got := OrOf(EmptyFilter, x, EmptyFilter)
	if got != x {
		t.Fatalf("OrOf(Empty, x, Empty) = %#v, want identity x", got)
	}
}

func TestAndOfAllEmptyYieldsEmpty(t *testing.T) {
	got := AndOf(EmptyFilter, EmptyFilter)
	if !IsEmpty(got) {
		t.Fatalf("AndOf(Empty, Empty) = %#v, want Empty", got)
	}
}

func TestNotOfEmptyStaysEmpty(t *testing.T) {
	if !IsEmpty(NotOf(EmptyFilter)) {
		t.Fatalf("NotOf(Empty) should stay Empty")
	}
}

func TestEvaluateComparison(t *testing.T) {
	doc := map[string]any{"age": 42, "name": "rex"}

	cases := []struct {
		name string
		expr FilterExpression
		want bool
	}{
		{"eq match", Eq("age", 42), true},
		{"eq mismatch", Eq("age", 7), false},
		{"ne match", Ne("age", 7), true},
		{"gt", Gt("age", 40), true},
		{"ge equal", Ge("age", 42), true},
		{"lt false", Lt("age", 42), false},
		{"le equal", Le("age", 42), true},
		{"missing field eq nil", Eq("missing", nil), true},
		{"missing field eq value", Eq("missing", 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(tc.expr, doc)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Evaluate(%v) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestEvaluateInText(t *testing.T) {
	doc := map[string]any{"status": "Active", "county": "51"}

	if ok, _ := Evaluate(InSet("county", "1", "51", "99"), doc); !ok {
		t.Fatalf("expected county in set")
	}
	if ok, _ := Evaluate(ContainsText("status", "active", false), doc); !ok {
		t.Fatalf("expected case-insensitive contains match")
	}
	if ok, _ := Evaluate(ContainsText("status", "active", true), doc); ok {
		t.Fatalf("expected case-sensitive contains to miss")
	}
}

func TestEvaluateExistence(t *testing.T) {
	doc := map[string]any{"present": 1}
	if ok, _ := Evaluate(HasField("present"), doc); !ok {
		t.Fatalf("expected present field to exist")
	}
	if ok, _ := Evaluate(MissingField("absent"), doc); !ok {
		t.Fatalf("expected absent field to report missing")
	}
}

func TestEvaluateLogical(t *testing.T) {
	doc := map[string]any{"a": 1, "b": 2}
	expr := AndOf(Eq("a", 1), OrOf(Eq("b", 2), Eq("b", 3)))
	ok, err := Evaluate(expr, doc)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected compound expression to match")
	}

	if ok, _ := Evaluate(NotOf(Eq("a", 1)), doc); ok {
		t.Fatalf("expected negation to flip result")
	}
}

func TestMatchRegex(t *testing.T) {
	expr, err := Match("lid", `^\d{2}-\d{2}/\d{3}/\d{4}$`, true)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	ok, err := Evaluate(expr, map[string]any{"lid": "12-34/567/8901"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected LID pattern to match")
	}
}

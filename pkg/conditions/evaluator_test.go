package conditions

import "testing"

// Comparison, arithmetic and boolean operators against flat business data.
func TestEvaluate(t *testing.T) {
	e := New(nil)
	data := map[string]any{
		"cpl":         50.0,
		"targetCpl":   30.0,
		"spend":       120.5,
		"leads":       0,
		"impressions": 800,
	}

	cases := []struct {
		expression string
		want       bool
	}{
		{"cpl > targetCpl * 1.3", true},
		{"cpl > targetCpl * 2", false},
		{"spend > 0 && leads == 0", true},
		{"spend == 0", false},
		{"impressions < 1000 || leads > 5", true},
		{"leads == 0 && impressions >= 800", true},
	}
	for _, tc := range cases {
		if got := e.Evaluate(tc.expression, data); got != tc.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tc.expression, got, tc.want)
		}
	}
}

// Nested objects are reachable with dotted access.
func TestEvaluate_NestedAccess(t *testing.T) {
	e := New(nil)
	data := map[string]any{
		"integrations": map[string]any{"whatsapp": true},
	}

	if !e.Evaluate("integrations.whatsapp == true", data) {
		t.Error("expected nested access to resolve")
	}
}

// Anything that is not a clean boolean evaluation comes back false: empty
// expressions, syntax errors, unknown identifiers, non-boolean results and a
// nil environment.
func TestEvaluate_NeverFails(t *testing.T) {
	e := New(nil)

	cases := []struct {
		name       string
		expression string
		env        map[string]any
	}{
		{"empty expression", "", map[string]any{"x": 1}},
		{"whitespace expression", "   ", map[string]any{"x": 1}},
		{"syntax error", "cpl >>> 3", map[string]any{"cpl": 1}},
		{"unknown identifier", "cpl > targetCpl", map[string]any{"cpl": 50.0}},
		{"non-bool result", "cpl + 1", map[string]any{"cpl": 1.0}},
		{"type mismatch", `cpl > "abc"`, map[string]any{"cpl": 1.0}},
		{"nil env", "cpl > 3", nil},
	}
	for _, tc := range cases {
		if e.Evaluate(tc.expression, tc.env) {
			t.Errorf("%s: Evaluate(%q) = true, want false", tc.name, tc.expression)
		}
	}
}

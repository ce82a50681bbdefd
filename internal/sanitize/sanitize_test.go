package sanitize

import (
	"reflect"
	"regexp"
	"testing"
)

func TestSanitizeRecoversBrokenObjects(t *testing.T) {
	t.Parallel()

	intended := map[string]any{
		"decision":      "approve",
		"amount":        50000.0,
		"justification": "ok",
	}

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "clean",
			raw:  `{"decision":"approve","amount":50000,"justification":"ok"}`,
		},
		{
			name: "fenced with trailing comma",
			raw:  "```json\n{\"decision\":\"approve\",\"amount\":50000,\"justification\":\"ok\",}\n```",
		},
		{
			name: "fence without language tag",
			raw:  "```\n{\"decision\":\"approve\",\"amount\":50000,\"justification\":\"ok\"}\n```",
		},
		{
			name: "unterminated string",
			raw:  `{"decision":"approve","amount":50000,"justification":"ok}`,
		},
		{
			name: "surrounding prose",
			raw:  "Sure! Here is the decision:\n{\"decision\": \"approve\", \"amount\": 50000, \"justification\": \"ok\"}\nLet me know.",
		},
		{
			name: "truncated before closing brace",
			raw:  `{"decision":"approve","amount":50000,"justification":"ok`,
		},
		{
			name: "trailing comma with whitespace",
			raw:  "{\n  \"decision\": \"approve\",\n  \"amount\": 50000,\n  \"justification\": \"ok\",\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Sanitize(tt.raw)
			if !res.Parsed() {
				t.Fatalf("expected parsed object, stage %q, text %q", res.Stage, res.Text)
			}
			if res.Stage != "" {
				t.Fatalf("unexpected stage %q", res.Stage)
			}
			if !reflect.DeepEqual(res.Object, intended) {
				t.Fatalf("expected %v, got %v", intended, res.Object)
			}
		})
	}
}

func TestSanitizeTrailingCommaInArray(t *testing.T) {
	t.Parallel()

	res := Sanitize(`{"clauses": ["4.2", "4.3",], "decision": "deny",}`)
	if !res.Parsed() {
		t.Fatalf("expected parsed object, got stage %q", res.Stage)
	}

	clauses, ok := res.Object["clauses"].([]any)
	if !ok || len(clauses) != 2 {
		t.Fatalf("unexpected clauses: %#v", res.Object["clauses"])
	}
}

func TestSanitizeKeepsEscapedQuotes(t *testing.T) {
	t.Parallel()

	res := Sanitize(`{"justification": "Clause \"4.2\" applies"}`)
	if !res.Parsed() {
		t.Fatalf("expected parsed object, got stage %q", res.Stage)
	}
	if got := res.Object["justification"]; got != `Clause "4.2" applies` {
		t.Fatalf("unexpected justification: %q", got)
	}
}

func TestSanitizeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		stage string
	}{
		{name: "empty", raw: "", stage: StageEmpty},
		{name: "whitespace", raw: "  \n\t ", stage: StageEmpty},
		{name: "only fences", raw: "```json\n```", stage: StageEmpty},
		{name: "prose without braces", raw: "I think this should be approved for 50000 because of clause 4.2", stage: StageLocate},
		{name: "unrecoverable object", raw: `{decision: approve, amount: lots}`, stage: StageParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Sanitize(tt.raw)
			if res.Parsed() {
				t.Fatalf("expected no object, got %v", res.Object)
			}
			if res.Stage != tt.stage {
				t.Fatalf("expected stage %q, got %q", tt.stage, res.Stage)
			}
		})
	}
}

func TestScanFieldsIsIndependentPerField(t *testing.T) {
	t.Parallel()

	fields := []Field{
		{Name: "decision", Pattern: regexp.MustCompile(`(?i)decision["\s]*:["\s]*([^",\n}]+)`)},
		{Name: "amount", Pattern: regexp.MustCompile(`(?i)amount["\s]*:["\s]*(\d+)`)},
		{Name: "justification", Pattern: regexp.MustCompile(`(?i)justification["\s]*:["\s]*([^"]+)`)},
		{Name: "ignored"},
	}

	raw := `{"decision": "pending", "amount": "n/a", "justification": "Needs documents`
	got := ScanFields(raw, fields...)

	want := map[string]string{
		"decision":      "pending",
		"justification": "Needs documents",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if none := ScanFields("no structured content here", fields...); len(none) != 0 {
		t.Fatalf("expected no fields, got %v", none)
	}
}

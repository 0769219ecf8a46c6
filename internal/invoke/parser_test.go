package invoke

import (
	"reflect"
	"testing"

	"prizmagent/internal/domain"
)

func TestParse_CallExpr(t *testing.T) {
	req, err := Parse(`search(query="cats", limit=5)`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "search" {
		t.Fatalf("expected name 'search', got %q", req.Name)
	}
	want := map[string]any{"query": "cats", "limit": int64(5)}
	if !reflect.DeepEqual(req.Args, want) {
		t.Fatalf("args mismatch: got %#v, want %#v", req.Args, want)
	}
}

func TestParse_CallExprPositional(t *testing.T) {
	req, err := Parse(`calculate(3, "+", 4.5)`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]any{"arg0": int64(3), "arg1": "+", "arg2": 4.5}
	if !reflect.DeepEqual(req.Args, want) {
		t.Fatalf("args mismatch: got %#v, want %#v", req.Args, want)
	}
}

func TestParse_CallExprEmbeddedInText(t *testing.T) {
	req, err := Parse(`I think we should run search(query="weather in Hanoi") here`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "search" {
		t.Fatalf("expected name 'search', got %q", req.Name)
	}
	if req.Args["query"] != "weather in Hanoi" {
		t.Fatalf("unexpected query: %#v", req.Args["query"])
	}
}

func TestParse_JSONObject(t *testing.T) {
	for _, raw := range []string{
		`{"name": "search", "arguments": {"query": "dogs"}}`,
		`{"tool": "search", "args": {"query": "dogs"}}`,
		`{"name": "search", "parameters": {"query": "dogs"}}`,
	} {
		req, err := Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if req.Name != "search" || req.Args["query"] != "dogs" {
			t.Fatalf("parse %q: got %#v", raw, req)
		}
	}
}

func TestParse_JSONObjectEmbedded(t *testing.T) {
	raw := "Sure, calling the tool now: {\"name\": \"datetime\", \"arguments\": {\"timezone\": \"UTC\"}} done."
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "datetime" || req.Args["timezone"] != "UTC" {
		t.Fatalf("got %#v", req)
	}
}

func TestParse_JSONObjectInCodeFence(t *testing.T) {
	raw := "```json\n{\"name\": \"search\", \"arguments\": {\"query\": \"go\"}}\n```"
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "search" {
		t.Fatalf("expected name 'search', got %q", req.Name)
	}
}

func TestParse_KeyValueForm(t *testing.T) {
	req, err := Parse(`query="cats" limit=5 exact=true`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "" {
		t.Fatalf("key=value form carries no name, got %q", req.Name)
	}
	want := map[string]any{"query": "cats", "limit": int64(5), "exact": true}
	if !reflect.DeepEqual(req.Args, want) {
		t.Fatalf("args mismatch: got %#v, want %#v", req.Args, want)
	}
}

func TestParse_GrammarPriority(t *testing.T) {
	// A call expression beats a JSON object appearing later in the text.
	raw := `search(query="a") {"name": "other", "arguments": {}}`
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "search" {
		t.Fatalf("expected call-expression grammar to win, got %q", req.Name)
	}
}

func TestParse_Unparsable(t *testing.T) {
	for _, raw := range []string{
		"",
		"just some free text with no call",
		`search(query=`, // unbalanced parens
		`{"arguments": {"query": "x"}}`, // JSON without a name
	} {
		_, err := Parse(raw)
		if err == nil {
			t.Fatalf("expected %q to be unparsable", raw)
		}
		if !domain.IsKind(err, domain.UnparsableCall) {
			t.Fatalf("expected UnparsableCall for %q, got %v", raw, err)
		}
	}
}

func TestParse_NeverInventsName(t *testing.T) {
	req, err := Parse(`city="Hanoi"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Name != "" {
		t.Fatalf("parser must not invent a name, got %q", req.Name)
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"2.5", 2.5},
		{"true", true},
		{"false", false},
		{"null", nil},
		{"bare", "bare"},
	}
	for _, tt := range tests {
		if got := parseScalar(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseScalar(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

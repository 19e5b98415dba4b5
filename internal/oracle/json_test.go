package oracle

import (
	"errors"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"whitespace padded", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := StripCodeFences(c.in)
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestParseUnifiedAnalysis_Valid(t *testing.T) {
	raw := "```json\n" + `{
		"should_store": true,
		"action": "NEW",
		"target_doc_id": null,
		"analysis": "some analysis",
		"entities": ["a", "b"],
		"problem_class": "Resource Allocation",
		"rationale": "distinct enough"
	}` + "\n```"

	result, err := ParseUnifiedAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ShouldStore {
		t.Error("expected ShouldStore=true")
	}
	if result.Action != ActionNew {
		t.Errorf("expected action NEW, got %s", result.Action)
	}
	if result.TargetDocID != nil {
		t.Errorf("expected nil target doc id, got %v", *result.TargetDocID)
	}
	if len(result.Entities) != 2 {
		t.Errorf("expected 2 entities, got %d", len(result.Entities))
	}
}

func TestParseUnifiedAnalysis_WithTargetID(t *testing.T) {
	raw := `{"should_store": true, "action": "UPDATE", "target_doc_id": 42, "analysis": "x", "entities": [], "problem_class": "y", "rationale": "z"}`
	result, err := ParseUnifiedAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TargetDocID == nil || *result.TargetDocID != 42 {
		t.Errorf("expected target doc id 42, got %v", result.TargetDocID)
	}
}

func TestParseUnifiedAnalysis_Empty(t *testing.T) {
	_, err := ParseUnifiedAnalysis("   ")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseUnifiedAnalysis_InvalidJSON(t *testing.T) {
	_, err := ParseUnifiedAnalysis("not json at all")
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

package classify

import "testing"

func TestParseResponse(t *testing.T) {
	raw := "Here is the analysis.\n```json\n{\"contact_established\": 1, \"needs_identified\": 0}\n```\n---SUMMARY---\nThe client asked about delivery."

	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if result.Scores["contact_established"] != 1 {
		t.Errorf("contact_established = %d, want 1", result.Scores["contact_established"])
	}
	if result.Scores["needs_identified"] != 0 {
		t.Errorf("needs_identified = %d, want 0", result.Scores["needs_identified"])
	}
	if result.Summary != "The client asked about delivery." {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestParseResponseNoSummary(t *testing.T) {
	raw := "```json\n{\"contact_established\": 1}\n```"
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if result.Summary != "" {
		t.Errorf("Summary = %q, want empty", result.Summary)
	}
}

func TestParseResponseSingleQuoteRepair(t *testing.T) {
	raw := "```json\n{'contact_established': 1, 'needs_identified': 1}\n```"
	result, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if result.Scores["needs_identified"] != 1 {
		t.Errorf("needs_identified = %d, want 1", result.Scores["needs_identified"])
	}
}

func TestParseResponseMissingBlock(t *testing.T) {
	if _, err := parseResponse("no structured content here"); err == nil {
		t.Fatal("parseResponse succeeded, want error")
	}
}

func TestCoerceScore(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{float64(1), 1},
		{float64(0), 0},
		{"1", 1},
		{" 0 ", 0},
		{"yes", 0},
		{true, 1},
		{false, 0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := coerceScore(c.in); got != c.want {
			t.Errorf("coerceScore(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

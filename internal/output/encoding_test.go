package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"changeguard/internal/impact"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		wantJSON string
	}{
		{
			name: "struct with floats",
			input: struct {
				Name  string  `json:"name"`
				Score float64 `json:"score"`
				Count int     `json:"count"`
			}{Name: "test", Score: 0.123456789, Count: 42},
			wantJSON: `{"count":42,"name":"test","score":0.123457}`,
		},
		{
			name: "nil pointer omitted",
			input: struct {
				Name  string   `json:"name"`
				Score *float64 `json:"score,omitempty"`
			}{Name: "test"},
			wantJSON: `{"name":"test"}`,
		},
		{
			name: "zero value with omitempty",
			input: struct {
				Name  string `json:"name"`
				Count int    `json:"count,omitempty"`
			}{Name: "test"},
			wantJSON: `{"name":"test"}`,
		},
		{
			name: "zero value without omitempty kept",
			input: struct {
				Breaking int `json:"breaking"`
			}{},
			wantJSON: `{"breaking":0}`,
		},
		{
			name:     "map keys sorted",
			input:    map[string]int{"zebra": 3, "alpha": 1, "beta": 2},
			wantJSON: `{"alpha":1,"beta":2,"zebra":3}`,
		},
		{
			name:     "ignored field",
			input:    impact.UsageRecord{Key: impact.CandidateKey{Name: "x"}, File: "a.go", Line: 3},
			wantJSON: `{"file":"a.go","isTest":false,"line":3}`,
		},
		{
			name:     "nil",
			input:    nil,
			wantJSON: `null`,
		},
		{
			name:     "empty slice",
			input:    []string{},
			wantJSON: `null`,
		},
		{
			name:     "html is not escaped",
			input:    map[string]string{"route": "GET /a?b=1&c=<d>"},
			wantJSON: `{"route":"GET /a?b=1&c=<d>"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.input)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.wantJSON {
				t.Errorf("Encode() = %s, want %s", got, tt.wantJSON)
			}
		})
	}
}

func TestEncode_ReportIsDeterministic(t *testing.T) {
	findings := []impact.Finding{
		finding("getUser", "api/user.ts", 0, impact.ChangeRemoved, impact.SeverityBreaking),
		finding("helper", "api/util.ts", 1, impact.ChangeRemoved, impact.SeveritySafe),
		finding("fetchData", "api/data.ts", 2, impact.ChangeRenamed, impact.SeverityRisky),
	}

	var first []byte
	for i := range 10 {
		report := Assemble(findings, Options{Warnings: []Warning{{Text: "b"}, {Text: "a"}}})
		got, err := Encode(report)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if i == 0 {
			first = got
			continue
		}
		if !bytes.Equal(first, got) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, got)
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["verdict"] != "1 breaking, 1 risky" {
		t.Errorf("verdict = %v", decoded["verdict"])
	}
	if strings.Contains(string(first), "findings") {
		t.Error("unexported findings should not be encoded")
	}
}

func TestEncodeIndented(t *testing.T) {
	got, err := EncodeIndented(map[string]any{"name": "test", "value": 0.123456789}, "  ")
	if err != nil {
		t.Fatalf("EncodeIndented() error = %v", err)
	}
	want := "{\n  \"name\": \"test\",\n  \"value\": 0.123457\n}\n"
	if string(got) != want {
		t.Errorf("EncodeIndented() = %q, want %q", got, want)
	}
}

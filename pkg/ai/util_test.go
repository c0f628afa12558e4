package ai

import (
	"testing"
)

type arbitration struct {
	Matches []int `json:"matches"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{
			name:  "standard json",
			input: `{"matches": [0, 2]}`,
			want:  []int{0, 2},
		},
		{
			name:  "double encoded",
			input: `"{\"matches\": [1]}"`,
			want:  []int{1},
		},
		{
			name:  "missing quotes repaired",
			input: `{matches: [0]}`,
			want:  []int{0},
		},
		{
			name:  "duplicate leading brace",
			input: `{{"matches": [3]}`,
			want:  []int{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out arbitration
			if err := UnmarshalFlexible(tt.input, &out); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if len(out.Matches) != len(tt.want) {
				t.Fatalf("Matches = %v, want %v", out.Matches, tt.want)
			}
			for i := range out.Matches {
				if out.Matches[i] != tt.want[i] {
					t.Errorf("Matches[%d] = %d, want %d", i, out.Matches[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced with language",
			input: "Here you go:\n```python\nprint(1 + 2)\n```\nDone.",
			want:  "print(1 + 2)",
		},
		{
			name:  "fenced without language",
			input: "```\nprint(42)\n```",
			want:  "print(42)",
		},
		{
			name:  "no fence",
			input: "print(7)",
			want:  "print(7)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCodeBlock(tt.input)
			if got != tt.want {
				t.Errorf("ExtractCodeBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

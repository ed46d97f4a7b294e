package main

import "testing"

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer title here", 10, "a longe..."},
		{"naïve résumé", 8, "naïve..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.input, tt.n); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

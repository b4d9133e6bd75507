package policy

import (
	"strings"
	"testing"
)

func TestRedactCaller(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		absent  []string
		changed bool
	}{
		{
			in:      "Bob +1 (555) 123-9876",
			want:    []string{"Bob", "[PHONE ...76]"},
			absent:  []string{"555"},
			changed: true,
		},
		{
			in:      "sip:alice@pbx.example.com",
			want:    []string{"[REDACTED_URI]"},
			absent:  []string{"alice", "[REDACTED_EMAIL]"},
			changed: true,
		},
		{
			in:      "Support <help@example.com>",
			want:    []string{"Support", "[REDACTED_EMAIL]"},
			changed: true,
		},
		{
			in:   "Front Desk 12",
			want: []string{"Front Desk 12"},
		},
	}
	for _, tt := range tests {
		out, changed := RedactCaller(tt.in)
		if changed != tt.changed {
			t.Fatalf("RedactCaller(%q) changed = %v, want %v (out=%q)", tt.in, changed, tt.changed, out)
		}
		for _, w := range tt.want {
			if !strings.Contains(out, w) {
				t.Fatalf("RedactCaller(%q) = %q, missing %q", tt.in, out, w)
			}
		}
		for _, a := range tt.absent {
			if strings.Contains(out, a) {
				t.Fatalf("RedactCaller(%q) = %q, still contains %q", tt.in, out, a)
			}
		}
	}
}

func TestLogCallerTrims(t *testing.T) {
	if got := LogCaller("  Alice  "); got != "Alice" {
		t.Fatalf("LogCaller() = %q, want Alice", got)
	}
}

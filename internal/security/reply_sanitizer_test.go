package security

import (
	"strings"
	"testing"
)

func TestReplySanitizer_PlainEmailUnchanged(t *testing.T) {
	s := NewReplySanitizer()

	got := s.Text("ops@muriarq.com")
	if got != "ops@muriarq.com" {
		t.Errorf("Text() = %q, want unchanged", got)
	}
}

func TestReplySanitizer_StripsTags(t *testing.T) {
	s := NewReplySanitizer()

	tests := []struct {
		name  string
		input string
	}{
		{"script", `<script>alert(1)</script>ops@muriarq.com`},
		{"bold", `<b>ops</b>@muriarq.com`},
		{"link", `<a href="https://evil.example">ops@muriarq.com</a>`},
		{"img onerror", `<img src=x onerror=alert(1)>ops@muriarq.com`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Text(tt.input)
			if strings.Contains(got, "<") || strings.Contains(got, ">") {
				t.Errorf("Text(%q) = %q, should not contain raw tags", tt.input, got)
			}
			if !strings.Contains(got, "muriarq.com") {
				t.Errorf("Text(%q) = %q, text content should be kept", tt.input, got)
			}
		})
	}
}

func TestReplySanitizer_EscapesSpecialCharacters(t *testing.T) {
	s := NewReplySanitizer()

	got := s.Text("a&b")
	if got != "a&amp;b" {
		t.Errorf("Text(a&b) = %q, want %q", got, "a&amp;b")
	}
}

func TestReplySanitizer_EmptyInput(t *testing.T) {
	s := NewReplySanitizer()

	if got := s.Text(""); got != "" {
		t.Errorf("Text(\"\") = %q, want empty", got)
	}
}

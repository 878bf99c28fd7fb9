package security

import "testing"

func TestProfileSanitizer_RemovesMarkup(t *testing.T) {
	s := NewProfileSanitizer()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "SELLERNICK", "SELLERNICK"},
		{"strips script tags", `<script>alert("x")</script>NICK`, "NICK"},
		{"strips html tags", "<b>NICK</b>", "NICK"},
		{"trims whitespace", "  NICK  ", "NICK"},
		{"empty input", "", ""},
		{"accented text preserved", "Vendedor São Paulo", "Vendedor São Paulo"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Sanitize(tc.input); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestProfileSanitizer_Idempotent(t *testing.T) {
	s := NewProfileSanitizer()

	input := `<img src=x onerror=alert(1)>NICK`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)

	if once != twice {
		t.Errorf("sanitization should be idempotent: %q != %q", once, twice)
	}
}

package views

import "testing"

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"<b>bold</b> move", "bold move"},
		{"<script>alert(1)</script>hi", "hi"},
		{"fish &amp; chips", "fish & chips"},
		{"line one\nline two\r\n\tthree", "line one line two three"},
		{"  padded  ", "padded"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"[red]not a tag[-]", "[red[]not a tag[-[]"},
	}
	for _, c := range cases {
		if got := SanitizeText(c.in); got != c.want {
			t.Errorf("SanitizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain name untouched", input: "report.pdf", expected: "report.pdf"},
		{name: "unicode preserved", input: "résumé.docx", expected: "résumé.docx"},
		{name: "path traversal neutralized", input: "../../etc/passwd", expected: ".._.._etc_passwd"},
		{name: "backslashes replaced", input: `..\..\boot.ini`, expected: ".._.._boot.ini"},
		{name: "header injection stripped", input: "evil\r\nSet-Cookie: x.pdf", expected: "evil__Set-Cookie_ x.pdf"},
		{name: "quotes replaced", input: `my "file".pdf`, expected: "my _file_.pdf"},
		{name: "control characters replaced", input: "a\x00b\x1fc.txt", expected: "a_b_c.txt"},
		{name: "empty becomes file", input: "", expected: "file"},
		{name: "only dangerous chars becomes file", input: "///", expected: "file"},
		{name: "surrounding space trimmed", input: "  doc.pdf  ", expected: "doc.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_TruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("a", 300) + ".docx"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".docx"))
}

func TestSanitizeFilename_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 200) + ".txt"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".txt"))
	for _, r := range got {
		assert.NotEqual(t, '�', r, "truncation must not split a rune")
	}
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="report.pdf"`, ContentDisposition("report.pdf", false))
	assert.Equal(t, `inline; filename="report.pdf"`, ContentDisposition("report.pdf", true))

	// Injection attempts are sanitized before quoting.
	got := ContentDisposition("evil\r\n.pdf", false)
	assert.NotContains(t, got, "\r")
	assert.NotContains(t, got, "\n")
}

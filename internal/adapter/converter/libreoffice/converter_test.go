package libreoffice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertd/convertd/internal/domain"
)

func TestOutputName(t *testing.T) {
	tests := []struct {
		input    string
		format   string
		expected string
	}{
		{"/data/jobs/x/in/report.docx", "pdf", "report.pdf"},
		{"/data/report.odt", "txt", "report.txt"},
		{"/data/noext", "pdf", "noext.pdf"},
		{"/data/archive.tar.gz", "pdf", "archive.tar.pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, outputName(tt.input, tt.format))
	}
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, validatePath("/data/in/report.docx"))
	assert.ErrorIs(t, validatePath(""), ErrEmptyPath)
	assert.ErrorIs(t, validatePath("/data/\x00/evil"), ErrInvalidPath)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "error: no filter", firstLine([]byte("error: no filter\nmore detail\n")))
	assert.Equal(t, "single line", firstLine([]byte("  single line  ")))
	assert.Equal(t, "", firstLine(nil))
}

func TestConvert_RejectsBadInput(t *testing.T) {
	c := NewConverter()

	_, err := c.Convert(context.Background(), "", t.TempDir(), domain.Options{}, nil)
	require.Error(t, err)
	ce, ok := domain.AsConversionError(err)
	require.True(t, ok)
	assert.Contains(t, ce.Message, "input path")
}

func TestConvert_RejectsUnknownFormat(t *testing.T) {
	c := NewConverter()

	_, err := c.Convert(context.Background(), "/data/in/report.docx", t.TempDir(), domain.Options{Format: "exe"}, nil)
	require.Error(t, err)
	ce, ok := domain.AsConversionError(err)
	require.True(t, ok)
	assert.Contains(t, ce.Message, "unsupported target format")
}

func TestReport_NilProgressDoesNotPanic(t *testing.T) {
	report(nil, 50, "halfway")

	var got int
	report(func(percent int, message string) { got = percent }, 50, "halfway")
	assert.Equal(t, 50, got)
}

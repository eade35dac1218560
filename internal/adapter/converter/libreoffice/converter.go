// Package libreoffice wraps a headless soffice process as the conversion
// collaborator. A stuck process is killed by the per-invocation timeout the
// job core supplies through ctx; the kill surfaces as a ConversionError like
// any other failure.
package libreoffice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/port"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path")
)

// contentTypes maps target formats to the MIME type of the produced file.
var contentTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"odt":  "application/vnd.oasis.opendocument.text",
	"txt":  "text/plain",
	"html": "text/html",
	"png":  "image/png",
	"jpg":  "image/jpeg",
}

type Converter struct {
	binary string
}

func NewConverter() *Converter {
	return &Converter{binary: "soffice"}
}

func (c *Converter) Convert(ctx context.Context, inputPath, outputDir string, opts domain.Options, progress port.ProgressFunc) (*domain.Artifact, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, domain.NewConversionError(fmt.Sprintf("input path: %v", err))
	}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "pdf"
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, domain.NewConversionError(fmt.Sprintf("unsupported target format: %s", format))
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	report(progress, 10, "starting conversion")

	// A dedicated profile dir lets concurrent soffice invocations coexist.
	profileDir := filepath.Join(outputDir, ".soffice-profile")
	args := []string{
		"--headless",
		"--norestore",
		"--nolockcheck",
		"-env:UserInstallation=file://" + profileDir,
		"--convert-to", format,
		"--outdir", outputDir,
		inputPath,
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewConversionError("conversion timed out")
		}
		return nil, domain.NewConversionError(fmt.Sprintf("soffice failed: %v: %s", err, firstLine(output)))
	}

	report(progress, 90, "conversion finished")

	outputPath := filepath.Join(outputDir, outputName(inputPath, format))
	if _, err := os.Stat(outputPath); err != nil {
		return nil, domain.NewConversionError(fmt.Sprintf("soffice produced no output for %s", filepath.Base(inputPath)))
	}

	return &domain.Artifact{
		Path:        outputPath,
		DisplayName: outputName(inputPath, format),
		ContentType: contentType,
	}, nil
}

// outputName mirrors soffice's naming: input base with the target extension.
func outputName(inputPath, format string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + format
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, '\x00') {
		return ErrInvalidPath
	}
	return nil
}

func firstLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	return s
}

func report(progress port.ProgressFunc, percent int, message string) {
	if progress != nil {
		progress(percent, message)
	}
}

var _ port.Converter = (*Converter)(nil)

package port

import (
	"context"

	"github.com/convertd/convertd/internal/domain"
)

// ProgressFunc lets a running conversion report coarse progress without the
// job core knowing conversion internals. Implementations clamp percent.
type ProgressFunc func(percent int, message string)

// Converter is the opaque conversion collaborator the job core orchestrates.
// Failures are reported as *domain.ConversionError where the converter can
// tell; any other error is treated the same way at the worker boundary.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputDir string, opts domain.Options, progress ProgressFunc) (*domain.Artifact, error)
}

// ConverterFunc adapts a plain function to the Converter interface.
type ConverterFunc func(ctx context.Context, inputPath, outputDir string, opts domain.Options, progress ProgressFunc) (*domain.Artifact, error)

func (f ConverterFunc) Convert(ctx context.Context, inputPath, outputDir string, opts domain.Options, progress ProgressFunc) (*domain.Artifact, error) {
	return f(ctx, inputPath, outputDir, opts, progress)
}

package service

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/infrastructure/logger"
)

// zipEntryTime is the fixed modification time written for every archive
// entry, so the same set of outputs always produces the same archive bytes.
var zipEntryTime = time.Unix(0, 0).UTC()

// Packager turns the successful outputs of a job into the single artifact
// the client downloads: one output passes through, several are zipped.
type Packager struct{}

func NewPackager() *Packager {
	return &Packager{}
}

// Package builds the artifact for items in done state. A missing file for a
// nominally done item is logged and skipped rather than aborting the
// archive. It returns an error only when nothing usable remains.
func (p *Packager) Package(items []domain.Item, archivePath, archiveName string) (*domain.Artifact, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no outputs to package")
	}

	if len(items) == 1 {
		it := items[0]
		if _, err := os.Stat(it.OutputPath); err != nil {
			return nil, fmt.Errorf("output missing for %s: %w", it.OutputName, err)
		}
		return &domain.Artifact{
			Path:        it.OutputPath,
			DisplayName: it.OutputName,
			ContentType: it.ContentType,
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	names := make(map[string]int)
	written := 0

	for _, it := range items {
		src, err := os.Open(it.OutputPath)
		if err != nil {
			logger.Warn.Printf("skipping archive entry %s: %v", it.OutputName, err)
			continue
		}

		header := &zip.FileHeader{
			Name:     uniqueEntryName(names, it.OutputName),
			Method:   zip.Deflate,
			Modified: zipEntryTime,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			_ = src.Close()
			_ = zw.Close()
			_ = f.Close()
			return nil, fmt.Errorf("create archive entry %s: %w", it.OutputName, err)
		}
		if _, err := io.Copy(w, src); err != nil {
			_ = src.Close()
			_ = zw.Close()
			_ = f.Close()
			return nil, fmt.Errorf("write archive entry %s: %w", it.OutputName, err)
		}
		_ = src.Close()
		written++
	}

	if err := zw.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	if written == 0 {
		_ = os.Remove(archivePath)
		return nil, fmt.Errorf("no outputs to package")
	}

	return &domain.Artifact{
		Path:        archivePath,
		DisplayName: archiveName,
		ContentType: "application/zip",
	}, nil
}

// uniqueEntryName disambiguates duplicate archive entry names by inserting a
// counter before the extension.
func uniqueEntryName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

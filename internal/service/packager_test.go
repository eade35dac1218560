package service

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertd/convertd/internal/domain"
)

func writeOutput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPackage_SingleOutputPassesThrough(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "report.pdf", "%PDF-1.4")

	p := NewPackager()
	artifact, err := p.Package([]domain.Item{
		{OutputPath: out, OutputName: "report.pdf", ContentType: "application/pdf"},
	}, filepath.Join(dir, "result.zip"), "converted.zip")

	require.NoError(t, err)
	assert.Equal(t, out, artifact.Path)
	assert.Equal(t, "report.pdf", artifact.DisplayName)
	assert.Equal(t, "application/pdf", artifact.ContentType)

	_, err = os.Stat(filepath.Join(dir, "result.zip"))
	assert.True(t, os.IsNotExist(err), "no archive is built for a single output")
}

func TestPackage_SingleOutputMissingFile(t *testing.T) {
	dir := t.TempDir()

	p := NewPackager()
	_, err := p.Package([]domain.Item{
		{OutputPath: filepath.Join(dir, "gone.pdf"), OutputName: "gone.pdf"},
	}, filepath.Join(dir, "result.zip"), "converted.zip")

	assert.Error(t, err)
}

func TestPackage_MultipleOutputsZipped(t *testing.T) {
	dir := t.TempDir()
	a := writeOutput(t, dir, "a.pdf", "first")
	b := writeOutput(t, dir, "b.pdf", "second")

	p := NewPackager()
	archivePath := filepath.Join(dir, "result.zip")
	artifact, err := p.Package([]domain.Item{
		{OutputPath: a, OutputName: "a.pdf"},
		{OutputPath: b, OutputName: "b.pdf"},
	}, archivePath, "converted.zip")

	require.NoError(t, err)
	assert.Equal(t, archivePath, artifact.Path)
	assert.Equal(t, "converted.zip", artifact.DisplayName)
	assert.Equal(t, "application/zip", artifact.ContentType)

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.pdf", zr.File[0].Name)
	assert.Equal(t, "b.pdf", zr.File[1].Name)
}

func TestPackage_MissingFileSkipped(t *testing.T) {
	dir := t.TempDir()
	a := writeOutput(t, dir, "a.pdf", "first")

	p := NewPackager()
	archivePath := filepath.Join(dir, "result.zip")
	artifact, err := p.Package([]domain.Item{
		{OutputPath: a, OutputName: "a.pdf"},
		{OutputPath: filepath.Join(dir, "gone.pdf"), OutputName: "gone.pdf"},
	}, archivePath, "converted.zip")

	require.NoError(t, err)

	zr, err := zip.OpenReader(artifact.Path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.pdf", zr.File[0].Name)
}

func TestPackage_AllFilesMissing(t *testing.T) {
	dir := t.TempDir()

	p := NewPackager()
	archivePath := filepath.Join(dir, "result.zip")
	_, err := p.Package([]domain.Item{
		{OutputPath: filepath.Join(dir, "x.pdf"), OutputName: "x.pdf"},
		{OutputPath: filepath.Join(dir, "y.pdf"), OutputName: "y.pdf"},
	}, archivePath, "converted.zip")

	assert.Error(t, err)
	_, statErr := os.Stat(archivePath)
	assert.True(t, os.IsNotExist(statErr), "an empty archive must not be left behind")
}

func TestPackage_DuplicateNamesDisambiguated(t *testing.T) {
	dir := t.TempDir()
	a := writeOutput(t, dir, "a1.pdf", "first")
	b := writeOutput(t, dir, "a2.pdf", "second")
	c := writeOutput(t, dir, "a3.pdf", "third")

	p := NewPackager()
	artifact, err := p.Package([]domain.Item{
		{OutputPath: a, OutputName: "doc.pdf"},
		{OutputPath: b, OutputName: "doc.pdf"},
		{OutputPath: c, OutputName: "doc.pdf"},
	}, filepath.Join(dir, "result.zip"), "converted.zip")

	require.NoError(t, err)

	zr, err := zip.OpenReader(artifact.Path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 3)
	assert.Equal(t, "doc.pdf", zr.File[0].Name)
	assert.Equal(t, "doc (1).pdf", zr.File[1].Name)
	assert.Equal(t, "doc (2).pdf", zr.File[2].Name)
}

func TestPackage_NoItems(t *testing.T) {
	p := NewPackager()
	_, err := p.Package(nil, "/tmp/result.zip", "converted.zip")
	assert.Error(t, err)
}

func TestPackage_DeterministicBytes(t *testing.T) {
	dir := t.TempDir()
	a := writeOutput(t, dir, "a.pdf", "first")
	b := writeOutput(t, dir, "b.pdf", "second")
	items := []domain.Item{
		{OutputPath: a, OutputName: "a.pdf"},
		{OutputPath: b, OutputName: "b.pdf"},
	}

	p := NewPackager()
	first := filepath.Join(dir, "one.zip")
	second := filepath.Join(dir, "two.zip")
	_, err := p.Package(items, first, "converted.zip")
	require.NoError(t, err)
	_, err = p.Package(items, second, "converted.zip")
	require.NoError(t, err)

	b1, err := os.ReadFile(first)
	require.NoError(t, err)
	b2, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "the same outputs must produce identical archive bytes")
}

// Package reader turns files into knowledge base documents.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hupe1980/assistmesh/core"
)

// ErrUnsupportedFormat is returned for file extensions no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Metadata keys set on every document.
const (
	MetaPath   = "path"
	MetaFormat = "format"
	MetaPages  = "pages"
)

var textExtensions = []string{".txt", ".md", ".markdown", ".text", ".rst", ".csv", ".json", ".yaml", ".yml"}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || slices.Contains(textExtensions, ext)
}

// ReadFile reads a single file. The document source is the file base name.
func ReadFile(ctx context.Context, path string) (core.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".pdf":
		return readPDF(ctx, path)
	case slices.Contains(textExtensions, ext):
		return readText(path, strings.TrimPrefix(ext, "."))
	default:
		return core.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadPaths reads files and walks directories, skipping unsupported files
// found while walking. Unsupported files named explicitly are an error.
func ReadPaths(ctx context.Context, paths ...string) ([]core.Document, error) {
	var docs []core.Document

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reader: %w", err)
		}

		if !info.IsDir() {
			doc, err := ReadFile(ctx, p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || !Supported(path) {
				return nil
			}
			doc, err := ReadFile(ctx, path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reader: walk %s: %w", p, err)
		}
	}

	return docs, nil
}

func readText(path, format string) (core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("reader: %w", err)
	}

	return core.Document{
		Text:   string(data),
		Source: filepath.Base(path),
		Metadata: map[string]any{
			MetaPath:   path,
			MetaFormat: format,
		},
	}, nil
}

func readPDF(ctx context.Context, path string) (core.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("reader: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var parts []string
	total := r.NumPage()

	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return core.Document{}, err
		}

		page := r.Page(num)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return core.Document{}, fmt.Errorf("reader: pdf %s page %d: %w", path, num, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, strings.TrimSpace(text))
		}
	}

	return core.Document{
		Text:   strings.Join(parts, "\n\n"),
		Source: filepath.Base(path),
		Metadata: map[string]any{
			MetaPath:   path,
			MetaFormat: "pdf",
			MetaPages:  total,
		},
	}, nil
}

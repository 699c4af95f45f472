package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RMahshie/labfit/internal/dataset"
)

// Content types of rendered artifacts.
const (
	ContentTypeTSV  = "text/tab-separated-values"
	ContentTypePNG  = "image/png"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is one rendered artifact.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options controls Render.
type Options struct {
	// DPI for figures that do not set their own.
	DPI int
	// Workbook adds an XLSX export named WorkbookName.
	Workbook     bool
	WorkbookName string
}

// Render turns tables, figures and optionally a workbook into files.
func Render(o *Outcome, opts Options) ([]File, error) {
	var files []File
	for _, t := range o.Tables {
		var buf bytes.Buffer
		if err := dataset.WriteTSV(&buf, t.Header, t.Columns, t.Formats); err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		files = append(files, File{Name: t.Name, ContentType: ContentTypeTSV, Data: buf.Bytes()})
	}
	for _, f := range o.Figures {
		data, err := EncodePNG(f, opts.DPI)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: f.Name + ".png", ContentType: ContentTypePNG, Data: data})
	}
	if opts.Workbook {
		buf, err := Workbook(o)
		if err != nil {
			return nil, fmt.Errorf("workbook: %w", err)
		}
		name := opts.WorkbookName
		if name == "" {
			name = "results.xlsx"
		}
		files = append(files, File{Name: name, ContentType: ContentTypeXLSX, Data: buf.Bytes()})
	}
	return files, nil
}

// WriteDir writes files into dir, creating it if needed.
func WriteDir(dir string, files []File) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Package render turns quote documents into PDF artifacts on disk and serves
// them back by filename.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
)

// Page layout in points, measured from the bottom of an A4 page.
const (
	marginX      = 100.0
	titleY       = 750.0
	firstLineY   = 700.0
	lineSpacing  = 20.0
	bottomMargin = 50.0
	fontFamily   = "Helvetica"
	fontSize     = 12.0
)

// Document is the content of one artifact.
type Document = model.Document

// Renderer produces the artifact for a document.
type Renderer interface {
	Render(ctx context.Context, doc Document) error
}

// PDFRenderer writes documents as PDFs under a directory.
type PDFRenderer struct {
	dir    string
	logger logger.Logger
}

// NewPDFRenderer creates the output directory if needed.
func NewPDFRenderer(dir string, opts ...Option) (*PDFRenderer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %q: %w", dir, err)
	}
	r := &PDFRenderer{
		dir:    dir,
		logger: logger.Get().Named("render"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the output directory.
func (r *PDFRenderer) Dir() string { return r.dir }

// Render writes doc.Filename. The file appears under its final name only
// once fully written.
func (r *PDFRenderer) Render(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateFilename(doc.Filename); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.RecordQuoteRenderLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont(fontFamily, "", fontSize)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	_, pageH := pdf.GetPageSize()

	pdf.Text(marginX, pageH-titleY, tr(doc.Title))
	y := firstLineY
	for _, line := range doc.Lines {
		if y < bottomMargin {
			pdf.AddPage()
			y = titleY
		}
		pdf.Text(marginX, pageH-y, tr(line))
		y -= lineSpacing
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("layout %s: %w", doc.Filename, err)
	}

	tmp, err := os.CreateTemp(r.dir, ".render-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := pdf.Output(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", doc.Filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", doc.Filename, err)
	}
	if err := os.Rename(tmpName, filepath.Join(r.dir, doc.Filename)); err != nil {
		return fmt.Errorf("commit %s: %w", doc.Filename, err)
	}
	committed = true

	r.logger.Debug(ctx, "artifact rendered",
		logger.String("filename", doc.Filename),
		logger.Int("lines", len(doc.Lines)),
	)
	return nil
}

// Open returns a previously rendered artifact.
func (r *PDFRenderer) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(r.dir, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.WrapKind("render.open", apperr.ErrNotFound, fmt.Errorf("artifact %s does not exist", filename))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	return f, nil
}

// ValidateFilename accepts only plain *.pdf base names.
func ValidateFilename(name string) error {
	switch {
	case name == "",
		name != filepath.Base(name),
		strings.ContainsAny(name, `/\`),
		strings.HasPrefix(name, "."),
		!strings.HasSuffix(name, ".pdf"):
		return apperr.WrapKind("render", apperr.ErrValidation, fmt.Errorf("%w: %q", ErrBadFilename, name))
	}
	return nil
}

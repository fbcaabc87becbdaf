// Package extractor turns uploaded bytes into plain text.
//
// Supported formats:
//   - PDF (ledongthuc/pdf for text, pdfcpu for the page count)
//   - DOCX (archive/zip, word/document.xml)
//   - XLSX (excelize, one line per row)
//   - HTML (bluemonday strict policy)
//   - anything else is decoded as UTF-8 with invalid bytes dropped
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeHTML = "text/html"
)

type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Detect picks the format from the content type and falls back to the file extension
// when the client sent a generic type.
func Detect(filename, contentType string) Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case mimePDF:
		return FormatPDF
	case mimeDOCX:
		return FormatDOCX
	case mimeXLSX:
		return FormatXLSX
	case mimeHTML, "application/xhtml+xml":
		return FormatHTML
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".xlsx":
		return FormatXLSX
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatText
	}
}

func (e *Extractor) Extract(ctx context.Context, filename, contentType string, data []byte) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	format := Detect(filename, contentType)
	var (
		out domain.ExtractedText
		err error
	)
	switch format {
	case FormatPDF:
		out, err = extractPDF(data)
	case FormatDOCX:
		out.Text, err = extractDOCX(data)
	case FormatXLSX:
		out.Text, err = extractXLSX(data)
	case FormatHTML:
		out.Text = extractHTML(data)
	default:
		out.Text = decodeText(data)
	}
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract %s: %w", format, err)
	}

	out.Text = strings.TrimSpace(out.Text)
	e.logger.Debug("text_extracted",
		"filename", filename,
		"format", string(format),
		"chars", len([]rune(out.Text)),
		"pages", out.PageCount,
	)
	return out, nil
}

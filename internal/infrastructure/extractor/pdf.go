package extractor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func extractPDF(data []byte) (domain.ExtractedText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read pdf text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read pdf text: %w", err)
	}

	return domain.ExtractedText{
		Text:      decodeText(text),
		PageCount: pageCount(data, reader.NumPage()),
	}, nil
}

// pageCount prefers pdfcpu, which validates the cross-reference table, and
// falls back to the text reader's count for files pdfcpu rejects.
func pageCount(data []byte, fallback int) int {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil || count <= 0 {
		return fallback
	}
	return count
}

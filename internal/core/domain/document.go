package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

type Document struct {
	ID           string         `json:"id"`
	OriginalName string         `json:"original_name"`
	Size         int64          `json:"size"`
	ContentType  string         `json:"content_type"`
	PageCount    int            `json:"page_count,omitempty"`
	StoragePath  string         `json:"storage_path,omitempty"`
	RawText      string         `json:"-"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ExtractedText struct {
	Text      string
	PageCount int
}

// TextLength is reported instead of the raw text on read endpoints.
func (d *Document) TextLength() int {
	if d == nil {
		return 0
	}
	return len([]rune(d.RawText))
}

// CanReprocess reports whether a manual reprocess may reset the document.
func (s DocumentStatus) CanReprocess() bool {
	return s == StatusProcessed || s == StatusError || s == StatusUploaded
}

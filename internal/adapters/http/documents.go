package httpadapter

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/stages/nextsteps"
)

// multipartMemory is how much of a form is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

type documentResponse struct {
	*domain.Document
	TextLength int `json:"text_length"`
}

func newDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{Document: doc, TextLength: doc.TextLength()}
}

// documentID binds the {id} path segment as a UUID.
func documentID(r *http.Request) (string, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind document id", err)
	}
	return id.String(), nil
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Ingestor == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "upload", errors.New("ingestion is not configured")))
		return
	}

	// The query parameter overrides the server default in either direction.
	autoSummarize := rt.opts.AutoSummarize
	if err := runtime.BindQueryParameter("form", true, false, "auto_summarize", r.URL.Query(), &autoSummarize); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind auto_summarize", err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.UploadMaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["file"]...)
	headers = append(headers, r.MultipartForm.File["files"]...)
	if len(headers) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "multipart field 'file' or 'files' is required")
		return
	}

	files := make([]ports.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "open upload part", err))
			return
		}
		defer f.Close()
		files = append(files, ports.UploadFile{
			Filename:    header.Filename,
			ContentType: partContentType(header),
			Body:        f,
		})
		if rt.opts.Metrics != nil {
			rt.opts.Metrics.ObserveUpload(header.Size)
		}
	}

	var docs []*domain.Document
	var err error
	if len(files) == 1 {
		var doc *domain.Document
		doc, err = rt.deps.Ingestor.Upload(r.Context(), files[0].Filename, files[0].ContentType, files[0].Body)
		docs = []*domain.Document{doc}
	} else {
		docs, err = rt.deps.Ingestor.UploadBatch(r.Context(), files)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		if autoSummarize {
			if err := rt.deps.Ingestor.Enqueue(r.Context(), doc.ID); err != nil {
				rt.logger.Warn("auto_summarize_dispatch_failed", "document_id", doc.ID, "error", err)
			}
		}
		out = append(out, newDocumentResponse(doc))
	}
	writeJSON(w, http.StatusCreated, out)
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	docs, err := rt.deps.Reader.List(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, newDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	doc, err := rt.deps.Reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.deps.Remover.Delete(r.Context(), id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	result, err := rt.deps.Summarizer.Summarize(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) cachedSummary(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	result, err := rt.deps.Reader.CachedResult(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.deps.Summarizer.Reprocess(r.Context(), id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.StatusUploaded)})
}

// deadlinesCalendar exports the deadlines of the cached next-steps payload.
// A result whose next-steps stage did not succeed yields an empty calendar.
func (rt *Router) deadlinesCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	result, err := rt.deps.Reader.CachedResult(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var deadlines []string
	if result.NextSteps.IsOK() {
		deadlines, err = nextsteps.DeadlinesFromPayload(result.NextSteps.Payload)
		if err != nil {
			rt.writeError(w, r, fmt.Errorf("read deadlines: %w", err))
			return
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-deadlines.ics"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(nextsteps.ExportICal(id, deadlines, time.Now().UTC()))
}

package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

const docID = "3f1c1b8e-3a51-4b53-9d0c-2a4f2f0d2c11"

type summarizerFake struct {
	result      *domain.Result
	err         error
	reprocessed []string
}

func (f *summarizerFake) Summarize(context.Context, string) (*domain.Result, error) {
	return f.result, f.err
}

func (f *summarizerFake) Reprocess(_ context.Context, id string) error {
	f.reprocessed = append(f.reprocessed, id)
	return f.err
}

type readerFake struct {
	doc *domain.Document
	err error
}

func (f readerFake) GetByID(context.Context, string) (*domain.Document, error) { return f.doc, f.err }
func (f readerFake) List(context.Context, int) ([]domain.Document, error)      { return nil, f.err }
func (f readerFake) CachedResult(context.Context, string) (*domain.Result, error) {
	return nil, f.err
}

func call(name, id string) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = map[string]any{argDocumentID: id}
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %+v", res)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestSummarizeToolReturnsResultJSON(t *testing.T) {
	s := New(&summarizerFake{result: &domain.Result{
		Lawyer:    domain.Ok(json.RawMessage(`{"summary":"s"}`)),
		Citizen:   domain.Ok(json.RawMessage(`{}`)),
		NextSteps: domain.Skipped(),
		Facts:     domain.Failed("bad fields"),
	}}, readerFake{}, nil)

	res, err := s.summarize(context.Background(), call(ToolSummarize, docID))
	if err != nil {
		t.Fatalf("summarize() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text(t, res)), &body); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if string(body["next_steps"]) != "{}" || !strings.Contains(string(body["facts"]), "bad fields") {
		t.Fatalf("unexpected result %v", body)
	}
}

func TestToolsRejectMalformedIDs(t *testing.T) {
	s := New(&summarizerFake{}, readerFake{}, nil)
	res, err := s.reprocess(context.Background(), call(ToolReprocess, "../etc"))
	if err != nil {
		t.Fatalf("reprocess() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for malformed id")
	}

	var missing mcp.CallToolRequest
	missing.Params.Name = ToolStatus
	res, _ = s.status(context.Background(), missing)
	if !res.IsError {
		t.Fatalf("expected tool error for missing id")
	}
}

func TestStatusToolReportsDocumentState(t *testing.T) {
	s := New(&summarizerFake{}, readerFake{doc: &domain.Document{
		ID:           docID,
		OriginalName: "notice.pdf",
		Status:       domain.StatusError,
		Error:        "save failed",
		UploadedAt:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}}, nil)

	res, _ := s.status(context.Background(), call(ToolStatus, docID))
	out := text(t, res)
	if !strings.Contains(out, `"status":"error"`) || !strings.Contains(out, "save failed") {
		t.Fatalf("unexpected status output %s", out)
	}
}

func TestUseCaseErrorsBecomeToolErrors(t *testing.T) {
	summarizer := &summarizerFake{err: domain.WrapError(domain.ErrConflict, "reprocess", errors.New("document is processing"))}
	s := New(summarizer, readerFake{}, nil)

	res, err := s.reprocess(context.Background(), call(ToolReprocess, docID))
	if err != nil {
		t.Fatalf("protocol error must not be returned: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "processing") {
		t.Fatalf("expected conflict surfaced as tool error, got %+v", res)
	}
	if len(summarizer.reprocessed) != 1 || summarizer.reprocessed[0] != docID {
		t.Fatalf("unexpected reprocess calls %v", summarizer.reprocessed)
	}
}

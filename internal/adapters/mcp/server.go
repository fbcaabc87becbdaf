// Package mcpadapter exposes the summarization use cases as MCP tools over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const (
	ServerName    = "legal-lens"
	ServerVersion = "1.0.0"

	ToolSummarize = "summarize_document"
	ToolStatus    = "get_document_status"
	ToolReprocess = "reprocess_document"

	argDocumentID = "document_id"
)

type Server struct {
	summarizer ports.DocumentSummarizer
	reader     ports.DocumentReader
	logger     *slog.Logger
	mcp        *server.MCPServer
}

func New(summarizer ports.DocumentSummarizer, reader ports.DocumentReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{summarizer: summarizer, reader: reader, logger: logger}
	s.mcp = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	documentArg := mcp.WithString(argDocumentID,
		mcp.Required(),
		mcp.Description("Document id returned by the upload endpoint"),
	)
	s.mcp.AddTool(mcp.NewTool(ToolSummarize,
		mcp.WithDescription("Run the legal summarization pipeline for a document, or return its cached result."),
		documentArg,
	), s.summarize)
	s.mcp.AddTool(mcp.NewTool(ToolStatus,
		mcp.WithDescription("Report the processing status of a document."),
		mcp.WithReadOnlyHintAnnotation(true),
		documentArg,
	), s.status)
	s.mcp.AddTool(mcp.NewTool(ToolReprocess,
		mcp.WithDescription("Discard the stored result of a document and schedule a new run."),
		documentArg,
	), s.reprocess)
	return s
}

// MCP returns the underlying server, e.g. for other transports.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until ctx is done or the input stream ends.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) summarize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := documentID(req)
	if errResult != nil {
		return errResult, nil
	}
	result, err := s.summarizer.Summarize(ctx, id)
	if err != nil {
		return s.toolError(ToolSummarize, id, err), nil
	}
	return jsonResult(result)
}

func (s *Server) status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := documentID(req)
	if errResult != nil {
		return errResult, nil
	}
	doc, err := s.reader.GetByID(ctx, id)
	if err != nil {
		return s.toolError(ToolStatus, id, err), nil
	}
	return jsonResult(map[string]any{
		"id":            doc.ID,
		"original_name": doc.OriginalName,
		"status":        doc.Status,
		"error":         doc.Error,
		"uploaded_at":   doc.UploadedAt,
		"processed_at":  doc.ProcessedAt,
	})
}

func (s *Server) reprocess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := documentID(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.summarizer.Reprocess(ctx, id); err != nil {
		return s.toolError(ToolReprocess, id, err), nil
	}
	return jsonResult(map[string]string{"id": id, "status": string(domain.StatusUploaded)})
}

func documentID(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	raw, err := req.RequireString(argDocumentID)
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s must be a UUID: %v", argDocumentID, err))
	}
	return id.String(), nil
}

// toolError reports use case failures as tool results so the client model can read them.
func (s *Server) toolError(tool, documentID string, err error) *mcp.CallToolResult {
	level := slog.LevelWarn
	if !domain.IsKind(err, domain.ErrDocumentNotFound) && !domain.IsKind(err, domain.ErrInvalidInput) && !domain.IsKind(err, domain.ErrConflict) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "mcp_tool_failed", "tool", tool, "document_id", documentID, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

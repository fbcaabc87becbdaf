package httpadapter

import (
	"context"
	"net/http"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"golang.org/x/net/websocket"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// progressStream upgrades to a WebSocket and relays progress events for one
// document (file_id) or for all documents. The stream ends when the client
// goes away or the hub drops a subscriber that cannot keep up.
func (rt *Router) progressStream(w http.ResponseWriter, r *http.Request) {
	var fileID *openapi_types.UUID
	if err := runtime.BindQueryParameter("form", true, false, "file_id", r.URL.Query(), &fileID); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "bind file_id", err))
		return
	}
	documentID := ""
	if fileID != nil {
		documentID = fileID.String()
	}

	server := websocket.Server{
		// Non-browser clients send no Origin.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			rt.relayProgress(r.Context(), conn, documentID)
		},
	}
	server.ServeHTTP(w, r)
}

func (rt *Router) relayProgress(ctx context.Context, conn *websocket.Conn, documentID string) {
	defer conn.Close()

	sub := rt.deps.Progress.Subscribe(documentID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	rt.logger.Debug("progress_stream_opened", "document_id", documentID)
	defer rt.logger.Debug("progress_stream_closed", "document_id", documentID)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, event); err != nil {
				return
			}
		}
	}
}

package progress

import (
	"context"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

// Fanout hands every event to each publisher in order. Nil entries are skipped,
// so optional publishers can be listed unconditionally.
type Fanout []ports.ProgressPublisher

func (f Fanout) Publish(ctx context.Context, event domain.ProgressEvent) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}

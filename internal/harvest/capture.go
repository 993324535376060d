package harvest

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// captureHandler records log lines emitted while an item is processed so
// they can be attached to the item. Attributes are not kept.
type captureHandler struct {
	level slog.Leveler
	mu    *sync.Mutex
	logs  *[]models.HarvestLog
}

func newCaptureHandler(level slog.Leveler) *captureHandler {
	return &captureHandler{level: level, mu: &sync.Mutex{}, logs: &[]models.HarvestLog{}}
}

func (h *captureHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *captureHandler) Handle(_ context.Context, rec slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.logs = append(*h.logs, models.HarvestLog{
		Level:   strings.ToLower(rec.Level.String()),
		Message: rec.Message,
	})
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// Logs returns a copy of the captured lines.
func (h *captureHandler) Logs() []models.HarvestLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HarvestLog(nil), *h.logs...)
}

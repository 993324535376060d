package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

const (
	eventBuffer  = 32
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Event is a job lifecycle notification pushed to /events subscribers.
type Event struct {
	Type     string           `json:"type"`
	JobID    string           `json:"job_id"`
	SourceID string           `json:"source_id"`
	Slug     string           `json:"slug"`
	Backend  string           `json:"backend"`
	Status   models.JobStatus `json:"status"`
	Items    int              `json:"items"`
	Failed   int              `json:"failed"`
	At       time.Time        `json:"at"`
}

// Event types.
const (
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
)

// Hub fans job events out to websocket subscribers. Its JobStarted and
// JobFinished methods are harvest hooks.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[chan Event]struct{}), logger: logger}
}

// JobStarted publishes a job.started event.
func (h *Hub) JobStarted(_ context.Context, src *models.HarvestSource, job *models.HarvestJob) {
	h.publish(newEvent(EventJobStarted, src, job))
}

// JobFinished publishes a job.finished event.
func (h *Hub) JobFinished(_ context.Context, src *models.HarvestSource, job *models.HarvestJob) {
	h.publish(newEvent(EventJobFinished, src, job))
}

func newEvent(typ string, src *models.HarvestSource, job *models.HarvestJob) Event {
	return Event{
		Type:     typ,
		JobID:    job.ID,
		SourceID: src.ID,
		Slug:     src.Slug,
		Backend:  src.Backend,
		Status:   job.Status,
		Items:    len(job.Items),
		Failed:   job.CountItems(models.ItemFailed),
		At:       time.Now().UTC(),
	}
}

// publish never blocks; slow subscribers miss events.
func (h *Hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("dropping event for slow subscriber", "type", e.Type, "job_id", e.JobID)
		}
	}
}

func (h *Hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	// The subscription exists before the handshake completes.
	events, unsubscribe := s.hub.subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("event subscriber gone", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

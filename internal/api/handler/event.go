package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
)

// keepaliveInterval is how often an idle event stream sends a comment line.
var keepaliveInterval = 30 * time.Second

// EventHandler handles event-related HTTP requests.
type EventHandler struct {
	eventSvc *service.EventService
	logger   *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventSvc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventSvc: eventSvc,
		logger:   logger,
	}
}

// EventListResponse contains paginated event list.
type EventListResponse struct {
	Events  []domain.Event `json:"events"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// List handles GET /api/v1/events
// Query parameters:
//   - type: filter by event type (item_updated, log, job_finished, ...)
//   - job_id: filter by job
//   - start_time: filter events after this time (RFC3339)
//   - end_time: filter events before this time (RFC3339)
//   - search: search in log text
//   - limit: max events to return (default 50, max 200)
//   - offset: pagination offset
//   - historical: if "true", query SQLite instead of ring buffer
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.EventQuery{
		Limit:  queryInt(r, "limit", 50, 1),
		Offset: queryInt(r, "offset", 0, 0),
	}

	if t := q.Get("type"); t != "" {
		eventType := domain.EventType(t)
		query.Filter.Type = &eventType
	}
	query.Filter.JobID = domain.JobID(q.Get("job_id"))
	query.Filter.SearchText = q.Get("search")
	if startTime := q.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.Filter.StartTime = &t
		}
	}
	if endTime := q.Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.Filter.EndTime = &t
		}
	}

	var result *domain.EventQueryResult
	var err error
	if q.Get("historical") == "true" {
		result, err = h.eventSvc.QueryHistorical(r.Context(), query)
	} else {
		result, err = h.eventSvc.Query(r.Context(), query)
	}
	if err != nil {
		h.logger.Error("failed to query events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	writeJSON(w, http.StatusOK, EventListResponse{
		Events:  result.Events,
		Total:   result.Total,
		Limit:   query.Limit,
		Offset:  query.Offset,
		HasMore: result.HasMore,
	})
}

// RecentEventsResponse wraps the events array.
type RecentEventsResponse struct {
	Events []domain.Event `json:"events"`
}

// Recent handles GET /api/v1/events/recent
// Returns the most recent N events (default 50), newest first.
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", 50, 1)
	if n > 200 {
		n = 200
	}
	writeJSON(w, http.StatusOK, RecentEventsResponse{Events: h.eventSvc.GetRecent(n)})
}

// Stats handles GET /api/v1/events/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eventSvc.Stats())
}

// Stream handles GET /api/v1/events/stream
// Server-Sent Events endpoint. Each message carries the event type as the
// SSE event name and the sequence number as its id. A client that reconnects
// with Last-Event-ID (or ?since=) first receives the buffered events it
// missed.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before reading the backlog so nothing falls in between.
	subID, eventCh := h.eventSvc.Subscribe()
	defer h.eventSvc.Unsubscribe(subID)

	h.logger.Info("SSE client connected", "subscriber_id", subID, "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)

	var last uint64
	if since, ok := resumePoint(r); ok {
		last = since
		for _, event := range h.eventSvc.Since(since) {
			if !h.send(w, event) {
				return
			}
			last = event.Seq
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subID)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			var sent bool
			if last, sent = h.deliver(w, last, event); !sent {
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// deliver sends event unless it was already sent, first replaying from the
// ring buffer any events between last and event that the subscriber channel
// dropped. It returns the new last sequence number and false when the client
// is gone.
func (h *EventHandler) deliver(w http.ResponseWriter, last uint64, event domain.Event) (uint64, bool) {
	if event.Seq <= last {
		return last, true
	}
	if last > 0 && event.Seq > last+1 {
		for _, missed := range h.eventSvc.Since(last) {
			if missed.Seq >= event.Seq {
				break
			}
			if !h.send(w, missed) {
				return last, false
			}
			last = missed.Seq
		}
	}
	if !h.send(w, event) {
		return last, false
	}
	return event.Seq, true
}

// send writes one SSE message. It reports false when the client is gone.
func (h *EventHandler) send(w http.ResponseWriter, event domain.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to serialize event", "event_id", event.ID, "error", err)
		return true
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data)
	return err == nil
}

func resumePoint(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("since")
	}
	if v == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Types handles GET /api/v1/events/types
func (h *EventHandler) Types(w http.ResponseWriter, r *http.Request) {
	types := []string{
		string(domain.EventItemUpdated),
		string(domain.EventLog),
		string(domain.EventJobFinished),
		string(domain.EventJobAdded),
		string(domain.EventJobRemoved),
		string(domain.EventQueueStarted),
		string(domain.EventQueueFinished),
	}
	writeJSON(w, http.StatusOK, map[string][]string{"types": types})
}

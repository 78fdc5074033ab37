package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// EventServiceConfig configures the event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 1000
	RingBufferSize int

	// SubscriberBuffer is the channel capacity of each subscriber.
	// Default: 256
	SubscriberBuffer int

	// PersistToSQLite enables SQLite persistence of lifecycle events.
	PersistToSQLite bool

	// SQLitePath is the path to the SQLite database file.
	SQLitePath string

	// RetentionDays is how long to keep events in SQLite (0 = forever).
	RetentionDays int
}

// DefaultEventServiceConfig returns sensible defaults.
func DefaultEventServiceConfig() EventServiceConfig {
	return EventServiceConfig{
		RingBufferSize:   1000,
		SubscriberBuffer: 256,
		PersistToSQLite:  false,
		RetentionDays:    30,
	}
}

// EventService is the event channel. Events are numbered in emission
// order, kept in an in-memory ring buffer, fanned out to subscribers and
// optionally persisted to SQLite.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	// Ring buffer for recent events. mu also orders delivery to subscribers.
	mu     sync.RWMutex
	events []domain.Event
	head   int    // Next write position
	count  int    // Number of events in buffer
	seq    uint64 // Last sequence number assigned

	db *sql.DB

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) (*EventService, error) {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &EventService{
		cfg:         cfg,
		logger:      logger,
		events:      make([]domain.Event, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Event),
	}

	if cfg.PersistToSQLite && cfg.SQLitePath != "" {
		if err := svc.initSQLite(); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		logger.Info("event persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

func (s *EventService) initSQLite() error {
	db, err := sql.Open("sqlite", s.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			job_id TEXT,
			timestamp DATETIME NOT NULL,
			update_json TEXT,
			text TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_job ON events(job_id);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the event database.
func (s *EventService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Emit records an event and delivers it to every subscriber.
func (s *EventService) Emit(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.seq++
	event.Seq = s.seq
	if event.ID == "" {
		event.ID = domain.EventID(fmt.Sprintf("evt_%d_%d", event.Timestamp.UnixNano(), event.Seq))
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.RingBufferSize
	if s.count < s.cfg.RingBufferSize {
		s.count++
	}
	s.notifySubscribers(event)
	s.mu.Unlock()

	if s.db != nil && persistable(event) {
		s.persistEvent(event)
	}

	level := slog.LevelInfo
	if isProgress(event) {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "event emitted",
		"event_id", event.ID,
		"seq", event.Seq,
		"type", event.Type,
		"job_id", event.JobID,
	)
}

// isProgress reports whether event is a progress tick rather than a change
// of status.
func isProgress(event domain.Event) bool {
	return event.Type == domain.EventItemUpdated && event.Update != nil && event.Update.Status == nil
}

func persistable(event domain.Event) bool {
	return !isProgress(event)
}

func (s *EventService) persistEvent(event domain.Event) {
	var update sql.NullString
	if event.Update != nil {
		data, err := json.Marshal(event.Update)
		if err == nil {
			update = sql.NullString{String: string(data), Valid: true}
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, seq, type, job_id, timestamp, update_json, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(event.ID), event.Seq, string(event.Type), string(event.JobID), event.Timestamp, update, event.Text)

	if err != nil {
		s.logger.Warn("failed to persist event", "event_id", event.ID, "error", err)
	}
}

// Query returns buffered events matching the filter, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	query.Limit = clampLimit(query.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	allEvents := make([]domain.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		if matchesFilter(event, query.Filter) {
			allEvents = append(allEvents, event)
		}
	}

	total := len(allEvents)
	start := query.Offset
	if start >= total {
		return &domain.EventQueryResult{
			Events:  []domain.Event{},
			Total:   total,
			HasMore: false,
		}, nil
	}

	end := start + query.Limit
	if end > total {
		end = total
	}

	return &domain.EventQueryResult{
		Events:  allEvents[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical queries persisted events, newest first.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.db == nil {
		return &domain.EventQueryResult{Events: []domain.Event{}}, nil
	}

	query.Limit = clampLimit(query.Limit)

	var conditions []string
	var args []interface{}

	if query.Filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*query.Filter.Type))
	}
	if query.Filter.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, string(query.Filter.JobID))
	}
	if query.Filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *query.Filter.StartTime)
	}
	if query.Filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *query.Filter.EndTime)
	}
	if query.Filter.SearchText != "" {
		conditions = append(conditions, "text LIKE ?")
		args = append(args, "%"+query.Filter.SearchText+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM events %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, seq, type, job_id, timestamp, update_json, text
		FROM events %s
		ORDER BY timestamp DESC, seq DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, query.Limit)
	for rows.Next() {
		var (
			event  domain.Event
			jobID  sql.NullString
			update sql.NullString
			text   sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Seq, &event.Type, &jobID, &event.Timestamp, &update, &text); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.JobID = domain.JobID(jobID.String)
		event.Text = text.String
		if update.Valid && update.String != "" {
			var u domain.JobUpdate
			if err := json.Unmarshal([]byte(update.String), &u); err == nil {
				event.Update = &u
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// GetRecent returns the most recent n events, newest first.
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := n
	if count > s.count {
		count = s.count
	}

	result := make([]domain.Event, 0, count)
	for i := 0; i < count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		result = append(result, event)
	}

	return result
}

// Since returns buffered events with a sequence number above seq, oldest
// first. Consumers use it to catch up after reconnecting.
func (s *EventService) Since(seq uint64) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Event
	for i := s.count - 1; i >= 0; i-- {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		if event := s.events[idx]; event.Seq > seq {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event domain.Event, filter domain.EventFilter) bool {
	if filter.Type != nil && event.Type != *filter.Type {
		return false
	}
	if filter.JobID != "" && event.JobID != filter.JobID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SearchText != "" && !strings.Contains(strings.ToLower(event.Text), strings.ToLower(filter.SearchText)) {
		return false
	}
	return true
}

// Subscribe registers a subscriber. Events emitted afterwards are delivered
// in order. The caller must call Unsubscribe when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, s.cfg.SubscriberBuffer)
	s.subscribers[id] = ch

	s.logger.Info("event subscriber added", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
		s.logger.Info("event subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	}
}

// notifySubscribers never blocks: a subscriber whose buffer is full misses
// the event.
func (s *EventService) notifySubscribers(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("event subscriber buffer full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// EventStats describes the event service.
type EventStats struct {
	BufferSize    int    `json:"buffer_size"`
	BufferUsed    int    `json:"buffer_used"`
	LastSeq       uint64 `json:"last_seq"`
	Subscribers   int    `json:"subscribers"`
	SQLiteEnabled bool   `json:"sqlite_enabled"`
}

// Stats returns statistics about the event service.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	bufferUsed := s.count
	lastSeq := s.seq
	s.mu.RUnlock()

	return EventStats{
		BufferSize:    s.cfg.RingBufferSize,
		BufferUsed:    bufferUsed,
		LastSeq:       lastSeq,
		Subscribers:   s.SubscriberCount(),
		SQLiteEnabled: s.db != nil,
	}
}

// CleanupOldEvents removes events older than the retention period from SQLite.
func (s *EventService) CleanupOldEvents(ctx context.Context) error {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("cleaned up old events", "deleted", deleted, "cutoff", cutoff)
	}

	return nil
}

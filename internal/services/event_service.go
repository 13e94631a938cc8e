package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/johnngondi/vito/internal/models"
	"github.com/johnngondi/vito/internal/websocket"
	"github.com/rs/zerolog/log"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, serverID *string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	StatusChanged(ctx context.Context, change models.StatusChange)
}

// Broadcaster delivers a message to the subscribers of a server.
type Broadcaster interface {
	BroadcastTo(serverID string, message []byte)
}

// EventService records events and pushes status changes to subscribers.
type EventService struct {
	db  *sql.DB
	hub Broadcaster
}

// NewEventService creates a new EventService. hub may be nil.
func NewEventService(db *sql.DB, hub Broadcaster) *EventService {
	return &EventService{db: db, hub: hub}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, serverID *string) error {
	return s.insert(ctx, models.Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Level:    level,
		Message:  message,
		ServerID: serverID,
	})
}

func (s *EventService) insert(ctx context.Context, e models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, server_id, resource_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Type, e.Level, e.Message, e.ServerID, e.ResourceID, e.CreatedAt)
	return err
}

// GetRecentEvents retrieves the most recent events from the database.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, level, message, server_id, resource_id, created_at FROM events ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		var serverID sql.NullString
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &serverID, &event.ResourceID, &event.CreatedAt); err != nil {
			return nil, err
		}
		if serverID.Valid {
			event.ServerID = &serverID.String
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// StatusChanged records a status change and pushes it to the server's subscribers.
func (s *EventService) StatusChanged(ctx context.Context, change models.StatusChange) {
	level := "info"
	message := fmt.Sprintf("%s %s is now %s", change.Kind, change.ResourceID, change.Status)
	if change.Error != "" {
		level = "error"
		message += ": " + change.Error
	}
	var serverID *string
	if change.ServerID != "" {
		serverID = &change.ServerID
	}
	err := s.insert(ctx, models.Event{
		ID:         uuid.New().String(),
		Type:       change.Kind + "." + change.Status,
		Level:      level,
		Message:    message,
		ServerID:   serverID,
		ResourceID: change.ResourceID,
	})
	if err != nil {
		log.Error().Err(err).Str("resource_id", change.ResourceID).Msg("Failed to record status change")
	}

	if s.hub == nil || change.ServerID == "" {
		return
	}
	payload, err := json.Marshal(websocket.NewStatusChangedMessage(change))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode status change")
		return
	}
	s.hub.BroadcastTo(change.ServerID, payload)
}

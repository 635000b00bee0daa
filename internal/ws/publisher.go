package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/datatypes"

	"go_sitegen/internal/events"
	"go_sitegen/internal/model"
)

var _ events.Publisher = (*Hub)(nil)

const eventName = "project:event"

func projectRoom(projectID int) string {
	return fmt.Sprintf("project:%d", projectID)
}

// Publish writes the event to project_events, then broadcasts it to the project's room.
// Broadcast failure does not affect the main flow.
func (h *Hub) Publish(ctx context.Context, projectID int, eventType string, payload interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WebSocket] Failed to marshal payload: %v", err)
		return
	}

	event := model.ProjectEvent{
		ProjectID: projectID,
		EventType: eventType,
		Payload:   datatypes.JSON(payloadJSON),
	}
	if err := h.db.WithContext(ctx).Create(&event).Error; err != nil {
		log.Printf("[WebSocket] Failed to write event to database: %v", err)
		return
	}

	if h.server != nil {
		h.server.BroadcastToRoom("/", projectRoom(projectID), eventName, eventMessage(event))
	}
}

// EventsSince returns the project's events with id > lastEventID, oldest first
func (h *Hub) EventsSince(ctx context.Context, projectID int, lastEventID int64, limit int) ([]model.ProjectEvent, error) {
	var out []model.ProjectEvent
	err := h.db.WithContext(ctx).
		Where("project_id = ? AND id > ?", projectID, lastEventID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}
	return out, nil
}

func eventMessage(e model.ProjectEvent) map[string]interface{} {
	return map[string]interface{}{
		"eventId":   e.ID,
		"projectId": e.ProjectID,
		"type":      e.EventType,
		"data":      json.RawMessage(e.Payload),
		"createdAt": e.CreatedAt,
	}
}

package ws

import (
	"context"
	"log"
	"time"

	socketio "github.com/googollee/go-socket.io"

	"go_sitegen/internal/model"
)

const maxReplay = 500

// SubscribeData is sent by clients in subscribe:project
type SubscribeData struct {
	ProjectID   int   `json:"projectId"`
	LastEventID int64 `json:"lastEventId"`
}

// handleSubscribe joins the project room after an ownership check and
// replays events the client missed
func (h *Hub) handleSubscribe(s socketio.Conn, data SubscribeData) {
	claims, ok := userFromConn(s)
	if !ok {
		s.Emit("error", map[string]interface{}{"message": "unauthenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int64
	if err := h.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND user_id = ?", data.ProjectID, claims.UID).
		Count(&count).Error; err != nil {
		log.Printf("[WebSocket] Failed to check project ownership: %v", err)
		s.Emit("error", map[string]interface{}{"message": "failed to subscribe"})
		return
	}
	if count == 0 {
		s.Emit("error", map[string]interface{}{"message": "project not found"})
		return
	}

	s.Join(projectRoom(data.ProjectID))

	missed, err := h.EventsSince(ctx, data.ProjectID, data.LastEventID, maxReplay)
	if err != nil {
		log.Printf("[WebSocket] Failed to replay events: %v", err)
		return
	}
	for _, e := range missed {
		s.Emit(eventName, eventMessage(e))
	}
	log.Printf("[WebSocket] Client %s subscribed to project %d (replayed %d)", s.ID(), data.ProjectID, len(missed))
}

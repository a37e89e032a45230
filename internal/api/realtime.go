package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wuwenbin0122/evalboard/internal/realtime"
)

var realtimeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRealtimeStream relays change events to a websocket client. The
// kind and project query parameters narrow the stream; project defaults to
// the active one.
func (h *Handler) handleRealtimeStream(c *gin.Context) {
	filter := realtime.Filter{
		Kind:      realtime.Kind(strings.ToLower(strings.TrimSpace(c.Query("kind")))),
		ProjectID: strings.TrimSpace(c.Query("project")),
	}
	if filter.ProjectID == "" {
		filter.ProjectID = h.dashboard.Conversation.ProjectID()
	}

	conn, err := realtimeUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("realtime websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.logger.Debugw("realtime stream opened", "kind", string(filter.Kind), "project", filter.ProjectID)
	if err := realtime.Stream(c.Request.Context(), conn, h.dashboard.Feed(), filter); err != nil {
		h.logger.Warnw("realtime stream failed", "error", err)
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
	}
}

func (h *Handler) handleRealtimeStatus(c *gin.Context) {
	states := gin.H{}
	for _, kind := range []realtime.Kind{realtime.KindQuestion, realtime.KindNotification, realtime.KindCommunication} {
		states[string(kind)] = h.dashboard.RealtimeState(kind).String()
	}
	c.JSON(http.StatusOK, gin.H{
		"projectId": h.dashboard.Conversation.ProjectID(),
		"channels":  states,
	})
}

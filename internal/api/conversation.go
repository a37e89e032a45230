package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/evalboard/internal/store"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	conv := h.dashboard.Conversation.Conversation()
	response := gin.H{
		"conversation":  conv,
		"historyLoaded": h.dashboard.Conversation.HistoryLoaded(),
		"sending":       h.dashboard.Conversation.Sending(),
		"unread":        h.dashboard.Conversation.Unread(),
	}
	if err := h.dashboard.Conversation.Err(); err != nil {
		response["lastError"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if _, ok := h.requireProject(c); !ok {
		return
	}

	reply, err := h.dashboard.Conversation.SendMessage(c.Request.Context(), req.Content)
	if err != nil {
		h.writeStoreError(c, "failed to send message", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"reply":        reply,
		"conversation": h.dashboard.Conversation.Conversation(),
	})
}

func (h *Handler) handleClearConversation(c *gin.Context) {
	if err := h.dashboard.Conversation.ClearConversation(c.Request.Context()); err != nil {
		h.writeStoreError(c, "failed to clear conversation", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleSavedConversation(c *gin.Context) {
	conv, ok := h.dashboard.Conversation.Saved(c.Param("projectId"))
	if !ok {
		writeError(c, http.StatusNotFound, "no saved conversation for project", store.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, conv)
}

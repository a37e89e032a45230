package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/internal/timeline"
)

type createQuestionRequest struct {
	Provider   string                `json:"provider"`
	Discipline models.Discipline     `json:"discipline"`
	Text       string                `json:"text"`
	Importance models.Importance     `json:"importance"`
	Status     models.QuestionStatus `json:"status"`
}

type updateQuestionRequest struct {
	Text       *string                `json:"text"`
	Discipline *models.Discipline     `json:"discipline"`
	Importance *models.Importance     `json:"importance"`
	Status     *models.QuestionStatus `json:"status"`
	Response   *string                `json:"response"`
}

type questionStatusRequest struct {
	Status models.QuestionStatus `json:"status"`
}

func (h *Handler) handleListQuestions(c *gin.Context) {
	response := gin.H{
		"projectId": h.dashboard.Questions.ProjectID(),
		"questions": h.dashboard.Questions.Questions(),
		"loading":   h.dashboard.Questions.Loading(),
	}
	if err := h.dashboard.Questions.Err(); err != nil {
		response["lastError"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) handleCreateQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	projectID, ok := h.requireProject(c)
	if !ok {
		return
	}

	created, err := h.dashboard.Questions.Create(c.Request.Context(), models.Question{
		ProjectID:  projectID,
		Provider:   strings.TrimSpace(req.Provider),
		Discipline: req.Discipline,
		Text:       strings.TrimSpace(req.Text),
		Importance: req.Importance,
		Status:     req.Status,
	})
	if err != nil {
		h.writeStoreError(c, "failed to create question", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) handleUpdateQuestion(c *gin.Context) {
	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	q, ok := h.dashboard.Questions.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "question not found", store.ErrNotFound)
		return
	}
	if req.Text != nil {
		q.Text = strings.TrimSpace(*req.Text)
	}
	if req.Discipline != nil {
		q.Discipline = *req.Discipline
	}
	if req.Importance != nil {
		q.Importance = *req.Importance
	}
	if req.Response != nil {
		q.Response = strings.TrimSpace(*req.Response)
	}
	if req.Status != nil {
		q.Status = *req.Status
	}

	updated, err := h.dashboard.Questions.Update(c.Request.Context(), q)
	if err != nil {
		h.writeStoreError(c, "failed to update question", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) handleSetQuestionStatus(c *gin.Context) {
	var req questionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	updated, err := h.dashboard.Questions.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.writeStoreError(c, "failed to change question status", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(c *gin.Context) {
	if err := h.dashboard.Questions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, "failed to delete question", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleQuestionStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"projectId": h.dashboard.Questions.ProjectID(),
		"stats":     timeline.DisciplineStats(h.dashboard.Questions.Questions()),
	})
}

func (h *Handler) handleListCommunications(c *gin.Context) {
	response := gin.H{"communications": h.dashboard.Communications.Communications()}
	if err := h.dashboard.Communications.Err(); err != nil {
		response["lastError"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) handleCreateCommunication(c *gin.Context) {
	var req models.Communication
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	projectID, ok := h.requireProject(c)
	if !ok {
		return
	}
	req.ProjectID = projectID

	created, err := h.dashboard.Communications.Create(c.Request.Context(), req)
	if err != nil {
		h.writeStoreError(c, "failed to log communication", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) handleDeleteCommunication(c *gin.Context) {
	if err := h.dashboard.Communications.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, "failed to delete communication", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleTimeline(c *gin.Context) {
	filter := timeline.Filter{
		Provider: strings.TrimSpace(c.Query("provider")),
		Type:     strings.TrimSpace(c.Query("type")),
	}
	items := h.dashboard.Timeline(filter)
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.dashboard.Providers()})
}

func (h *Handler) handleListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.dashboard.Notifications.Notifications(),
		"unread":        h.dashboard.Notifications.UnreadCount(),
	})
}

func (h *Handler) handleMarkNotificationRead(c *gin.Context) {
	if err := h.dashboard.Notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.writeStoreError(c, "failed to mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.dashboard.Notifications.UnreadCount()})
}

func (h *Handler) handleMarkAllNotificationsRead(c *gin.Context) {
	if err := h.dashboard.Notifications.MarkAllRead(c.Request.Context()); err != nil {
		h.writeStoreError(c, "failed to mark notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.dashboard.Notifications.UnreadCount()})
}

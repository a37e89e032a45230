package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/app"
	"github.com/wuwenbin0122/evalboard/internal/batch"
	"github.com/wuwenbin0122/evalboard/internal/db"
	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/store"
	"github.com/wuwenbin0122/evalboard/services"
)

// Dependencies are the collaborators behind the HTTP surface. Drafts and
// Uploader may be nil; their routes then answer 503.
type Dependencies struct {
	Dashboard         *app.Dashboard
	Drafts            *services.DraftService
	Uploader          batch.Uploader
	UploadConcurrency int64
	Logger            *zap.SugaredLogger
}

type Handler struct {
	dashboard         *app.Dashboard
	drafts            *services.DraftService
	uploader          batch.Uploader
	uploadConcurrency int64
	logger            *zap.SugaredLogger

	uploadsMu sync.Mutex
	uploads   map[string]*uploadJob
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		dashboard:         deps.Dashboard,
		drafts:            deps.Drafts,
		uploader:          deps.Uploader,
		uploadConcurrency: deps.UploadConcurrency,
		logger:            logger,
		uploads:           make(map[string]*uploadJob),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	apiGroup.GET("/project", h.handleGetProject)
	apiGroup.PUT("/project", h.handleSetProject)

	conversation := apiGroup.Group("/conversation")
	conversation.GET("", h.handleGetConversation)
	conversation.POST("/messages", h.handleSendMessage)
	conversation.DELETE("", h.handleClearConversation)
	conversation.GET("/saved/:projectId", h.handleSavedConversation)

	questions := apiGroup.Group("/questions")
	questions.GET("", h.handleListQuestions)
	questions.POST("", h.handleCreateQuestion)
	questions.GET("/stats", h.handleQuestionStats)
	questions.PATCH("/:id", h.handleUpdateQuestion)
	questions.PATCH("/:id/status", h.handleSetQuestionStatus)
	questions.DELETE("/:id", h.handleDeleteQuestion)

	communications := apiGroup.Group("/communications")
	communications.GET("", h.handleListCommunications)
	communications.POST("", h.handleCreateCommunication)
	communications.DELETE("/:id", h.handleDeleteCommunication)

	apiGroup.GET("/timeline", h.handleTimeline)
	apiGroup.GET("/providers", h.handleProviders)

	notifications := apiGroup.Group("/notifications")
	notifications.GET("", h.handleListNotifications)
	notifications.POST("/:id/read", h.handleMarkNotificationRead)
	notifications.POST("/read-all", h.handleMarkAllNotificationsRead)

	modules := apiGroup.Group("/modules")
	modules.GET("", h.handleListModules)
	modules.GET("/:module", h.handleGetModule)
	modules.POST("/:module/viewed", h.handleModuleViewed)

	apiGroup.POST("/drafts", h.handleGenerateDraft)

	uploads := apiGroup.Group("/uploads")
	uploads.POST("", h.handleStartUpload)
	uploads.GET("/:id", h.handleGetUpload)
	uploads.DELETE("/:id/items/:itemId", h.handleCancelUploadItem)

	apiGroup.GET("/realtime", h.handleRealtimeStream)
	apiGroup.GET("/realtime/status", h.handleRealtimeStatus)
}

type setProjectRequest struct {
	ProjectID string `json:"projectId"`
	Immediate bool   `json:"immediate"`
}

func (h *Handler) handleGetProject(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"projectId":     h.dashboard.Signal.Current(),
		"activeProject": h.dashboard.Conversation.ProjectID(),
		"savedProjects": h.dashboard.Conversation.SavedProjects(),
	})
}

func (h *Handler) handleSetProject(c *gin.Context) {
	var req setProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	h.dashboard.SetProject(req.ProjectID, req.Immediate)

	status := http.StatusAccepted
	if req.Immediate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"projectId":     strings.TrimSpace(req.ProjectID),
		"activeProject": h.dashboard.Conversation.ProjectID(),
	})
}

func (h *Handler) handleListModules(c *gin.Context) {
	names := []string{store.ModuleChat, store.ModuleQA, store.ModuleCommunications, store.ModuleNotifications}
	states := make([]store.ModuleState, 0, len(names))
	for _, name := range names {
		states = append(states, h.dashboard.Modules.State(name))
	}
	c.JSON(http.StatusOK, gin.H{"modules": states})
}

func (h *Handler) handleGetModule(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.Modules.State(c.Param("module")))
}

func (h *Handler) handleModuleViewed(c *gin.Context) {
	module := c.Param("module")
	h.dashboard.MarkViewed(module)
	c.JSON(http.StatusOK, h.dashboard.Modules.State(module))
}

var errNoProject = errors.New("no active project selected")

// requireProject answers 409 when no project is active.
func (h *Handler) requireProject(c *gin.Context) (string, bool) {
	projectID := h.dashboard.Conversation.ProjectID()
	if projectID == "" {
		writeError(c, http.StatusConflict, errNoProject.Error(), store.ErrNoProject)
		return "", false
	}
	return projectID, true
}

func statusFromError(err error) int {
	var apiErr *services.APIError
	var remoteErr *store.RemoteError
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, models.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, batch.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, db.ErrConflict), errors.Is(err, store.ErrNoProject):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoApprovedQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotConfigured), errors.Is(err, services.ErrMissingAPIKey), errors.Is(err, services.ErrUploadsDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// writeStoreError picks the status from err itself.
func (h *Handler) writeStoreError(c *gin.Context, message string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warnw(message, "path", c.FullPath(), "error", err)
	}
	writeError(c, status, message, err)
}

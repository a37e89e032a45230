package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/evalboard/services"
)

var errDraftsDisabled = errors.New("draft generation is not configured")

type draftRequest struct {
	Provider     string `json:"provider"`
	Recipient    string `json:"recipient"`
	Sender       string `json:"sender"`
	Instructions string `json:"instructions"`
	Save         bool   `json:"save"`
}

// handleGenerateDraft bundles the active project's approved questions for
// one provider into an email draft. With save set the draft is also logged
// as a communication.
func (h *Handler) handleGenerateDraft(c *gin.Context) {
	if h.drafts == nil {
		writeError(c, http.StatusServiceUnavailable, errDraftsDisabled.Error(), errDraftsDisabled)
		return
	}

	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	projectID, ok := h.requireProject(c)
	if !ok {
		return
	}

	draft, err := h.drafts.Generate(c.Request.Context(), services.DraftRequest{
		ProjectID:    projectID,
		Provider:     req.Provider,
		Recipient:    req.Recipient,
		Sender:       req.Sender,
		Instructions: req.Instructions,
		Questions:    h.dashboard.Questions.Questions(),
	})
	if err != nil {
		h.writeStoreError(c, "failed to generate draft", err)
		return
	}

	response := gin.H{"draft": draft}
	if req.Save {
		saved, err := h.dashboard.Communications.Create(c.Request.Context(), h.drafts.Communication(draft))
		if err != nil {
			h.writeStoreError(c, "draft generated but could not be saved", err)
			return
		}
		response["communication"] = saved
	}

	c.JSON(http.StatusOK, response)
}

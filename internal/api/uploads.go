package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wuwenbin0122/evalboard/internal/batch"
)

const maxUploadMemory = 32 << 20

var (
	errUploadsDisabled = errors.New("document uploads are not configured")
	errUploadNotFound  = errors.New("upload batch not found")
	errNoFiles         = errors.New("at least one file is required")
)

// uploadJob is one batch started through the API. The batch runs in the
// background; its result is filled in once every item has settled.
type uploadJob struct {
	id        string
	projectID string
	items     []batch.Item
	batch     *batch.Batch
	done      chan struct{}

	mu     sync.Mutex
	result *batch.Result
	err    error
}

type uploadItemView struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Outcome batch.Outcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

func (j *uploadJob) view() gin.H {
	j.mu.Lock()
	result := j.result
	runErr := j.err
	j.mu.Unlock()

	items := make([]uploadItemView, 0, len(j.items))
	for _, item := range j.items {
		v := uploadItemView{ID: item.ID, Name: item.Name, Outcome: j.batch.Outcome(item.ID)}
		if result != nil {
			if err, ok := result.Errors[item.ID]; ok && err != nil {
				v.Error = err.Error()
			}
		}
		items = append(items, v)
	}

	out := gin.H{
		"id":        j.id,
		"projectId": j.projectID,
		"items":     items,
		"done":      result != nil,
	}
	if result != nil {
		out["summary"] = result.String()
		out["processed"] = result.Processed
		out["cancelled"] = result.Cancelled
		out["failed"] = result.Failed
	}
	if runErr != nil {
		out["error"] = runErr.Error()
	}
	return out
}

func (h *Handler) handleStartUpload(c *gin.Context) {
	if h.uploader == nil {
		writeError(c, http.StatusServiceUnavailable, errUploadsDisabled.Error(), errUploadsDisabled)
		return
	}
	projectID, ok := h.requireProject(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid multipart payload", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		writeError(c, http.StatusBadRequest, errNoFiles.Error(), errNoFiles)
		return
	}

	items := make([]batch.Item, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(c, http.StatusBadRequest, "failed to read upload", err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(c, http.StatusBadRequest, "failed to read upload", err)
			return
		}
		items = append(items, batch.Item{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	job := &uploadJob{
		id:        uuid.NewString(),
		projectID: projectID,
		items:     items,
		batch: batch.New(h.uploader, items, batch.Options{
			Concurrency: h.uploadConcurrency,
			Logger:      h.logger.With("batch", projectID),
		}),
		done: make(chan struct{}),
	}

	h.uploadsMu.Lock()
	h.uploads[job.id] = job
	h.uploadsMu.Unlock()

	go h.runUpload(job)

	c.JSON(http.StatusAccepted, job.view())
}

func (h *Handler) runUpload(job *uploadJob) {
	defer close(job.done)

	result, err := job.batch.Run(context.Background())

	job.mu.Lock()
	job.result = &result
	job.err = err
	job.mu.Unlock()

	switch {
	case err != nil:
		h.logger.Warnw("upload batch failed", "batch", job.id, "project", job.projectID, "error", err)
	case result.Processed == 0:
		// every item was cancelled; nothing to report
	default:
		h.logger.Infow("upload batch finished", "batch", job.id, "project", job.projectID, "summary", result.String())
	}
}

func (h *Handler) lookupUpload(id string) (*uploadJob, bool) {
	h.uploadsMu.Lock()
	defer h.uploadsMu.Unlock()
	job, ok := h.uploads[id]
	return job, ok
}

func (h *Handler) handleGetUpload(c *gin.Context) {
	job, ok := h.lookupUpload(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, errUploadNotFound.Error(), errUploadNotFound)
		return
	}
	c.JSON(http.StatusOK, job.view())
}

func (h *Handler) handleCancelUploadItem(c *gin.Context) {
	job, ok := h.lookupUpload(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, errUploadNotFound.Error(), errUploadNotFound)
		return
	}

	itemID := c.Param("itemId")
	cancelled, err := job.batch.Cancel(itemID)
	if err != nil {
		h.writeStoreError(c, fmt.Sprintf("failed to cancel item %s", itemID), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled, "outcome": job.batch.Outcome(itemID)})
}

// Close cancels every upload still in flight and waits for the batches to
// settle.
func (h *Handler) Close() {
	h.uploadsMu.Lock()
	jobs := make([]*uploadJob, 0, len(h.uploads))
	for _, job := range h.uploads {
		jobs = append(jobs, job)
	}
	h.uploadsMu.Unlock()

	for _, job := range jobs {
		job.batch.CancelAll()
		<-job.done
	}
}

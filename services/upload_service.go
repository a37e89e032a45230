package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/batch"
	"github.com/wuwenbin0122/evalboard/internal/utils"
)

var ErrUploadsDisabled = errors.New("services: upload endpoint is not configured")

// UploadService sends submission documents to the document store as
// multipart requests. It implements batch.Uploader.
type UploadService struct {
	endpoint string
	client   httpDoer
	logger   *zap.SugaredLogger
}

var _ batch.Uploader = (*UploadService)(nil)

func NewUploadService(cfg utils.UploadConfig, logger *zap.SugaredLogger) *UploadService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UploadService{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		client:   newHTTPClientWithTimeout(cfg.Timeout),
		logger:   logger,
	}
}

func (s *UploadService) Upload(ctx context.Context, item batch.Item) error {
	if s.endpoint == "" {
		return ErrUploadsDisabled
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("project_id", item.ProjectID)
	_ = writer.WriteField("item_id", item.ID)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, item.Name))
	contentType := item.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create upload part: %w", err)
	}
	if _, err := part.Write(item.Data); err != nil {
		return fmt.Errorf("write upload part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalise upload body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("upload %s: %w", item.Name, err)
	}
	defer response.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return buildAPIError(response.StatusCode, respBody)
	}

	s.logger.Debugw("document uploaded", "item", item.ID, "project", item.ProjectID, "bytes", len(item.Data))
	return nil
}

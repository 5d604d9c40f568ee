package handlers

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/queue"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
)

// DefaultDriveDownloadURL fetches a publicly shared Drive file by id
const DefaultDriveDownloadURL = "https://drive.google.com/uc?export=download&id=%s"

// GDriveHandler imports metadata documents from Google Drive share links
type GDriveHandler struct {
	workerPool  *queue.WorkerPool
	store       *storage.LocalStorage
	client      *http.Client
	downloadURL string
	maxBytes    int64
}

// NewGDriveHandler creates a new Google Drive handler
func NewGDriveHandler(workerPool *queue.WorkerPool, store *storage.LocalStorage, maxSizeMB int) *GDriveHandler {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &GDriveHandler{
		workerPool:  workerPool,
		store:       store,
		client:      &http.Client{Timeout: 60 * time.Second},
		downloadURL: DefaultDriveDownloadURL,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Phase string `json:"phase"`
	Force bool   `json:"force"`
}

// Handle processes POST /records/gdrive
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body", "ERR_INVALID_BODY")
	}

	if req.URL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "URL is required", "ERR_NO_URL")
	}
	if req.ID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "id is required", "ERR_NO_ID")
	}

	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid Google Drive URL", "ERR_INVALID_URL")
	}

	log := logrus.WithFields(logrus.Fields{"record_id": req.ID, "drive_file": fileID})
	log.Info("Downloading metadata from Google Drive")

	resp, err := h.client.Get(fmt.Sprintf(h.downloadURL, fileID))
	if err != nil {
		log.WithError(err).Error("Failed to download from Google Drive")
		return errorJSON(c, fiber.StatusBadGateway, "Failed to download file from Google Drive", "ERR_DOWNLOAD_FAILED")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorJSON(c, fiber.StatusBadRequest, "File not accessible (may be private or doesn't exist)", "ERR_FILE_NOT_ACCESSIBLE")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return errorJSON(c, fiber.StatusBadGateway, "Failed to read downloaded file", "ERR_DOWNLOAD_FAILED")
	}
	if int64(len(data)) > h.maxBytes {
		return errorJSON(c, fiber.StatusBadRequest, "File too large", "ERR_FILE_TOO_LARGE")
	}

	return importRecord(c, h.workerPool, h.store, req.ID, data, req.Phase, req.Force)
}

var (
	driveFilePath = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveIDParam  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBareID   = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePath.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// https://drive.google.com/open?id={ID}
	if matches := driveIDParam.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Direct ID (25-40 characters)
	if matches := driveBareID.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}

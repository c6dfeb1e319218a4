package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	apperrors "github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// maxDownloadBytes caps a single document download. Scanned contracts run
// tens of MB; anything past this is almost certainly not a PDF we can handle.
const maxDownloadBytes = 200 << 20

// DriveClient downloads drive items from the external document store over
// its Graph-style content endpoint:
//
//	GET {base}/drives/{driveID}/items/{itemID}/content
type DriveClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     *logger.Logger
}

// NewDriveClient creates a document store client from configuration
func NewDriveClient(cfg config.SourceConfig, log *logger.Logger) *DriveClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DriveClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		log:     log.WithComponent("drive-client"),
	}
}

// Fetch implements Fetcher
func (c *DriveClient) Fetch(ctx context.Context, ref domain.SourceRef) ([]byte, error) {
	if ref.DriveID == "" || ref.ItemID == "" {
		return nil, apperrors.BadRequest("source reference needs drive_id and item_id")
	}

	url := fmt.Sprintf("%s/drives/%s/items/%s/content", c.baseURL, ref.DriveID, ref.ItemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "DOWNLOAD_FAILED", "failed to build download request", http.StatusInternalServerError)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "DOWNLOAD_FAILED", "document download failed", http.StatusBadGateway)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound(fmt.Sprintf("drive item %s", ref.ItemID))
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.New("DOWNLOAD_FAILED",
			fmt.Sprintf("document store returned status %d", resp.StatusCode), http.StatusBadGateway)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(err, "DOWNLOAD_FAILED", "reading document body failed", http.StatusBadGateway)
	}
	if len(data) > maxDownloadBytes {
		return nil, apperrors.BadRequest("document exceeds the maximum download size")
	}

	c.log.Debug().
		Str("item_id", ref.ItemID).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("document downloaded")

	return data, nil
}

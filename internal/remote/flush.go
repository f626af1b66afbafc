package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prudhvinik1/floorsync/internal/auth"
	"github.com/prudhvinik1/floorsync/internal/models"
)

// FlushClient performs the one-way best-effort flush of the pending queue at
// application teardown. The non-guarantee is the contract: no response is
// consumed, nothing is retried, and callers must not depend on delivery.
type FlushClient struct {
	url      string
	minter   *auth.TokenMinter
	deviceID string
	userID   string
	client   *http.Client
	logger   *log.Logger
}

type flushPayload struct {
	Operations      []models.SyncOperation `json:"operations"`
	DeviceID        string                 `json:"deviceId"`
	TimestampMillis int64                  `json:"timestampMillis"`
}

func NewFlushClient(url string, minter *auth.TokenMinter, deviceID, userID string, logger *log.Logger) *FlushClient {
	if logger == nil {
		logger = log.New(os.Stderr, "[flush] ", log.LstdFlags)
	}
	return &FlushClient{
		url:      url,
		minter:   minter,
		deviceID: deviceID,
		userID:   userID,
		client:   &http.Client{Timeout: 2 * time.Second},
		logger:   logger,
	}
}

// Flush posts the operations to the emergency endpoint and returns without
// inspecting the response. Errors are logged only.
func (c *FlushClient) Flush(ops []models.SyncOperation) {
	if c.url == "" || len(ops) == 0 {
		return
	}

	payload := flushPayload{
		Operations:      ops,
		DeviceID:        c.deviceID,
		TimestampMillis: time.Now().UnixMilli(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Printf("Failed to marshal flush payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Printf("Failed to build flush request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.minter != nil {
		if token, err := c.minter.Mint(c.deviceID, c.userID); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Printf("Emergency flush of %d operations failed: %v", len(ops), err)
		return
	}
	resp.Body.Close()
	c.logger.Printf("Emergency flush of %d operations sent", len(ops))
}

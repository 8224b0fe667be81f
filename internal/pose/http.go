package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// healthPollInterval is how often Init probes a service that is not up yet.
const healthPollInterval = 500 * time.Millisecond

// HTTPEstimator posts frames to a pose inference service. Frames go to the
// base URL as a multipart "file" upload; readiness is probed at /health.
type HTTPEstimator struct {
	url    string
	client *http.Client
}

// NewHTTPEstimator creates an estimator for the service at url. A nil client
// uses one with a 10 second timeout.
func NewHTTPEstimator(url string, client *http.Client) *HTTPEstimator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPEstimator{
		url:    strings.TrimRight(url, "/"),
		client: client,
	}
}

// Init waits until the service reports healthy or ctx ends.
func (e *HTTPEstimator) Init(ctx context.Context) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		err := e.CheckHealth(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("pose service not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// CheckHealth probes the service once.
func (e *HTTPEstimator) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Estimate uploads frame and decodes the returned poses.
func (e *HTTPEstimator) Estimate(ctx context.Context, frame *gocv.Mat) ([]Pose, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := result.err(); err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	return result.Poses, nil
}

// Close releases idle connections.
func (e *HTTPEstimator) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

package iso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/0xDracarys/lfs-builder/internal/models"
)

// RemoteClient talks to the remote ISO generation backend.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

// NewRemoteClient creates a client for the given backend URL. An empty URL
// means the backend is unconfigured and every call fails fast.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a backend URL is set.
func (c *RemoteClient) Configured() bool {
	return c.baseURL != ""
}

// Healthy probes GET /health; any 2xx answer counts as available.
func (c *RemoteClient) Healthy(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GenerateRequest is the wire payload for POST /api/iso/generate.
type GenerateRequest struct {
	BuildID    string            `json:"buildId"`
	Label      string            `json:"label"`
	Bootable   bool              `json:"bootable"`
	Bootloader models.Bootloader `json:"bootloader"`
	SourceDir  string            `json:"sourceDir"`
}

// GenerateResponse is the backend's answer to a generation request.
type GenerateResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// Generate submits an ISO generation request to the backend.
func (c *RemoteClient) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResponse, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("remote ISO backend is not configured")
	}

	payload, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/iso/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ISO backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode backend response: %w", err)
	}

	if genResp.JobID == "" {
		return nil, fmt.Errorf("invalid response from backend: no job ID returned")
	}

	if genResp.Status == "" {
		genResp.Status = models.JobStatusProcessing
	}

	return &genResp, nil
}

// StatusResponse is the backend's answer to a status query.
type StatusResponse struct {
	Status      models.JobStatus `json:"status"`
	Progress    *int             `json:"progress,omitempty"`
	Message     string           `json:"message,omitempty"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
}

// Status queries GET /api/iso/status/{jobId}.
func (c *RemoteClient) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("remote ISO backend is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/iso/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ISO backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var statusResp StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &statusResp, nil
}

// DownloadURL returns the backend's download endpoint for a job.
func (c *RemoteClient) DownloadURL(jobID, filename string) string {
	u := c.baseURL + "/api/iso/download/" + url.PathEscape(jobID)
	if filename != "" {
		u += "?filename=" + url.QueryEscape(filename)
	}
	return u
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// apiClient talks to the daemon's HTTP API and unwraps the response
// envelope.
type apiClient struct {
	base string
	http *http.Client
}

type jobView struct {
	ID           string            `json:"id"`
	SourceFileID string            `json:"sourceFileId"`
	SourceFormat string            `json:"sourceFormat"`
	TargetFormat string            `json:"targetFormat"`
	Status       string            `json:"status"`
	Progress     float64           `json:"progress"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	ResultFileID string            `json:"resultFileId,omitempty"`
	Error        string            `json:"error,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
}

type statusView struct {
	Job         jobView `json:"job"`
	DownloadURL string  `json:"downloadUrl,omitempty"`
}

type formatView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MimeType      string   `json:"mimeType"`
	Category      string   `json:"category"`
	ConvertibleTo []string `json:"convertibleTo"`
}

type taskView struct {
	ID        int64     `json:"ID"`
	JobID     string    `json:"JobID"`
	State     string    `json:"State"`
	Attempts  int       `json:"Attempts"`
	LastError string    `json:"LastError"`
	CreatedAt time.Time `json:"CreatedAt"`
	UpdatedAt time.Time `json:"UpdatedAt"`
}

type queueView struct {
	Tasks []taskView     `json:"tasks"`
	Stats map[string]int `json:"stats"`
}

type uploadView struct {
	FileID string `json:"fileId"`
	Size   int64  `json:"size"`
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapConnectError(err, c.base)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if !env.Success {
		if env.Error != "" {
			return errors.New(env.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) Upload(ctx context.Context, path string) (*uploadView, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var out uploadView
	if err := c.do(ctx, http.MethodPost, "/api/upload", &buf, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Convert(ctx context.Context, fileID, sourceFormat, targetFormat string, options map[string]string) (*jobView, error) {
	payload, err := json.Marshal(map[string]any{
		"fileId":       fileID,
		"sourceFormat": sourceFormat,
		"targetFormat": targetFormat,
		"options":      options,
	})
	if err != nil {
		return nil, err
	}

	var out jobView
	if err := c.do(ctx, http.MethodPost, "/api/convert", bytes.NewReader(payload), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Status(ctx context.Context, jobID string) (*statusView, error) {
	var out statusView
	if err := c.do(ctx, http.MethodGet, "/api/status/"+jobID, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Formats(ctx context.Context, category string) ([]formatView, error) {
	path := "/api/formats"
	if category != "" {
		path += "/" + category
	}
	var out []formatView
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) Queue(ctx context.Context) (*queueView, error) {
	var out queueView
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) RetryQueue(ctx context.Context, jobIDs []string) (int64, error) {
	payload, err := json.Marshal(map[string]any{"jobIds": jobIDs})
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/queue/retry", bytes.NewReader(payload), "application/json", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *apiClient) ClearQueue(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/queue", nil, "", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func wrapConnectError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start it with `fileforge serve`", base)
	}
	return err
}

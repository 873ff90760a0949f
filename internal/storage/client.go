// Package storage talks to the hosted object-storage service that keeps
// uploaded reel videos. The service exposes a plain REST surface: upload by
// path, signed URLs for playback, delete by path.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultBucket  = "reels"
	requestTimeout = 30 * time.Second
)

// Client represents an object-storage API client
type Client struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates a client configured from the environment
// (STORAGE_URL, STORAGE_SERVICE_KEY, STORAGE_BUCKET).
func NewClient() *Client {
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = defaultBucket
	}
	return &Client{
		baseURL:    strings.TrimRight(os.Getenv("STORAGE_URL"), "/"),
		bucket:     bucket,
		serviceKey: os.Getenv("STORAGE_SERVICE_KEY"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// NewClientWithBase creates a client pointed at a test server.
func NewClientWithBase(baseURL, bucket, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Configured reports whether a storage backend was set up. Uploads are a
// feature of deployments that configured one; everything else degrades.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

func (c *Client) objectURL(path string) string {
	return fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
}

func (c *Client) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("storage request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Upload stores an object under the given path, overwriting any previous
// object there.
func (c *Client) Upload(ctx context.Context, path, contentType string, body io.Reader) error {
	if !c.Configured() {
		return fmt.Errorf("object storage is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(path), body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-upsert", "true")

	return c.do(req)
}

// CreateSignedURL returns a time-limited URL for reading the object.
func (c *Client) CreateSignedURL(ctx context.Context, path string, expiresIn time.Duration) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("object storage is not configured")
	}

	payload, err := json.Marshal(map[string]int64{"expiresIn": int64(expiresIn.Seconds())})
	if err != nil {
		return "", err
	}

	signURL := fmt.Sprintf("%s/object/sign/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage sign request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("storage sign request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to parse sign response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("storage sign response carried no URL")
	}

	// The service returns a path relative to its base.
	if u, err := url.Parse(signed.SignedURL); err == nil && !u.IsAbs() {
		return c.baseURL + "/" + strings.TrimLeft(signed.SignedURL, "/"), nil
	}
	return signed.SignedURL, nil
}

// Delete removes the object at path. Callers treat this as best effort: the
// database row, not the binary, is authoritative.
func (c *Client) Delete(ctx context.Context, path string) error {
	if !c.Configured() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	return c.do(req)
}

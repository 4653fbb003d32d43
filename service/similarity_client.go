package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"casefinder-web/models"
)

const (
	DefaultSimilarityEndpoint = "http://127.0.0.1:5000/upload"
	DefaultSimilarityTimeout  = 60 * time.Second

	// uploadFieldName is the multipart part the backend reads the file from
	uploadFieldName = "file"
)

// SimilarityClient posts case files to the similarity backend
type SimilarityClient struct {
	endpoint   string
	httpClient *http.Client
}

// SimilarityClientOption is a functional option for SimilarityClient
type SimilarityClientOption func(*SimilarityClient)

// WithEndpoint sets the backend upload URL
func WithEndpoint(endpoint string) SimilarityClientOption {
	return func(c *SimilarityClient) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) SimilarityClientOption {
	return func(c *SimilarityClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) SimilarityClientOption {
	return func(c *SimilarityClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewSimilarityClient creates a new similarity backend client
func NewSimilarityClient(opts ...SimilarityClientOption) *SimilarityClient {
	c := &SimilarityClient{
		endpoint:   DefaultSimilarityEndpoint,
		httpClient: &http.Client{Timeout: DefaultSimilarityTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSimilarityClientFromEnv reads SIMILARITY_ENDPOINT and SIMILARITY_TIMEOUT
func NewSimilarityClientFromEnv() (*SimilarityClient, error) {
	var timeout time.Duration
	if raw := os.Getenv("SIMILARITY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SIMILARITY_TIMEOUT %q: %w", raw, err)
		}
		timeout = d
	}

	return NewSimilarityClient(
		WithEndpoint(os.Getenv("SIMILARITY_ENDPOINT")),
		WithTimeout(timeout),
	), nil
}

// Endpoint returns the configured upload URL
func (c *SimilarityClient) Endpoint() string {
	return c.endpoint
}

// Search uploads one file and returns the backend's answer. It makes exactly
// one attempt. Failures to reach the backend or read its body are returned
// as *TransportError; an error field in the body is returned as *BackendError.
func (c *SimilarityClient) Search(ctx context.Context, filename string, data io.Reader) (*models.SimilarityResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(uploadFieldName, filename)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create form file: %w", err)}
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read selected file: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to finish form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	// The backend answers 4xx with a JSON error body, so the status code
	// alone does not decide the outcome.
	var payload models.SimilarityResponse
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)}
	}

	if payload.HasError() {
		return nil, &BackendError{Message: payload.Error, StatusCode: resp.StatusCode}
	}
	if err := payload.Validate(); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("malformed response (status %d): %w", resp.StatusCode, err)}
	}

	return &payload, nil
}

// Package stt bridges audio uploads to a self-hosted whisper-compatible
// transcription server over HTTP.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/anchorhq/anchor/internal/metrics"
)

// Provider names reported downstream as stt_provider_used.
const (
	ProviderSelfHosted = "self_hosted"
)

// Result is one transcription.
type Result struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	DurationMs *int     `json:"duration_ms,omitempty"`
	LatencyMs  float64  `json:"latency_ms"`
}

// Transcriber produces transcriptions from uploaded audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Result, error)
}

// NewPooledHTTPClient creates an http.Client with connection pooling and tuned transport.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Client sends audio as multipart form data to a whisper-compatible
// /transcribe endpoint. Transient failures are retried a bounded number
// of times before the error is surfaced.
type Client struct {
	url         string
	endpoint    string
	label       string
	client      *http.Client
	maxAttempts int
}

// NewClient creates a client for the self-hosted transcription server.
func NewClient(url string, poolSize int) *Client {
	return &Client{
		url:         url,
		endpoint:    "/transcribe",
		label:       ProviderSelfHosted,
		client:      NewPooledHTTPClient(poolSize, 60*time.Second),
		maxAttempts: 3,
	}
}

// Warmup sends an empty probe to verify the server is reachable.
func (c *Client) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("create warmup request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s warmup: %w", c.label, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s warmup status %d", c.label, resp.StatusCode)
	}
	return nil
}

type transcribeResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	DurationMs *int     `json:"duration_ms"`
}

// Transcribe uploads the audio and returns the transcript. Connection
// errors and 5xx responses are retried; 4xx responses are not.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Result, error) {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.STTRequests.WithLabelValues("retry").Inc()
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 250 * time.Millisecond):
			}
		}

		res, retryable, err := c.transcribeOnce(ctx, audio, filename)
		if err == nil {
			res.LatencyMs = float64(time.Since(start).Milliseconds())
			metrics.STTRequests.WithLabelValues("ok").Inc()
			return res, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	metrics.STTRequests.WithLabelValues("error").Inc()
	return Result{}, lastErr
}

func (c *Client) transcribeOnce(ctx context.Context, audio []byte, filename string) (Result, bool, error) {
	body, contentType, err := buildMultipartAudio(audio, filename)
	if err != nil {
		return Result{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return Result{}, false, fmt.Errorf("create %s request: %w", c.label, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, true, fmt.Errorf("%s request: %w", c.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode >= 500
		return Result{}, retryable, fmt.Errorf("%s status %d: %s", c.label, resp.StatusCode, string(respBody))
	}

	var decoded transcribeResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, false, fmt.Errorf("decode %s response: %w", c.label, err)
	}

	return Result{
		Text:       decoded.Text,
		Confidence: decoded.Confidence,
		DurationMs: decoded.DurationMs,
	}, false, nil
}

func buildMultipartAudio(audio []byte, filename string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

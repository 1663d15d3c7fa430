package service

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

	"go.uber.org/zap"
)

type TranscriberConfig struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperClient posts audio to a Whisper-compatible /audio/transcriptions endpoint
type WhisperClient struct {
	client *http.Client
	cfg    TranscriberConfig
	logger *zap.Logger
}

func NewWhisperClient(cfg TranscriberConfig, logger *zap.Logger) *WhisperClient {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperClient{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

func (w *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if filename == "" {
		filename = "answer.wav"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	fields := map[string]string{"model": w.cfg.Model, "response_format": "json"}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		w.logger.Warn("transcription failed", zap.Int("status", resp.StatusCode), zap.String("filename", filename))
		return "", fmt.Errorf("transcription returned status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

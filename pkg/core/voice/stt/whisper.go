package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/callio-ai/callio/pkg/core"
)

const whisperDefaultBaseURL = "https://api.openai.com/v1"

const whisperDefaultModel = "whisper-1"

// WhisperProvider transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewWhisper creates a Whisper provider with the default endpoint.
func NewWhisper(apiKey string) *WhisperProvider {
	return &WhisperProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    whisperDefaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewWhisperWithClient creates a Whisper provider with a custom HTTP client.
func NewWhisperWithClient(apiKey string, client *http.Client) *WhisperProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &WhisperProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    whisperDefaultBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the API endpoint. Useful for self-hosted
// Whisper deployments.
func (w *WhisperProvider) WithBaseURL(base string) *WhisperProvider {
	if w == nil {
		return w
	}
	base = strings.TrimSpace(base)
	if base != "" {
		w.baseURL = strings.TrimRight(base, "/")
	}
	return w
}

// Name returns the provider identifier.
func (w *WhisperProvider) Name() string {
	return "whisper"
}

// Transcribe implements Provider.
func (w *WhisperProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	model := opts.Model
	if model == "" {
		model = whisperDefaultModel
	}
	ext := opts.Format
	if ext == "" {
		ext = "wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio."+ext)
	if err != nil {
		return nil, core.NewTranscriptionError("failed to build request", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, core.NewTranscriptionError("failed to read audio", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, core.NewTranscriptionError("failed to build request", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, core.NewTranscriptionError("failed to build request", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, core.NewTranscriptionError("failed to build request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, core.NewTranscriptionError("failed to build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, core.NewTranscriptionError("transcription request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewTranscriptionError("failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewTranscriptionError(
			fmt.Sprintf("transcription endpoint returned %d: %s", resp.StatusCode, excerpt(respBody)),
			nil,
		)
	}

	var parsed struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, core.NewTranscriptionError("failed to decode response", err)
	}

	return &Transcript{
		Text:     parsed.Text,
		Language: parsed.Language,
		Duration: parsed.Duration,
	}, nil
}

func excerpt(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

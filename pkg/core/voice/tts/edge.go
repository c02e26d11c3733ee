package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/callio-ai/callio/pkg/core"
)

const edgeDefaultVoice = "zh-CN-XiaoxiaoNeural"

// EdgeProvider synthesizes speech through an edge-tts proxy service.
// The service accepts JSON {"text","voice","format"} plus optional
// "sample_rate" and "speed", and responds with raw audio bytes, or a
// JSON error object on failure.
type EdgeProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewEdge creates an edge-tts provider for the given service URL.
func NewEdge(baseURL string) *EdgeProvider {
	return &EdgeProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
}

// NewEdgeWithClient creates an edge-tts provider with a custom HTTP client.
func NewEdgeWithClient(baseURL string, client *http.Client) *EdgeProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &EdgeProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (e *EdgeProvider) Name() string {
	return "edge"
}

// Synthesize implements Provider.
func (e *EdgeProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	voice := opts.Voice
	if voice == "" {
		voice = edgeDefaultVoice
	}
	format := opts.Format
	if format == "" {
		format = "mp3"
	}

	fields := map[string]any{
		"text":   text,
		"voice":  voice,
		"format": format,
	}
	if opts.SampleRate > 0 {
		fields["sample_rate"] = opts.SampleRate
	}
	if opts.Speed > 0 {
		fields["speed"] = opts.Speed
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, core.NewSynthesisError("failed to build request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/text-to-speech", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewSynthesisError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, core.NewSynthesisError("synthesis request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, core.NewSynthesisError("failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewSynthesisError(
			fmt.Sprintf("synthesis endpoint returned %d", resp.StatusCode),
			nil,
		)
	}

	// The service reports failures as 200 + JSON {"error": ...}.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var parsed struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			return nil, core.NewSynthesisError(parsed.Error, nil)
		}
	}
	if len(body) == 0 {
		return nil, core.NewSynthesisError("synthesis returned empty audio", nil)
	}

	return &Synthesis{
		Audio:      body,
		Format:     format,
		SampleRate: opts.SampleRate,
	}, nil
}

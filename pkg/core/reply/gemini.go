package reply

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/callio-ai/callio/pkg/core"
)

const geminiDefaultModel = "gemini-2.0-flash"

// History is capped per conversation; voice turns are short and old
// context stops mattering quickly.
const geminiMaxHistoryTurns = 20

// GeminiProvider answers directly from the Gemini API, keeping
// conversation history in memory per conversation ID.
type GeminiProvider struct {
	client *genai.Client
	model  string
	system string

	mu      sync.Mutex
	history map[string][]*genai.Content
}

// NewGemini creates a Gemini reply provider.
func NewGemini(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewReplyError("failed to create gemini client", err)
	}
	return &GeminiProvider{
		client:  client,
		model:   geminiDefaultModel,
		history: make(map[string][]*genai.Content),
	}, nil
}

// WithModel overrides the model name.
func (g *GeminiProvider) WithModel(model string) *GeminiProvider {
	if g == nil {
		return g
	}
	model = strings.TrimSpace(model)
	if model != "" {
		g.model = model
	}
	return g
}

// WithSystemPrompt sets the system instruction for all conversations.
func (g *GeminiProvider) WithSystemPrompt(prompt string) *GeminiProvider {
	if g == nil {
		return g
	}
	g.system = prompt
	return g
}

// Name returns the provider identifier.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Reply implements Provider.
func (g *GeminiProvider) Reply(ctx context.Context, conversationID, message string) (string, error) {
	g.mu.Lock()
	contents := append([]*genai.Content(nil), g.history[conversationID]...)
	g.mu.Unlock()

	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	var config *genai.GenerateContentConfig
	if g.system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(g.system, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", core.NewReplyError("gemini request failed", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", core.NewReplyError("gemini returned an empty reply", nil)
	}

	g.mu.Lock()
	turn := append(g.history[conversationID],
		genai.NewContentFromText(message, genai.RoleUser),
		genai.NewContentFromText(answer, genai.RoleModel),
	)
	if len(turn) > 2*geminiMaxHistoryTurns {
		turn = turn[len(turn)-2*geminiMaxHistoryTurns:]
	}
	g.history[conversationID] = turn
	g.mu.Unlock()

	return answer, nil
}

// Forget drops the stored history for a conversation.
func (g *GeminiProvider) Forget(conversationID string) {
	g.mu.Lock()
	delete(g.history, conversationID)
	g.mu.Unlock()
}

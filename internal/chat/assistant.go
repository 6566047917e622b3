// internal/chat/assistant.go
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gitpulse/internal/model"
	"gitpulse/internal/store"
)

const (
	// FallbackReply is returned whenever the model call fails. The chat
	// surface never sees a raw upstream error.
	FallbackReply = "I'm having trouble connecting to my brain right now. Please try again in a moment."

	temperature     = 0.7
	maxOutputTokens = 800

	// Only the most recent activities are packed into the prompt.
	recentActivityLimit = 20
)

// Generator produces one reply from a system instruction and a user message.
type Generator interface {
	Generate(ctx context.Context, system, message string) (string, error)
}

// GeminiGenerator implements Generator against the Gemini API.
type GeminiGenerator struct {
	client    *genai.Client
	modelName string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, modelName: modelName}, nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, message string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	temp := float32(temperature)
	maxTokens := int32(maxOutputTokens)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		MaxOutputTokens: &maxTokens,
	}

	resp, err := m.GenerateContent(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			reply.WriteString(string(txt))
		}
	}
	if reply.Len() == 0 {
		return "", fmt.Errorf("gemini returned a non-text response")
	}
	return reply.String(), nil
}

// Assistant answers user messages using their mirrored GitHub data as
// context, and persists each exchange as a conversation.
type Assistant struct {
	store  store.Store
	gen    Generator
	logger *slog.Logger
	now    func() time.Time
}

// NewAssistant creates a new Assistant instance.
func NewAssistant(st store.Store, gen Generator, logger *slog.Logger) *Assistant {
	return &Assistant{
		store:  st,
		gen:    gen,
		logger: logger,
		now:    time.Now,
	}
}

// Respond re-derives the user's full context from storage, generates a reply
// and persists the turn. There is no server-side session memory: every call
// stands alone on the data re-sent here.
func (a *Assistant) Respond(ctx context.Context, userID int64, message string) (string, *model.Conversation, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	repos, err := a.store.GetRepositoriesByUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	activities, err := a.store.GetRecentActivitiesByUser(ctx, userID, recentActivityLimit)
	if err != nil {
		return "", nil, err
	}
	reminders, err := a.store.GetRemindersByUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	prompt := BuildSystemPrompt(Context{
		User:         user,
		Repositories: repos,
		Activities:   activities,
		Reminders:    reminders,
	})

	asked := a.now()
	reply, err := a.gen.Generate(ctx, prompt, message)
	if err != nil {
		a.logger.Error("Chat generation failed, using fallback reply", "user_id", userID, "error", err)
		reply = FallbackReply
	}

	conversation, err := a.store.CreateConversation(ctx, &model.Conversation{
		UserID:    userID,
		Timestamp: asked,
		Messages: []model.Message{
			{Role: "user", Content: message, Timestamp: asked},
			{Role: "assistant", Content: reply, Timestamp: a.now()},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("persist conversation: %w", err)
	}

	return reply, conversation, nil
}

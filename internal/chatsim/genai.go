package chatsim

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GenAIGenerator asks Gemini for an in-character reply.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIGenerator{client: client, model: model}, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, persona Persona, trigger Message) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(persona), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.9),
		MaxOutputTokens:   120,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(UserPrompt(trigger)), config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("GenAI returned no text")
	}
	return text, nil
}

// SystemPrompt describes the persona to the model.
func SystemPrompt(p Persona) string {
	return fmt.Sprintf(
		"Eres %s, vecino de %s en Tarragona, con un carácter %s. "+
			"Respondes en el chat del barrio en español, en una o dos frases cortas, "+
			"con tono cercano. No repitas el mensaje que contestas ni digas que eres una IA.",
		p.Name, p.Street, p.Temperament)
}

func UserPrompt(m Message) string {
	author := m.AuthorName
	if author == "" {
		author = "Un vecino"
	}
	return fmt.Sprintf("%s escribe en el chat: %q", author, m.Content)
}

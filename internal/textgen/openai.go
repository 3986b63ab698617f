// Package textgen generates narrative interpretation text for readings.
package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Generator produces narrative text from a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, model string, err error)
}

// OpenAIGenerator calls the chat completion API.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator creates a new OpenAIGenerator instance.
func NewOpenAIGenerator(apiKey, model string, maxTokens int) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4o
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Generate requests one completion for the prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a professional tarot reader writing in Japanese.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Interpretation generated")

	return text, resp.Model, nil
}

// StaticGenerator returns card-meaning text without calling any API.
// Used when no API key is configured and as a test double.
type StaticGenerator struct{}

// Generate returns a fixed-form summary built from the prompt's card lines.
func (StaticGenerator) Generate(_ context.Context, prompt string) (string, string, error) {
	var cards []string
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			cards = append(cards, strings.TrimPrefix(line, "- "))
		}
	}

	var b strings.Builder
	b.WriteString("今回のリーディングの要点です。\n")
	for _, c := range cards {
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("カードの示す流れを参考に、無理のない一歩から始めてみてください。")
	return b.String(), "static", nil
}

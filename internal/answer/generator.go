// Package answer builds the final prompt from retrieved patient context
// and the doctor's question and invokes the generation model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// Model is the chat model used for answer generation.
const Model = openai.ChatModelGPT4o

// ErrUnavailable wraps generation model failures; the caller decides
// whether to retry.
var ErrUnavailable = errors.New("generation model unavailable")

// promptTemplate embeds context and question verbatim between fixed
// delimiters so the model can tell instruction from data.
const promptTemplate = `You are a medical assistant for doctors.
Use the following patient context to answer the question.

--- PATIENT CONTEXT ---
%s
--- END PATIENT CONTEXT ---

--- QUESTION ---
%s
--- END QUESTION ---

Please give a clear and medically relevant response.`

// Generator produces answers grounded in retrieved patient context.
// It is stateless; every call is one chat completion.
type Generator struct {
	client *openai.Client
}

// NewGenerator creates a Generator reusing an existing OpenAI client.
func NewGenerator(client *openai.Client) *Generator {
	return &Generator{client: client}
}

// Answer combines context and question into the fixed prompt and returns
// the generated text.
func (g *Generator) Answer(ctx context.Context, question, patientContext string) (string, error) {
	prompt := BuildPrompt(question, patientContext)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: Model,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(question, contextText string) string {
	return fmt.Sprintf(promptTemplate, contextText, question)
}

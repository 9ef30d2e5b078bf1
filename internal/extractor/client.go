package extractor

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
)

// OCRModel is the chat model used for document understanding.
const OCRModel = openai.ChatModelGPT4o

// OCRClient wraps the OpenAI client for vision/document text extraction.
type OCRClient struct {
	client *openai.Client
}

// NewOCRClient creates an OpenAI-backed OCR client.
// It reads the OPENAI_API_KEY from the environment and returns an error if not set.
func NewOCRClient() (*OCRClient, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient()
	return &OCRClient{client: &client}, nil
}

// ExtractImage runs one chat completion over an image, passed as a data URL.
func (c *OCRClient) ExtractImage(ctx context.Context, prompt, imageDataURL string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageDataURL,
				}),
			}),
		},
		Model: OCRModel,
	})
	if err != nil {
		return "", fmt.Errorf("image extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("image extraction returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ExtractDocument runs one chat completion over a PDF passed inline as a file part.
func (c *OCRClient) ExtractDocument(ctx context.Context, prompt, filename string, data []byte) (string, error) {
	fileData := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(fileData),
					Filename: openai.String(filename),
				}),
			}),
		},
		Model: OCRModel,
	})
	if err != nil {
		return "", fmt.Errorf("document extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("document extraction returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

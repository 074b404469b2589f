package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const transcribePrompt = "You are an OCR engine for scanned government obligation request forms.\n\n" +
	"Task:\n" +
	"- Transcribe the text of the FIRST page of the attached document verbatim.\n" +
	"- Preserve line breaks as they appear on the page.\n" +
	"- Do not summarize, translate, correct or reorder anything.\n" +
	"- Output plain text only. No Markdown, no code fences, no commentary.\n"

// contentGenerator is the part of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRecognizer transcribes pages with a Gemini model.
type GeminiRecognizer struct {
	models contentGenerator
	model  string
}

// NewGeminiRecognizer creates a genai client using the environment's credentials.
func NewGeminiRecognizer(ctx context.Context, model string) (*GeminiRecognizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiRecognizer: create genai client: %w", err)
	}
	return newGeminiRecognizer(client.Models, model), nil
}

func newGeminiRecognizer(models contentGenerator, model string) *GeminiRecognizer {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiRecognizer{models: models, model: model}
}

// RecognizeText implements Recognizer. The segmentation mode has no
// meaning for the model and is only part of the prompt context.
func (g *GeminiRecognizer) RecognizeText(ctx context.Context, page Page, language string, mode Mode) (string, error) {
	if len(page.Data) == 0 {
		return "", errors.New("RecognizeText: empty page")
	}
	language, _ = normalizeOptions(language, mode)

	prompt := transcribePrompt + fmt.Sprintf("- The document language code is %q.\n", language)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: page.MIMEType,
						Data:     page.Data,
					},
				},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("RecognizeText: generate content: %w", err)
	}

	return cleanTranscript(resp.Text()), nil
}

// cleanTranscript drops Markdown fences a model may add despite instructions.
func cleanTranscript(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

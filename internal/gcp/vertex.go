package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Page text model prompts ---
const PageTextSystemPrompt = "You are a document text extractor. You receive a single PDF page and return the text printed on it, in reading order, as plain text."
const PageTextUserPrompt = `You will be provided with a single PDF page.

Return every piece of text that a reader would see on the page, in natural reading order.
Do not describe images, do not add headings that are not printed, and do not use markdown.
If the page has no readable text, return an empty response.`

// refusalPhrases mark a model answer that is not page text.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// VertexClient holds the generative model used to read pages that carry no
// extractable text.
type VertexClient struct {
	PageTextModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a client for the given project and region.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	pageTextModel := baseClient.GenerativeModel("gemini-1.5-pro")
	pageTextModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(PageTextSystemPrompt)},
	}
	pageTextModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		PageTextModel: pageTextModel,
		baseClient:    baseClient,
	}, nil
}

// PageText sends a single-page PDF to the model and returns the text it reads.
func (c *VertexClient) PageText(ctx context.Context, pagePDF []byte) (string, error) {
	resp, err := c.PageTextModel.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: pagePDF},
		genai.Text(PageTextUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "", fmt.Errorf("gemini response indicates refusal")
		}
	}
	if text == "" {
		slog.Warn("No text extracted from gemini response. Treating as empty page.")
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(sb.String())
	out = strings.TrimPrefix(out, "```text")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

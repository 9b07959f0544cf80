package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

const safetyPrompt = `You are a content-safety reviewer. Decide whether the attached image contains pornographic, violent, hateful or otherwise prohibited content. Respond with JSON only: {"flagged": true} or {"flagged": false}.`

// GeminiChecker asks a Gemini model for a safety verdict. A blocked prompt
// or a safety stop counts as flagged.
type GeminiChecker struct {
	client *genai.Client
	model  string
}

// NewGeminiChecker creates a checker authenticated with apiKey.
func NewGeminiChecker(ctx context.Context, apiKey string) (*GeminiChecker, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiChecker{client: client, model: geminiModel}, nil
}

// Check sends the image inline with the safety prompt.
func (c *GeminiChecker) Check(ctx context.Context, payload []byte, contentType string) (int, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: safetyPrompt},
				{InlineData: &genai.Blob{Data: payload, MIMEType: contentType}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return 0, fmt.Errorf("gemini API error: %w", err)
	}
	return geminiVerdict(result)
}

func geminiVerdict(result *genai.GenerateContentResponse) (int, error) {
	if result == nil {
		return 0, errors.New("no response from Gemini")
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return CodeFlagged, nil
	}
	for _, cand := range result.Candidates {
		switch cand.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			return CodeFlagged, nil
		}
	}

	content := result.Text()
	if content == "" {
		return 0, errors.New("no response from Gemini")
	}
	return parseFlagged(content)
}

type flaggedResponse struct {
	Flagged *bool `json:"flagged"`
}

// parseFlagged reads a {"flagged": bool} verdict, tolerating text around
// the JSON object.
func parseFlagged(content string) (int, error) {
	var resp flaggedResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse verdict JSON: %w (response: %s)", err, content)
	}
	if resp.Flagged == nil {
		return 0, fmt.Errorf("verdict missing flagged field (response: %s)", content)
	}
	if *resp.Flagged {
		return CodeFlagged, nil
	}
	return CodeClean, nil
}

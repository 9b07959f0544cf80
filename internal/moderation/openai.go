package moderation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const moderationModel = openai.ModerationModelOmniModerationLatest

// OpenAIChecker uses the OpenAI moderation endpoint.
type OpenAIChecker struct {
	client *openai.Client
}

// NewOpenAIChecker creates a checker authenticated with apiKey. Extra
// request options are passed to the client.
func NewOpenAIChecker(apiKey string, opts ...option.RequestOption) *OpenAIChecker {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIChecker{client: &client}
}

// Check submits the image as a data URL and maps flagged to CodeFlagged.
func (c *OpenAIChecker) Check(ctx context.Context, payload []byte, contentType string) (int, error) {
	imageURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(payload)

	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: moderationModel,
		Input: openai.ModerationNewParamsInputUnion{
			OfModerationMultiModalArray: []openai.ModerationMultiModalInputUnionParam{
				{OfImageURL: &openai.ModerationImageURLInputParam{
					ImageURL: openai.ModerationImageURLInputImageURLParam{URL: imageURL},
				}},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Results) == 0 {
		return 0, errors.New("no moderation result from OpenAI")
	}

	for _, r := range resp.Results {
		if r.Flagged {
			return CodeFlagged, nil
		}
	}
	return CodeClean, nil
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const geminiModel = "gemini-2.0-flash"

// GeminiProvider implements CommandParser using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(geminiModel)
	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &GeminiProvider{client: client, model: model}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) ParseBookingCommand(ctx context.Context, transcript string, currentContext map[string]string) (*BookingCommand, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	fullPrompt := fmt.Sprintf("%s\n\nRider said: %s", buildSystemPrompt(currentContext), transcript)

	resp, err := p.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		if isRateLimited(err) {
			return nil, &RateLimitError{Err: err}
		}
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyReply
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return decodeCommand(responseText.String())
}

// isRateLimited recognises quota errors from both the REST and gRPC
// transports.
func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if ae, ok := apierror.FromError(err); ok {
		if ae.HTTPCode() == http.StatusTooManyRequests {
			return true
		}
		if ae.GRPCStatus() != nil && ae.GRPCStatus().Code() == codes.ResourceExhausted {
			return true
		}
	}
	return status.Code(err) == codes.ResourceExhausted
}

func decodeCommand(text string) (*BookingCommand, error) {
	clean := cleanJSONString(text)
	if clean == "" {
		return nil, ErrEmptyReply
	}
	var cmd BookingCommand
	if err := json.Unmarshal([]byte(clean), &cmd); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	return &cmd, nil
}

package veo3

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"google.golang.org/genai"
)

// GenAIClient - google.golang.org/genai 기반 VideoClient (Gemini API backend)
type GenAIClient struct {
	httpClient *http.Client
}

func NewGenAIClient(httpClient *http.Client) *GenAIClient {
	return &GenAIClient{httpClient: httpClient}
}

// newClient - API 키별 클라이언트 생성 (키가 시도마다 바뀔 수 있음)
func (c *GenAIClient) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	return client, nil
}

func (c *GenAIClient) GenerateVideos(ctx context.Context, apiKey string, req *GenerationRequest) (*Operation, error) {
	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos:  int32(req.Output.NumberOfVideos),
		AspectRatio:     req.Output.AspectRatio,
		Resolution:      req.Output.Resolution,
		DurationSeconds: genai.Ptr(int32(req.Output.DurationSeconds)),
	}

	var image *genai.Image
	if req.Image != nil {
		image = &genai.Image{
			ImageBytes: req.Image.Data,
			MIMEType:   req.Image.MIMEType,
		}
	}

	op, err := client.Models.GenerateVideos(ctx, req.Model, req.Prompt, image, config)
	if err != nil {
		return nil, fromSDKError("video generation request", err)
	}

	log.Printf("📤 [Veo] Operation started: %s", op.Name)
	return fromGenAIOperation(op), nil
}

func (c *GenAIClient) GetOperation(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	raw, ok := op.handle.(*genai.GenerateVideosOperation)
	if !ok || raw == nil {
		return nil, fmt.Errorf("operation %q has no SDK handle", op.Name)
	}

	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	next, err := client.Operations.GetVideosOperation(ctx, raw, nil)
	if err != nil {
		return nil, fromSDKError("operation status poll", err)
	}
	return fromGenAIOperation(next), nil
}

func fromGenAIOperation(op *genai.GenerateVideosOperation) *Operation {
	out := &Operation{
		Name:   op.Name,
		Done:   op.Done,
		handle: op,
	}

	if op.Error != nil {
		if msg, ok := op.Error["message"].(string); ok && msg != "" {
			out.Error = msg
		} else {
			out.Error = fmt.Sprintf("%v", op.Error)
		}
	}

	if op.Response != nil {
		for _, generated := range op.Response.GeneratedVideos {
			if generated == nil || generated.Video == nil {
				continue
			}
			out.Videos = append(out.Videos, VideoRef{
				URI:      generated.Video.URI,
				MIMEType: generated.Video.MIMEType,
				Data:     generated.Video.VideoBytes,
			})
		}
		out.FilteredReasons = op.Response.RAIMediaFilteredReasons
	}

	return out
}

// fromSDKError - API가 보고한 에러는 RemoteError, 그 외는 NetworkError
func fromSDKError(op string, err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteError{Op: op, Code: apiErr.Code, Status: apiErr.Status, Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}

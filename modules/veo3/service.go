package veo3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VideoClient is the remote video API: one submission call and one poll call.
type VideoClient interface {
	GenerateVideos(ctx context.Context, apiKey string, req *GenerationRequest) (*Operation, error)
	GetOperation(ctx context.Context, apiKey string, op *Operation) (*Operation, error)
}

// Hooks receive progress during Generate. Both fields are optional.
type Hooks struct {
	OnProgress func(Progress)
	OnAsset    func(*VideoAsset)
}

type Service struct {
	client       VideoClient
	httpClient   *http.Client
	model        string
	pollInterval time.Duration
	maxPolls     int

	// sleep waits between polls; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(client VideoClient, opts Options) *Service {
	opts = opts.withDefaults()

	return &Service{
		client:       client,
		httpClient:   opts.HTTPClient,
		model:        opts.Model,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		sleep:        sleepContext,
	}
}

// BuildRequest - 사용자 입력으로 요청 생성 (비디오 개수는 항상 1)
func (s *Service) BuildRequest(in Input) (*GenerationRequest, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	output := in.Output
	output.NumberOfVideos = 1

	req := &GenerationRequest{
		Model:  s.model,
		Prompt: prompt,
		Output: output,
	}
	if in.Image != nil && len(in.Image.Data) > 0 {
		req.Image = in.Image
	}
	return req, nil
}

// Generate submits one request, polls until it is done or MaxPolls is reached, and
// downloads every result. The last downloaded video is returned.
func (s *Service) Generate(ctx context.Context, in Input, apiKey string, hooks Hooks) (*VideoAsset, error) {
	req, err := s.BuildRequest(in)
	if err != nil {
		return nil, err
	}

	report := func(p Progress) {
		p.MaxPolls = s.maxPolls
		if hooks.OnProgress != nil {
			hooks.OnProgress(p)
		}
	}

	log.Printf("🎬 [Veo] Submitting generation (model: %s, aspect: %s, %ds, %s, image: %v)",
		req.Model, req.Output.AspectRatio, req.Output.DurationSeconds, req.Output.Resolution, req.Image != nil)
	report(Progress{Stage: StageSubmitting})

	op, err := s.client.GenerateVideos(ctx, apiKey, req)
	if err != nil {
		return nil, asTransportError("video generation request", err)
	}

	op, err = s.waitForCompletion(ctx, apiKey, op, report)
	if err != nil {
		return nil, err
	}

	if op.Error != "" {
		return nil, &RemoteError{Op: "video generation", Err: errors.New(op.Error)}
	}
	if len(op.Videos) == 0 {
		log.Printf("❌ [Veo] Operation %s finished without videos", op.Name)
		return nil, &EmptyResultError{FilteredReasons: op.FilteredReasons}
	}

	var last *VideoAsset
	for i, ref := range op.Videos {
		report(Progress{Stage: StageFetching, Fetched: i, Total: len(op.Videos)})

		asset, err := s.fetchAsset(ctx, ref, apiKey)
		if err != nil {
			return nil, err
		}
		if hooks.OnAsset != nil {
			hooks.OnAsset(asset)
		}
		last = asset
	}

	log.Printf("✅ [Veo] Generation complete: %d video(s), last %d bytes", len(op.Videos), len(last.Data))
	return last, nil
}

// waitForCompletion - 폴링 루프 (interval 대기 → 상태 조회, 최대 maxPolls 회)
func (s *Service) waitForCompletion(ctx context.Context, apiKey string, op *Operation, report func(Progress)) (*Operation, error) {
	polls := 0
	for !op.Done {
		if polls >= s.maxPolls {
			log.Printf("⏰ [Veo] Operation %s not done after %d polls", op.Name, polls)
			return nil, &TimeoutError{Polls: polls, Waited: time.Duration(polls) * s.pollInterval}
		}

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil, fmt.Errorf("generation aborted while waiting: %w", err)
		}

		polls++
		report(Progress{Stage: StagePolling, Poll: polls})
		log.Printf("⏳ [Veo] Poll %d/%d for operation %s", polls, s.maxPolls, op.Name)

		next, err := s.client.GetOperation(ctx, apiKey, op)
		if err != nil {
			return nil, asTransportError("operation status", err)
		}
		op = next
	}
	return op, nil
}

// fetchAsset - 비디오 다운로드 (API 키를 key 쿼리 파라미터로 추가)
func (s *Service) fetchAsset(ctx context.Context, ref VideoRef, apiKey string) (*VideoAsset, error) {
	if len(ref.Data) > 0 {
		return &VideoAsset{URI: ref.URI, MIMEType: mimeOrDefault(ref.MIMEType), Data: ref.Data}, nil
	}

	u, err := url.Parse(ref.URI)
	if err != nil || ref.URI == "" {
		return nil, &NetworkError{Op: "video", Err: fmt.Errorf("invalid video URI %q", ref.URI)}
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &NetworkError{Op: "video", Err: err}
	}

	log.Printf("📥 [Veo] Downloading video from %s://%s%s", u.Scheme, u.Host, u.Path)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "video", Err: redactKey(err, apiKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("❌ [Veo] Download failed - Status: %d", resp.StatusCode)
		return nil, &NetworkError{Op: "video", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "video", Err: err}
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = ref.MIMEType
	}

	log.Printf("✅ [Veo] Video downloaded: %d bytes", len(data))
	return &VideoAsset{URI: ref.URI, MIMEType: mimeOrDefault(mimeType), Data: data}, nil
}

// asTransportError keeps typed errors from the client and wraps everything else as a network failure.
func asTransportError(op string, err error) error {
	var remote *RemoteError
	var network *NetworkError
	if errors.As(err, &remote) || errors.As(err, &network) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}

// url.Error includes the full URL, which carries the key
func redactKey(err error, apiKey string) error {
	if apiKey == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), apiKey, "REDACTED"))
}

func mimeOrDefault(mimeType string) string {
	if mimeType == "" {
		return "video/mp4"
	}
	return mimeType
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

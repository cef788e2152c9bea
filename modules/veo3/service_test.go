package veo3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veo-studio-server/modules/common/utils"
)

// fakeClient returns initial on submit and then steps through ops, one per poll.
// The last entry repeats once the list is exhausted.
type fakeClient struct {
	mu sync.Mutex

	initial   *Operation
	ops       []*Operation
	submitErr error
	pollErr   error
	block     chan struct{}

	requests []*GenerationRequest
	apiKeys  []string
	polls    int
}

func (f *fakeClient) GenerateVideos(ctx context.Context, apiKey string, req *GenerationRequest) (*Operation, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	f.apiKeys = append(f.apiKeys, apiKey)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.initial != nil {
		return f.initial, nil
	}
	return &Operation{Name: "operations/test"}, nil
}

func (f *fakeClient) GetOperation(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.ops) == 0 {
		return &Operation{Name: op.Name}, nil
	}
	i := f.polls - 1
	if i >= len(f.ops) {
		i = len(f.ops) - 1
	}
	return f.ops[i], nil
}

func (f *fakeClient) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// assetServer serves the request path as the video body and records the key parameter.
type assetServer struct {
	*httptest.Server
	mu   sync.Mutex
	keys []string
}

func newAssetServer(t *testing.T, status int) *assetServer {
	t.Helper()

	s := &assetServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.keys = append(s.keys, r.URL.Query().Get("key"))
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("video:" + r.URL.Path))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *assetServer) receivedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func newTestService(client VideoClient) *Service {
	s := NewService(client, Options{
		Model:        "veo-test",
		PollInterval: 10 * time.Second,
		MaxPolls:     20,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	})
	s.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return s
}

func doneWith(uris ...string) *Operation {
	op := &Operation{Name: "operations/test", Done: true}
	for _, u := range uris {
		op.Videos = append(op.Videos, VideoRef{URI: u, MIMEType: "video/mp4"})
	}
	return op
}

func testInput() Input {
	return Input{
		Prompt: "  a cat surfing a wave at sunset  ",
		Output: OutputConfig{AspectRatio: "16:9", DurationSeconds: 8, Resolution: "720p"},
	}
}

func TestBuildRequest(t *testing.T) {
	s := newTestService(&fakeClient{})

	t.Run("without image", func(t *testing.T) {
		in := testInput()
		in.Output.NumberOfVideos = 4

		req, err := s.BuildRequest(in)
		require.NoError(t, err)
		assert.Equal(t, "a cat surfing a wave at sunset", req.Prompt)
		assert.Equal(t, "veo-test", req.Model)
		assert.Equal(t, 1, req.Output.NumberOfVideos)
		assert.Nil(t, req.Image)
	})

	t.Run("with image", func(t *testing.T) {
		in := testInput()
		in.Image = &utils.ReferenceImage{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}

		req, err := s.BuildRequest(in)
		require.NoError(t, err)
		require.NotNil(t, req.Image)
		assert.Equal(t, "image/png", req.Image.MIMEType)
		assert.Equal(t, 1, req.Output.NumberOfVideos)
	})

	t.Run("empty image bytes", func(t *testing.T) {
		in := testInput()
		in.Image = &utils.ReferenceImage{MIMEType: "image/png"}

		req, err := s.BuildRequest(in)
		require.NoError(t, err)
		assert.Nil(t, req.Image)
	})

	t.Run("blank prompt", func(t *testing.T) {
		in := testInput()
		in.Prompt = " \n\t "

		_, err := s.BuildRequest(in)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})
}

func TestGenerateSucceedsOnFirstPoll(t *testing.T) {
	assets := newAssetServer(t, http.StatusOK)
	client := &fakeClient{ops: []*Operation{doneWith(assets.URL + "/files/one.mp4")}}
	s := newTestService(client)

	var stages []string
	asset, err := s.Generate(context.Background(), testInput(), "test-key", Hooks{
		OnProgress: func(p Progress) { stages = append(stages, p.Stage) },
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("video:/files/one.mp4"), asset.Data)
	assert.Equal(t, "video/mp4", asset.MIMEType)
	assert.Equal(t, 1, client.pollCount())
	assert.Equal(t, []string{"test-key"}, assets.receivedKeys())
	assert.Equal(t, []string{StageSubmitting, StagePolling, StageFetching}, stages)

	require.Len(t, client.requests, 1)
	assert.Equal(t, 1, client.requests[0].Output.NumberOfVideos)
	assert.Equal(t, "test-key", client.apiKeys[0])
}

func TestGenerateAlreadyDoneSkipsPolling(t *testing.T) {
	assets := newAssetServer(t, http.StatusOK)
	client := &fakeClient{initial: doneWith(assets.URL + "/v.mp4")}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 0, client.pollCount())
}

func TestGenerateDoneOnLastAllowedPoll(t *testing.T) {
	assets := newAssetServer(t, http.StatusOK)

	ops := make([]*Operation, 20)
	for i := range ops {
		ops[i] = &Operation{Name: "operations/test"}
	}
	ops[19] = doneWith(assets.URL + "/late.mp4")

	client := &fakeClient{ops: ops}
	s := newTestService(client)

	asset, err := s.Generate(context.Background(), testInput(), "k", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, []byte("video:/late.mp4"), asset.Data)
	assert.Equal(t, 20, client.pollCount())
}

func TestGenerateTimesOutAfterMaxPolls(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(client)

	sleeps := 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		assert.Equal(t, 10*time.Second, d)
		sleeps++
		return nil
	}

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 20, timeout.Polls)
	assert.Equal(t, 200*time.Second, timeout.Waited)
	assert.Equal(t, 20, client.pollCount())
	assert.Equal(t, 20, sleeps)

	classified := Classify(err)
	assert.Equal(t, CategoryTimeout, classified.Category)
	assert.Contains(t, classified.Message, "timed out")
}

func TestGenerateEmptyResult(t *testing.T) {
	client := &fakeClient{ops: []*Operation{{
		Name:            "operations/test",
		Done:            true,
		FilteredReasons: []string{"flagged by safety filter"},
	}}}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})

	var empty *EmptyResultError
	require.ErrorAs(t, err, &empty)
	assert.Contains(t, err.Error(), "flagged by safety filter")

	classified := Classify(err)
	assert.Equal(t, CategorySafety, classified.Category)
	assert.False(t, classified.RequiresCredentialPrompt)
}

func TestGenerateFetchFailure(t *testing.T) {
	assets := newAssetServer(t, http.StatusForbidden)
	client := &fakeClient{ops: []*Operation{doneWith(assets.URL + "/gone.mp4")}}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)

	classified := Classify(err)
	assert.Equal(t, CategoryNetwork, classified.Category)
	assert.Contains(t, classified.Message, "failed to fetch")
}

func TestGenerateFetchErrorDoesNotLeakKey(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()

	client := &fakeClient{ops: []*Operation{doneWith(url + "/v.mp4")}}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "very-secret-key", Hooks{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "very-secret-key")
	assert.Contains(t, err.Error(), "failed to fetch")
}

func TestGeneratePollErrorAbortsAttempt(t *testing.T) {
	client := &fakeClient{pollErr: errors.New("connection reset by peer")}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "operation status", netErr.Op)
	assert.Equal(t, 1, client.pollCount())
}

func TestGenerateSubmitErrorKeepsRemoteError(t *testing.T) {
	remote := &RemoteError{Op: "video generation request", Code: 400, Err: errors.New("API key not valid")}
	client := &fakeClient{submitErr: remote}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})
	assert.Same(t, remote, err)
	assert.Equal(t, 0, client.pollCount())
}

func TestGenerateOperationError(t *testing.T) {
	client := &fakeClient{ops: []*Operation{{Name: "operations/test", Done: true, Error: "Internal error encountered."}}}
	s := newTestService(client)

	_, err := s.Generate(context.Background(), testInput(), "k", Hooks{})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CategoryServer, Classify(err).Category)
}

func TestGenerateInlineVideoSkipsDownload(t *testing.T) {
	client := &fakeClient{ops: []*Operation{{
		Name:   "operations/test",
		Done:   true,
		Videos: []VideoRef{{Data: []byte("inline-bytes")}},
	}}}
	s := newTestService(client)

	asset, err := s.Generate(context.Background(), testInput(), "k", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, []byte("inline-bytes"), asset.Data)
	assert.Equal(t, "video/mp4", asset.MIMEType)
}

func TestGenerateKeepsLastVideo(t *testing.T) {
	assets := newAssetServer(t, http.StatusOK)
	client := &fakeClient{ops: []*Operation{doneWith(assets.URL+"/first.mp4", assets.URL+"/second.mp4")}}
	s := newTestService(client)

	var seen [][]byte
	asset, err := s.Generate(context.Background(), testInput(), "k", Hooks{
		OnAsset: func(a *VideoAsset) { seen = append(seen, a.Data) },
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("video:/second.mp4"), asset.Data)
	assert.Equal(t, [][]byte{[]byte("video:/first.mp4"), []byte("video:/second.mp4")}, seen)
}

func TestGenerateCancelledWhileWaiting(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Generate(ctx, testInput(), "k", Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.pollCount())
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(client)

	in := testInput()
	in.Prompt = ""

	_, err := s.Generate(context.Background(), in, "k", Hooks{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, client.requests)
}

func TestOptionsCeiling(t *testing.T) {
	assert.Equal(t, 200*time.Second, Options{}.Ceiling())
	assert.Equal(t, 30*time.Second, Options{PollInterval: 10 * time.Second, MaxPolls: 3}.Ceiling())
}

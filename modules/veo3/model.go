package veo3

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"veo-studio-server/modules/common/utils"
)

var (
	ErrEmptyPrompt       = errors.New("prompt must not be empty")
	ErrAttemptInProgress = errors.New("a generation attempt is already running")
	ErrNoVideo           = errors.New("no video has been generated yet")
)

// OutputConfig - 출력 설정 (aspect ratio, 길이, 해상도)
type OutputConfig struct {
	AspectRatio     string `json:"aspectRatio"`
	DurationSeconds int    `json:"durationSeconds"`
	Resolution      string `json:"resolution"`
	NumberOfVideos  int    `json:"numberOfVideos"`
}

var (
	supportedAspectRatios = []string{"16:9", "9:16"}
	supportedResolutions  = []string{"720p", "1080p"}
)

const (
	minDurationSeconds = 4
	maxDurationSeconds = 8
)

// Validate checks the user-selectable fields. NumberOfVideos is always forced to 1 by BuildRequest.
func (c OutputConfig) Validate() error {
	if !slices.Contains(supportedAspectRatios, c.AspectRatio) {
		return fmt.Errorf("aspect ratio must be one of %s, got %q", strings.Join(supportedAspectRatios, ", "), c.AspectRatio)
	}
	if c.DurationSeconds < minDurationSeconds || c.DurationSeconds > maxDurationSeconds {
		return fmt.Errorf("duration must be between %d and %d seconds, got %d", minDurationSeconds, maxDurationSeconds, c.DurationSeconds)
	}
	if !slices.Contains(supportedResolutions, c.Resolution) {
		return fmt.Errorf("resolution must be one of %s, got %q", strings.Join(supportedResolutions, ", "), c.Resolution)
	}
	return nil
}

// Input - 사용자 입력 (한 번의 생성 시도)
type Input struct {
	Prompt string
	Image  *utils.ReferenceImage
	Output OutputConfig
}

// GenerationRequest is what gets submitted to the video API. Never modified after submission.
type GenerationRequest struct {
	Model  string
	Prompt string
	Image  *utils.ReferenceImage
	Output OutputConfig
}

// VideoRef - 생성된 비디오 참조 (URI 또는 inline bytes)
type VideoRef struct {
	URI      string
	MIMEType string
	Data     []byte
}

// Operation is a snapshot of the remote job. Each poll returns a new value.
type Operation struct {
	Name            string
	Done            bool
	Error           string
	Videos          []VideoRef
	FilteredReasons []string

	// SDK handle needed to poll again
	handle any
}

// VideoAsset - 다운로드 완료된 비디오
type VideoAsset struct {
	URI      string
	MIMEType string
	Data     []byte
}

// Stage names reported through Progress.
const (
	StageSubmitting = "submitting"
	StagePolling    = "polling"
	StageFetching   = "fetching"
)

// Progress - 진행 상황 (status 텍스트 생성용)
type Progress struct {
	Stage    string
	Poll     int
	MaxPolls int
	Fetched  int
	Total    int
}

// NetworkError is a transport failure while submitting, polling or downloading.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError - 최대 폴링 횟수 초과
type TimeoutError struct {
	Polls  int
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video generation timed out after %d polls (%s)", e.Polls, e.Waited)
}

// EmptyResultError means the job finished without any video, usually a safety block.
type EmptyResultError struct {
	FilteredReasons []string
}

func (e *EmptyResultError) Error() string {
	msg := "no videos were generated; the prompt may have been blocked"
	if len(e.FilteredReasons) > 0 {
		msg += " (" + strings.Join(e.FilteredReasons, "; ") + ")"
	}
	return msg
}

// RemoteError is a failure reported by the video API itself.
type RemoteError struct {
	Op     string
	Code   int
	Status string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

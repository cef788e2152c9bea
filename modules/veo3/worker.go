package veo3

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"veo-studio-server/modules/common/credential"
	"veo-studio-server/modules/common/guard"
)

// AttemptState - 생성 시도 상태
type AttemptState string

const (
	StateIdle      AttemptState = "idle"
	StateRunning   AttemptState = "running"
	StateSucceeded AttemptState = "succeeded"
	StateFailed    AttemptState = "failed"
)

// Event types published to the status hub.
const (
	EventAttemptStatus    = "attempt_status"
	EventAttemptSucceeded = "attempt_succeeded"
	EventAttemptFailed    = "attempt_failed"
)

// Attempt is a snapshot of the single attempt slot.
type Attempt struct {
	ID             string           `json:"id,omitempty"`
	State          AttemptState     `json:"state"`
	Status         string           `json:"status"`
	Notice         string           `json:"notice,omitempty"`
	Prompt         string           `json:"prompt,omitempty"`
	Output         OutputConfig     `json:"output"`
	HasImage       bool             `json:"hasImage"`
	Poll           int              `json:"poll"`
	MaxPolls       int              `json:"maxPolls"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	FinishedAt     *time.Time       `json:"finishedAt,omitempty"`
	Error          *ClassifiedError `json:"error,omitempty"`
	VideoAvailable bool             `json:"videoAvailable"`
}

// Publisher pushes attempt events to connected pages.
type Publisher interface {
	Publish(msgType string, payload any)
}

// Stats - 서버 메트릭
type Stats struct {
	TotalAttempts     int `json:"totalAttempts"`
	SucceededAttempts int `json:"succeededAttempts"`
	FailedAttempts    int `json:"failedAttempts"`
	RejectedAttempts  int `json:"rejectedAttempts"`
}

// Studio runs one generation attempt at a time and keeps the most recent video.
type Studio struct {
	service   *Service
	guard     guard.Guard
	creds     *credential.Provider
	publisher Publisher
	baseCtx   context.Context

	mutex   sync.RWMutex
	current Attempt
	video   *VideoAsset
	stats   Stats

	wg sync.WaitGroup
}

// NewStudio - publisher는 nil 가능
func NewStudio(ctx context.Context, service *Service, g guard.Guard, creds *credential.Provider, publisher Publisher) *Studio {
	return &Studio{
		service:   service,
		guard:     g,
		creds:     creds,
		publisher: publisher,
		baseCtx:   ctx,
		current:   Attempt{State: StateIdle, Status: "Ready."},
	}
}

// Start validates the input, claims the attempt slot and runs the attempt in the background.
func (st *Studio) Start(ctx context.Context, in Input) (string, error) {
	req, err := st.service.BuildRequest(in)
	if err != nil {
		return "", err
	}

	attemptID := uuid.New().String()
	acquired, err := st.guard.TryAcquire(ctx, attemptID)
	if err != nil {
		return "", err
	}
	if !acquired {
		st.mutex.Lock()
		st.stats.RejectedAttempts++
		st.mutex.Unlock()
		return "", ErrAttemptInProgress
	}

	now := time.Now()
	st.mutex.Lock()
	st.stats.TotalAttempts++
	st.current = Attempt{
		ID:             attemptID,
		State:          StateRunning,
		Status:         "Starting video generation...",
		Prompt:         req.Prompt,
		Output:         req.Output,
		HasImage:       req.Image != nil,
		MaxPolls:       st.service.maxPolls,
		StartedAt:      &now,
		VideoAvailable: st.video != nil,
	}
	snapshot := st.current
	st.mutex.Unlock()

	log.Printf("🚀 [Studio] Attempt %s started", attemptID)
	st.publish(EventAttemptStatus, snapshot)

	st.wg.Add(1)
	go st.run(attemptID, in)

	return attemptID, nil
}

// run - 시도 1회 실행 (크레덴셜 확인 → 생성 → 결과 반영)
// guard는 succeed/fail 에서 해제
func (st *Studio) run(attemptID string, in Input) {
	defer st.wg.Done()

	ctx := st.baseCtx

	apiKey, err := st.creds.Resolve(ctx)
	if err != nil {
		log.Printf("❌ [Studio] Attempt %s has no API key: %v", attemptID, err)
		st.fail(attemptID, ClassifiedError{
			Category:                 CategoryCredential,
			Message:                  fmt.Sprintf("An API key is required to generate videos. Please select an API key. (%v)", err),
			RequiresCredentialPrompt: true,
		}, "")
		return
	}

	asset, err := st.service.Generate(ctx, in, apiKey, Hooks{
		OnProgress: func(p Progress) { st.progress(attemptID, p) },
	})
	if err != nil {
		classified := Classify(err)
		log.Printf("❌ [Studio] Attempt %s failed (%s): %v", attemptID, classified.Category, err)

		notice := ""
		if classified.RequiresCredentialPrompt {
			// 선택이 끝날 때까지 running 유지
			st.setStatus(attemptID, "Opening API key selection...")
			if _, perr := st.creds.Reselect(ctx); perr != nil {
				log.Printf("⚠️ [Studio] API key selection failed: %v", perr)
				notice = fmt.Sprintf("Could not open API key selection: %v", perr)
			} else {
				notice = "A new API key was selected. Please try again."
			}
		}
		st.fail(attemptID, classified, notice)
		return
	}

	st.succeed(attemptID, asset)
}

func (st *Studio) setStatus(attemptID, status string) {
	st.mutex.Lock()
	if st.current.ID != attemptID {
		st.mutex.Unlock()
		return
	}
	st.current.Status = status
	snapshot := st.current
	st.mutex.Unlock()

	st.publish(EventAttemptStatus, snapshot)
}

func (st *Studio) progress(attemptID string, p Progress) {
	st.mutex.Lock()
	if st.current.ID != attemptID {
		st.mutex.Unlock()
		return
	}
	st.current.Status = progressStatus(p)
	if p.Stage == StagePolling {
		st.current.Poll = p.Poll
	}
	snapshot := st.current
	st.mutex.Unlock()

	st.publish(EventAttemptStatus, snapshot)
}

// progressStatus - 진행 단계별 사용자 표시 문구
func progressStatus(p Progress) string {
	switch p.Stage {
	case StageSubmitting:
		return "Submitting generation request..."
	case StagePolling:
		return fmt.Sprintf("Generating video... (check %d of %d)", p.Poll, p.MaxPolls)
	case StageFetching:
		if p.Total > 1 {
			return fmt.Sprintf("Downloading video %d of %d...", p.Fetched+1, p.Total)
		}
		return "Downloading video..."
	default:
		return "Working..."
	}
}

// succeed installs the video into the single slot. Last write wins.
func (st *Studio) succeed(attemptID string, asset *VideoAsset) {
	now := time.Now()

	st.mutex.Lock()
	st.video = asset
	st.stats.SucceededAttempts++
	if st.current.ID == attemptID {
		st.current.State = StateSucceeded
		st.current.Status = "Video generated successfully."
		st.current.FinishedAt = &now
		st.current.VideoAvailable = true
	}
	snapshot := st.current
	st.releaseGuard(attemptID)
	st.mutex.Unlock()

	log.Printf("✅ [Studio] Attempt %s succeeded (%d bytes)", attemptID, len(asset.Data))
	st.publish(EventAttemptSucceeded, snapshot)
}

func (st *Studio) fail(attemptID string, classified ClassifiedError, notice string) {
	now := time.Now()

	st.mutex.Lock()
	st.stats.FailedAttempts++
	if st.current.ID == attemptID {
		st.current.State = StateFailed
		st.current.Status = classified.Message
		st.current.Notice = notice
		st.current.Error = &classified
		st.current.FinishedAt = &now
	}
	snapshot := st.current
	st.releaseGuard(attemptID)
	st.mutex.Unlock()

	st.publish(EventAttemptFailed, snapshot)
}

// releaseGuard frees the slot before the terminal event goes out, so a page that
// re-enables its controls on that event can start the next attempt right away.
// Called with st.mutex held.
func (st *Studio) releaseGuard(attemptID string) {
	if err := st.guard.Release(context.Background(), attemptID); err != nil {
		log.Printf("⚠️ [Studio] Failed to release guard for %s: %v", attemptID, err)
	}
}

func (st *Studio) publish(msgType string, attempt Attempt) {
	if st.publisher != nil {
		st.publisher.Publish(msgType, attempt)
	}
}

// Attempt returns a snapshot of the current attempt.
func (st *Studio) Attempt() Attempt {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.current
}

// Video returns the currently displayed video, or ErrNoVideo.
func (st *Studio) Video() (*VideoAsset, error) {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	if st.video == nil {
		return nil, ErrNoVideo
	}
	return st.video, nil
}

func (st *Studio) Stats() Stats {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.stats
}

// Wait blocks until the running attempt, if any, has finished.
func (st *Studio) Wait() {
	st.wg.Wait()
}
